package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fentz26/meetbot/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of meetbot",
	RunE:  runVersion,
}

var versionJSON bool

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Output JSON")
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := buildinfo.Get()
	if versionJSON {
		return printJSON(info)
	}
	fmt.Printf("meetbot version %s\n", buildinfo.String())
	fmt.Printf("  OS/Arch: %s/%s\n", info.OS, info.Arch)
	fmt.Printf("  Go version: %s\n", info.GoVersion)
	return nil
}
