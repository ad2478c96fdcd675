package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fentz26/meetbot/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a running bot in an interactive dashboard",
	RunE:  runWatch,
}

var watchAddr string

func init() {
	watchCmd.Flags().StringVar(&watchAddr, "addr", "", "Status server address (default from config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	addr := watchAddr
	if addr == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		addr = cfg.StatusAddr
	}
	if addr == "" {
		return fmt.Errorf("no status server address configured")
	}

	app := tui.New(addr)
	if err := app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
