//go:build windows

package main

import "os/exec"

func configureDetachedProc(cmd *exec.Cmd) {
	// Windows doesn't use Setsid.
}
