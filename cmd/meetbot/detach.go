package main

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/meetbot/internal/config"
)

// startDetached re-executes the current command line without --detach in a
// new session, logging to a file under the config directory.
func startDetached(cfg *config.Config) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	dir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	logDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	logPath := filepath.Join(logDir, fmt.Sprintf("bot-%d-%s.log", cfg.Bot.ID, time.Now().Format("20060102-150405")))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()

	cmd := exec.Command(exe, withoutDetach(os.Args[1:])...)
	// Detach process so it survives the terminal
	configureDetachedProc(cmd)
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return err
	}
	fmt.Printf("Bot started in background (pid %d)\n", cmd.Process.Pid)
	fmt.Printf("  Log: %s\n", logPath)

	if cfg.StatusAddr == "" {
		return nil
	}
	fmt.Print("  Waiting for status server...")
	for i := 0; i < 20; i++ {
		if statusServerUp(cfg.StatusAddr) {
			fmt.Println(" Done.")
			fmt.Printf("  Watch: meetbot watch --addr %s\n", cfg.StatusAddr)
			return nil
		}
		time.Sleep(250 * time.Millisecond)
		fmt.Print(".")
	}
	fmt.Println(" not reachable yet, check the log.")
	return nil
}

func withoutDetach(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--detach" || strings.HasPrefix(a, "--detach=") {
			continue
		}
		out = append(out, a)
	}
	return out
}

func statusServerUp(addr string) bool {
	client := http.Client{Timeout: 500 * time.Millisecond}
	resp, err := client.Get("http://" + addr + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return true
}
