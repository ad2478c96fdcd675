package main

import (
	"reflect"
	"testing"
	"time"

	"github.com/fentz26/meetbot/internal/config"
)

func TestWithoutDetach(t *testing.T) {
	in := []string{"run", "--detach", "https://zoom.us/j/1", "--detach=true", "--bot-id", "4"}
	want := []string{"run", "https://zoom.us/j/1", "--bot-id", "4"}
	if got := withoutDetach(in); !reflect.DeepEqual(got, want) {
		t.Errorf("withoutDetach() = %v, want %v", got, want)
	}
}

func TestApplyRunFlags(t *testing.T) {
	cmd := runCmd
	if err := cmd.ParseFlags([]string{"--bot-id", "12", "--max-duration", "90m", "--status-addr", ""}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}

	cfg := config.Default()
	cfg.Bot.Platform = "zoom"
	applyRunFlags(cmd, cfg, []string{"https://meet.google.com/abc-defg-hij"})

	if cfg.Bot.MeetingURL != "https://meet.google.com/abc-defg-hij" {
		t.Errorf("Expected meeting URL from args, got %q", cfg.Bot.MeetingURL)
	}
	if cfg.Bot.ID != 12 {
		t.Errorf("Expected bot id 12, got %d", cfg.Bot.ID)
	}
	if cfg.Bot.EndTimeout.Std() != 90*time.Minute {
		t.Errorf("Expected max duration 90m, got %v", cfg.Bot.EndTimeout)
	}
	if cfg.StatusAddr != "" {
		t.Errorf("Expected status server disabled, got %q", cfg.StatusAddr)
	}
	// Unset flags leave config alone.
	if cfg.Bot.Platform != "zoom" {
		t.Errorf("Expected platform from config, got %q", cfg.Bot.Platform)
	}
	if cfg.Bot.DisplayName != config.DefaultDisplayName {
		t.Errorf("Expected default display name, got %q", cfg.Bot.DisplayName)
	}
}
