package tui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fentz26/meetbot/internal/models"
	"github.com/fentz26/meetbot/internal/monitor"
	"github.com/fentz26/meetbot/internal/statusserver"
)

func fakeStatusServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(statusserver.Snapshot{
			Bot:            models.BotIdentity{ID: 5, Platform: models.PlatformZoom, MeetingURL: "https://zoom.us/j/1"},
			RunID:          "run-1",
			State:          models.RunRecording,
			Recording:      "/tmp/bot-5.webm",
			RecordingBytes: 2048,
			Heartbeat:      &monitor.HeartbeatStats{Sent: 4},
		})
	})
	mux.HandleFunc("/runs", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") == "" {
			t.Errorf("Expected a limit parameter")
		}
		json.NewEncoder(w).Encode([]models.Run{{ID: "run-1", BotID: 5, Platform: models.PlatformZoom, State: models.RunRecording, StartedAt: time.Now()}})
	})
	mux.HandleFunc("/runs/run-1/events", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]models.EventRecord{{RunID: "run-1", EventType: models.EventInCall, EventTime: time.Now()}})
	})
	mux.HandleFunc("/runs/missing/events", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "run not found", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient(t *testing.T) {
	srv := fakeStatusServer(t)
	c := NewClient(strings.TrimPrefix(srv.URL, "http://"))

	snap, err := c.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if snap.State != models.RunRecording || snap.Heartbeat.Sent != 4 {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}

	runs, err := c.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Errorf("Unexpected runs: %+v", runs)
	}

	events, err := c.ListEvents("run-1")
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].EventType != models.EventInCall {
		t.Errorf("Unexpected events: %+v", events)
	}

	if _, err := c.ListEvents("missing"); err == nil || !strings.Contains(err.Error(), "run not found") {
		t.Errorf("Expected API error, got %v", err)
	}
}

func TestAppShowsStatus(t *testing.T) {
	srv := fakeStatusServer(t)
	a := New(srv.URL)
	a.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	msg := a.fetchStatus()()
	if _, ok := msg.(statusLoadedMsg); !ok {
		t.Fatalf("Expected statusLoadedMsg, got %T", msg)
	}
	a.Update(msg)

	view := a.View()
	for _, want := range []string{"RECORDING", "/tmp/bot-5.webm", "2.0 KiB", "4 sent"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q", want)
		}
	}
}

func TestAppOffline(t *testing.T) {
	a := New("127.0.0.1:1")
	a.Update(a.fetchStatus()())
	if a.online {
		t.Error("Expected bot to be offline")
	}
	if !strings.Contains(a.View(), "Waiting") {
		t.Error("Expected waiting message")
	}
}

func TestAppRunsAndEvents(t *testing.T) {
	srv := fakeStatusServer(t)
	a := New(srv.URL)
	a.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	a.Update(tea.KeyMsg{Type: tea.KeyTab})
	if a.mode != modeRuns {
		t.Fatalf("Expected runs mode, got %s", a.mode)
	}

	a.Update(a.fetchRuns()())
	if len(a.runs.Items()) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(a.runs.Items()))
	}

	_, cmd := a.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if a.mode != modeEvents {
		t.Fatalf("Expected events mode, got %s", a.mode)
	}
	if cmd == nil {
		t.Fatal("Expected a fetch command")
	}
	a.Update(cmd())
	if a.eventRun != "run-1" {
		t.Errorf("Expected events for run-1, got %q", a.eventRun)
	}
	if !strings.Contains(a.View(), "IN_CALL") {
		t.Error("Expected IN_CALL event in view")
	}

	a.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if a.mode != modeRuns {
		t.Errorf("Expected esc to return to runs, got %s", a.mode)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		12:              "12 B",
		1536:            "1.5 KiB",
		5 * 1024 * 1024: "5.0 MiB",
	}
	for in, want := range tests {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
