package statusserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fentz26/meetbot/internal/metrics"
	"github.com/fentz26/meetbot/internal/models"
	"github.com/fentz26/meetbot/internal/monitor"
	"github.com/fentz26/meetbot/internal/recording"
	"github.com/fentz26/meetbot/internal/store"
)

var testBot = models.BotIdentity{ID: 9, Platform: models.PlatformMeet, MeetingURL: "https://meet.google.com/abc-defg-hij"}

type fakeRun struct{ state models.RunState }

func (f fakeRun) State() models.RunState       { return f.state }
func (f fakeRun) Recording() *recording.Handle { return nil }

type fakeHeartbeat struct{ stats monitor.HeartbeatStats }

func (f fakeHeartbeat) Stats() monitor.HeartbeatStats { return f.stats }

type fakeStatus struct{ status models.LifecycleStatus }

func (f fakeStatus) Status() models.LifecycleStatus { return f.status }

func newTestServer(t *testing.T) (*Server, *store.Store, *models.Run) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	run, err := st.CreateRun(testBot)
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	svc := NewService(st, testBot, run.ID)
	svc.Attach(fakeRun{models.RunRecording}, fakeHeartbeat{monitor.HeartbeatStats{Sent: 3, Failed: 1}}, fakeStatus{models.StatusInCall})

	reg := prometheus.NewRegistry()
	metrics.NewBotMetrics(reg).SetState(models.RunRecording)
	return NewServer(svc, "127.0.0.1:0", reg, nil), st, run
}

func get(t *testing.T, h http.Handler, path string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Result()
}

func TestHealthEndpoint_OK(t *testing.T) {
	s, st, _ := newTestServer(t)
	defer st.Close()

	resp := get(t, s.Handler(), "/health")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !health.OK {
		t.Error("Expected health.OK to be true")
	}
	if health.DB != "ok" {
		t.Errorf("Expected DB status 'ok', got '%s'", health.DB)
	}
	if health.State != models.RunRecording {
		t.Errorf("Expected state RECORDING, got '%s'", health.State)
	}
	if health.Version == "" {
		t.Error("Expected version to be set")
	}
}

func TestHealthEndpoint_MethodNotAllowed(t *testing.T) {
	s, st, _ := newTestServer(t)
	defer st.Close()

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestHealthEndpoint_DBError(t *testing.T) {
	s, st, _ := newTestServer(t)

	// Close the store to simulate DB error
	st.Close()

	resp := get(t, s.Handler(), "/health")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if health.OK {
		t.Error("Expected health.OK to be false when DB is down")
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, st, run := newTestServer(t)
	defer st.Close()

	resp := get(t, s.Handler(), "/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if snap.RunID != run.ID {
		t.Errorf("Expected run %s, got %s", run.ID, snap.RunID)
	}
	if snap.Status != models.StatusInCall {
		t.Errorf("Expected IN_CALL, got %s", snap.Status)
	}
	if snap.Heartbeat == nil || snap.Heartbeat.Sent != 3 {
		t.Errorf("Expected heartbeat stats, got %+v", snap.Heartbeat)
	}
}

func TestStatusEndpoint_NotRunning(t *testing.T) {
	svc := NewService(nil, testBot, "")
	resp := get(t, NewServer(svc, "", prometheus.NewRegistry(), nil).Handler(), "/status")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}
}

func TestRunEndpoints(t *testing.T) {
	s, st, run := newTestServer(t)
	defer st.Close()

	ev := models.Event{EventType: models.EventJoining, EventTime: time.Now()}
	if _, err := st.AddEvent(context.Background(), run.ID, testBot.ID, ev); err != nil {
		t.Fatalf("AddEvent failed: %v", err)
	}

	resp := get(t, s.Handler(), "/runs/"+run.ID+"/events")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	var events []models.EventRecord
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(events) != 1 || events[0].EventType != models.EventJoining {
		t.Errorf("Unexpected events: %+v", events)
	}

	resp = get(t, s.Handler(), "/runs?limit=5")
	var runs []models.Run
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("Expected 1 run, got %d", len(runs))
	}

	resp = get(t, s.Handler(), "/runs/missing/events")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown run, got %d", resp.StatusCode)
	}

	resp = get(t, s.Handler(), "/runs?limit=x")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, st, _ := newTestServer(t)
	defer st.Close()

	resp := get(t, s.Handler(), "/metrics")
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "meetbot_") {
		t.Errorf("Expected meetbot metrics in body, got:\n%s", body)
	}
}

func TestStartAndShutdown(t *testing.T) {
	s, st, _ := newTestServer(t)
	defer st.Close()

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	resp, err := http.Get("http://" + s.Addr() + "/version")
	if err != nil {
		t.Fatalf("GET /version failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}
