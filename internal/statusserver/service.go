// Package statusserver exposes a running bot over local HTTP: health, the
// live status snapshot, Prometheus metrics and the run journal.
package statusserver

import (
	"context"
	"time"

	"github.com/fentz26/meetbot/internal/models"
	"github.com/fentz26/meetbot/internal/monitor"
	"github.com/fentz26/meetbot/internal/recording"
	"github.com/fentz26/meetbot/internal/store"
)

// RunSource reports the live run.
type RunSource interface {
	State() models.RunState
	Recording() *recording.Handle
}

// HeartbeatSource reports heartbeat counters.
type HeartbeatSource interface {
	Stats() monitor.HeartbeatStats
}

// StatusSource reports the last status sent to the control plane.
type StatusSource interface {
	Status() models.LifecycleStatus
}

// Snapshot is the live view of the bot in this process.
type Snapshot struct {
	Bot            models.BotIdentity      `json:"bot"`
	RunID          string                  `json:"run_id,omitempty"`
	State          models.RunState         `json:"state"`
	Status         models.LifecycleStatus  `json:"status,omitempty"`
	Recording      string                  `json:"recording,omitempty"`
	RecordingBytes int64                   `json:"recording_bytes"`
	Heartbeat      *monitor.HeartbeatStats `json:"heartbeat,omitempty"`
	Uptime         string                  `json:"uptime"`
}

// Service is the read side of a bot process.
type Service struct {
	store     *store.Store
	bot       models.BotIdentity
	runID     string
	run       RunSource
	heartbeat HeartbeatSource
	status    StatusSource
	started   time.Time
}

// NewService creates a service. Any source may be nil.
func NewService(st *store.Store, bot models.BotIdentity, runID string) *Service {
	return &Service{
		store:   st,
		bot:     bot,
		runID:   runID,
		started: time.Now(),
	}
}

// Attach wires the live sources of the running bot.
func (s *Service) Attach(run RunSource, hb HeartbeatSource, status StatusSource) {
	s.run = run
	s.heartbeat = hb
	s.status = status
}

// Snapshot returns the current view of the bot.
func (s *Service) Snapshot() (*Snapshot, error) {
	if s.run == nil {
		return nil, ErrNoRunning
	}
	snap := &Snapshot{
		Bot:    s.bot,
		RunID:  s.runID,
		State:  s.run.State(),
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	if h := s.run.Recording(); h != nil {
		snap.Recording = h.Path()
		snap.RecordingBytes = h.Written()
	}
	if s.heartbeat != nil {
		stats := s.heartbeat.Stats()
		snap.Heartbeat = &stats
	}
	if s.status != nil {
		snap.Status = s.status.Status()
	}
	return snap, nil
}

// Ping checks the journal database.
func (s *Service) Ping(ctx context.Context) error {
	if s.store == nil {
		return ErrNoStore
	}
	return s.store.Ping(ctx)
}

// ListRuns returns recent runs from the journal.
func (s *Service) ListRuns(limit int) ([]models.Run, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.ListRuns(limit)
}

// GetRun returns one run.
func (s *Service) GetRun(id string) (*models.Run, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.GetRun(id)
}

// ListEvents returns the journalled events of a run.
func (s *Service) ListEvents(runID string) ([]models.EventRecord, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	if _, err := s.store.GetRun(runID); err != nil {
		return nil, err
	}
	return s.store.ListEvents(runID)
}

// ListTransitions returns the audit trail of a run.
func (s *Service) ListTransitions(runID string) ([]models.Transition, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	if _, err := s.store.GetRun(runID); err != nil {
		return nil, err
	}
	return s.store.ListTransitions(runID)
}
