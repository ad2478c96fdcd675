// Package monitor keeps the control plane informed about a bot: periodic
// liveness heartbeats, and the event log plus lifecycle status.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/fentz26/meetbot/internal/logging"
)

// DefaultHeartbeatInterval is how often liveness is asserted.
const DefaultHeartbeatInterval = 5 * time.Second

// HeartbeatSender delivers one liveness signal.
type HeartbeatSender interface {
	Heartbeat(ctx context.Context, botID int64) error
}

// HeartbeatConfig configures the heartbeat loop.
type HeartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
	// SendTimeout bounds a single send. It never exceeds Interval.
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// DefaultHeartbeatConfig returns the default heartbeat configuration.
func DefaultHeartbeatConfig() *HeartbeatConfig {
	return &HeartbeatConfig{
		Interval:    DefaultHeartbeatInterval,
		SendTimeout: DefaultHeartbeatInterval,
	}
}

// HeartbeatStats is a snapshot of the loop's counters.
type HeartbeatStats struct {
	Sent                int       `json:"sent"`
	Failed              int       `json:"failed"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSuccess         time.Time `json:"last_success"`
	LastError           string    `json:"last_error,omitempty"`
}

// Heartbeat sends liveness signals for one bot until stopped. Failed sends
// are logged and counted but never end the loop. It knows nothing about the
// bot's lifecycle status.
type Heartbeat struct {
	sender   HeartbeatSender
	botID    int64
	interval time.Duration
	timeout  time.Duration
	logger   logging.Logger
	observer Observer

	mu    sync.Mutex
	stats HeartbeatStats

	// Control
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHeartbeat creates a heartbeat loop for botID.
func NewHeartbeat(sender HeartbeatSender, botID int64, cfg *HeartbeatConfig, logger logging.Logger) *Heartbeat {
	if cfg == nil {
		cfg = DefaultHeartbeatConfig()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Heartbeat{
		sender:   sender,
		botID:    botID,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With(logging.F("component", "heartbeat"), logging.F("bot_id", botID)),
		observer: nopObserver{},
	}
}

// SetObserver attaches metrics to the loop. Call before Start.
func (h *Heartbeat) SetObserver(o Observer) {
	if o != nil {
		h.observer = o
	}
}

// Start runs the loop in the background until ctx is cancelled or Stop is called.
func (h *Heartbeat) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.Run(ctx)
	}()
	h.logger.Info("heartbeat started", logging.F("interval", h.interval.String()))
}

// Stop cancels the loop and waits for it to return. An in-flight send is
// allowed to finish or hit its own timeout.
func (h *Heartbeat) Stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	h.wg.Wait()
	h.logger.Info("heartbeat stopped")
}

// Run sends a heartbeat immediately and then once per interval until ctx
// is cancelled. No heartbeat starts after cancellation.
func (h *Heartbeat) Run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	h.beat(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			h.beat(ctx)
		}
	}
}

func (h *Heartbeat) beat(ctx context.Context) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
	defer cancel()

	err := h.sender.Heartbeat(sendCtx, h.botID)
	h.observer.HeartbeatSent(err == nil)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		h.stats.Failed++
		h.stats.ConsecutiveFailures++
		h.stats.LastError = err.Error()
		h.logger.Warn("failed to send heartbeat",
			logging.Err(err),
			logging.F("consecutive_failures", h.stats.ConsecutiveFailures))
		return
	}
	h.stats.Sent++
	h.stats.ConsecutiveFailures = 0
	h.stats.LastSuccess = time.Now()
	h.stats.LastError = ""
	h.logger.Debug("heartbeat sent")
}

// Stats returns a snapshot of the loop's counters.
func (h *Heartbeat) Stats() HeartbeatStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}
