package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fentz26/meetbot/internal/logging"
	"github.com/fentz26/meetbot/internal/models"
)

// DefaultReportTimeout bounds each control plane call made by the reporter.
const DefaultReportTimeout = 10 * time.Second

// ControlPlane receives events and status updates.
type ControlPlane interface {
	ReportEvent(ctx context.Context, botID int64, event models.Event) error
	UpdateBotStatus(ctx context.Context, botID int64, status models.LifecycleStatus, recording string) error
}

// EventSink keeps a local copy of reported events.
type EventSink interface {
	RecordEvent(ctx context.Context, bot models.BotIdentity, event models.Event) error
}

// ReportingError is a failed event, status or sink delivery.
type ReportingError struct {
	Op   string
	Code models.EventCode
	Err  error
}

func (e *ReportingError) Error() string {
	return fmt.Sprintf("reporting %s for %s: %v", e.Op, e.Code, e.Err)
}

func (e *ReportingError) Unwrap() error {
	return e.Err
}

// ErrorPolicy decides what happens to a reporting failure. Reporting never
// returns errors to its callers; the policy is the only place they go.
type ErrorPolicy func(err *ReportingError)

// BestEffort logs reporting failures and carries on.
func BestEffort(logger logging.Logger) ErrorPolicy {
	return func(err *ReportingError) {
		logger.Warn("reporting failed",
			logging.Err(err.Err),
			logging.F("op", err.Op),
			logging.F("event", string(err.Code)))
	}
}

// Reporter publishes a bot's events and lifecycle status. Reports are
// delivered one at a time in call order, and once a terminal status has been
// sent no other status follows it.
type Reporter struct {
	cp       ControlPlane
	bot      models.BotIdentity
	timeout  time.Duration
	logger   logging.Logger
	onError  ErrorPolicy
	observer Observer
	sinks    []EventSink
	now      func() time.Time

	mu     sync.Mutex
	status models.LifecycleStatus
}

// NewReporter creates a reporter with the BestEffort policy.
func NewReporter(cp ControlPlane, bot models.BotIdentity, logger logging.Logger) *Reporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.F("component", "reporter"), logging.F("bot_id", bot.ID))
	return &Reporter{
		cp:       cp,
		bot:      bot,
		timeout:  DefaultReportTimeout,
		logger:   logger,
		onError:  BestEffort(logger),
		observer: nopObserver{},
		now:      time.Now,
	}
}

// SetErrorPolicy replaces the failure policy.
func (r *Reporter) SetErrorPolicy(p ErrorPolicy) {
	if p != nil {
		r.onError = p
	}
}

// SetObserver attaches metrics.
func (r *Reporter) SetObserver(o Observer) {
	if o != nil {
		r.observer = o
	}
}

// SetTimeout changes the per-call timeout.
func (r *Reporter) SetTimeout(d time.Duration) {
	if d > 0 {
		r.timeout = d
	}
}

// AddSink registers a local event sink.
func (r *Reporter) AddSink(s EventSink) {
	r.sinks = append(r.sinks, s)
}

// Status returns the last status sent, or "" if none.
func (r *Reporter) Status() models.LifecycleStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// ReportEvent publishes the event and, when the code asserts a lifecycle
// status, updates the status in a single call. For DONE the recording
// reference in data travels with the status. Calls run to completion even
// if ctx is cancelled, bounded by the reporter's own timeout.
func (r *Reporter) ReportEvent(ctx context.Context, code models.EventCode, data *models.EventData) {
	r.mu.Lock()
	defer r.mu.Unlock()

	event := models.Event{EventType: code, EventTime: r.now(), Data: data}
	base := context.WithoutCancel(ctx)

	callCtx, cancel := context.WithTimeout(base, r.timeout)
	err := r.cp.ReportEvent(callCtx, r.bot.ID, event)
	cancel()
	r.observer.EventReported(code, err == nil)
	if err != nil {
		r.onError(&ReportingError{Op: "event", Code: code, Err: err})
	}

	if status, ok := models.StatusForEvent(code); ok {
		r.updateStatus(base, code, status, data)
	}

	for _, sink := range r.sinks {
		sinkCtx, cancel := context.WithTimeout(base, r.timeout)
		if err := sink.RecordEvent(sinkCtx, r.bot, event); err != nil {
			r.onError(&ReportingError{Op: "sink", Code: code, Err: err})
		}
		cancel()
	}

	r.logger.Info("event reported", logging.F("event", string(code)))
}

func (r *Reporter) updateStatus(ctx context.Context, code models.EventCode, status models.LifecycleStatus, data *models.EventData) {
	if r.status.IsTerminal() {
		r.logger.Warn("dropping status after terminal status",
			logging.F("status", string(status)),
			logging.F("terminal", string(r.status)))
		return
	}
	if statusRank(status) < statusRank(r.status) {
		r.logger.Warn("dropping out-of-order status",
			logging.F("status", string(status)),
			logging.F("current", string(r.status)))
		return
	}

	var recording string
	if status == models.StatusDone && data != nil {
		recording = data.Recording
	}

	// The status counts as sent even if delivery fails, so a terminal
	// status is attempted at most once.
	r.status = status

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	err := r.cp.UpdateBotStatus(callCtx, r.bot.ID, status, recording)
	r.observer.StatusReported(status, err == nil)
	if err != nil {
		r.onError(&ReportingError{Op: "status", Code: code, Err: err})
	}
}

func statusRank(s models.LifecycleStatus) int {
	switch s {
	case models.StatusJoining:
		return 1
	case models.StatusInCall:
		return 2
	case models.StatusDone, models.StatusFailed:
		return 3
	default:
		return 0
	}
}
