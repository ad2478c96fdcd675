// Package lifecycle runs one bot from launch to its terminal status: join,
// record until the meeting ends, tear down, and report the outcome while
// heartbeats run alongside.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fentz26/meetbot/internal/browser"
	"github.com/fentz26/meetbot/internal/detector"
	"github.com/fentz26/meetbot/internal/logging"
	"github.com/fentz26/meetbot/internal/models"
	"github.com/fentz26/meetbot/internal/platform"
	"github.com/fentz26/meetbot/internal/recording"
)

// Joiner joins a meeting.
type Joiner interface {
	Join(ctx context.Context, req platform.JoinRequest) (*platform.JoinedSession, error)
}

// Recorder starts a recording of a joined session.
type Recorder interface {
	Start(ctx context.Context, session *platform.JoinedSession) (*recording.Handle, error)
}

// EndAwaiter blocks until the meeting is over.
type EndAwaiter interface {
	Await(ctx context.Context, session *platform.JoinedSession) detector.Result
}

// EventReporter delivers events and statuses; it never fails the caller.
type EventReporter interface {
	ReportEvent(ctx context.Context, code models.EventCode, data *models.EventData)
}

// Liveness is the background heartbeat.
type Liveness interface {
	Start(ctx context.Context)
	Stop()
}

// Auditor persists each transition.
type Auditor interface {
	Record(from, to models.RunState, inputs interface{}, details string) error
}

// Metrics receives run measurements.
type Metrics interface {
	SetState(state models.RunState)
	ObserveJoin(platform models.Platform, d time.Duration)
	JoinFailed(platform models.Platform, stage string)
	ObserveMeeting(d time.Duration)
	SetRecordingBytes(n int64)
}

// Config wires an Orchestrator.
type Config struct {
	Identity    models.BotIdentity
	DisplayName string
	JoinTimeout time.Duration
	// MaxDuration caps time in the meeting; zero keeps the platform's own
	// end timeout.
	MaxDuration time.Duration

	Joiner    Joiner
	Launcher  browser.Launcher
	Recorder  Recorder
	Detector  EndAwaiter
	Reporter  EventReporter
	Heartbeat Liveness

	// Optional.
	Audit   Auditor
	Metrics Metrics
	Logger  logging.Logger
}

// Outcome describes how a run finished.
type Outcome struct {
	State     models.RunState `json:"state"`
	Recording string          `json:"recording,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Stage     string          `json:"stage,omitempty"`
	Err       error           `json:"-"`
	StartedAt time.Time       `json:"started_at"`
	JoinedAt  time.Time       `json:"joined_at,omitempty"`
	EndedAt   time.Time       `json:"ended_at"`
}

// Orchestrator owns the browsing session and drives a single run.
type Orchestrator struct {
	cfg    Config
	logger logging.Logger

	mu      sync.Mutex
	state   models.RunState
	started bool

	session      *platform.JoinedSession
	handle       *recording.Handle
	teardownOnce sync.Once
}

// New creates an orchestrator in the STARTING state.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = "Meeting Bot"
	}
	return &Orchestrator{
		cfg:    cfg,
		state:  models.RunStarting,
		logger: cfg.Logger.With(logging.F("component", "lifecycle"), logging.F("bot_id", cfg.Identity.ID)),
	}
}

// State returns the current run state.
func (o *Orchestrator) State() models.RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Recording returns the active or finished recording, if any.
func (o *Orchestrator) Recording() *recording.Handle {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.handle
}

// Run executes the whole lifecycle. Failures of the run itself are reported
// in the Outcome; the error is only for misuse of the orchestrator.
func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	o.mu.Lock()
	if o.started || o.state.IsTerminal() {
		o.mu.Unlock()
		return nil, ErrAlreadyRun
	}
	o.started = true
	o.mu.Unlock()

	out := &Outcome{StartedAt: time.Now()}
	o.cfg.Metrics.SetState(models.RunStarting)

	o.cfg.Heartbeat.Start(ctx)
	defer o.cfg.Heartbeat.Stop()

	if err := o.transition(models.RunJoining, o.cfg.Identity, "joining meeting"); err != nil {
		return nil, err
	}
	o.cfg.Reporter.ReportEvent(ctx, models.EventJoining, nil)

	joinStart := time.Now()
	session, err := o.cfg.Joiner.Join(ctx, platform.JoinRequest{
		Identity:    o.cfg.Identity,
		DisplayName: o.cfg.DisplayName,
		Timeout:     o.cfg.JoinTimeout,
	})
	if err != nil {
		return o.failJoin(ctx, out, err)
	}
	o.cfg.Metrics.ObserveJoin(o.cfg.Identity.Platform, time.Since(joinStart))

	o.mu.Lock()
	o.session = session
	o.mu.Unlock()
	out.JoinedAt = session.JoinedAt

	if err := o.transition(models.RunRecording, map[string]interface{}{"joined_at": session.JoinedAt}, "joined meeting"); err != nil {
		o.teardown()
		return nil, err
	}

	// Recording and end detection start together once the join is confirmed.
	handle, err := o.cfg.Recorder.Start(ctx, session)
	if err != nil {
		o.logger.Error("failed to start recording", logging.Err(err))
		o.teardown()
		return o.fail(ctx, out, err, "recording", fmt.Sprintf("recording failed to start: %v", err))
	}
	o.mu.Lock()
	o.handle = handle
	o.mu.Unlock()

	o.cfg.Reporter.ReportEvent(ctx, models.EventRecordingStarted, nil)
	o.cfg.Reporter.ReportEvent(ctx, models.EventInCall, nil)

	if o.cfg.MaxDuration > 0 {
		session.End.Timeout = o.cfg.MaxDuration
	}
	result := o.cfg.Detector.Await(ctx, session)
	out.Reason = string(result.Reason)
	o.cfg.Metrics.ObserveMeeting(time.Since(session.JoinedAt))

	switch result.Reason {
	case detector.ReasonMeetingEnded, detector.ReasonTimeout:
		return o.finish(ctx, out, result)
	default:
		o.teardown()
		desc := describeEnd(result)
		return o.fail(ctx, out, result.Err, string(result.Reason), desc)
	}
}

func (o *Orchestrator) finish(ctx context.Context, out *Outcome, result detector.Result) (*Outcome, error) {
	if err := o.transition(models.RunEnding, map[string]interface{}{"reason": result.Reason, "watcher": result.Watcher}, describeEnd(result)); err != nil {
		o.teardown()
		return nil, err
	}
	o.cfg.Reporter.ReportEvent(ctx, models.EventMeetingEnded, &models.EventData{Description: describeEnd(result)})

	o.teardown()

	path := o.handle.Path()
	if err := o.transition(models.RunDone, map[string]string{"recording": path}, "recording saved"); err != nil {
		return nil, err
	}
	o.cfg.Reporter.ReportEvent(ctx, models.EventDone, &models.EventData{
		Description: describeEnd(result),
		Recording:   path,
	})

	out.State = models.RunDone
	out.Recording = path
	out.EndedAt = time.Now()
	o.logger.Info("bot run finished", logging.F("recording", path))
	return out, nil
}

func (o *Orchestrator) failJoin(ctx context.Context, out *Outcome, err error) (*Outcome, error) {
	stage, _ := platform.StageOf(err)
	if stage == "" {
		stage = "join"
	}
	o.cfg.Metrics.JoinFailed(o.cfg.Identity.Platform, stage)

	// The adapter already closed its session; release the browser.
	o.teardown()

	desc := err.Error()
	if errors.Is(err, context.Canceled) {
		desc = "cancelled while joining: " + desc
	}
	return o.fail(ctx, out, err, stage, desc)
}

func (o *Orchestrator) fail(ctx context.Context, out *Outcome, cause error, subCode, desc string) (*Outcome, error) {
	if err := o.transition(models.RunFailed, map[string]string{"sub_code": subCode}, desc); err != nil {
		return nil, err
	}
	o.cfg.Reporter.ReportEvent(ctx, models.EventFailed, &models.EventData{Description: desc, SubCode: subCode})

	out.State = models.RunFailed
	out.Stage = subCode
	out.Err = cause
	if out.Err == nil {
		out.Err = errors.New(desc)
	}
	out.EndedAt = time.Now()
	o.logger.Error("bot run failed", logging.F("sub_code", subCode), logging.F("cause", desc))
	return out, nil
}

// teardown stops the recording, closes the session and shuts down the
// browser, in that order, at most once.
func (o *Orchestrator) teardown() {
	o.teardownOnce.Do(func() {
		o.mu.Lock()
		handle, session := o.handle, o.session
		o.mu.Unlock()

		if handle != nil {
			if err := handle.Stop(); err != nil {
				o.logger.Warn("recording did not stop cleanly", logging.Err(err))
			}
			o.cfg.Metrics.SetRecordingBytes(handle.Written())
			o.cfg.Reporter.ReportEvent(context.Background(), models.EventRecordingStopped, &models.EventData{
				Description: fmt.Sprintf("%d bytes written to %s", handle.Written(), handle.Path()),
			})
		}
		if session != nil {
			if err := session.Session.Close(); err != nil {
				o.logger.Warn("failed to close browser session", logging.Err(err))
			}
		}
		if o.cfg.Launcher != nil {
			if err := o.cfg.Launcher.Shutdown(); err != nil {
				o.logger.Warn("failed to shut down browser", logging.Err(err))
			}
		}
	})
}

func (o *Orchestrator) transition(to models.RunState, inputs interface{}, details string) error {
	o.mu.Lock()
	from := o.state
	if err := checkTransition(from, to); err != nil {
		o.mu.Unlock()
		return err
	}
	o.state = to
	o.mu.Unlock()

	o.cfg.Metrics.SetState(to)
	if o.cfg.Audit != nil {
		if err := o.cfg.Audit.Record(from, to, inputs, details); err != nil {
			o.logger.Warn("failed to audit transition", logging.Err(err))
		}
	}
	o.logger.Info("state changed", logging.F("from", string(from)), logging.F("to", string(to)))
	return nil
}

func describeEnd(r detector.Result) string {
	switch r.Reason {
	case detector.ReasonMeetingEnded:
		return "meeting ended"
	case detector.ReasonTimeout:
		return "maximum meeting duration reached"
	case detector.ReasonCancelled:
		return "cancelled"
	case detector.ReasonSessionLost:
		if r.Err != nil {
			return r.Err.Error()
		}
		return "browser session lost"
	default:
		return string(r.Reason)
	}
}

type nopMetrics struct{}

func (nopMetrics) SetState(models.RunState)                   {}
func (nopMetrics) ObserveJoin(models.Platform, time.Duration) {}
func (nopMetrics) JoinFailed(models.Platform, string)         {}
func (nopMetrics) ObserveMeeting(time.Duration)               {}
func (nopMetrics) SetRecordingBytes(int64)                    {}
