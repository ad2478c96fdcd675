// Package detector waits for a joined meeting to end.
//
// Several watchers run at once: one polls for the in-call leave control to
// disappear, one polls for an end-of-meeting dialog to appear, and one waits
// for the browser session itself to go away. The first watcher to conclude
// decides the result and fires the end callback; later conclusions are
// counted and dropped.
package detector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fentz26/meetbot/internal/browser"
	"github.com/fentz26/meetbot/internal/logging"
	"github.com/fentz26/meetbot/internal/platform"
)

// DefaultInterval is used when the end signal does not set one.
const DefaultInterval = 5 * time.Second

// Reason says why Await returned.
type Reason string

const (
	ReasonMeetingEnded Reason = "meeting-ended"
	ReasonSessionLost  Reason = "session-lost"
	ReasonCancelled    Reason = "cancelled"
	ReasonTimeout      Reason = "timeout"
)

// SessionLostError reports that the browser session went away outside the
// normal end-of-meeting path.
type SessionLostError struct {
	Cause error
}

func (e *SessionLostError) Error() string {
	return fmt.Sprintf("browser session lost: %v", e.Cause)
}

func (e *SessionLostError) Unwrap() error {
	return e.Cause
}

// Result is the outcome of Await.
type Result struct {
	Reason Reason
	// Watcher names the watcher that concluded first.
	Watcher string
	Err     error
	// Duplicates counts conclusions that arrived after the first.
	Duplicates int
	At         time.Time
}

// Detector watches sessions for the end of a meeting. It holds no per-session
// state and may be shared.
type Detector struct {
	logger logging.Logger
	// OnEnd is called exactly once per Await with the deciding result,
	// before Await returns.
	OnEnd func(Result)
}

// New creates a Detector.
func New(logger logging.Logger, onEnd func(Result)) *Detector {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Detector{
		logger: logger.With(logging.F("component", "detector")),
		OnEnd:  onEnd,
	}
}

type conclusion struct {
	watcher string
	reason  Reason
	err     error
}

// Await blocks until the meeting ends, the session is lost, the end signal's
// timeout passes or ctx is cancelled.
func (d *Detector) Await(ctx context.Context, session *platform.JoinedSession) Result {
	sig := session.End
	if sig.Interval <= 0 {
		sig.Interval = DefaultInterval
	}
	log := d.logger.With(logging.F("bot_id", session.Identity.ID))

	var (
		watchCtx context.Context
		cancel   context.CancelFunc
	)
	if sig.Timeout > 0 {
		watchCtx, cancel = context.WithTimeout(ctx, sig.Timeout)
	} else {
		watchCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	concluded := make(chan conclusion, 3)
	var wg sync.WaitGroup
	spawn := func(fn func(context.Context) (conclusion, bool)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c, ok := fn(watchCtx); ok {
				concluded <- c
			}
		}()
	}

	spawn(func(ctx context.Context) (conclusion, bool) {
		return watchSession(ctx, session.Session)
	})
	if sig.GoneSelector != "" {
		spawn(func(ctx context.Context) (conclusion, bool) {
			return watchGone(ctx, session.Surface, sig, log)
		})
	}
	if sig.AppearSelector != "" {
		spawn(func(ctx context.Context) (conclusion, bool) {
			return watchAppear(ctx, session.Surface, sig, log)
		})
	}

	var first conclusion
	select {
	case first = <-concluded:
	case <-watchCtx.Done():
		first = conclusion{watcher: "context", reason: ReasonTimeout, err: watchCtx.Err()}
		if ctx.Err() != nil {
			first = conclusion{watcher: "context", reason: ReasonCancelled, err: ctx.Err()}
		}
	}

	cancel()
	wg.Wait()
	close(concluded)

	res := Result{Reason: first.reason, Watcher: first.watcher, Err: first.err, At: time.Now()}
	for extra := range concluded {
		res.Duplicates++
		log.Debug("dropping duplicate end detection", logging.F("watcher", extra.watcher), logging.F("reason", string(extra.reason)))
	}

	log.Info("meeting end detected",
		logging.F("reason", string(res.Reason)),
		logging.F("watcher", res.Watcher),
		logging.F("duplicates", res.Duplicates))

	if d.OnEnd != nil {
		d.OnEnd(res)
	}
	return res
}

func lost(watcher string, cause error) (conclusion, bool) {
	return conclusion{watcher: watcher, reason: ReasonSessionLost, err: &SessionLostError{Cause: cause}}, true
}

func watchSession(ctx context.Context, s browser.Session) (conclusion, bool) {
	select {
	case <-ctx.Done():
		return conclusion{}, false
	case <-s.Done():
		return lost("session", browser.ErrSessionClosed)
	}
}

// watchGone polls the leave control once per interval and concludes when it
// no longer matches.
func watchGone(ctx context.Context, page browser.Page, sig platform.EndSignal, log logging.Logger) (conclusion, bool) {
	ticker := time.NewTicker(sig.Interval)
	defer ticker.Stop()

	for {
		present, err := page.Exists(ctx, sig.GoneSelector)
		switch {
		case ctx.Err() != nil:
			return conclusion{}, false
		case errors.Is(err, browser.ErrSessionClosed):
			return lost("gone", err)
		case err != nil:
			log.Debug("leave control poll failed", logging.Err(err))
		case !present:
			return conclusion{watcher: "gone", reason: ReasonMeetingEnded}, true
		}

		select {
		case <-ctx.Done():
			return conclusion{}, false
		case <-ticker.C:
		}
	}
}

// watchAppear waits up to one interval per attempt for the end dialog and
// acknowledges it once it shows.
func watchAppear(ctx context.Context, page browser.Page, sig platform.EndSignal, log logging.Logger) (conclusion, bool) {
	for {
		err := page.WaitVisible(ctx, sig.AppearSelector, sig.Interval)
		switch {
		case ctx.Err() != nil:
			return conclusion{}, false
		case err == nil:
			if sig.Acknowledge != "" {
				if err := page.Click(ctx, sig.Acknowledge); err != nil {
					log.Warn("failed to acknowledge end of meeting", logging.Err(err))
				}
			}
			return conclusion{watcher: "appear", reason: ReasonMeetingEnded}, true
		case errors.Is(err, browser.ErrSessionClosed):
			return lost("appear", err)
		case errors.Is(err, browser.ErrTimeout):
			// Still in the call.
		default:
			log.Debug("end dialog poll failed", logging.Err(err))
			if !sleep(ctx, sig.Interval) {
				return conclusion{}, false
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
