package detector

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/meetbot/internal/browser"
	"github.com/fentz26/meetbot/internal/browser/browsertest"
	"github.com/fentz26/meetbot/internal/models"
	"github.com/fentz26/meetbot/internal/platform"
)

const (
	leave  = `button[aria-label="Leave call"]`
	zoomOK = "button.zm-btn.zm-btn-legacy.zm-btn--primary.zm-btn__outline--blue"
)

func joined(page *browsertest.Page, sig platform.EndSignal) (*platform.JoinedSession, *browsertest.Session) {
	s := browsertest.NewSession(page)
	return &platform.JoinedSession{
		Identity: models.BotIdentity{ID: 1, Platform: models.PlatformMeet},
		Session:  s,
		Surface:  page,
		End:      sig,
		JoinedAt: time.Now(),
	}, s
}

func TestLeaveControlDisappears(t *testing.T) {
	page := browsertest.NewPage().Show(leave)
	page.OnExists(leave, func(n int, p *browsertest.Page) {
		if n == 4 {
			p.Hide(leave)
		}
	})
	js, _ := joined(page, platform.EndSignal{GoneSelector: leave, Interval: 5 * time.Millisecond})

	var ends atomic.Int32
	d := New(nil, func(Result) { ends.Add(1) })
	res := d.Await(context.Background(), js)

	assert.Equal(t, ReasonMeetingEnded, res.Reason)
	assert.Equal(t, "gone", res.Watcher)
	assert.NoError(t, res.Err)
	assert.Equal(t, int32(1), ends.Load())
	assert.Equal(t, 4, page.ExistsCalls(leave))
}

func TestZoomEndDialogAfterTenCycles(t *testing.T) {
	page := browsertest.NewPage()
	page.OnWait(zoomOK, func(n int, p *browsertest.Page) {
		if n == 11 {
			p.Show(zoomOK)
		}
	})
	js, _ := joined(page, platform.EndSignal{
		AppearSelector: zoomOK,
		Acknowledge:    zoomOK,
		Interval:       5 * time.Millisecond,
	})

	var ends atomic.Int32
	d := New(nil, func(Result) { ends.Add(1) })
	res := d.Await(context.Background(), js)

	assert.Equal(t, ReasonMeetingEnded, res.Reason)
	assert.Equal(t, "appear", res.Watcher)
	assert.Equal(t, 11, page.WaitCalls(zoomOK))
	assert.Equal(t, []string{zoomOK}, page.Clicks())
	assert.Equal(t, int32(1), ends.Load())
}

func TestSessionDestroyed(t *testing.T) {
	page := browsertest.NewPage().Show(leave)
	js, s := joined(page, platform.EndSignal{GoneSelector: leave, Interval: 5 * time.Millisecond})
	time.AfterFunc(20*time.Millisecond, s.Destroy)

	var ends atomic.Int32
	d := New(nil, func(Result) { ends.Add(1) })
	res := d.Await(context.Background(), js)

	assert.Equal(t, ReasonSessionLost, res.Reason)
	var sle *SessionLostError
	require.True(t, errors.As(res.Err, &sle))
	assert.ErrorIs(t, res.Err, browser.ErrSessionClosed)
	assert.Equal(t, int32(1), ends.Load())
}

func TestDuplicateDetectionsAreDropped(t *testing.T) {
	// Both end conditions hold at once; only one may win.
	page := browsertest.NewPage().Show(zoomOK)
	js, _ := joined(page, platform.EndSignal{
		GoneSelector:   leave,
		AppearSelector: zoomOK,
		Interval:       5 * time.Millisecond,
	})

	var ends atomic.Int32
	d := New(nil, func(Result) { ends.Add(1) })
	res := d.Await(context.Background(), js)

	assert.Equal(t, ReasonMeetingEnded, res.Reason)
	assert.Equal(t, int32(1), ends.Load())
	assert.LessOrEqual(t, res.Duplicates, 1)
}

func TestTimeout(t *testing.T) {
	page := browsertest.NewPage().Show(leave)
	js, _ := joined(page, platform.EndSignal{
		GoneSelector: leave,
		Interval:     5 * time.Millisecond,
		Timeout:      30 * time.Millisecond,
	})

	res := New(nil, nil).Await(context.Background(), js)
	assert.Equal(t, ReasonTimeout, res.Reason)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestCancelled(t *testing.T) {
	page := browsertest.NewPage()
	js, _ := joined(page, platform.EndSignal{AppearSelector: zoomOK, Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	res := New(nil, nil).Await(ctx, js)
	assert.Equal(t, ReasonCancelled, res.Reason)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUnboundedWaitDoesNotSpin(t *testing.T) {
	page := browsertest.NewPage().Show(leave)
	js, _ := joined(page, platform.EndSignal{GoneSelector: leave, Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()
	res := New(nil, nil).Await(ctx, js)

	assert.Equal(t, ReasonCancelled, res.Reason)
	assert.LessOrEqual(t, page.ExistsCalls(leave), 8)
}
