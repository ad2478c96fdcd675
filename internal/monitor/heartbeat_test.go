package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	delay     time.Duration
	finished  int
	ctxErrs   []error
}

func (f *fakeSender) Heartbeat(ctx context.Context, botID int64) error {
	f.mu.Lock()
	f.calls++
	n := f.calls
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished++
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if n <= f.failFirst {
		return errors.New("control plane unavailable")
	}
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestHeartbeatSurvivesFailures(t *testing.T) {
	sender := &fakeSender{failFirst: 3}
	hb := NewHeartbeat(sender, 1, &HeartbeatConfig{Interval: 10 * time.Millisecond}, nil)

	hb.Start(context.Background())
	defer hb.Stop()

	require.Eventually(t, func() bool { return hb.Stats().Sent >= 2 }, 2*time.Second, 5*time.Millisecond)

	stats := hb.Stats()
	assert.Equal(t, 3, stats.Failed)
	assert.Equal(t, 0, stats.ConsecutiveFailures)
	assert.False(t, stats.LastSuccess.IsZero())
	assert.Empty(t, stats.LastError)
}

func TestHeartbeatSendsImmediately(t *testing.T) {
	sender := &fakeSender{}
	hb := NewHeartbeat(sender, 1, &HeartbeatConfig{Interval: time.Hour}, nil)

	hb.Start(context.Background())
	defer hb.Stop()

	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestHeartbeatStopsOnCancel(t *testing.T) {
	sender := &fakeSender{}
	hb := NewHeartbeat(sender, 1, &HeartbeatConfig{Interval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hb.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sender.count() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("heartbeat did not return within one interval of cancellation")
	}

	n := sender.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, n, sender.count(), "heartbeat sent after cancellation")
}

func TestHeartbeatNotStartedWhenAlreadyCancelled(t *testing.T) {
	sender := &fakeSender{}
	hb := NewHeartbeat(sender, 1, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hb.Run(ctx)
	assert.Equal(t, 0, sender.count())
}

func TestHeartbeatInFlightSendCompletes(t *testing.T) {
	sender := &fakeSender{delay: 40 * time.Millisecond}
	hb := NewHeartbeat(sender, 1, &HeartbeatConfig{Interval: 200 * time.Millisecond}, nil)

	hb.Start(context.Background())
	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, time.Millisecond)
	hb.Stop()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Equal(t, 1, sender.finished)
	assert.NoError(t, sender.ctxErrs[0], "in-flight send was aborted by cancellation")
}

func TestHeartbeatSendTimeoutClampedToInterval(t *testing.T) {
	hb := NewHeartbeat(&fakeSender{}, 1, &HeartbeatConfig{Interval: time.Second, SendTimeout: time.Minute}, nil)
	assert.Equal(t, time.Second, hb.timeout)

	hb = NewHeartbeat(&fakeSender{}, 1, &HeartbeatConfig{}, nil)
	assert.Equal(t, DefaultHeartbeatInterval, hb.interval)
}

func TestHeartbeatStopWithoutStart(t *testing.T) {
	hb := NewHeartbeat(&fakeSender{}, 1, nil, nil)
	hb.Stop()
}
