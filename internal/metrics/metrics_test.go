package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/fentz26/meetbot/internal/models"
)

func TestCounters(t *testing.T) {
	m := NewBotMetrics(prometheus.NewRegistry())

	m.HeartbeatSent(true)
	m.HeartbeatSent(true)
	m.HeartbeatSent(false)
	m.EventReported(models.EventDone, true)
	m.StatusReported(models.StatusDone, false)
	m.JoinFailed(models.PlatformMeet, "name-field")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HeartbeatsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HeartbeatsTotal.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("DONE", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatusUpdates.WithLabelValues("DONE", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JoinFailuresTotal.WithLabelValues("MEET", "name-field")))
}

func TestSetState(t *testing.T) {
	m := NewBotMetrics(prometheus.NewRegistry())

	m.SetState(models.RunJoining)
	m.SetState(models.RunRecording)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.State.WithLabelValues("RECORDING")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.State.WithLabelValues("JOINING")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.State.WithLabelValues("DONE")))
}

func TestHistogramsAndGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBotMetrics(reg)

	m.ObserveJoin(models.PlatformZoom, 3*time.Second)
	m.ObserveMeeting(10 * time.Minute)
	m.SetRecordingBytes(2048)

	assert.Equal(t, 2048.0, testutil.ToFloat64(m.RecordingBytes))
	assert.Equal(t, 1, testutil.CollectAndCount(m.JoinSeconds))
	assert.Equal(t, 1, testutil.CollectAndCount(m.MeetingSeconds))
}
