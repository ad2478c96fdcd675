// Package metrics holds the Prometheus metrics of a bot process.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fentz26/meetbot/internal/models"
)

var runStates = []models.RunState{
	models.RunStarting,
	models.RunJoining,
	models.RunRecording,
	models.RunEnding,
	models.RunDone,
	models.RunFailed,
}

// BotMetrics holds all Prometheus metrics for one bot run.
type BotMetrics struct {
	HeartbeatsTotal   *prometheus.CounterVec
	EventsTotal       *prometheus.CounterVec
	StatusUpdates     *prometheus.CounterVec
	JoinSeconds       *prometheus.HistogramVec
	JoinFailuresTotal *prometheus.CounterVec
	RecordingBytes    prometheus.Gauge
	MeetingSeconds    prometheus.Histogram
	State             *prometheus.GaugeVec
}

// DefaultBotMetrics registers metrics with the default registerer.
func DefaultBotMetrics() *BotMetrics {
	return NewBotMetrics(prometheus.DefaultRegisterer)
}

// NewBotMetrics creates a new set of bot metrics on reg.
func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	factory := promauto.With(reg)

	return &BotMetrics{
		HeartbeatsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetbot_heartbeats_total",
				Help: "Heartbeats sent to the control plane",
			},
			[]string{"result"},
		),
		EventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetbot_events_total",
				Help: "Events reported to the control plane",
			},
			[]string{"event", "result"},
		),
		StatusUpdates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetbot_status_updates_total",
				Help: "Lifecycle status updates sent to the control plane",
			},
			[]string{"status", "result"},
		),
		JoinSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meetbot_join_seconds",
				Help:    "Time from browser launch to the post-join signal",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"platform"},
		),
		JoinFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetbot_join_failures_total",
				Help: "Join attempts that failed, by stage",
			},
			[]string{"platform", "stage"},
		),
		RecordingBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "meetbot_recording_bytes",
				Help: "Bytes written to the recording file",
			},
		),
		MeetingSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meetbot_meeting_seconds",
				Help:    "Time spent in the call",
				Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400},
			},
		),
		State: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "meetbot_run_state",
				Help: "1 for the current run state, 0 otherwise",
			},
			[]string{"state"},
		),
	}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// HeartbeatSent counts a heartbeat attempt.
func (m *BotMetrics) HeartbeatSent(ok bool) {
	m.HeartbeatsTotal.WithLabelValues(result(ok)).Inc()
}

// EventReported counts an event delivery.
func (m *BotMetrics) EventReported(code models.EventCode, ok bool) {
	m.EventsTotal.WithLabelValues(string(code), result(ok)).Inc()
}

// StatusReported counts a status update.
func (m *BotMetrics) StatusReported(status models.LifecycleStatus, ok bool) {
	m.StatusUpdates.WithLabelValues(string(status), result(ok)).Inc()
}

// ObserveJoin records a successful join.
func (m *BotMetrics) ObserveJoin(platform models.Platform, d time.Duration) {
	m.JoinSeconds.WithLabelValues(string(platform)).Observe(d.Seconds())
}

// JoinFailed counts a failed join.
func (m *BotMetrics) JoinFailed(platform models.Platform, stage string) {
	m.JoinFailuresTotal.WithLabelValues(string(platform), stage).Inc()
}

// ObserveMeeting records how long the bot stayed in the call.
func (m *BotMetrics) ObserveMeeting(d time.Duration) {
	m.MeetingSeconds.Observe(d.Seconds())
}

// SetRecordingBytes updates the recording size gauge.
func (m *BotMetrics) SetRecordingBytes(n int64) {
	m.RecordingBytes.Set(float64(n))
}

// SetState marks state as the current run state.
func (m *BotMetrics) SetState(state models.RunState) {
	for _, s := range runStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.State.WithLabelValues(string(s)).Set(v)
	}
}
