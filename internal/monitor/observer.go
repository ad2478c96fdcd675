package monitor

import "github.com/fentz26/meetbot/internal/models"

// Observer receives reporting outcomes, typically to update metrics.
type Observer interface {
	HeartbeatSent(ok bool)
	EventReported(code models.EventCode, ok bool)
	StatusReported(status models.LifecycleStatus, ok bool)
}

type nopObserver struct{}

func (nopObserver) HeartbeatSent(bool)                          {}
func (nopObserver) EventReported(models.EventCode, bool)        {}
func (nopObserver) StatusReported(models.LifecycleStatus, bool) {}
