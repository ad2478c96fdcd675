package controlplane

import (
	"context"

	"github.com/fentz26/meetbot/internal/logging"
	"github.com/fentz26/meetbot/internal/models"
)

// API is what the bot needs from a control plane.
type API interface {
	Heartbeat(ctx context.Context, botID int64) error
	ReportEvent(ctx context.Context, botID int64, event models.Event) error
	UpdateBotStatus(ctx context.Context, botID int64, status models.LifecycleStatus, recording string) error
}

var (
	_ API = (*Client)(nil)
	_ API = (*Offline)(nil)
)

// Offline stands in for the control plane when none is configured. It only
// logs, so a bot can be run locally against the journal alone.
type Offline struct {
	logger logging.Logger
}

// NewOffline returns a control plane that logs every call.
func NewOffline(logger logging.Logger) *Offline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Offline{logger: logger.With(logging.F("component", "controlplane"), logging.F("mode", "offline"))}
}

func (o *Offline) Heartbeat(ctx context.Context, botID int64) error {
	o.logger.Debug("heartbeat", logging.F("bot_id", botID))
	return nil
}

func (o *Offline) ReportEvent(ctx context.Context, botID int64, event models.Event) error {
	fields := []logging.Field{
		logging.F("bot_id", botID),
		logging.F("event", string(event.EventType)),
	}
	if event.Data != nil {
		fields = append(fields, logging.F("description", event.Data.Description), logging.F("sub_code", event.Data.SubCode))
	}
	o.logger.Info("event", fields...)
	return nil
}

func (o *Offline) UpdateBotStatus(ctx context.Context, botID int64, status models.LifecycleStatus, recording string) error {
	o.logger.Info("status", logging.F("bot_id", botID), logging.F("status", string(status)), logging.F("recording", recording))
	return nil
}
