// Package events mirrors bot events onto Redis pub/sub so dashboards and
// other bots' supervisors can follow a run live.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fentz26/meetbot/internal/logging"
	"github.com/fentz26/meetbot/internal/models"
)

// ChannelBotEvents carries every bot's events.
const ChannelBotEvents = "events.bot"

// BotChannel is the per-bot channel.
func BotChannel(botID int64) string {
	return ChannelBotEvents + "." + strconv.FormatInt(botID, 10)
}

// BotEvent is the message published for each reported event.
type BotEvent struct {
	EventType   models.EventCode `json:"event_type"`
	Timestamp   time.Time        `json:"timestamp"`
	Source      string           `json:"source"`
	Version     string           `json:"version"`
	BotID       int64            `json:"bot_id"`
	Platform    models.Platform  `json:"platform"`
	MeetingURL  string           `json:"meeting_url"`
	Description string           `json:"description,omitempty"`
	SubCode     string           `json:"sub_code,omitempty"`
}

// NewBotEvent builds the message for ev.
func NewBotEvent(bot models.BotIdentity, ev models.Event) BotEvent {
	msg := BotEvent{
		EventType:  ev.EventType,
		Timestamp:  ev.EventTime.UTC(),
		Source:     "meetbot",
		Version:    "1.0",
		BotID:      bot.ID,
		Platform:   bot.Platform,
		MeetingURL: bot.MeetingURL,
	}
	if ev.Data != nil {
		msg.Description = ev.Data.Description
		msg.SubCode = ev.Data.SubCode
	}
	return msg
}

// publishClient is the part of the Redis client the publisher uses.
type publishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publisher publishes bot events to Redis.
type Publisher struct {
	client publishClient
	logger logging.Logger
}

// NewPublisher creates a new event publisher.
func NewPublisher(client publishClient, logger logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{
		client: client,
		logger: logger.With(logging.F("component", "event_publisher")),
	}
}

// NewPublisherFromURL connects to redis://... and verifies the connection.
func NewPublisherFromURL(ctx context.Context, url string, logger logging.Logger) (*Publisher, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewPublisher(client, logger), client, nil
}

// RecordEvent publishes ev on the shared and the per-bot channel.
func (p *Publisher) RecordEvent(ctx context.Context, bot models.BotIdentity, ev models.Event) error {
	msg := NewBotEvent(bot, ev)
	if err := p.publish(ctx, ChannelBotEvents, msg); err != nil {
		return err
	}
	return p.publish(ctx, BotChannel(bot.ID), msg)
}

// publish serializes and publishes an event to Redis.
func (p *Publisher) publish(ctx context.Context, channel string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		p.logger.Error("Failed to publish event",
			logging.Err(err),
			logging.F("channel", channel))
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Published event", logging.F("channel", channel))
	return nil
}
