package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/meetbot/internal/models"
)

type published struct {
	channel string
	payload []byte
}

type fakeRedis struct {
	msgs []published
	err  error
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.msgs = append(f.msgs, published{channel: channel, payload: message.([]byte)})
	cmd.SetVal(1)
	return cmd
}

var bot = models.BotIdentity{ID: 5, Platform: models.PlatformMeet, MeetingURL: "https://meet.google.com/abc"}

func TestRecordEventPublishesToBothChannels(t *testing.T) {
	rdb := &fakeRedis{}
	p := NewPublisher(rdb, nil)

	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	err := p.RecordEvent(context.Background(), bot, models.Event{
		EventType: models.EventFailed,
		EventTime: at,
		Data:      &models.EventData{Description: "no leave button", SubCode: "post-join"},
	})
	require.NoError(t, err)

	require.Len(t, rdb.msgs, 2)
	assert.Equal(t, ChannelBotEvents, rdb.msgs[0].channel)
	assert.Equal(t, "events.bot.5", rdb.msgs[1].channel)

	var msg BotEvent
	require.NoError(t, json.Unmarshal(rdb.msgs[0].payload, &msg))
	assert.Equal(t, models.EventFailed, msg.EventType)
	assert.Equal(t, int64(5), msg.BotID)
	assert.Equal(t, models.PlatformMeet, msg.Platform)
	assert.Equal(t, "post-join", msg.SubCode)
	assert.Equal(t, "meetbot", msg.Source)
	assert.True(t, at.Equal(msg.Timestamp))
}

func TestRecordEventWithoutData(t *testing.T) {
	rdb := &fakeRedis{}
	require.NoError(t, NewPublisher(rdb, nil).RecordEvent(context.Background(), bot, models.Event{EventType: models.EventInCall}))

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(rdb.msgs[0].payload, &raw))
	_, has := raw["description"]
	assert.False(t, has)
}

func TestRecordEventError(t *testing.T) {
	rdb := &fakeRedis{err: errors.New("connection refused")}
	err := NewPublisher(rdb, nil).RecordEvent(context.Background(), bot, models.Event{EventType: models.EventLog})
	assert.ErrorContains(t, err, "connection refused")
}

func TestNewPublisherFromURLRejectsBadURL(t *testing.T) {
	_, _, err := NewPublisherFromURL(context.Background(), "http://not-redis", nil)
	assert.ErrorContains(t, err, "invalid redis url")
}
