package controlplane

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fentz26/meetbot/internal/logging"
	"github.com/fentz26/meetbot/internal/models"
)

func TestOfflineLogsEverything(t *testing.T) {
	buf := &bytes.Buffer{}
	o := NewOffline(logging.New(&logging.Config{Level: logging.LevelDebug, JSONFormat: true, Output: buf}))
	ctx := context.Background()

	assert.NoError(t, o.Heartbeat(ctx, 3))
	assert.NoError(t, o.ReportEvent(ctx, 3, models.Event{
		EventType: models.EventFailed,
		Data:      &models.EventData{Description: "no name field", SubCode: "name-field"},
	}))
	assert.NoError(t, o.UpdateBotStatus(ctx, 3, models.StatusFailed, ""))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[1], `"sub_code":"name-field"`)
	assert.Contains(t, lines[2], `"status":"FAILED"`)
	assert.Contains(t, lines[0], `"mode":"offline"`)
}
