package audit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fentz26/meetbot/internal/models"
	"github.com/fentz26/meetbot/internal/store"
)

func TestHashInputsIsStable(t *testing.T) {
	in := map[string]interface{}{"stage": "post-join", "bot_id": 3}
	assert.Equal(t, HashInputs(in), HashInputs(map[string]interface{}{"bot_id": 3, "stage": "post-join"}))
	assert.Len(t, HashInputs(in), 64)
	assert.NotEqual(t, HashInputs(in), HashInputs(map[string]interface{}{"stage": "name-field"}))
	assert.Equal(t, "hash_error", HashInputs(func() {}))
}

func TestRecordUpdatesRun(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer s.Close()

	run, err := s.CreateRun(models.BotIdentity{ID: 1, Platform: models.PlatformMeet, MeetingURL: "u"})
	require.NoError(t, err)

	w := NewTransitionWriter(s, run.ID)
	require.NoError(t, w.Record(models.RunStarting, models.RunJoining, nil, "joining"))
	require.NoError(t, w.Record(models.RunJoining, models.RunFailed, map[string]string{"stage": "launch"}, "no chrome"))

	got, err := s.GetRun(run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, got.State)
	assert.Equal(t, "no chrome", got.Error)

	trs, err := s.ListTransitions(run.ID)
	require.NoError(t, err)
	require.Len(t, trs, 2)
	assert.Equal(t, HashInputs(map[string]string{"stage": "launch"}), trs[1].InputsHash)
}
