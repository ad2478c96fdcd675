// Package audit records every lifecycle transition of a run together with a
// hash of the inputs that caused it.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/fentz26/meetbot/internal/models"
	"github.com/fentz26/meetbot/internal/store"
)

// TransitionWriter writes transition records for one run.
type TransitionWriter struct {
	store *store.Store
	runID string
}

// NewTransitionWriter creates a writer for runID.
func NewTransitionWriter(s *store.Store, runID string) *TransitionWriter {
	return &TransitionWriter{store: s, runID: runID}
}

// Record writes a transition entry and moves the run to the new state.
func (w *TransitionWriter) Record(from, to models.RunState, inputs interface{}, details string) error {
	if _, err := w.store.WriteTransition(w.runID, from, to, HashInputs(inputs), details); err != nil {
		return err
	}
	var errMsg string
	if to == models.RunFailed {
		errMsg = details
	}
	return w.store.UpdateRunState(w.runID, to, errMsg)
}

// HashInputs creates a SHA256 hash of the inputs for reproducibility.
func HashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
