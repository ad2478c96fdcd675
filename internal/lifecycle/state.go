package lifecycle

import (
	"errors"
	"fmt"

	"github.com/fentz26/meetbot/internal/models"
)

var (
	// ErrAlreadyRun is returned when Run is called on an orchestrator that
	// has already run.
	ErrAlreadyRun = errors.New("bot run already started")
	// ErrInvalidTransition is returned for a state change the table forbids.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)

// transitions lists the states reachable from each state. Terminal states
// have no entry.
var transitions = map[models.RunState][]models.RunState{
	models.RunStarting:  {models.RunJoining, models.RunFailed},
	models.RunJoining:   {models.RunRecording, models.RunFailed},
	models.RunRecording: {models.RunEnding, models.RunFailed},
	models.RunEnding:    {models.RunDone},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to models.RunState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to models.RunState) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
