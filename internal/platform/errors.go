package platform

import (
	"errors"
	"fmt"
)

// Join stages reported in JoinError.Stage.
const (
	StageURL         = "url"
	StageLaunch      = "launch"
	StageNavigate    = "navigate"
	StageFrame       = "frame"
	StageNameField   = "name-field"
	StageMuteButton  = "mute-button"
	StageJoinButton  = "join-button"
	StageAudioButton = "audio-button"
	StagePostJoin    = "post-join"
)

var (
	// ErrUnknownPlatform is returned for a platform without an implementation.
	ErrUnknownPlatform = errors.New("unknown meeting platform")
	// ErrInvalidMeetingURL is returned when a meeting URL cannot be normalized.
	ErrInvalidMeetingURL = errors.New("invalid meeting url")
)

// JoinError reports which step of the join sequence did not complete.
type JoinError struct {
	Stage string
	Cause error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join failed at %s: %v", e.Stage, e.Cause)
}

func (e *JoinError) Unwrap() error {
	return e.Cause
}

func stageErr(stage string, err error) error {
	return &JoinError{Stage: stage, Cause: err}
}

// StageOf returns the stage of a JoinError anywhere in err's chain.
func StageOf(err error) (string, bool) {
	var je *JoinError
	if errors.As(err, &je) {
		return je.Stage, true
	}
	return "", false
}
