// Package models defines the core domain types for meetbot.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies the meeting product a bot joins.
type Platform string

const (
	PlatformMeet  Platform = "MEET"
	PlatformTeams Platform = "TEAMS"
	PlatformZoom  Platform = "ZOOM"
)

// ParsePlatform accepts the canonical names plus the lowercase aliases used on the CLI.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MEET", "GOOGLE_MEET", "GOOGLE-MEET":
		return PlatformMeet, nil
	case "TEAMS", "MICROSOFT_TEAMS", "MICROSOFT-TEAMS":
		return PlatformTeams, nil
	case "ZOOM":
		return PlatformZoom, nil
	default:
		return "", fmt.Errorf("unknown platform %q (want meet, teams or zoom)", s)
	}
}

// BotIdentity is created once per process and never mutated.
type BotIdentity struct {
	ID         int64    `json:"id"`
	Platform   Platform `json:"platform"`
	MeetingURL string   `json:"meeting_url"`
}

// LifecycleStatus is the authoritative state of a bot run as seen by the control plane.
type LifecycleStatus string

const (
	StatusJoining LifecycleStatus = "JOINING"
	StatusInCall  LifecycleStatus = "IN_CALL"
	StatusDone    LifecycleStatus = "DONE"
	StatusFailed  LifecycleStatus = "FAILED"
)

// IsTerminal reports whether no further transitions may follow s.
func (s LifecycleStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// EventCode names a notable occurrence during a run.
type EventCode string

const (
	EventJoining          EventCode = "JOINING"
	EventInCall           EventCode = "IN_CALL"
	EventDone             EventCode = "DONE"
	EventFailed           EventCode = "FAILED"
	EventRecordingStarted EventCode = "RECORDING_STARTED"
	EventRecordingStopped EventCode = "RECORDING_STOPPED"
	EventMeetingEnded     EventCode = "MEETING_ENDED"
	EventLog              EventCode = "LOG"
)

// StatusForEvent maps an event code to the lifecycle status it asserts.
// Codes without an entry never touch the status.
func StatusForEvent(code EventCode) (LifecycleStatus, bool) {
	switch code {
	case EventJoining:
		return StatusJoining, true
	case EventInCall:
		return StatusInCall, true
	case EventDone:
		return StatusDone, true
	case EventFailed:
		return StatusFailed, true
	default:
		return "", false
	}
}

// EventData is the optional payload of an Event.
type EventData struct {
	Description string `json:"description,omitempty"`
	SubCode     string `json:"sub_code,omitempty"`
	// Recording travels with DONE into the status update; it is not part of the event body.
	Recording string `json:"-"`
}

// Event is an append-only record; ownership passes to the control plane on send.
type Event struct {
	EventType EventCode  `json:"eventType"`
	EventTime time.Time  `json:"eventTime"`
	Data      *EventData `json:"data"`
}

// RunState is the orchestrator's internal state for one bot run.
type RunState string

const (
	RunStarting  RunState = "STARTING"
	RunJoining   RunState = "JOINING"
	RunRecording RunState = "RECORDING"
	RunEnding    RunState = "ENDING"
	RunDone      RunState = "DONE"
	RunFailed    RunState = "FAILED"
)

// IsTerminal reports whether the run has finished.
func (s RunState) IsTerminal() bool {
	return s == RunDone || s == RunFailed
}

// Run is the local journal record of one bot invocation.
type Run struct {
	ID         string     `json:"id"`
	BotID      int64      `json:"bot_id"`
	Platform   Platform   `json:"platform"`
	MeetingURL string     `json:"meeting_url"`
	State      RunState   `json:"state"`
	Recording  string     `json:"recording,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// EventRecord is an event as kept in the local journal.
type EventRecord struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	BotID       int64     `json:"bot_id"`
	EventType   EventCode `json:"event_type"`
	EventTime   time.Time `json:"event_time"`
	Description string    `json:"description,omitempty"`
	SubCode     string    `json:"sub_code,omitempty"`
}

// Transition is an audit entry for one orchestrator state change.
type Transition struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	From       RunState  `json:"from"`
	To         RunState  `json:"to"`
	InputsHash string    `json:"inputs_hash"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
