package models

import "testing"

func TestParsePlatform(t *testing.T) {
	tests := map[string]Platform{
		"meet":         PlatformMeet,
		" Google_Meet": PlatformMeet,
		"teams":        PlatformTeams,
		"ZOOM":         PlatformZoom,
	}
	for in, want := range tests {
		got, err := ParsePlatform(in)
		if err != nil {
			t.Errorf("ParsePlatform(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParsePlatform(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParsePlatform("webex"); err == nil {
		t.Error("Expected error for unknown platform")
	}
}

func TestStatusForEvent(t *testing.T) {
	tests := []struct {
		code   EventCode
		status LifecycleStatus
		ok     bool
	}{
		{EventJoining, StatusJoining, true},
		{EventInCall, StatusInCall, true},
		{EventDone, StatusDone, true},
		{EventFailed, StatusFailed, true},
		{EventRecordingStarted, "", false},
		{EventMeetingEnded, "", false},
		{EventLog, "", false},
		{EventCode("SOMETHING_NEW"), "", false},
	}
	for _, tt := range tests {
		status, ok := StatusForEvent(tt.code)
		if status != tt.status || ok != tt.ok {
			t.Errorf("StatusForEvent(%s) = (%q, %v), want (%q, %v)", tt.code, status, ok, tt.status, tt.ok)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	if !StatusDone.IsTerminal() || !StatusFailed.IsTerminal() || StatusInCall.IsTerminal() {
		t.Error("Unexpected terminal status classification")
	}
	if !RunDone.IsTerminal() || !RunFailed.IsTerminal() || RunEnding.IsTerminal() {
		t.Error("Unexpected terminal run state classification")
	}
}
