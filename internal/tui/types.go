package tui

import (
	"github.com/fentz26/meetbot/internal/models"
	"github.com/fentz26/meetbot/internal/statusserver"
)

type statusLoadedMsg struct {
	snapshot *statusserver.Snapshot
}

type runsLoadedMsg struct {
	runs []RunItem
}

type eventsLoadedMsg struct {
	runID  string
	events []models.EventRecord
}

type botStatusMsg struct {
	online bool
}

type errMsg struct {
	err error
}

func (e errMsg) Error() string { return e.err.Error() }
