package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/meetbot/internal/models"
)

var listTitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("205"))

// RunItem implements list.Item for the run list
type RunItem struct {
	models.Run
}

func (i RunItem) FilterValue() string { return i.ID + " " + string(i.Platform) }
func (i RunItem) Title() string {
	return fmt.Sprintf("bot %d  %s", i.BotID, i.Platform)
}
func (i RunItem) Description() string {
	desc := formatState(i.State) + "  " + i.StartedAt.Local().Format(time.DateTime)
	if i.Error != "" {
		desc += "  " + i.Error
	}
	return desc
}

func newRunList(width, height int) list.Model {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), width, height)
	l.Title = "Runs"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)
	l.Styles.Title = listTitleStyle
	return l
}

func runListItems(runs []RunItem) []list.Item {
	items := make([]list.Item, len(runs))
	for i, r := range runs {
		items[i] = r
	}
	return items
}

func formatState(state models.RunState) string {
	switch state {
	case models.RunStarting:
		return lipgloss.NewStyle().Foreground(mutedColor).Render("○ STARTING")
	case models.RunJoining:
		return lipgloss.NewStyle().Foreground(warningColor).Render("◐ JOINING")
	case models.RunRecording:
		return lipgloss.NewStyle().Foreground(primaryColor).Render("● RECORDING")
	case models.RunEnding:
		return lipgloss.NewStyle().Foreground(secondaryColor).Render("◑ ENDING")
	case models.RunDone:
		return lipgloss.NewStyle().Foreground(successColor).Render("✓ DONE")
	case models.RunFailed:
		return lipgloss.NewStyle().Foreground(errorColor).Render("✗ FAILED")
	default:
		return string(state)
	}
}
