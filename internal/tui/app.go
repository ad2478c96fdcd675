// Package tui provides the terminal dashboard for a running meetbot.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fentz26/meetbot/internal/statusserver"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(18)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

const (
	modeStatus = "status"
	modeRuns   = "runs"
	modeEvents = "events"

	refreshInterval = 2 * time.Second
	runListLimit    = 50
)

// App is the main TUI application model.
type App struct {
	client   *Client
	snapshot *statusserver.Snapshot
	runs     list.Model
	events   viewport.Model
	eventRun string
	width    int
	height   int
	mode     string
	message  string
	online   bool
}

// New creates a dashboard polling the status server at addr.
func New(addr string) *App {
	return &App{
		client: NewClient(addr),
		runs:   newRunList(80, 20),
		events: viewport.New(80, 20),
		mode:   modeStatus,
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.fetchStatus(),
		a.fetchRuns(),
		a.tickCmd(),
	)
}

type tickMsg time.Time

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// The run list owns keys while filtering.
		if a.mode == modeRuns && a.runs.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit

		case "tab":
			if a.mode == modeStatus {
				a.mode = modeRuns
			} else {
				a.mode = modeStatus
			}
			return a, nil

		case "esc":
			if a.mode == modeEvents {
				a.mode = modeRuns
				return a, nil
			}

		case "enter":
			if a.mode == modeRuns {
				if item, ok := a.runs.SelectedItem().(RunItem); ok {
					a.mode = modeEvents
					return a, a.fetchEvents(item.ID)
				}
			}

		case "r":
			return a, a.refresh()
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.runs.SetSize(msg.Width, max(5, msg.Height-4))
		a.events.Width = msg.Width
		a.events.Height = max(5, msg.Height-5)

	case tickMsg:
		return a, tea.Batch(a.refresh(), a.tickCmd())

	case statusLoadedMsg:
		a.snapshot = msg.snapshot
		a.online = true
		a.message = ""

	case botStatusMsg:
		a.online = msg.online

	case runsLoadedMsg:
		cmds = append(cmds, a.runs.SetItems(runListItems(msg.runs)))

	case eventsLoadedMsg:
		a.eventRun = msg.runID
		a.events.SetContent(renderEvents(msg))
		a.events.GotoBottom()

	case errMsg:
		a.message = "Error: " + msg.err.Error()
	}

	var cmd tea.Cmd
	switch a.mode {
	case modeRuns:
		a.runs, cmd = a.runs.Update(msg)
	case modeEvents:
		a.events, cmd = a.events.Update(msg)
	}
	cmds = append(cmds, cmd)

	return a, tea.Batch(cmds...)
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	botStatus := onlineStyle.Render("● BOT")
	if !a.online {
		botStatus = offlineStyle.Render("○ BOT")
	}
	header := titleStyle.Render("meetbot") + "  " + botStatus
	if a.snapshot != nil {
		header += "  " + lipgloss.NewStyle().Foreground(cyanColor).Render(fmt.Sprintf("[bot %d]", a.snapshot.Bot.ID))
	}
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 1)) + "\n")

	switch a.mode {
	case modeStatus:
		b.WriteString(a.renderStatus())
	case modeRuns:
		b.WriteString(a.runs.View())
	case modeEvents:
		b.WriteString(lipgloss.NewStyle().Bold(true).Render(" Events for run "+a.eventRun) + "\n")
		b.WriteString(a.events.View())
	}

	if a.message != "" {
		b.WriteString("\n" + lipgloss.NewStyle().Foreground(errorColor).Render(a.message))
	}
	b.WriteString("\n")

	var status string
	switch a.mode {
	case modeStatus:
		status = " Tab:runs | r:refresh | q:quit"
	case modeRuns:
		status = fmt.Sprintf(" Runs: %d | ↑↓:nav | Enter:events | /:filter | Tab:status | q:quit", len(a.runs.Items()))
	case modeEvents:
		status = " ↑↓:scroll | Esc:back | q:quit"
	}
	b.WriteString(statusBarStyle.Width(max(a.width, 1)).Render(status))

	return b.String()
}

func (a *App) renderStatus() string {
	if a.snapshot == nil {
		if !a.online {
			return "\n  Waiting for the bot's status server...\n"
		}
		return "\n  Loading...\n"
	}
	s := a.snapshot

	var lines []string
	row := func(label, value string) {
		lines = append(lines, labelStyle.Render(label)+value)
	}
	row("Platform", string(s.Bot.Platform))
	row("Meeting", s.Bot.MeetingURL)
	row("Run", s.RunID)
	row("State", formatState(s.State))
	if s.Status != "" {
		row("Reported status", string(s.Status))
	}
	row("Uptime", s.Uptime)
	if s.Recording != "" {
		row("Recording", s.Recording)
		row("Recorded", formatBytes(s.RecordingBytes))
	}
	if hb := s.Heartbeat; hb != nil {
		beat := fmt.Sprintf("%d sent, %d failed", hb.Sent, hb.Failed)
		if hb.ConsecutiveFailures > 0 {
			beat = lipgloss.NewStyle().Foreground(warningColor).Render(
				fmt.Sprintf("%s (%d in a row: %s)", beat, hb.ConsecutiveFailures, hb.LastError))
		}
		row("Heartbeats", beat)
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func renderEvents(msg eventsLoadedMsg) string {
	if len(msg.events) == 0 {
		return "  No events recorded."
	}
	var b strings.Builder
	for _, ev := range msg.events {
		line := fmt.Sprintf("  %s  %-18s", ev.EventTime.Local().Format("15:04:05"), ev.EventType)
		if ev.Description != "" {
			line += " " + ev.Description
		}
		if ev.SubCode != "" {
			line += lipgloss.NewStyle().Foreground(mutedColor).Render(" [" + ev.SubCode + "]")
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func (a *App) refresh() tea.Cmd {
	cmds := []tea.Cmd{a.fetchStatus(), a.fetchRuns()}
	if a.mode == modeEvents && a.eventRun != "" {
		cmds = append(cmds, a.fetchEvents(a.eventRun))
	}
	return tea.Batch(cmds...)
}

func (a *App) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		snap, err := a.client.Status()
		if err != nil {
			return botStatusMsg{online: false}
		}
		return statusLoadedMsg{snap}
	}
}

func (a *App) fetchRuns() tea.Cmd {
	return func() tea.Msg {
		runs, err := a.client.ListRuns(runListLimit)
		if err != nil {
			return errMsg{err}
		}
		return runsLoadedMsg{runs}
	}
}

func (a *App) fetchEvents(runID string) tea.Cmd {
	return func() tea.Msg {
		events, err := a.client.ListEvents(runID)
		if err != nil {
			return errMsg{err}
		}
		return eventsLoadedMsg{runID: runID, events: events}
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
