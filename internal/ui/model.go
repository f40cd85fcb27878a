// ABOUTME: Bubbletea model for the playout status TUI
// ABOUTME: Polls the player for status and turns keys into player commands
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Resonate-Protocol/resonate-playout/internal/protocol"
)

const (
	volumeStep = 5
	skipMs     = 5000
)

// Controller is the player the TUI drives
type Controller interface {
	HandleCommand(cmd protocol.Command) error
	Status() protocol.Status
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Width(11)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	helpStyle  = lipgloss.NewStyle().Faint(true)
)

// Model represents the TUI state
type Model struct {
	ctrl     Controller
	name     string
	interval time.Duration

	status    protocol.Status
	lastError string
	showStats bool
	quitting  bool

	width  int
	height int
}

// StatusMsg carries a fresh player status
type StatusMsg protocol.Status

type tickMsg time.Time

// errMsg reports a rejected command
type errMsg struct{ err error }

// NewModel creates a model polling ctrl every interval
func NewModel(ctrl Controller, name string, interval time.Duration) Model {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return Model{
		ctrl:     ctrl,
		name:     name,
		interval: interval,
		status:   protocol.Status{State: "idle", Volume: 100},
	}
}

// Init starts polling
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.poll(), m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) poll() tea.Cmd {
	if m.ctrl == nil {
		return nil
	}
	ctrl := m.ctrl
	return func() tea.Msg {
		return StatusMsg(ctrl.Status())
	}
}

// command sends cmd to the player off the update loop
func (m Model) command(cmd protocol.Command) tea.Cmd {
	if m.ctrl == nil {
		return nil
	}
	ctrl := m.ctrl
	return func() tea.Msg {
		if err := ctrl.HandleCommand(cmd); err != nil {
			return errMsg{err}
		}
		return StatusMsg(ctrl.Status())
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		return m, tea.Batch(m.poll(), m.tick())
	case StatusMsg:
		m.status = protocol.Status(msg)
	case errMsg:
		m.lastError = msg.err.Error()
	}
	return m, nil
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "up":
		m.status.Volume = min(m.status.Volume+volumeStep, 100)
		return m, m.command(protocol.Command{Command: protocol.CommandVolume, Value: m.status.Volume})
	case "down":
		m.status.Volume = max(m.status.Volume-volumeStep, 0)
		return m, m.command(protocol.Command{Command: protocol.CommandVolume, Value: m.status.Volume})
	case "m":
		m.status.Muted = !m.status.Muted
		if m.status.Muted {
			return m, m.command(protocol.Command{Command: protocol.CommandMute})
		}
		return m, m.command(protocol.Command{Command: protocol.CommandUnmute})
	case " ":
		if m.status.State == "paused" {
			m.status.State = "playing"
			return m, m.command(protocol.Command{Command: protocol.CommandResume})
		}
		m.status.State = "paused"
		return m, m.command(protocol.Command{Command: protocol.CommandPause})
	case "right":
		return m, m.command(protocol.Command{Command: protocol.CommandSkip, Value: skipMs})
	case "n":
		return m, m.command(protocol.Command{Command: protocol.CommandNext})
	case "s":
		m.showStats = !m.showStats
	}
	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Stopping playback...\n"
	}

	var b strings.Builder
	title := "Playout"
	if m.name != "" {
		title += " - " + m.name
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	b.WriteString(m.renderTrack())
	b.WriteString(m.renderOutput())
	b.WriteString(m.renderControls())
	if m.showStats {
		b.WriteString(m.renderStats())
	}
	if m.lastError != "" {
		b.WriteString("\n")
		b.WriteString(warnStyle.Render(truncate(m.lastError, 60)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ volume  m mute  space pause  → skip 5s  n next  s stats  q quit"))
	b.WriteString("\n")
	return b.String()
}

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value) + "\n"
}

// renderTrack renders the current track and position
func (m Model) renderTrack() string {
	st := m.status
	if st.Track == nil {
		return row("State:", st.State) + row("Track:", "(nothing playing)")
	}

	t := st.Track
	s := row("State:", st.State)
	s += row("Track:", fmt.Sprintf("%s (%d/%d)", truncate(t.Title, 48), t.Index+1, t.Count))
	if t.Artist != "" {
		s += row("Artist:", truncate(t.Artist, 48))
	}
	if t.Album != "" {
		s += row("Album:", truncate(t.Album, 48))
	}
	s += row("Elapsed:", formatElapsed(st.ElapsedMs))
	return s
}

// renderOutput renders rates and the buffer level
func (m Model) renderOutput() string {
	st := m.status
	rates := fmt.Sprintf("%d Hz", st.StreamRate)
	if st.TrackRate > 0 && st.TrackRate != st.StreamRate {
		rates += fmt.Sprintf(" (track %d Hz)", st.TrackRate)
	}

	buffer := fmt.Sprintf("[%s] %d%%", renderBar(st.BufferPercent(), 100, 20), st.BufferPercent())
	if st.Underrun {
		buffer += " " + warnStyle.Render("UNDERRUN")
	}
	return "\n" + row("Output:", rates) + row("Buffer:", buffer)
}

// renderControls renders volume and mute
func (m Model) renderControls() string {
	volume := fmt.Sprintf("[%s] %d%%", renderBar(m.status.Volume, 100, 10), m.status.Volume)
	if m.status.Muted {
		volume += " (muted)"
	}
	return row("Volume:", volume)
}

// renderStats renders engine counters
func (m Model) renderStats() string {
	s := m.status.Stats
	return "\n" +
		row("Periods:", fmt.Sprintf("%d", s.Callbacks)) +
		row("Underruns:", fmt.Sprintf("%d", s.Underruns)) +
		row("Reopens:", fmt.Sprintf("%d (failed %d, dropped %d)", s.Reopens, s.OpenFailures, s.DroppedRequests)) +
		row("Tracks:", fmt.Sprintf("%d", s.TracksStarted)) +
		row("Trimmed:", fmt.Sprintf("%d frames", s.TrimmedFrames))
}

func formatElapsed(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// Utility functions
func renderBar(value, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	filled := (value * width) / total
	filled = min(max(filled, 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
