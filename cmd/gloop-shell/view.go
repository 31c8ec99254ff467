package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
)

// theme colors for the shell window.
var (
	revStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	systemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	restingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	queueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	inputStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder(), true).Padding(0, 1)
)

// resize lays the chrome out for a new terminal size.
func (m *Model) resize(width, height int) {
	const chromeLines = 6 // title + status + input box
	vpHeight := height - chromeLines
	if vpHeight < 3 {
		vpHeight = 3
	}
	if !m.ready {
		m.vp = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.vp.Width = width
		m.vp.Height = vpHeight
	}
	m.input.Width = width - 6
	m.refreshViewport()
}

// refreshViewport re-renders the chat transcript and pins to the bottom.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	var b strings.Builder
	for _, line := range m.lines {
		b.WriteString(renderLine(line))
		b.WriteString("\n")
	}
	m.vp.SetContent(b.String())
	m.vp.GotoBottom()
}

func renderLine(line chatLine) string {
	switch line.Kind {
	case lineRev:
		return revStyle.Render(line.From+": ") + line.Text
	case lineSystem:
		return systemStyle.Render("* " + line.Text)
	default:
		return assistantStyle.Render(line.From+": ") + line.Text
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}
	return lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render("Gloop Shell"),
		m.vp.View(),
		m.statusLine(),
		inputStyle.Render(m.input.View()),
	)
}

// statusLine shows the tick countdown, assistant state, and rest state.
func (m Model) statusLine() string {
	if m.resting {
		remaining := int(time.Until(m.restUntil).Minutes())
		if remaining < 0 {
			remaining = 0
		}
		return restingStyle.Render(fmt.Sprintf("Resting... %dm left | Type WAKE to resume", remaining))
	}

	state := "Idle"
	if m.runner.Busy() {
		state = "Thinking..."
	}
	line := statusStyle.Render(fmt.Sprintf("Next tick in %ds | %s", m.countdown, state))
	if n := m.runner.QueueLen(); n > 0 {
		line += "  " + queueStyle.Render(fmt.Sprintf("● Q:%d", n))
	}
	return line
}
