package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tiiuae/mission-microservice/internal/debugserver"
	"github.com/tiiuae/mission-microservice/internal/mavmission"
)

type logEntry struct {
	timestamp time.Time
	message   string
}

type model struct {
	addr          string
	status        debugserver.Status
	haveStatus    bool
	lastUpdate    time.Time
	connErr       error
	log           []logEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
	spinner       spinner.Model
}

type statusMsg struct {
	status debugserver.Status
	at     time.Time
}

type connErrorMsg struct {
	err error
}

func newModel(addr string) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	return model{
		addr:          addr,
		maxLogEntries: 100,
		width:         80,
		height:        24,
		spinner:       sp,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tea.EnterAltScreen, m.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case statusMsg:
		if m.haveStatus && m.status.State != msg.status.State {
			m.addLogEntry(fmt.Sprintf("state %s -> %s", m.status.State, msg.status.State))
		}
		if m.haveStatus && m.status.LastReached != msg.status.LastReached && msg.status.LastReached >= 0 {
			m.addLogEntry(fmt.Sprintf("item reached: seq %d", msg.status.LastReached))
		}
		m.status = msg.status
		m.haveStatus = true
		m.lastUpdate = msg.at
		m.connErr = nil

	case connErrorMsg:
		m.connErr = msg.err

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *model) addLogEntry(message string) {
	m.log = append(m.log, logEntry{timestamp: time.Now(), message: message})
	if len(m.log) > m.maxLogEntries {
		m.log = m.log[len(m.log)-m.maxLogEntries:]
	}
}

func (m model) View() string {
	if m.quitting {
		return "Disconnecting...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("MISSION MANAGER - STATUS MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Endpoint: %s | Press 'q' to quit", m.addr)))
	s.WriteString("\n\n")

	if m.connErr != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("✗ connection lost: %v", m.connErr)))
		s.WriteString("\n\n")
	} else if !m.haveStatus {
		s.WriteString(m.spinner.View())
		s.WriteString(warningStyle.Render(" waiting for first status frame..."))
		s.WriteString("\n\n")
	} else {
		s.WriteString(valueStyle.Render(fmt.Sprintf("✓ connected, last update %s", m.lastUpdate.Format("15:04:05.000"))))
		s.WriteString("\n\n")
	}

	if m.haveStatus {
		st := m.status
		content := strings.Builder{}
		content.WriteString(fmt.Sprintf("%s %s   %s %s   %s %d\n",
			labelStyle.Render("Channel:"), valueStyle.Render(st.Channel),
			labelStyle.Render("State:"), stateValue(valueStyle, warningStyle, st.State),
			labelStyle.Render("Active buffer:"), st.ActiveDatamanID,
		))

		content.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			labelStyle.Render("Current seq:"), valueStyle.Render(fmt.Sprintf("%d", st.CurrentSeq)),
			labelStyle.Render("Last reached:"), valueStyle.Render(fmt.Sprintf("%d", st.LastReached)),
		))

		transfer := valueStyle.Render("idle")
		if st.InTransfer {
			transfer = warningStyle.Render("in progress")
		}
		content.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Transfer:"), transfer))

		content.WriteString(fmt.Sprintf("%s %d   %s %d   %s %d",
			labelStyle.Render(mavmission.TypeMission.String()+":"), st.ListCounts[mavmission.TypeMission.String()],
			labelStyle.Render(mavmission.TypeFence.String()+":"), st.ListCounts[mavmission.TypeFence.String()],
			labelStyle.Render(mavmission.TypeRally.String()+":"), st.ListCounts[mavmission.TypeRally.String()],
		))

		s.WriteString(boxStyle.Render(content.String()))
		s.WriteString("\n\n")
	}

	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 15
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.log) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.log) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.log); i++ {
			entry := m.log[i]
			logContent.WriteString(fmt.Sprintf("%s %s\n",
				headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
				valueStyle.Render(entry.message),
			))
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}

func stateValue(ok, warn lipgloss.Style, state string) string {
	if state == "IDLE" {
		return ok.Render(state)
	}
	return warn.Render(state)
}
