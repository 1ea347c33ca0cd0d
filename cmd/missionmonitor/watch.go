package main

import (
	"encoding/json"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tiiuae/mission-microservice/internal/debugserver"
)

func runWatch(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("missionmonitor: stdout is not a terminal, refusing to start the TUI")
	}

	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return errors.WithMessagef(err, "dial %s", addr)
	}
	defer conn.Close()

	p := tea.NewProgram(newModel(addr))

	go pumpStatus(conn, p)

	_, err = p.Run()
	return err
}

// pumpStatus reads Status frames off conn and forwards them into the
// running program, mirroring the teacher's serial-read goroutine that
// feeds tea.Program.Send from outside the Update loop.
func pumpStatus(conn *websocket.Conn, p *tea.Program) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			p.Send(connErrorMsg{err: err})
			return
		}

		var status debugserver.Status
		if err := json.Unmarshal(data, &status); err != nil {
			continue
		}
		p.Send(statusMsg{status: status, at: time.Now()})
	}
}
