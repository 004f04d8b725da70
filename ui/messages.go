package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"agentchat/conn"
)

// connEventMsg wraps one event from the connection manager.
type connEventMsg struct{ event conn.Event }

// connDoneMsg is sent once the event stream has ended.
type connDoneMsg struct{}

type toastExpiredMsg struct{ id int }

// waitForEvent blocks on the next connection event. Update re-issues it after
// every event so the stream is drained one message at a time.
func waitForEvent(events <-chan conn.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return connDoneMsg{}
		}
		return connEventMsg{event: e}
	}
}
