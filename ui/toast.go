package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"agentchat/protocol"
)

const (
	toastDuration = 8 * time.Second
	maxToasts     = 3
)

// toast is a transient notice for a scheduled task that fired.
type toast struct {
	id   int
	task protocol.ScheduledTask
}

// pushToast shows task and schedules its removal. The oldest toast is
// dropped when the stack is full.
func (a *AppView) pushToast(task protocol.ScheduledTask) tea.Cmd {
	a.nextToastID++
	id := a.nextToastID
	a.toasts = append(a.toasts, toast{id: id, task: task})
	if len(a.toasts) > maxToasts {
		a.toasts = a.toasts[len(a.toasts)-maxToasts:]
	}
	a.resize()
	return tea.Tick(toastDuration, func(time.Time) tea.Msg {
		return toastExpiredMsg{id: id}
	})
}

func (a *AppView) dropToast(id int) {
	for i, t := range a.toasts {
		if t.id == id {
			a.toasts = append(a.toasts[:i], a.toasts[i+1:]...)
			a.resize()
			return
		}
	}
}

func (a AppView) renderToasts() string {
	if len(a.toasts) == 0 {
		return ""
	}
	var lines []string
	for _, t := range a.toasts {
		when := humanize.RelTime(t.task.Timestamp, a.now(), "ago", "from now")
		lines = append(lines, ToastStyle.Render(fmt.Sprintf("⏰ %s %s",
			t.task.Description, DimStyle.Render("("+when+")"))))
	}
	return lipgloss.PlaceHorizontal(a.width, lipgloss.Right, strings.Join(lines, "\n"))
}

// toastHeight is the number of rows the toast stack occupies.
func (a AppView) toastHeight() int {
	return 3 * len(a.toasts)
}
