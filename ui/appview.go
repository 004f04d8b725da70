// Package ui is the terminal chat view: it renders the conversation, owns
// the compose box and turns key presses and connection events into
// Conversation calls.
package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"agentchat/chat"
	"agentchat/config"
	"agentchat/conn"
)

// Connection is the link to the agent the view drives. *conn.Manager
// satisfies it.
type Connection interface {
	chat.Sender
	Events() <-chan conn.Event
}

type AppView struct {
	cfg   *config.Config
	conn  Connection
	conv  *chat.Conversation
	agent string

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	width  int
	height int
	ready  bool

	showHelp bool
	confirm  *confirmation

	// errorTitle and errorMsg back the acknowledge modal.
	errorTitle string
	errorMsg   string

	// lastConnErr is shown in the status bar until the connection reopens.
	lastConnErr string
	notice      string

	toasts      []toast
	nextToastID int

	mdCache map[string]string
	now     func() time.Time
}

func NewAppView(cfg *config.Config, c Connection, agentName string) AppView {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.CharLimit = 0
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.SetWidth(80)

	// Enter sends; Alt+Enter inserts a newline.
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))
	ta.SetPromptFunc(2, func(lineIdx int) string {
		if lineIdx == 0 {
			return "> "
		}
		return "| "
	})

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	conv := chat.NewConversation(c)
	chat.RegisterDefaultClientTools(conv)

	return AppView{
		cfg:      cfg,
		conn:     c,
		conv:     conv,
		agent:    agentName,
		viewport: viewport.New(0, 0),
		textarea: ta,
		spinner:  sp,
		mdCache:  make(map[string]string),
		now:      time.Now,
	}
}

func (a AppView) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		a.spinner.Tick,
		waitForEvent(a.conn.Events()),
	)
}

// resize lays the screen out top to bottom: title, viewport, toasts,
// compose box, status bar.
func (a *AppView) resize() {
	if a.width == 0 {
		return
	}
	a.viewport.Width = a.width
	a.viewport.Height = max(a.height-6-a.toastHeight(), 1)
	a.textarea.SetWidth(a.width)
}

func (a AppView) View() string {
	if !a.ready {
		return "Connecting..."
	}
	if a.errorMsg != "" {
		return RenderAcknowledgeModal(a.errorTitle, a.errorMsg, ModalTypeError, a.width, a.height)
	}
	if a.confirm != nil {
		return RenderConfirmationModal(a.confirm.title, a.confirm.message, a.width, a.height)
	}
	if a.showHelp {
		return a.renderHelpModal(a.width, a.height)
	}

	title := AssistantStyle.Render("agentchat") +
		TitleStyle.Render(" - "+a.agent) + "  " + a.renderConnState()

	parts := []string{title, "", a.viewport.View()}
	if t := a.renderToasts(); t != "" {
		parts = append(parts, t)
	}
	parts = append(parts, a.textarea.View(), a.renderStatusBar())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (a AppView) renderConnState() string {
	switch a.conv.Conn() {
	case chat.ConnOpen:
		return UserStyle.Render("● connected")
	case chat.ConnConnecting:
		return DimStyle.Render(a.spinner.View() + " connecting")
	default:
		return ErrorStyle.Render("✕ disconnected")
	}
}

func (a AppView) renderStatusBar() string {
	if a.lastConnErr != "" && a.conv.Conn() != chat.ConnOpen {
		return ErrorStyle.Render(a.lastConnErr)
	}
	if e := a.conv.LastError(); e != "" {
		return ErrorStyle.Render(e)
	}
	if a.notice != "" {
		return StatusStyle.Render(a.notice)
	}

	kb := a.cfg.KeyBindings
	if a.conv.Status() != chat.StatusIdle {
		return StatusStyle.Render(FormatFooter(kb.DisplayActionKey("stop"), "Stop"))
	}
	if len(a.conv.PendingApprovals()) > 0 {
		return StatusStyle.Render(FormatFooter("y", "Approve", "n", "Deny"))
	}
	return StatusStyle.Render(FormatFooter(
		"Enter", "Send",
		"Alt+Enter", "New line",
		kb.DisplayActionKey("yank_last_response"), "Copy",
		kb.DisplayActionKey("clear_history"), "Clear",
		kb.DisplayActionKey("help"), "Help",
		kb.DisplayActionKey("quit"), "Quit",
	))
}

func (a *AppView) showError(title, msg string) {
	a.errorTitle = title
	a.errorMsg = msg
	if config.DebugLog != nil {
		config.DebugLog.Printf("[UI] %s: %s", title, msg)
	}
}

func (a *AppView) setNotice(format string, args ...any) {
	a.notice = fmt.Sprintf(format, args...)
}
