package ui

import (
	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"agentchat/chat"
	"agentchat/config"
	"agentchat/conn"
	"agentchat/protocol"
)

func (a AppView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		a.mdCache = make(map[string]string)
		a.resize()
		a.updateViewportContent()
		a.viewport.GotoBottom()
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		if a.conv.Status() != chat.StatusIdle {
			a.updateViewportContent()
		}
		return a, cmd

	case connEventMsg:
		cmd := a.handleConnEvent(msg.event)
		return a, tea.Batch(cmd, waitForEvent(a.conn.Events()))

	case connDoneMsg:
		a.conv.SetConn(chat.ConnClosed)
		a.syncInput()
		return a, nil

	case toastExpiredMsg:
		a.dropToast(msg.id)
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	return a, cmd
}

func (a *AppView) handleConnEvent(e conn.Event) tea.Cmd {
	var cmd tea.Cmd
	switch e := e.(type) {
	case conn.StateEvent:
		a.conv.SetConn(e.State)
		if e.State == chat.ConnOpen {
			a.lastConnErr = ""
		}
	case conn.ErrorEvent:
		a.lastConnErr = e.Err.Error()
	case conn.NotificationEvent:
		cmd = a.pushToast(e.Task)
	case conn.FrameEvent:
		a.handleFrame(e.Frame)
	}

	a.updateViewportContent()
	a.syncInput()
	return cmd
}

// syncInput enables the compose box only while the connection is open and
// consumes any pending focus request. The typed text is kept either way.
func (a *AppView) syncInput() {
	a.conv.TakeFocus()
	if a.conv.Conn() != chat.ConnOpen {
		a.textarea.Blur()
		return
	}
	a.textarea.Focus()
}

func (a *AppView) handleFrame(f protocol.Frame) {
	switch f := f.(type) {
	case protocol.ChatHistory:
		a.conv.LoadHistory(f.Messages)
	case protocol.ChatMessage:
		a.conv.AddMessage(f.Message)
	case protocol.ChatChunk:
		if err := a.conv.ApplyChunk(f.Chunk); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[UI] dropped %s chunk for %s: %v", f.Chunk.Type, f.Chunk.MessageID, err)
		}
	case protocol.ChatError:
		if a.conv.Status() == chat.StatusSubmitted {
			a.conv.SetDraft(a.textarea.Value())
			if a.conv.Reject(f.Error) {
				a.textarea.SetValue(a.conv.Draft())
			}
		}
		a.showError("Agent error", f.Error)
	}
}

func (a AppView) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	kb := a.cfg.KeyBindings
	k := msg.String()
	is := func(action string) bool { return k == kb.GetActionKey(action) }

	if k == "ctrl+c" || is("quit") {
		return a, tea.Quit
	}

	// Modals swallow everything but their own dismiss keys.
	if a.errorMsg != "" {
		if k == "enter" || k == "esc" {
			a.errorTitle, a.errorMsg = "", ""
		}
		return a, nil
	}
	if a.confirm != nil {
		a.handleConfirmKey(k)
		return a, nil
	}
	if a.showHelp {
		if k == "esc" || is("help") {
			a.showHelp = false
		}
		return a, nil
	}

	a.notice = ""
	switch {
	case is("help"):
		a.showHelp = true
		return a, nil

	case is("stop") && a.conv.Status() != chat.StatusIdle:
		a.conv.Stop()
		a.updateViewportContent()
		a.syncInput()
		return a, nil

	case is("approve"):
		a.respond(true)
		return a, nil

	case is("deny"):
		a.respond(false)
		return a, nil

	case (k == "y" || k == "n") && a.textarea.Value() == "" && len(a.conv.PendingApprovals()) > 0:
		a.respond(k == "y")
		return a, nil

	case is("yank_last_response"):
		text := a.conv.LastAssistantText()
		if text == "" {
			return a, nil
		}
		if err := clipboard.WriteAll(text); err != nil {
			a.setNotice("Copy failed: %v", err)
		} else {
			a.setNotice("Copied last response")
		}
		return a, nil

	case is("clear_history"):
		a.confirmClearHistory()
		return a, nil

	case is("clear_input"):
		a.textarea.Reset()
		return a, nil

	case is("scroll_down"):
		a.viewport.LineDown(1)
		return a, nil
	case is("scroll_up"):
		a.viewport.LineUp(1)
		return a, nil
	case is("half_page_down"), k == "alt+down":
		a.viewport.HalfPageDown()
		return a, nil
	case is("half_page_up"), k == "alt+up":
		a.viewport.HalfPageUp()
		return a, nil
	case is("page_down"), k == "pgdown":
		a.viewport.PageDown()
		return a, nil
	case is("page_up"), k == "pgup":
		a.viewport.PageUp()
		return a, nil
	case is("scroll_to_top"):
		a.viewport.GotoTop()
		return a, nil
	case is("scroll_to_bottom"):
		a.viewport.GotoBottom()
		return a, nil

	case k == "enter":
		a.conv.SetDraft(a.textarea.Value())
		if a.conv.Enter(false) {
			a.textarea.Reset()
			a.updateViewportContent()
			a.viewport.GotoBottom()
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	return a, cmd
}

// respond answers the oldest pending approval.
func (a *AppView) respond(approved bool) {
	pending := a.conv.PendingApprovals()
	if len(pending) == 0 {
		return
	}
	if err := a.conv.Respond(pending[0].ToolCallID, approved); err != nil {
		a.setNotice("%v", err)
	}
	a.updateViewportContent()
}
