package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"agentchat/config"
)

// StreamStatus tracks whether a model response is in flight. It is
// independent of the connection state.
type StreamStatus string

const (
	StatusIdle      StreamStatus = "idle"
	StatusSubmitted StreamStatus = "submitted"
	StatusStreaming StreamStatus = "streaming"
)

type ConnState string

const (
	ConnConnecting ConnState = "connecting"
	ConnOpen       ConnState = "open"
	ConnClosed     ConnState = "closed"
)

var ErrDuplicateToolCall = errors.New("tool call id belongs to another message")

// Sender is the outbound side of the single channel to the agent.
type Sender interface {
	SendMessage(m *Message) error
	SendToolResult(toolCallID string, output json.RawMessage) error
	SendApproval(approvalID string, approved bool) error
	Cancel() error
	Clear() error
}

// ClientTool computes the output of a tool the agent leaves to the client.
type ClientTool func(input json.RawMessage) (any, error)

// Conversation is the view-side state of one chat: history, stream status,
// connection state and the compose draft. It is not safe for concurrent use;
// callers drive it from a single event loop.
type Conversation struct {
	sender      Sender
	messages    []*Message
	status      StreamStatus
	conn        ConnState
	draft       string
	active      *Message
	pending     *Message
	stopped     map[string]bool
	discard     bool
	owners      map[string]string
	clientTools map[string]ClientTool
	focus       bool
	lastError   string
}

func NewConversation(s Sender) *Conversation {
	return &Conversation{
		sender:      s,
		status:      StatusIdle,
		conn:        ConnConnecting,
		stopped:     make(map[string]bool),
		owners:      make(map[string]string),
		clientTools: make(map[string]ClientTool),
	}
}

// RegisterClientTool marks name as resolved locally.
func (c *Conversation) RegisterClientTool(name string, fn ClientTool) {
	c.clientTools[name] = fn
}

func (c *Conversation) Messages() []*Message { return c.messages }
func (c *Conversation) Status() StreamStatus  { return c.status }
func (c *Conversation) Conn() ConnState       { return c.conn }
func (c *Conversation) Draft() string         { return c.draft }
func (c *Conversation) SetDraft(s string)     { c.draft = s }
func (c *Conversation) LastError() string     { return c.lastError }

// CanSend reports whether the compose box accepts a send right now.
func (c *Conversation) CanSend() bool {
	return c.conn == ConnOpen && c.status == StatusIdle
}

// SetConn records a connection state change. Losing the connection while a
// response is in flight ends the turn locally and keeps the partial message.
func (c *Conversation) SetConn(s ConnState) {
	c.conn = s
	if s != ConnOpen && c.status != StatusIdle {
		c.lastError = "connection lost while a response was streaming"
		c.finishTurn()
	}
}

// Send emits the draft as a user message. It does nothing when the draft is
// blank, a response is in flight or the connection is not open; in every such
// case the draft is kept.
func (c *Conversation) Send() bool {
	if strings.TrimSpace(c.draft) == "" || !c.CanSend() {
		return false
	}
	m := NewUserMessage(c.draft)
	if err := c.sender.SendMessage(m); err != nil {
		c.lastError = err.Error()
		return false
	}
	c.draft = ""
	c.messages = append(c.messages, m)
	c.pending = m
	c.status = StatusSubmitted
	c.discard = false
	c.lastError = ""
	return true
}

// Enter handles the Enter key: plain Enter sends, Shift+Enter inserts a
// newline into the draft.
func (c *Conversation) Enter(shift bool) bool {
	if shift {
		c.draft += "\n"
		return false
	}
	return c.Send()
}

// Stop abandons the in-flight response. Whatever was streamed so far stays in
// history as final. The remote side is told to cancel but not waited on.
func (c *Conversation) Stop() {
	if c.status == StatusIdle {
		return
	}
	if c.active != nil {
		c.stopped[c.active.ID] = true
	} else {
		c.discard = true
	}
	c.finishTurn()
	if err := c.sender.Cancel(); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[Chat] cancel not delivered: %v", err)
	}
}

// Reject undoes a send the agent refused before starting a reply. The user
// message is removed and its text returned to the front of the draft. It
// reports false when no sent message is awaiting a reply.
func (c *Conversation) Reject(errText string) bool {
	if c.status != StatusSubmitted || c.pending == nil {
		return false
	}
	m := c.pending
	for i, existing := range c.messages {
		if existing == m {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			break
		}
	}
	text := m.Text()
	if c.draft != "" {
		text += "\n" + c.draft
	}
	c.draft = text
	c.lastError = errText
	c.finishTurn()
	return true
}

func (c *Conversation) finishTurn() {
	c.pending = nil
	c.active = nil
	c.status = StatusIdle
	c.focus = true
}

// TakeFocus reports, once, that the compose box should regain focus.
func (c *Conversation) TakeFocus() bool {
	f := c.focus
	c.focus = false
	return f
}

// ApplyChunk routes one streamed chunk to its assistant message. A chunk
// that does not apply is dropped with an error and changes nothing.
func (c *Conversation) ApplyChunk(ch Chunk) error {
	if !ch.Type.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownChunk, ch.Type)
	}
	if c.stopped[ch.MessageID] {
		return nil
	}
	m := c.find(ch.MessageID)
	fresh := m == nil
	if fresh {
		if c.discard {
			c.stopped[ch.MessageID] = true
			return nil
		}
		m = &Message{ID: ch.MessageID, Role: RoleAssistant, CreatedAt: time.Now()}
	}

	if ch.IsToolChunk() {
		if owner, ok := c.owners[ch.ToolCallID]; ok && owner != m.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateToolCall, ch.ToolCallID)
		}
	}
	if err := m.Apply(ch); err != nil {
		return err
	}
	if fresh {
		c.messages = append(c.messages, m)
	}
	if ch.IsToolChunk() {
		c.owners[ch.ToolCallID] = m.ID
	}
	if m.Role == RoleAssistant && c.active != m && ch.Type != ChunkFinish {
		c.active = m
		c.pending = nil
	}

	switch ch.Type {
	case ChunkFinish:
		if c.active == m {
			c.finishTurn()
		}
	case ChunkError:
		c.lastError = ch.ErrorText
		if c.active == m {
			c.finishTurn()
		}
	default:
		if c.active == m {
			c.status = StatusStreaming
		}
	}

	if ch.Type == ChunkToolInputAvailable {
		c.runClientTool(m.ToolPart(ch.ToolCallID))
	}
	return nil
}

func (c *Conversation) runClientTool(p *ToolPart) {
	fn, ok := c.clientTools[p.ToolName]
	if !ok || p.State != ToolInputAvailable {
		return
	}
	var output json.RawMessage
	result, err := fn(p.Input)
	if err == nil {
		output, err = json.Marshal(result)
	}
	if err != nil {
		output = ErrorOutput(err)
	}
	if err := p.Resolve(output); err != nil {
		return
	}
	if err := c.sender.SendToolResult(p.ToolCallID, output); err != nil {
		c.lastError = fmt.Sprintf("failed to deliver %s result: %v", p.ToolName, err)
	}
}

// Respond answers the approval gating the given tool call.
func (c *Conversation) Respond(toolCallID string, approved bool) error {
	msgID, ok := c.owners[toolCallID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, toolCallID)
	}
	var p *ToolPart
	if m := c.find(msgID); m != nil {
		p = m.ToolPart(toolCallID)
	}
	if p == nil {
		delete(c.owners, toolCallID)
		return fmt.Errorf("%w: %s", ErrUnknownTool, toolCallID)
	}
	if err := p.Decide(approved); err != nil {
		return err
	}
	c.discard = false
	if err := c.sender.SendApproval(p.Approval.ID, approved); err != nil {
		return fmt.Errorf("failed to send approval: %w", err)
	}
	return nil
}

// PendingApprovals lists tool calls waiting on a user decision, oldest first.
func (c *Conversation) PendingApprovals() []*ToolPart {
	var out []*ToolPart
	for _, m := range c.messages {
		for _, p := range m.ToolParts() {
			if p.State == ToolApprovalRequested && !p.Approval.Decided() {
				out = append(out, p)
			}
		}
	}
	return out
}

// AddMessage inserts or replaces a complete message, such as a user message
// sent from another client of the same agent.
func (c *Conversation) AddMessage(m *Message) {
	for i, existing := range c.messages {
		if existing.ID == m.ID {
			c.messages[i] = m
			c.index(m)
			return
		}
	}
	c.messages = append(c.messages, m)
	c.index(m)
}

// LoadHistory replaces the conversation with a server snapshot.
func (c *Conversation) LoadHistory(msgs []*Message) {
	c.messages = msgs
	c.owners = make(map[string]string)
	c.active = nil
	c.pending = nil
	for _, m := range msgs {
		c.index(m)
	}
}

// Clear empties the history here and on the agent.
func (c *Conversation) Clear() error {
	c.LoadHistory(nil)
	c.stopped = make(map[string]bool)
	c.status = StatusIdle
	if err := c.sender.Clear(); err != nil {
		return fmt.Errorf("failed to clear remote history: %w", err)
	}
	return nil
}

// LastAssistantText returns the text of the newest assistant message.
func (c *Conversation) LastAssistantText() string {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == RoleAssistant {
			return c.messages[i].Text()
		}
	}
	return ""
}

func (c *Conversation) index(m *Message) {
	for _, p := range m.ToolParts() {
		c.owners[p.ToolCallID] = m.ID
	}
}

func (c *Conversation) find(id string) *Message {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == id {
			return c.messages[i]
		}
	}
	return nil
}
