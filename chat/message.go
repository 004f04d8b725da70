// Package chat holds the conversation model shared by the agent server and the
// terminal client: messages, the closed set of part kinds, the tool-call state
// machine and the chunk reducer that builds messages from a stream.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartKind is the wire discriminator of a Part.
type PartKind string

const (
	KindText      PartKind = "text"
	KindReasoning PartKind = "reasoning"
	KindToolCall  PartKind = "tool-call"
)

// Part is one typed fragment of a message. The set of implementations is
// closed: only TextPart, ReasoningPart and ToolPart satisfy it.
type Part interface {
	Kind() PartKind
	clone() Part
}

type TextPart struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func (*TextPart) Kind() PartKind { return KindText }
func (p *TextPart) clone() Part  { c := *p; return &c }

type ReasoningState string

const (
	ReasoningStreaming ReasoningState = "streaming"
	ReasoningDone      ReasoningState = "done"
)

type ReasoningPart struct {
	ID    string         `json:"id"`
	Text  string         `json:"text"`
	State ReasoningState `json:"state"`
}

func (*ReasoningPart) Kind() PartKind { return KindReasoning }
func (p *ReasoningPart) clone() Part  { c := *p; return &c }

// Message is one entry of the conversation history.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Parts     []Part    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewUserMessage builds a user message holding a single text part.
func NewUserMessage(text string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Parts:     []Part{&TextPart{ID: uuid.NewString(), Text: text}},
		CreatedAt: time.Now(),
	}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (m *Message) Clone() *Message {
	c := *m
	c.Parts = make([]Part, len(m.Parts))
	for i, p := range m.Parts {
		c.Parts[i] = p.clone()
	}
	return &c
}

// Text concatenates the message's text parts.
func (m *Message) Text() string {
	var s string
	for _, p := range m.Parts {
		if t, ok := p.(*TextPart); ok {
			s += t.Text
		}
	}
	return s
}

// ToolParts returns the tool-call parts in arrival order.
func (m *Message) ToolParts() []*ToolPart {
	var out []*ToolPart
	for _, p := range m.Parts {
		if t, ok := p.(*ToolPart); ok {
			out = append(out, t)
		}
	}
	return out
}

// ToolPart looks up a tool-call part by call id.
func (m *Message) ToolPart(callID string) *ToolPart {
	for _, p := range m.Parts {
		if t, ok := p.(*ToolPart); ok && t.ToolCallID == callID {
			return t
		}
	}
	return nil
}

var errUnknownPart = errors.New("unknown part type")

type wireMessage struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Parts     []json.RawMessage `json:"parts"`
	CreatedAt time.Time         `json:"createdAt"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{ID: m.ID, Role: m.Role, CreatedAt: m.CreatedAt, Parts: make([]json.RawMessage, 0, len(m.Parts))}
	for _, p := range m.Parts {
		raw, err := marshalPart(p)
		if err != nil {
			return nil, err
		}
		w.Parts = append(w.Parts, raw)
	}
	return json.Marshal(w)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Role {
	case RoleUser, RoleAssistant, RoleSystem:
	default:
		return fmt.Errorf("invalid role %q", w.Role)
	}
	m.ID, m.Role, m.CreatedAt = w.ID, w.Role, w.CreatedAt
	m.Parts = make([]Part, 0, len(w.Parts))
	for _, raw := range w.Parts {
		p, err := unmarshalPart(raw)
		if err != nil {
			return err
		}
		m.Parts = append(m.Parts, p)
	}
	return nil
}

func marshalPart(p Part) (json.RawMessage, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s part: %w", p.Kind(), err)
	}
	// splice the discriminator into the object
	tag := fmt.Sprintf(`{"type":%q`, p.Kind())
	if len(body) > 2 {
		tag += ","
	}
	return append([]byte(tag), body[1:]...), nil
}

func unmarshalPart(raw json.RawMessage) (Part, error) {
	var head struct {
		Type PartKind `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	var p Part
	switch head.Type {
	case KindText:
		p = &TextPart{}
	case KindReasoning:
		p = &ReasoningPart{}
	case KindToolCall:
		p = &ToolPart{}
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownPart, head.Type)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("failed to decode %s part: %w", head.Type, err)
	}
	return p, nil
}
