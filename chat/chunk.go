package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

type ChunkType string

const (
	ChunkStart                ChunkType = "start"
	ChunkTextDelta            ChunkType = "text-delta"
	ChunkReasoningDelta       ChunkType = "reasoning-delta"
	ChunkReasoningEnd         ChunkType = "reasoning-end"
	ChunkToolInputStart       ChunkType = "tool-input-start"
	ChunkToolInputAvailable   ChunkType = "tool-input-available"
	ChunkToolApprovalRequest  ChunkType = "tool-approval-request"
	ChunkToolApprovalResponse ChunkType = "tool-approval-response"
	ChunkToolOutputAvailable  ChunkType = "tool-output-available"
	ChunkToolOutputDenied     ChunkType = "tool-output-denied"
	ChunkFinish               ChunkType = "finish"
	ChunkError                ChunkType = "error"
)

// Chunk is one streamed update to an assistant message. Text and reasoning
// deltas carry the length of the part before the delta so that replaying a
// chunk never duplicates content.
type Chunk struct {
	Type       ChunkType       `json:"type"`
	MessageID  string          `json:"messageId"`
	ID         string          `json:"id,omitempty"`
	Offset     int             `json:"offset,omitempty"`
	Delta      string          `json:"delta,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ApprovalID string          `json:"approvalId,omitempty"`
	Approved   *bool           `json:"approved,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`
}

// Known reports whether t is a chunk type this package can apply.
func (t ChunkType) Known() bool {
	switch t {
	case ChunkStart, ChunkTextDelta, ChunkReasoningDelta, ChunkReasoningEnd,
		ChunkToolInputStart, ChunkToolInputAvailable, ChunkToolApprovalRequest,
		ChunkToolApprovalResponse, ChunkToolOutputAvailable, ChunkToolOutputDenied,
		ChunkFinish, ChunkError:
		return true
	}
	return false
}

var (
	ErrDeltaGap     = errors.New("delta offset beyond current content")
	ErrUnknownChunk = errors.New("unknown chunk type")
	ErrUnknownTool  = errors.New("no such tool call")
)

// IsToolChunk reports whether c addresses a tool call.
func (c Chunk) IsToolChunk() bool {
	switch c.Type {
	case ChunkToolInputStart, ChunkToolInputAvailable, ChunkToolApprovalRequest,
		ChunkToolApprovalResponse, ChunkToolOutputAvailable, ChunkToolOutputDenied:
		return true
	}
	return false
}

// Apply folds c into m. A chunk that would corrupt the message (a gap in a
// delta, an illegal tool transition) returns an error and leaves m unchanged.
func (m *Message) Apply(c Chunk) error {
	switch c.Type {
	case ChunkStart, ChunkFinish, ChunkError:
		return nil
	case ChunkTextDelta:
		p := m.textPart(c.ID)
		if p == nil {
			if c.Offset != 0 {
				return ErrDeltaGap
			}
			p = &TextPart{ID: c.ID}
			m.Parts = append(m.Parts, p)
		}
		return splice(&p.Text, c.Offset, c.Delta)
	case ChunkReasoningDelta:
		p := m.reasoningPart(c.ID)
		if p == nil {
			if c.Offset != 0 {
				return ErrDeltaGap
			}
			p = &ReasoningPart{ID: c.ID, State: ReasoningStreaming}
			m.Parts = append(m.Parts, p)
		}
		return splice(&p.Text, c.Offset, c.Delta)
	case ChunkReasoningEnd:
		p := m.reasoningPart(c.ID)
		if p == nil {
			p = &ReasoningPart{ID: c.ID}
			m.Parts = append(m.Parts, p)
		}
		p.State = ReasoningDone
		return nil
	}

	if !c.IsToolChunk() {
		return fmt.Errorf("%w: %q", ErrUnknownChunk, c.Type)
	}
	p := m.ToolPart(c.ToolCallID)
	if p == nil {
		switch c.Type {
		case ChunkToolInputStart, ChunkToolInputAvailable, ChunkToolApprovalRequest:
		default:
			return fmt.Errorf("%w: %s", ErrUnknownTool, c.ToolCallID)
		}
		p = &ToolPart{ToolCallID: c.ToolCallID, ToolName: c.ToolName, State: ToolInputStreaming, Input: c.Input}
		m.Parts = append(m.Parts, p)
	}

	switch c.Type {
	case ChunkToolInputStart:
		return nil
	case ChunkToolInputAvailable:
		if err := p.Advance(ToolInputAvailable); err != nil {
			return err
		}
		if len(c.Input) > 0 {
			p.Input = c.Input
		}
		return nil
	case ChunkToolApprovalRequest:
		return p.RequestApproval(c.ApprovalID)
	case ChunkToolApprovalResponse:
		if c.Approved == nil {
			return fmt.Errorf("%w: approval response without decision", ErrInvalidTransition)
		}
		return p.Decide(*c.Approved)
	case ChunkToolOutputAvailable:
		return p.Resolve(c.Output)
	default:
		if p.State == ToolOutputDenied {
			return nil
		}
		return p.Deny()
	}
}

// Reduce rebuilds a message from its full chunk history. Chunks that do not
// apply are skipped, as they are during live streaming.
func Reduce(id string, role Role, chunks []Chunk) *Message {
	m := &Message{ID: id, Role: role}
	for _, c := range chunks {
		_ = m.Apply(c)
	}
	return m
}

func splice(dst *string, offset int, delta string) error {
	if offset < 0 || offset > len(*dst) {
		return ErrDeltaGap
	}
	// a replayed delta already covered by the content changes nothing
	if end := offset + len(delta); end <= len(*dst) && (*dst)[offset:end] == delta {
		return nil
	}
	*dst = (*dst)[:offset] + delta
	return nil
}

func (m *Message) textPart(id string) *TextPart {
	for _, p := range m.Parts {
		if t, ok := p.(*TextPart); ok && t.ID == id {
			return t
		}
	}
	return nil
}

func (m *Message) reasoningPart(id string) *ReasoningPart {
	for _, p := range m.Parts {
		if r, ok := p.(*ReasoningPart); ok && r.ID == id {
			return r
		}
	}
	return nil
}
