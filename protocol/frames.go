// Package protocol defines the JSON frames exchanged between the chat client
// and the agent over the WebSocket. Every frame is an object with a "type"
// field; the remaining fields depend on the type.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agentchat/chat"
)

type FrameType string

const (
	// client -> agent
	TypeChatRequest      FrameType = "chat-request"
	TypeChatCancel       FrameType = "chat-cancel"
	TypeChatClear        FrameType = "chat-clear"
	TypeApprovalResponse FrameType = "approval-response"
	TypeToolResult       FrameType = "tool-result"

	// agent -> client
	TypeChatHistory FrameType = "chat-history"
	TypeChatMessage FrameType = "chat-message"
	TypeChatChunk   FrameType = "chat-chunk"
	TypeChatError   FrameType = "chat-error"

	// out of band
	TypeScheduledTask FrameType = "scheduled-task"
)

var (
	ErrMalformed    = errors.New("malformed frame")
	ErrUnknownFrame = errors.New("unknown frame type")
)

// Frame is implemented by every frame struct.
type Frame interface {
	FrameType() FrameType
}

type ChatRequest struct {
	Message *chat.Message `json:"message"`
}

type ChatCancel struct{}

type ChatClear struct{}

// ApprovalResponse resolves a pending approval-requested tool call.
type ApprovalResponse struct {
	ID       string `json:"id"`
	Approved bool   `json:"approved"`
}

type ToolResult struct {
	ToolCallID string          `json:"toolCallId"`
	Output     json.RawMessage `json:"output"`
}

type ChatHistory struct {
	Messages []*chat.Message `json:"messages"`
}

type ChatMessage struct {
	Message *chat.Message `json:"message"`
}

type ChatChunk struct {
	Chunk chat.Chunk `json:"chunk"`
}

type ChatError struct {
	Error string `json:"error"`
}

// ScheduledTask is the notification sent when a scheduled task fires.
type ScheduledTask struct {
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

func (ChatRequest) FrameType() FrameType      { return TypeChatRequest }
func (ChatCancel) FrameType() FrameType       { return TypeChatCancel }
func (ChatClear) FrameType() FrameType        { return TypeChatClear }
func (ApprovalResponse) FrameType() FrameType { return TypeApprovalResponse }
func (ToolResult) FrameType() FrameType       { return TypeToolResult }
func (ChatHistory) FrameType() FrameType      { return TypeChatHistory }
func (ChatMessage) FrameType() FrameType      { return TypeChatMessage }
func (ChatChunk) FrameType() FrameType        { return TypeChatChunk }
func (ChatError) FrameType() FrameType        { return TypeChatError }
func (ScheduledTask) FrameType() FrameType    { return TypeScheduledTask }

// Encode serializes f with its type tag.
func Encode(f Frame) ([]byte, error) {
	body, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s frame: %w", f.FrameType(), err)
	}
	head := fmt.Sprintf(`{"type":%q`, f.FrameType())
	if len(body) > 2 {
		head += ","
	}
	return append([]byte(head), body[1:]...), nil
}

// Decode parses a frame. Payloads that are not JSON objects with a string
// type yield ErrMalformed; unrecognised types yield ErrUnknownFrame.
func Decode(data []byte) (Frame, error) {
	var head struct {
		Type *FrameType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil || head.Type == nil {
		return nil, ErrMalformed
	}
	switch *head.Type {
	case TypeChatRequest:
		return decodeInto[ChatRequest](data)
	case TypeChatCancel:
		return ChatCancel{}, nil
	case TypeChatClear:
		return ChatClear{}, nil
	case TypeApprovalResponse:
		return decodeInto[ApprovalResponse](data)
	case TypeToolResult:
		return decodeInto[ToolResult](data)
	case TypeChatHistory:
		return decodeInto[ChatHistory](data)
	case TypeChatMessage:
		return decodeInto[ChatMessage](data)
	case TypeChatChunk:
		return decodeInto[ChatChunk](data)
	case TypeChatError:
		return decodeInto[ChatError](data)
	case TypeScheduledTask:
		n, ok := ParseNotification(data)
		if !ok {
			return nil, ErrMalformed
		}
		return n, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFrame, *head.Type)
}

func decodeInto[T Frame](data []byte) (Frame, error) {
	var f T
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return f, nil
}

// ParseNotification recognises the scheduled-task notification. Anything
// else, including a scheduled-task frame missing its description or with a
// timestamp that is not ISO-8601, is rejected.
func ParseNotification(data []byte) (ScheduledTask, bool) {
	var raw struct {
		Type        string `json:"type"`
		Description string `json:"description"`
		Timestamp   string `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil || raw.Type != string(TypeScheduledTask) || raw.Description == "" {
		return ScheduledTask{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		return ScheduledTask{}, false
	}
	return ScheduledTask{Description: raw.Description, Timestamp: ts}, true
}
