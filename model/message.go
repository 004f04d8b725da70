package model

import "encoding/json"

// Message is the flattened form of a conversation turn sent to providers.
// Assistant messages may carry the tool calls they made; tool messages carry
// the result of exactly one call.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	ToolName   string
}

// ToolCall is a model-initiated invocation of a named tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ArgumentsJSON encodes the arguments, using {} when there are none.
func (c ToolCall) ArgumentsJSON() json.RawMessage {
	if len(c.Arguments) == 0 {
		return json.RawMessage(`{}`)
	}
	b, err := json.Marshal(c.Arguments)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
