package agent

import (
	"encoding/json"
	"strings"

	"agentchat/chat"
	"agentchat/model"
)

const deniedResult = `{"error":"The user denied this tool call."}`

// toProviderMessages flattens one history entry into the provider form.
// Assistant messages are split at every run of tool calls: the calls ride on
// an assistant message and each result follows as a tool message. Calls
// without a final state are left out, since providers reject a call with no
// result.
func toProviderMessages(m *chat.Message) []model.Message {
	switch m.Role {
	case chat.RoleUser:
		return []model.Message{{Role: "user", Content: m.Text()}}
	case chat.RoleSystem:
		return []model.Message{{Role: "system", Content: m.Text()}}
	}

	var (
		out     []model.Message
		text    strings.Builder
		calls   []model.ToolCall
		results []model.Message
	)
	flush := func() {
		if text.Len() == 0 && len(calls) == 0 {
			return
		}
		out = append(out, model.Message{Role: "assistant", Content: text.String(), ToolCalls: calls})
		out = append(out, results...)
		text.Reset()
		calls, results = nil, nil
	}

	for _, part := range m.Parts {
		switch p := part.(type) {
		case *chat.TextPart:
			if len(calls) > 0 {
				flush()
			}
			text.WriteString(p.Text)
		case *chat.ToolPart:
			if !p.State.Terminal() {
				continue
			}
			args, _ := decodeArgs(p.Input)
			calls = append(calls, model.ToolCall{ID: p.ToolCallID, Name: p.ToolName, Arguments: args})
			results = append(results, model.Message{
				Role:       "tool",
				Content:    toolResultContent(p),
				ToolCallID: p.ToolCallID,
				ToolName:   p.ToolName,
			})
		case *chat.ReasoningPart:
			// reasoning is never replayed to the model
		}
	}
	flush()
	return out
}

func toolResultContent(p *chat.ToolPart) string {
	if p.State == chat.ToolOutputDenied {
		return deniedResult
	}
	if len(p.Output) == 0 || !json.Valid(p.Output) {
		return string(chat.ErrorOutput(errInvalidOutput))
	}
	return string(p.Output)
}

func cloneAll(msgs []*chat.Message) []*chat.Message {
	out := make([]*chat.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
