package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"

	"agentchat/model"
)

// ConvertToOllamaMessages maps provider-agnostic messages onto Ollama's API.
// Ollama understands assistant tool calls and "tool" role results natively.
func ConvertToOllamaMessages(messages []model.Message) []api.Message {
	result := make([]api.Message, len(messages))
	for i, msg := range messages {
		result[i] = api.Message{
			Role:      msg.Role,
			Content:   msg.Content,
			ToolCalls: ConvertFromProviderToolCalls(msg.ToolCalls),
		}
	}
	return result
}

// ConvertToProviderToolCalls converts Ollama tool calls. Ollama does not
// identify calls, so each one gets a fresh id.
func ConvertToProviderToolCalls(ollamaCalls []api.ToolCall) []model.ToolCall {
	if len(ollamaCalls) == 0 {
		return nil
	}
	result := make([]model.ToolCall, len(ollamaCalls))
	for i, call := range ollamaCalls {
		result[i] = model.ToolCall{
			ID:        newCallID(),
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		}
	}
	return result
}

// ConvertFromProviderToolCalls converts tool calls back to Ollama's form.
func ConvertFromProviderToolCalls(providerCalls []model.ToolCall) []api.ToolCall {
	if len(providerCalls) == 0 {
		return nil
	}
	result := make([]api.ToolCall, len(providerCalls))
	for i, call := range providerCalls {
		result[i] = api.ToolCall{
			Function: api.ToolCallFunction{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		}
	}
	return result
}

// ParseToolArguments parses a JSON arguments string, returning an empty map
// when it is not a JSON object.
func ParseToolArguments(argsJSON string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil || args == nil {
		return make(map[string]any)
	}
	return args
}

// FlattenToolTurns rewrites tool traffic as plain text for backends that are
// driven through text-only message helpers. Assistant tool calls become a note
// in the assistant turn and tool results become user turns.
func FlattenToolTurns(messages []model.Message) []model.Message {
	out := make([]model.Message, 0, len(messages))
	for _, msg := range messages {
		switch {
		case msg.Role == "tool":
			out = append(out, model.Message{
				Role:    "user",
				Content: fmt.Sprintf("[tool result for %s (%s)]\n%s", msg.ToolName, msg.ToolCallID, msg.Content),
			})
		case len(msg.ToolCalls) > 0:
			var b strings.Builder
			b.WriteString(msg.Content)
			for _, call := range msg.ToolCalls {
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				fmt.Fprintf(&b, "[called %s (%s) with %s]", call.Name, call.ID, call.ArgumentsJSON())
			}
			out = append(out, model.Message{Role: msg.Role, Content: b.String()})
		default:
			out = append(out, msg)
		}
	}
	return out
}

func newCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}
