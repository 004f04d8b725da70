package testutil

import (
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"agentchat/model"
)

// TestMessages returns a sample conversation that includes a completed tool
// call.
func TestMessages() []model.Message {
	return []model.Message{
		{Role: "system", Content: "You are a helpful assistant."},
		{Role: "user", Content: "What is 2 + 3?"},
		{
			Role: "assistant",
			ToolCalls: []model.ToolCall{{
				ID:        "call_1",
				Name:      "calculate",
				Arguments: map[string]any{"a": 2.0, "b": 3.0, "operator": "add"},
			}},
		},
		{Role: "tool", ToolCallID: "call_1", ToolName: "calculate", Content: `{"result":5}`},
		{Role: "assistant", Content: "2 + 3 = 5"},
	}
}

// SingleUserMessage returns a single user message for simple tests
func SingleUserMessage(content string) []model.Message {
	return []model.Message{{Role: "user", Content: content}}
}

// TextTurn scripts a reply that streams text in the given pieces.
func TextTurn(pieces ...string) Turn {
	t := Turn{}
	for _, p := range pieces {
		t.Deltas = append(t.Deltas, model.Delta{Text: p})
	}
	return t
}

// ToolTurn scripts a reply that calls one tool.
func ToolTurn(id, name string, args map[string]any) Turn {
	return Turn{Deltas: []model.Delta{{
		ToolCalls: []model.ToolCall{{ID: id, Name: name, Arguments: args}},
	}}}
}

// TestTools returns sample tool declarations for testing
func TestTools() []mcptypes.Tool {
	return []mcptypes.Tool{
		{
			Name:        "get_weather",
			Description: "Get the current weather for a city",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"city": map[string]any{
						"type":        "string",
						"description": "City name",
					},
				},
				Required: []string{"city"},
			},
		},
		{
			Name:        "calculate",
			Description: "Perform a basic arithmetic operation",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"a":        map[string]any{"type": "number"},
					"b":        map[string]any{"type": "number"},
					"operator": map[string]any{"type": "string", "enum": []any{"add", "subtract", "multiply", "divide", "power"}},
				},
				Required: []string{"a", "b", "operator"},
			},
		},
	}
}
