package model

import (
	"context"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"agentchat/ollama"
)

// Provider abstracts LLM backends (Ollama, OpenAI, OpenRouter, Anthropic)
// behind provider-agnostic types.
//
// The interface lives in model rather than provider so the agent runtime can
// depend on it without importing every SDK.
type Provider interface {
	// Chat streams a reply. Tools may be nil.
	Chat(ctx context.Context, messages []Message, tools []mcptypes.Tool, callback StreamCallback) error

	// ListModels returns the models this backend can serve.
	ListModels(ctx context.Context) ([]ollama.ModelInfo, error)

	// GetModel returns the model name used for API calls.
	GetModel() string

	// GetDisplayName returns the model name formatted for display.
	GetDisplayName() string

	SetModel(model string)

	// Ping checks that the backend is reachable with the configured key.
	Ping(ctx context.Context) error
}

// Delta is one streamed increment from a provider. Text and reasoning are
// incremental; tool calls are only reported once their arguments are final.
type Delta struct {
	Text      string
	Reasoning string
	ToolCalls []ToolCall
}

// StreamCallback receives deltas in arrival order. Returning an error aborts
// the stream.
type StreamCallback func(d Delta) error
