package provider

import (
	"context"
	"fmt"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"

	"agentchat/model"
	"agentchat/ollama"
)

// OllamaProvider adapts ollama.Client to model.Provider.
type OllamaProvider struct {
	client *ollama.Client
}

// NewOllamaProvider creates a provider for the Ollama server at baseURL
// (default http://localhost:11434).
func NewOllamaProvider(baseURL, model string) (*OllamaProvider, error) {
	client, err := ollama.NewClient(baseURL, model)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}
	return &OllamaProvider{client: client}, nil
}

// Chat converts messages and tools to Ollama's types and streams the reply.
// Ollama reports tool calls whole, so each batch is forwarded as soon as it
// arrives.
func (p *OllamaProvider) Chat(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	var ollamaTools []api.Tool
	if len(tools) > 0 {
		ollamaTools = ConvertToolsToOllama(tools)
	}

	return p.client.Chat(ctx, ConvertToOllamaMessages(messages), ollamaTools, func(content, thinking string, calls []api.ToolCall) error {
		if callback == nil {
			return nil
		}
		if content == "" && thinking == "" && len(calls) == 0 {
			return nil
		}
		return callback(model.Delta{
			Text:      content,
			Reasoning: thinking,
			ToolCalls: ConvertToProviderToolCalls(calls),
		})
	})
}

func (p *OllamaProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return p.client.ListModels(ctx)
}

func (p *OllamaProvider) GetModel() string { return p.client.GetModel() }

// GetDisplayName is the model name; Ollama names carry no vendor prefix.
func (p *OllamaProvider) GetDisplayName() string { return p.client.GetModel() }

func (p *OllamaProvider) SetModel(model string) { p.client.SetModel(model) }

func (p *OllamaProvider) Ping(ctx context.Context) error { return p.client.Ping(ctx) }
