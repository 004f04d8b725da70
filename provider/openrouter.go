package provider

import (
	"context"
	"fmt"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"agentchat/config"
	"agentchat/model"
	"agentchat/ollama"
)

// OpenRouterProvider talks to OpenRouter through the OpenAI SDK; the API is
// OpenAI-compatible.
type OpenRouterProvider struct {
	client  openai.Client
	model   string
	baseURL string
}

func NewOpenRouterProvider(baseURL, apiKey, model string) (*OpenRouterProvider, error) {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenRouter API key is required")
	}
	if model == "" {
		model = "meta-llama/llama-3.3-70b-instruct"
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)
	return &OpenRouterProvider{client: client, model: model, baseURL: baseURL}, nil
}

// shouldSkipToolInstructions reports models that handle tools natively and
// get confused by explicit tool prompting.
func shouldSkipToolInstructions(modelName string) bool {
	return strings.Contains(strings.ToLower(modelName), "qwen")
}

// OpenRouter tool names must match ^[a-zA-Z0-9_-]{1,64}$.
func convertToolNamesForOpenRouter(tools []mcptypes.Tool) []mcptypes.Tool {
	converted := make([]mcptypes.Tool, len(tools))
	for i, tool := range tools {
		converted[i] = tool
		converted[i].Name = strings.ReplaceAll(tool.Name, ".", "__")
	}
	return converted
}

func convertToolNameFromOpenRouter(toolName string) string {
	return strings.ReplaceAll(toolName, "__", ".")
}

func (p *OpenRouterProvider) Chat(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	if len(tools) > 0 {
		if shouldSkipToolInstructions(p.model) {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[OpenRouter] Model '%s': skipping tool instructions", p.model)
			}
		} else {
			messages = append([]model.Message{{Role: "system", Content: toolInstructions(tools)}}, messages...)
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages: ConvertToOpenAIMessages(messages),
		Model:    openai.ChatModel(p.model),
		Tools:    ConvertToolsToOpenAI(convertToolNamesForOpenRouter(tools)),
	}
	if err := streamCompletion(ctx, p.client, params, callback, convertToolNameFromOpenRouter); err != nil {
		return fmt.Errorf("OpenRouter streaming error: %w", err)
	}
	return nil
}

func (p *OpenRouterProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list OpenRouter models: %w", err)
	}
	result := make([]ollama.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		result = append(result, ollama.ModelInfo{
			Name:         stripProviderPrefix(m.ID),
			InternalName: m.ID,
			Provider:     string(ProviderTypeOpenRouter),
		})
	}
	return result, nil
}

// GetModel returns the full name with vendor prefix, e.g. "qwen/qwen3-coder:free".
func (p *OpenRouterProvider) GetModel() string { return p.model }

// GetDisplayName strips the vendor prefix: "qwen/qwen3-coder:free" → "qwen3-coder:free".
func (p *OpenRouterProvider) GetDisplayName() string { return stripProviderPrefix(p.model) }

func (p *OpenRouterProvider) SetModel(model string) { p.model = model }

func (p *OpenRouterProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("OpenRouter ping failed: %w", err)
	}
	return nil
}

func stripProviderPrefix(modelName string) string {
	if idx := strings.Index(modelName, "/"); idx != -1 {
		return modelName[idx+1:]
	}
	return modelName
}
