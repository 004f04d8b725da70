package provider

import (
	"context"
	"fmt"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"agentchat/model"
	"agentchat/ollama"
)

// OpenAIProvider implements model.Provider with the official OpenAI SDK.
type OpenAIProvider struct {
	client  openai.Client
	model   string
	baseURL string
}

// NewOpenAIProvider creates an OpenAI provider. The base URL defaults to
// https://api.openai.com/v1 and the model to gpt-4o-mini; the key is required.
func NewOpenAIProvider(baseURL, apiKey, model string) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)
	return &OpenAIProvider{client: client, model: model, baseURL: baseURL}, nil
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	if len(tools) > 0 {
		messages = append([]model.Message{{Role: "system", Content: toolInstructions(tools)}}, messages...)
	}
	params := openai.ChatCompletionNewParams{
		Messages: ConvertToOpenAIMessages(messages),
		Model:    openai.ChatModel(p.model),
		Tools:    ConvertToolsToOpenAI(tools),
	}
	if err := streamCompletion(ctx, p.client, params, callback, nil); err != nil {
		return fmt.Errorf("OpenAI streaming error: %w", err)
	}
	return nil
}

// streamCompletion drives a chat completions stream, forwarding content
// deltas as they arrive and each tool call once its arguments are complete.
// rename maps wire tool names back to declared names.
func streamCompletion(ctx context.Context, client openai.Client, params openai.ChatCompletionNewParams, callback model.StreamCallback, rename func(string) string) error {
	stream := client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()
	acc := openai.ChatCompletionAccumulator{}

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		var d model.Delta
		if tool, ok := acc.JustFinishedToolCall(); ok {
			name := tool.Name
			if rename != nil {
				name = rename(name)
			}
			d.ToolCalls = []model.ToolCall{{
				ID:        newCallID(),
				Name:      name,
				Arguments: ParseToolArguments(tool.Arguments),
			}}
		}
		if len(chunk.Choices) > 0 {
			d.Text = chunk.Choices[0].Delta.Content
		}
		if callback == nil || (d.Text == "" && len(d.ToolCalls) == 0) {
			continue
		}
		if err := callback(d); err != nil {
			return err
		}
	}
	return stream.Err()
}

func (p *OpenAIProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list OpenAI models: %w", err)
	}
	result := make([]ollama.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		result = append(result, ollama.ModelInfo{
			Name:         m.ID,
			InternalName: m.ID,
			Provider:     string(ProviderTypeOpenAI),
		})
	}
	return result, nil
}

func (p *OpenAIProvider) GetModel() string       { return p.model }
func (p *OpenAIProvider) GetDisplayName() string { return p.model }
func (p *OpenAIProvider) SetModel(model string)  { p.model = model }

// Ping lists models, which fails fast on a bad key.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("OpenAI ping failed: %w", err)
	}
	return nil
}

// ConvertToOpenAIMessages converts messages to chat completion params. Tool
// traffic is flattened to text first.
func ConvertToOpenAIMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	flat := FlattenToolTurns(messages)
	result := make([]openai.ChatCompletionMessageParamUnion, len(flat))
	for i, msg := range flat {
		switch msg.Role {
		case "system":
			result[i] = openai.SystemMessage(msg.Content)
		case "assistant":
			result[i] = openai.AssistantMessage(msg.Content)
		default:
			result[i] = openai.UserMessage(msg.Content)
		}
	}
	return result
}
