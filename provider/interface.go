// Package provider implements model.Provider for the supported LLM backends.
//
// The agent runtime only sees model.Provider, model.Message and model.Delta.
// Each backend converts those to its SDK's types on the way out and turns
// streamed SDK events back into deltas on the way in:
//
//   - OllamaProvider: local Ollama server (ollama/api)
//   - OpenAIProvider: OpenAI chat completions (openai-go)
//   - OpenRouterProvider: OpenRouter, OpenAI-compatible (openai-go)
//   - AnthropicProvider: Claude messages API (anthropic-sdk-go)
//
// Usage:
//
//	p, err := provider.NewProvider(provider.Config{
//	    Type:   provider.ProviderTypeOpenAI,
//	    Model:  "gpt-4o-mini",
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	})
//	err = p.Chat(ctx, messages, tools, func(d model.Delta) error { ... })
package provider

// ProviderType identifies the provider implementation.
type ProviderType string

const (
	ProviderTypeOllama     ProviderType = "ollama"
	ProviderTypeOpenRouter ProviderType = "openrouter"
	ProviderTypeOpenAI     ProviderType = "openai"
	ProviderTypeAnthropic  ProviderType = "anthropic"
)

// Config holds provider-specific configuration.
type Config struct {
	Type    ProviderType
	BaseURL string
	Model   string
	APIKey  string // unused for Ollama
}
