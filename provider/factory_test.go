package provider

import (
	"testing"

	"agentchat/config"
	"agentchat/model"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		expectError bool
		expectType  string
	}{
		{
			name:       "ollama provider with defaults",
			config:     Config{Type: ProviderTypeOllama},
			expectType: "*provider.OllamaProvider",
		},
		{
			name: "openai provider",
			config: Config{
				Type:   ProviderTypeOpenAI,
				Model:  "gpt-4o-mini",
				APIKey: "test-key",
			},
			expectType: "*provider.OpenAIProvider",
		},
		{
			name: "openrouter provider",
			config: Config{
				Type:   ProviderTypeOpenRouter,
				APIKey: "test-key",
			},
			expectType: "*provider.OpenRouterProvider",
		},
		{
			name: "anthropic provider",
			config: Config{
				Type:   ProviderTypeAnthropic,
				Model:  "claude-sonnet-4-5-20250929",
				APIKey: "test-key",
			},
			expectType: "*provider.AnthropicProvider",
		},
		{
			name:        "openai without key",
			config:      Config{Type: ProviderTypeOpenAI},
			expectError: true,
		},
		{
			name:        "anthropic without key",
			config:      Config{Type: ProviderTypeAnthropic},
			expectError: true,
		},
		{
			name:        "unknown provider type",
			config:      Config{Type: ProviderType("unknown")},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.config)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := typeName(p); got != tt.expectType {
				t.Errorf("got %s, want %s", got, tt.expectType)
			}
		})
	}
}

func typeName(p model.Provider) string {
	switch p.(type) {
	case *OllamaProvider:
		return "*provider.OllamaProvider"
	case *OpenAIProvider:
		return "*provider.OpenAIProvider"
	case *OpenRouterProvider:
		return "*provider.OpenRouterProvider"
	case *AnthropicProvider:
		return "*provider.AnthropicProvider"
	default:
		return "unknown"
	}
}

func TestMapProviderIDToType(t *testing.T) {
	tests := []struct {
		id   string
		want ProviderType
	}{
		{"ollama", ProviderTypeOllama},
		{"openai", ProviderTypeOpenAI},
		{"", ProviderTypeOpenAI},
		{"openrouter", ProviderTypeOpenRouter},
		{"anthropic", ProviderTypeAnthropic},
		{"bard", ProviderType("bard")},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := MapProviderIDToType(tt.id); got != tt.want {
				t.Errorf("MapProviderIDToType(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestInitializeProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	tests := []struct {
		name        string
		provider    config.ProviderConfig
		expectError bool
		wantModel   string
	}{
		{
			name:        "openai without key",
			provider:    config.ProviderConfig{Type: "openai"},
			expectError: true,
		},
		{
			name:      "openai with key in config",
			provider:  config.ProviderConfig{Type: "openai", APIKey: "sk-test", Model: "gpt-4.1"},
			wantModel: "gpt-4.1",
		},
		{
			name:      "anthropic key from env",
			provider:  config.ProviderConfig{Type: "anthropic", Model: "claude-3-5-haiku-20241022"},
			wantModel: "claude-3-5-haiku-20241022",
		},
		{
			name:      "ollama needs no key",
			provider:  config.ProviderConfig{Type: "ollama", Model: "qwen3"},
			wantModel: "qwen3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Provider = tt.provider

			p, err := InitializeProvider(cfg)
			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.GetModel() != tt.wantModel {
				t.Errorf("model = %q, want %q", p.GetModel(), tt.wantModel)
			}
			if !CheckKey(cfg) {
				t.Error("CheckKey() = false for an initialized provider")
			}
		})
	}
}
