package provider

import (
	"fmt"

	"agentchat/config"
	"agentchat/model"
)

// InitializeProvider creates the provider the agent server talks to.
//
// Unlike the client, the server cannot run without a model, so a missing API
// key or unknown provider type is an error rather than a logged warning.
func InitializeProvider(cfg *config.Config) (model.Provider, error) {
	providerType := MapProviderIDToType(cfg.Provider.Type)

	apiKey := cfg.APIKey()
	if cfg.NeedsAPIKey() && apiKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %s", cfg.Provider.Type)
	}

	p, err := NewProvider(Config{
		Type:    providerType,
		BaseURL: cfg.Provider.BaseURL,
		APIKey:  apiKey,
		Model:   cfg.Provider.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize provider %s: %w", cfg.Provider.Type, err)
	}

	if config.Debug {
		config.DebugLog.Printf("[Provider] Initialized provider: %s (type: %s, model: %s)", cfg.Provider.Type, providerType, p.GetModel())
	}
	return p, nil
}
