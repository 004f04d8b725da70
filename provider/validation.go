package provider

import (
	"context"
	"fmt"
	"time"

	"agentchat/config"
	"agentchat/model"
)

// PingTimeout bounds a credential check.
const PingTimeout = 10 * time.Second

// PingProvider validates a provider's credentials by calling Ping.
func PingProvider(ctx context.Context, p model.Provider) error {
	ctx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		if config.Debug {
			config.DebugLog.Printf("[Provider] Ping failed for %s: %v", p.GetModel(), err)
		}
		return fmt.Errorf("connection failed: %w", err)
	}

	if config.Debug {
		config.DebugLog.Printf("[Provider] Ping successful for %s", p.GetModel())
	}
	return nil
}

// CheckKey reports whether cfg carries a usable key for its provider. Only
// the presence of a key is checked; PingProvider verifies it.
func CheckKey(cfg *config.Config) bool {
	if !cfg.NeedsAPIKey() {
		return true
	}
	return cfg.APIKey() != ""
}

// CheckModel reports whether the provider's current model is among the
// models the backend lists.
func CheckModel(ctx context.Context, p model.Provider) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()

	models, err := p.ListModels(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list models: %w", err)
	}
	want := p.GetModel()
	for _, m := range models {
		if m.InternalName == want || m.Name == want {
			return true, nil
		}
	}
	return false, nil
}
