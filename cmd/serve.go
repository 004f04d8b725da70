package cmd

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"agentchat/agent"
	"agentchat/config"
	"agentchat/provider"
	"agentchat/server"
	"agentchat/storage"
)

type serveFlags struct {
	root   *rootFlags
	listen string
	model  string
}

func newServeCmd(root *rootFlags) *cobra.Command {
	flags := serveFlags{root: root}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent server",
		Long:  "Serve chat agents at /agents/chat/<name> until interrupted",
		Args:  cobra.NoArgs,
		RunE:  flags.run,
	}
	cmd.Flags().StringVarP(&flags.listen, "listen", "l", "", "Address to listen on (overrides server.listen)")
	cmd.Flags().StringVarP(&flags.model, "model", "m", "", "Model to use (overrides provider.model)")
	return cmd
}

func (f *serveFlags) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := f.root.load()
	if err != nil {
		return err
	}
	config.InitServerLog(cmd.ErrOrStderr())
	if f.listen != "" {
		cfg.Server.Listen = f.listen
	}

	dataDir := cfg.DataDir()
	if err := storage.LockInstance(dataDir); err != nil {
		return fmt.Errorf("cannot start server: %w", err)
	}
	defer func() {
		if err := storage.UnlockInstance(dataDir); err != nil {
			config.DebugLog.Printf("[Serve] failed to release lock: %v", err)
		}
	}()

	if cfg.NeedsAPIKey() && cfg.APIKey() == "" {
		config.DebugLog.Printf("[Serve] warning: no API key for provider %q; chat requests will fail", cfg.Provider.Type)
	}
	p, err := provider.InitializeProvider(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize provider: %w", err)
	}
	if f.model != "" {
		p.SetModel(f.model)
	}
	if err := provider.PingProvider(ctx, p); err != nil {
		config.DebugLog.Printf("[Serve] warning: provider not reachable: %v", err)
	} else if ok, err := provider.CheckModel(ctx, p); err != nil {
		config.DebugLog.Printf("[Serve] warning: %v", err)
	} else if !ok {
		config.DebugLog.Printf("[Serve] warning: model %q is not listed by %s; run 'agentchat models'", p.GetModel(), cfg.Provider.Type)
	}

	store, err := storage.Open(dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics := server.NewMetrics()
	opts := agent.OptionsFromConfig(cfg, p, store)
	opts.Observer = metrics
	hub := agent.NewHub(opts)
	defer hub.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			config.DebugLog.Printf("[Serve] scheduler stopped: %v", err)
		}
	}()

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Listen, err)
	}
	config.DebugLog.Printf("[Serve] %s (%s) listening on http://%s", p.GetDisplayName(), cfg.Provider.Type, ln.Addr())
	if cfg.Server.AccessTokenHash == "" {
		config.DebugLog.Printf("[Serve] warning: access_token_hash is empty; any client can connect")
	}

	return server.New(cfg, hub, metrics).Serve(ctx, ln)
}
