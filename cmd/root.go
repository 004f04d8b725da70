// Package cmd wires the agentchat commands: the agent server, the terminal
// chat client and a few maintenance helpers.
package cmd

import (
	"github.com/spf13/cobra"

	"agentchat/config"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

type rootFlags struct {
	configPath string
}

// load reads the config named by --config, or the default one.
func (f *rootFlags) load() (*config.Config, error) {
	return config.Load(f.configPath)
}

func NewRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "agentchat",
		Short: "agentchat - a tool-using chat agent and its terminal client",
		Long:  "agentchat serves chat agents over WebSocket and ships a terminal client to talk to them",
		Example: `  agentchat serve
  agentchat chat
  agentchat chat --agent work`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to the config file (default: ~/.config/agentchat/config.toml)")

	cmd.AddCommand(newServeCmd(&flags))
	cmd.AddCommand(newChatCmd(&flags))
	cmd.AddCommand(newExportCmd(&flags))
	cmd.AddCommand(newModelsCmd(&flags))
	cmd.AddCommand(newHashTokenCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}
