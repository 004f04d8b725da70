package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"agentchat/provider"
	"agentchat/server"
	"agentchat/storage"
)

func newExportCmd(root *rootFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export [agent]",
		Short: "Export an agent's conversation history as JSON",
		Long:  "Export the named agent's history, or list the stored agents when no name is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			store, err := storage.Open(cfg.DataDir())
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 0 {
				names, err := store.Agents(cmd.Context())
				if err != nil {
					return err
				}
				if len(names) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No stored agents")
					return nil
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			if output == "" {
				output = storage.GenerateExportPath(args[0], time.Now())
			}
			if err := store.ExportMessages(cmd.Context(), args[0], output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", args[0], output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: ~/Downloads/agentchat-<agent>-<time>.json)")
	return cmd
}

func newModelsCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models the configured provider can serve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			p, err := provider.InitializeProvider(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), provider.PingTimeout)
			defer cancel()
			models, err := p.ListModels(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, m := range models {
				marker := " "
				if m.InternalName == p.GetModel() || m.Name == p.GetModel() {
					marker = "*"
				}
				size := ""
				if m.Size > 0 {
					size = humanize.Bytes(uint64(m.Size))
				}
				fmt.Fprintf(w, "%s %s\t%s\n", marker, m.Name, size)
			}
			return w.Flush()
		},
	}
}

func newHashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token [token]",
		Short: "Print the bcrypt hash of an access token for server.access_token_hash",
		Long:  "Hash the token given as argument, or read from stdin when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read token: %w", err)
				}
				token = strings.TrimSpace(line)
			}
			hash, err := server.HashToken(token)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "agentchat version %s\n", Version)
		},
	}
}
