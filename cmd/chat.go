package cmd

import (
	"fmt"
	"net/url"
	"path"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"agentchat/config"
	"agentchat/conn"
	"agentchat/ui"
)

type chatFlags struct {
	root  *rootFlags
	url   string
	agent string
	token string
}

func newChatCmd(root *rootFlags) *cobra.Command {
	flags := chatFlags{root: root}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the terminal chat client",
		Args:  cobra.NoArgs,
		RunE:  flags.run,
	}
	cmd.Flags().StringVarP(&flags.url, "url", "u", "", "Agent WebSocket URL (overrides client.url)")
	cmd.Flags().StringVarP(&flags.agent, "agent", "a", "", "Agent name; replaces the last segment of the URL")
	cmd.Flags().StringVar(&flags.token, "token", "", "Access token (overrides client.access_token)")
	return cmd
}

func (f *chatFlags) run(cmd *cobra.Command, _ []string) error {
	cfg, err := f.root.load()
	if err != nil {
		return err
	}
	config.InitDebugLog(cfg.DataDir())

	if ok, warning := cfg.KeyBindings.Validate(); !ok {
		return runErrorModal("Invalid keybindings", warning)
	}

	target := cfg.Client.URL
	if f.url != "" {
		target = f.url
	}
	target, name, err := agentURL(target, f.agent)
	if err != nil {
		return err
	}
	token := cfg.Client.AccessToken
	if f.token != "" {
		token = f.token
	}

	mgr := conn.New(conn.Options{URL: target, Token: token})
	mgr.Open(cmd.Context())
	defer mgr.Close()

	p := tea.NewProgram(ui.NewAppView(cfg, mgr, name), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat client failed: %w", err)
	}
	return nil
}

// agentURL validates raw and, when name is set, points it at that agent. It
// returns the final URL and the agent name it addresses.
func agentURL(raw, name string) (string, string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid agent URL %q: %w", raw, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", "", fmt.Errorf("invalid agent URL %q: scheme must be ws or wss", raw)
	}
	if name != "" {
		u.Path = path.Join(path.Dir(u.Path), name)
	}
	return u.String(), path.Base(u.Path), nil
}

func runErrorModal(title, msg string) error {
	if _, err := tea.NewProgram(ui.NewErrorModal(title, msg), tea.WithAltScreen()).Run(); err != nil {
		return err
	}
	return fmt.Errorf("%s: %s", title, msg)
}
