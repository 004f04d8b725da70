package config

func DefaultConfig() *Config {
	return &Config{
		DataDirectory: GetDefaultDataDir(),
		Server: ServerConfig{
			Listen:            "127.0.0.1:8787",
			MaxSteps:          10,
			RequestsPerMinute: 30,
		},
		Provider: ProviderConfig{
			Type:  "openai",
			Model: "gpt-4o-mini",
		},
		Client: ClientConfig{
			URL: "ws://127.0.0.1:8787/agents/chat/default",
		},
		KeyBindings: *DefaultKeybindings(),
	}
}

func GenerateConfigTemplate() string {
	return `# agentchat configuration
# Location: ~/.config/agentchat/config.toml
# This file uses TOML format: https://toml.io
#
# Provider API keys are read from the environment (OPENAI_API_KEY,
# OPENROUTER_API_KEY, ANTHROPIC_API_KEY). A .dev.vars or .env file in the
# working directory is loaded first.

# Conversation history and schedules are stored here
data_directory = "~/.local/share/agentchat"

[server]
listen = "127.0.0.1:8787"

# bcrypt hash of a shared access token (see: agentchat hash-token)
# Leave empty to accept any client.
access_token_hash = ""

# Model calls per user turn, counting continuations after tool calls
max_steps = 10

# chat requests per minute per connection (0 = unlimited)
requests_per_minute = 30

# Deny unanswered tool approvals after this long, e.g. "10m" (empty = never)
approval_timeout = ""

# Replaces the built-in system prompt when set
system_prompt = ""

[provider]
# ollama | openai | openrouter | anthropic
type = "openai"
model = "gpt-4o-mini"
base_url = ""

[client]
url = "ws://127.0.0.1:8787/agents/chat/default"
access_token = ""

[keybindings.modifiers]
primary = "alt"          # alt, ctrl, meta, super
secondary = "alt+shift"

[keybindings.actions]
# Per-action overrides, e.g.:
#   quit = "ctrl+q"
#   yank_last_response = "ctrl+y"
`
}
