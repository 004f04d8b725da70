package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig configures `agentchat serve`.
type ServerConfig struct {
	Listen            string `toml:"listen"`
	AccessTokenHash   string `toml:"access_token_hash"`
	MaxSteps          int    `toml:"max_steps"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
	ApprovalTimeout   string `toml:"approval_timeout"`
	SystemPrompt      string `toml:"system_prompt"`
}

// ProviderConfig selects the LLM backend used by the agent.
type ProviderConfig struct {
	Type    string `toml:"type"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
}

// ClientConfig configures `agentchat chat`.
type ClientConfig struct {
	URL         string `toml:"url"`
	AccessToken string `toml:"access_token"`
}

type Config struct {
	DataDirectory string            `toml:"data_directory"`
	Server        ServerConfig      `toml:"server"`
	Provider      ProviderConfig    `toml:"provider"`
	Client        ClientConfig      `toml:"client"`
	KeyBindings   KeyBindingsConfig `toml:"keybindings"`
}

var Debug = false
var DebugLog *log.Logger

// EnvFiles are read, in order, before environment overrides are applied.
// Variables already set in the environment win.
var EnvFiles = []string{".dev.vars", ".env"}

var apiKeyEnv = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
}

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// APIKey returns the provider key from the config file or, failing that,
// from the provider's conventional environment variable.
func (c *Config) APIKey() string {
	if c.Provider.APIKey != "" {
		return c.Provider.APIKey
	}
	if name, ok := apiKeyEnv[c.Provider.Type]; ok {
		return os.Getenv(name)
	}
	return ""
}

// NeedsAPIKey reports whether the configured provider requires a key.
func (c *Config) NeedsAPIKey() bool {
	_, ok := apiKeyEnv[c.Provider.Type]
	return ok
}

// ApprovalTimeout is how long a tool approval may stay unanswered before the
// agent denies it. Zero disables the timeout.
func (c *Config) ApprovalTimeout() time.Duration {
	if c.Server.ApprovalTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Server.ApprovalTimeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.Server.ApprovalTimeout); c.Server.ApprovalTimeout != "" && err != nil {
		return fmt.Errorf("invalid approval_timeout %q: %w", c.Server.ApprovalTimeout, err)
	}
	if c.Server.MaxSteps < 1 {
		return fmt.Errorf("max_steps must be at least 1, got %d", c.Server.MaxSteps)
	}
	if c.Server.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative")
	}
	switch c.Provider.Type {
	case "ollama", "openai", "openrouter", "anthropic":
	default:
		return fmt.Errorf("unknown provider type %q", c.Provider.Type)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AGENTCHAT_DATA_DIR"); v != "" {
		c.DataDirectory = v
	}
	if v := os.Getenv("AGENTCHAT_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("AGENTCHAT_PROVIDER"); v != "" {
		c.Provider.Type = v
	}
	if v := os.Getenv("AGENTCHAT_MODEL"); v != "" {
		c.Provider.Model = v
	}
	if v := os.Getenv("AGENTCHAT_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("AGENTCHAT_URL"); v != "" {
		c.Client.URL = v
	}
	if v := os.Getenv("AGENTCHAT_ACCESS_TOKEN"); v != "" {
		c.Client.AccessToken = v
	}
	if v := os.Getenv("AGENTCHAT_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.MaxSteps = n
		}
	}
}

// LoadEnvFiles loads the given dotenv files, skipping missing ones.
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func CheckDebug() bool {
	debug := os.Getenv("AGENTCHAT_DEBUG")
	return debug == "true" || debug == "1"
}

// InitDebugLog opens <dataDir>/debug.log when AGENTCHAT_DEBUG is set.
func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	logPath := filepath.Join(dataDir, "debug.log")
	// 0600: debug output may include message content
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	Debug = true
	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (AGENTCHAT_DEBUG=%s) ===", os.Getenv("AGENTCHAT_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

// InitServerLog sends the log to w. The server always logs; the debug flag
// only adds file and line information.
func InitServerLog(w io.Writer) {
	flags := log.Ldate | log.Ltime
	if CheckDebug() {
		Debug = true
		flags |= log.Lmicroseconds | log.Lshortfile
	}
	DebugLog = log.New(w, "", flags)
}

// Load reads the config file at path (the default location when empty),
// creating it from the template on first run, then applies dotenv files and
// environment overrides.
func Load(path string) (*Config, error) {
	if err := LoadEnvFiles(EnvFiles...); err != nil {
		return nil, err
	}
	if path == "" {
		path = GetSettingsFilePath()
	}

	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	dataDir := cfg.DataDir()
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}
	return cfg, nil
}
