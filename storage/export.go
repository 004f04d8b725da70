package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"agentchat/chat"
)

// Export is the JSON document written by ExportMessages.
type Export struct {
	Agent      string          `json:"agent"`
	ExportedAt time.Time       `json:"exportedAt"`
	Messages   []*chat.Message `json:"messages"`
}

// SanitizeFilename replaces characters that are invalid in filenames
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ', '\n', '\r', '\t':
			return '-'
		}
		return r
	}, name)
	name = strings.Trim(name, "-.")

	if len(name) > 50 {
		name = name[:50]
	}
	if name == "" {
		name = "agent"
	}
	return name
}

// GenerateExportPath returns ~/Downloads/agentchat-<agent>-<timestamp>.json
func GenerateExportPath(agent string, now time.Time) string {
	homeDir := os.Getenv("HOME")
	if homeDir == "" {
		homeDir = os.Getenv("USERPROFILE")
	}
	filename := fmt.Sprintf("agentchat-%s-%s.json", SanitizeFilename(agent), now.Format("20060102-150405"))
	return filepath.Join(homeDir, "Downloads", filename)
}

// ExportMessages writes the history of agent to exportPath as indented JSON.
func (s *Store) ExportMessages(ctx context.Context, agent, exportPath string) error {
	msgs, err := s.LoadMessages(ctx, agent)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}
	if msgs == nil {
		msgs = []*chat.Message{}
	}

	data, err := json.MarshalIndent(Export{Agent: agent, ExportedAt: time.Now().UTC(), Messages: msgs}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal export: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	// 0600: exports contain conversation content
	if err := os.WriteFile(exportPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
