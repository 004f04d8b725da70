package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"agentchat/chat"
	"agentchat/storage"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAgentURL(t *testing.T) {
	tests := []struct {
		raw, name string
		wantURL   string
		wantName  string
		wantErr   bool
	}{
		{"ws://127.0.0.1:8787/agents/chat/default", "", "ws://127.0.0.1:8787/agents/chat/default", "default", false},
		{"ws://127.0.0.1:8787/agents/chat/default", "work", "ws://127.0.0.1:8787/agents/chat/work", "work", false},
		{"wss://example.com/agents/chat/a", "b", "wss://example.com/agents/chat/b", "b", false},
		{"http://example.com/agents/chat/a", "", "", "", true},
		{"://bad", "", "", "", true},
	}
	for _, tt := range tests {
		gotURL, gotName, err := agentURL(tt.raw, tt.name)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.wantURL, gotURL)
		assert.Equal(t, tt.wantName, gotName)
	}
}

func TestHashToken(t *testing.T) {
	out, err := run(t, "", "hash-token", "s3cret")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))

	out, err = run(t, "from-stdin\n", "hash-token")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("from-stdin")))

	_, err = run(t, "\n", "hash-token")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "agentchat version "+Version+"\n", out)
}

func TestExport(t *testing.T) {
	t.Setenv("AGENTCHAT_DATA_DIR", "")
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("data_directory = \""+filepath.ToSlash(dir)+"\"\n"), 0600))

	store, err := storage.Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.SaveMessages(context.Background(), "default", []*chat.Message{chat.NewUserMessage("remember the milk")}))
	require.NoError(t, store.Close())

	target := filepath.Join(dir, "out", "export.json")
	out, err := run(t, "", "--config", cfgPath, "export", "default", "-o", target)
	require.NoError(t, err)
	assert.Contains(t, out, target)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "remember the milk")
	assert.Contains(t, string(data), `"agent": "default"`)
}

func TestExportListsAgents(t *testing.T) {
	t.Setenv("AGENTCHAT_DATA_DIR", "")
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("data_directory = \""+filepath.ToSlash(dir)+"\"\n"), 0600))

	out, err := run(t, "", "--config", cfgPath, "export")
	require.NoError(t, err)
	assert.Equal(t, "No stored agents\n", out)

	store, err := storage.Open(dir)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.SaveMessages(ctx, "work", []*chat.Message{chat.NewUserMessage("a")}))
	require.NoError(t, store.SaveMessages(ctx, "home", []*chat.Message{chat.NewUserMessage("b")}))
	require.NoError(t, store.Close())

	out, err = run(t, "", "--config", cfgPath, "export")
	require.NoError(t, err)
	assert.Equal(t, "home\nwork\n", out)
}

func TestModels(t *testing.T) {
	for _, env := range []string{"AGENTCHAT_DATA_DIR", "AGENTCHAT_PROVIDER", "AGENTCHAT_MODEL", "AGENTCHAT_BASE_URL"} {
		t.Setenv(env, "")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"models":[{"name":"llama3.1:latest","size":4900000000},{"name":"qwen3:8b","size":5200000000}]}`)
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	cfg := fmt.Sprintf("data_directory = %q\n\n[provider]\ntype = \"ollama\"\nbase_url = %q\nmodel = \"qwen3:8b\"\n", filepath.ToSlash(dir), srv.URL)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0600))

	out, err := run(t, "", "--config", cfgPath, "models")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "  llama3.1:latest"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "* qwen3:8b"), lines[1])
	assert.Contains(t, lines[1], "5.2 GB")
}

func TestUnknownCommand(t *testing.T) {
	_, err := run(t, "", "bogus")
	assert.Error(t, err)
}
