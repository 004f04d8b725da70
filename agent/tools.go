package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// ToolEnv is what a tool can reach while executing.
type ToolEnv struct {
	Agent     string
	Scheduler *Scheduler
}

var errNoScheduler = errors.New("scheduling is not available")

func (e ToolEnv) scheduler() (*Scheduler, error) {
	if e.Scheduler == nil {
		return nil, errNoScheduler
	}
	return e.Scheduler, nil
}

// Tool is one callable declared to the model.
//
// NeedsApproval, when set, is consulted with the call's arguments; a true
// result pauses the turn until the user decides. A nil Execute marks a tool
// the client resolves.
type Tool struct {
	Name          string
	Description   string
	Schema        mcptypes.ToolInputSchema
	NeedsApproval func(args map[string]any) bool
	Execute       func(ctx context.Context, env ToolEnv, args map[string]any) (any, error)
}

// ClientSide reports whether the client produces this tool's output.
func (t *Tool) ClientSide() bool { return t.Execute == nil }

func (t *Tool) requiresApproval(args map[string]any) bool {
	return t.NeedsApproval != nil && t.NeedsApproval(args)
}

// Registry maps tool names to tools.
type Registry struct {
	tools map[string]*Tool
}

func NewRegistry(tools ...*Tool) *Registry {
	r := &Registry{tools: make(map[string]*Tool, len(tools))}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Declarations returns the tool schemas sent to the model, sorted by name.
func (r *Registry) Declarations() []mcptypes.Tool {
	out := make([]mcptypes.Tool, 0, len(r.tools))
	for _, name := range r.Names() {
		t := r.tools[name]
		out = append(out, mcptypes.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Schema,
		})
	}
	return out
}

// decodeArgs parses a tool call's JSON input.
func decodeArgs(input json.RawMessage) (map[string]any, error) {
	if len(input) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, fmt.Errorf("invalid tool input: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	return v, nil
}

func numberArg(args map[string]any, key string) (float64, error) {
	switch v := args[key].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	default:
		return 0, fmt.Errorf("argument %q must be a number", key)
	}
}
