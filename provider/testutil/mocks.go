package testutil

import (
	"context"
	"errors"
	"sync"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"agentchat/model"
	"agentchat/ollama"
)

// ErrScriptExhausted is returned when a scripted provider is called more
// times than it has turns.
var ErrScriptExhausted = errors.New("mock provider: no scripted turn left")

// Turn is one scripted model reply: deltas are streamed in order, then Err
// (if any) is returned. Block makes the turn wait for ctx cancellation after
// streaming, simulating a model that never finishes.
type Turn struct {
	Deltas []model.Delta
	Err    error
	Block  bool
}

// Call records the arguments of one Chat invocation.
type Call struct {
	Messages []model.Message
	Tools    []mcptypes.Tool
}

// MockProvider implements model.Provider for testing
type MockProvider struct {
	ChatFunc       func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error
	ListModelsFunc func(ctx context.Context) ([]ollama.ModelInfo, error)
	PingFunc       func(ctx context.Context) error

	mu           sync.Mutex
	currentModel string
	script       []Turn
	calls        []Call
}

// NewMockProvider creates a mock provider with default implementations
func NewMockProvider(modelName string) *MockProvider {
	mock := &MockProvider{currentModel: modelName}
	mock.ChatFunc = mock.defaultChat
	mock.ListModelsFunc = mock.defaultListModels
	mock.PingFunc = func(ctx context.Context) error { return nil }
	return mock
}

// NewScriptedProvider returns a mock that plays turns in order, one per Chat
// call.
func NewScriptedProvider(turns ...Turn) *MockProvider {
	mock := NewMockProvider("scripted-model")
	mock.script = turns
	mock.ChatFunc = mock.scriptedChat
	return mock
}

func (m *MockProvider) defaultChat(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	if len(messages) == 0 {
		return nil
	}
	if len(tools) > 0 {
		return callback(model.Delta{Text: "Mock response with tools"})
	}
	return callback(model.Delta{Text: "Mock response"})
}

func (m *MockProvider) scriptedChat(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	m.mu.Lock()
	if len(m.script) == 0 {
		m.mu.Unlock()
		return ErrScriptExhausted
	}
	turn := m.script[0]
	m.script = m.script[1:]
	m.mu.Unlock()

	for _, d := range turn.Deltas {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := callback(d); err != nil {
			return err
		}
	}
	if turn.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	return turn.Err
}

func (m *MockProvider) defaultListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return []ollama.ModelInfo{
		{Name: "mock-model-1", Size: 1000},
		{Name: "mock-model-2", Size: 2000},
	}, nil
}

func (m *MockProvider) Chat(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	m.mu.Lock()
	m.calls = append(m.calls, Call{
		Messages: append([]model.Message(nil), messages...),
		Tools:    tools,
	})
	m.mu.Unlock()
	return m.ChatFunc(ctx, messages, tools, callback)
}

// Calls returns every Chat invocation so far.
func (m *MockProvider) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Remaining is the number of scripted turns not yet played.
func (m *MockProvider) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.script)
}

func (m *MockProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return m.ListModelsFunc(ctx)
}

func (m *MockProvider) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentModel
}

func (m *MockProvider) GetDisplayName() string {
	return m.GetModel()
}

func (m *MockProvider) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentModel = model
}

func (m *MockProvider) Ping(ctx context.Context) error {
	return m.PingFunc(ctx)
}
