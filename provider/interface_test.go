package provider_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"agentchat/model"
	"agentchat/ollama"
	"agentchat/provider"
	"agentchat/provider/testutil"
)

// TestProviderContract defines the behaviour every provider must satisfy.
func TestProviderContract(t *testing.T) {
	tests := []struct {
		name     string
		provider model.Provider
	}{
		{"Mock", testutil.NewMockProvider("test-model")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Run("BasicChat", func(t *testing.T) {
				testProviderBasicChat(t, tt.provider)
			})
			t.Run("ChatWithTools", func(t *testing.T) {
				testProviderChatWithTools(t, tt.provider)
			})
			t.Run("ModelManagement", func(t *testing.T) {
				testProviderModelManagement(t, tt.provider)
			})
			t.Run("HealthCheck", func(t *testing.T) {
				testProviderHealthCheck(t, tt.provider)
			})
		})
	}
}

func testProviderBasicChat(t *testing.T, p model.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var received string
	err := p.Chat(ctx, testutil.SingleUserMessage("Hello"), nil, func(d model.Delta) error {
		received += d.Text
		return nil
	})
	if err != nil {
		t.Errorf("Chat() error = %v", err)
	}
	if received == "" {
		t.Error("Chat() did not receive any deltas")
	}
}

func testProviderChatWithTools(t *testing.T, p model.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var received string
	err := p.Chat(ctx, testutil.SingleUserMessage("What's the weather?"), testutil.TestTools(), func(d model.Delta) error {
		received += d.Text
		return nil
	})
	if err != nil {
		t.Errorf("Chat() with tools error = %v", err)
	}
	if received == "" {
		t.Error("Chat() with tools did not receive any deltas")
	}
}

func testProviderModelManagement(t *testing.T, p model.Provider) {
	if p.GetModel() == "" {
		t.Error("GetModel() returned empty string")
	}

	p.SetModel("new-test-model")
	if got := p.GetModel(); got != "new-test-model" {
		t.Errorf("After SetModel, GetModel() = %s, want new-test-model", got)
	}
}

func testProviderHealthCheck(t *testing.T, p model.Provider) {
	if err := provider.PingProvider(context.Background(), p); err != nil {
		t.Errorf("PingProvider() error = %v", err)
	}
}

func TestPingProviderWrapsFailure(t *testing.T) {
	boom := errors.New("401 unauthorized")
	p := testutil.NewMockProvider("m")
	p.PingFunc = func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("ping context has no deadline")
		}
		return boom
	}

	err := provider.PingProvider(context.Background(), p)
	if !errors.Is(err, boom) {
		t.Errorf("PingProvider() = %v, want wrapped %v", err, boom)
	}
}

func TestScriptedProvider(t *testing.T) {
	p := testutil.NewScriptedProvider(
		testutil.TextTurn("Hel", "lo"),
		testutil.ToolTurn("call_1", "calculate", map[string]any{"a": 1.0}),
	)

	var text string
	if err := p.Chat(context.Background(), nil, nil, func(d model.Delta) error {
		text += d.Text
		return nil
	}); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if text != "Hello" {
		t.Errorf("text = %q", text)
	}

	var calls []model.ToolCall
	if err := p.Chat(context.Background(), nil, nil, func(d model.Delta) error {
		calls = append(calls, d.ToolCalls...)
		return nil
	}); err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if len(calls) != 1 || calls[0].ID != "call_1" {
		t.Errorf("calls = %+v", calls)
	}

	err := p.Chat(context.Background(), nil, nil, func(model.Delta) error { return nil })
	if !errors.Is(err, testutil.ErrScriptExhausted) {
		t.Errorf("third turn error = %v, want ErrScriptExhausted", err)
	}
	if len(p.Calls()) != 3 {
		t.Errorf("recorded %d calls, want 3", len(p.Calls()))
	}
}

func TestMockProviderImplementsInterface(t *testing.T) {
	var _ model.Provider = (*testutil.MockProvider)(nil)
}

func TestCheckModel(t *testing.T) {
	p := testutil.NewMockProvider("mock-model-2")
	ok, err := provider.CheckModel(context.Background(), p)
	if err != nil || !ok {
		t.Fatalf("CheckModel(mock-model-2) = %v, %v; want true, nil", ok, err)
	}

	p.SetModel("missing")
	ok, err = provider.CheckModel(context.Background(), p)
	if err != nil || ok {
		t.Errorf("CheckModel(missing) = %v, %v; want false, nil", ok, err)
	}

	p.ListModelsFunc = func(ctx context.Context) ([]ollama.ModelInfo, error) {
		return nil, errors.New("unauthorized")
	}
	if _, err := provider.CheckModel(context.Background(), p); err == nil {
		t.Error("expected error when listing fails")
	}
}
