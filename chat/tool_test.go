package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceForward(t *testing.T) {
	tests := []struct {
		name string
		from ToolState
		to   ToolState
		ok   bool
	}{
		{"streaming to available", ToolInputStreaming, ToolInputAvailable, true},
		{"streaming straight to output", ToolInputStreaming, ToolOutputAvailable, true},
		{"available to approval", ToolInputAvailable, ToolApprovalRequested, true},
		{"available to synthetic denial", ToolInputAvailable, ToolOutputDenied, true},
		{"same state is a no-op", ToolInputAvailable, ToolInputAvailable, true},
		{"backwards", ToolInputAvailable, ToolInputStreaming, false},
		{"out of output-available", ToolOutputAvailable, ToolOutputDenied, false},
		{"out of output-denied", ToolOutputDenied, ToolOutputAvailable, false},
		{"denied back to input", ToolOutputDenied, ToolInputAvailable, false},
		{"unknown target", ToolInputStreaming, ToolState("exploded"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &ToolPart{ToolCallID: "c1", ToolName: "calculate", State: tt.from}
			err := p.Advance(tt.to)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.to, p.State)
			} else {
				require.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tt.from, p.State)
			}
		})
	}
}

func TestTerminalStatesAreSticky(t *testing.T) {
	for _, terminal := range []ToolState{ToolOutputAvailable, ToolOutputDenied} {
		p := &ToolPart{ToolCallID: "c1", State: terminal}
		for _, to := range []ToolState{ToolInputStreaming, ToolInputAvailable, ToolApprovalRequested, ToolOutputAvailable, ToolOutputDenied} {
			if to == terminal {
				continue
			}
			assert.Error(t, p.Advance(to), "%s -> %s", terminal, to)
			assert.Equal(t, terminal, p.State)
		}
	}
}

func TestApprovalBlocksUntilDecided(t *testing.T) {
	p := &ToolPart{ToolCallID: "c1", ToolName: "get_weather", State: ToolInputAvailable}
	require.NoError(t, p.RequestApproval("a1"))

	assert.ErrorIs(t, p.Advance(ToolOutputAvailable), ErrAwaitingApproval)
	assert.ErrorIs(t, p.Advance(ToolOutputDenied), ErrAwaitingApproval)
	assert.ErrorIs(t, p.Resolve(json.RawMessage(`{}`)), ErrAwaitingApproval)

	require.NoError(t, p.Decide(true))
	assert.Equal(t, ToolApprovalRequested, p.State)
	assert.ErrorIs(t, p.Deny(), ErrInvalidTransition)

	require.NoError(t, p.Resolve(json.RawMessage(`{"temp":20}`)))
	assert.Equal(t, ToolOutputAvailable, p.State)
	assert.JSONEq(t, `{"temp":20}`, string(p.Output))
}

func TestDenialResolvesWithoutOutput(t *testing.T) {
	p := &ToolPart{ToolCallID: "c1", ToolName: "get_weather", State: ToolInputAvailable, Input: json.RawMessage(`{"city":"Paris"}`)}
	require.NoError(t, p.RequestApproval("a1"))
	require.NoError(t, p.Decide(false))

	assert.Equal(t, ToolOutputDenied, p.State)
	assert.Nil(t, p.Output)
}

func TestDecisionIsImmutable(t *testing.T) {
	p := &ToolPart{ToolCallID: "c1", State: ToolInputAvailable}
	require.NoError(t, p.RequestApproval("a1"))
	require.NoError(t, p.Decide(false))

	assert.NoError(t, p.Decide(false), "repeating the same decision is harmless")
	assert.ErrorIs(t, p.Decide(true), ErrApprovalFinal)
	assert.False(t, *p.Approval.Approved)
}

func TestDecideWithoutApproval(t *testing.T) {
	p := &ToolPart{ToolCallID: "c1", State: ToolInputAvailable}
	assert.ErrorIs(t, p.Decide(true), ErrNoApproval)
}

func TestErrorOutput(t *testing.T) {
	out := ErrorOutput(assert.AnError)
	assert.JSONEq(t, `{"error":"`+assert.AnError.Error()+`"}`, string(out))
}
