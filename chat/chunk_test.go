package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func turnChunks() []Chunk {
	yes := true
	return []Chunk{
		{Type: ChunkStart, MessageID: "m1"},
		{Type: ChunkReasoningDelta, MessageID: "m1", ID: "r1", Offset: 0, Delta: "The user wants "},
		{Type: ChunkReasoningDelta, MessageID: "m1", ID: "r1", Offset: 15, Delta: "the weather."},
		{Type: ChunkReasoningEnd, MessageID: "m1", ID: "r1"},
		{Type: ChunkToolInputStart, MessageID: "m1", ToolCallID: "c1", ToolName: "get_weather"},
		{Type: ChunkToolInputAvailable, MessageID: "m1", ToolCallID: "c1", ToolName: "get_weather", Input: json.RawMessage(`{"city":"Paris"}`)},
		{Type: ChunkToolApprovalRequest, MessageID: "m1", ToolCallID: "c1", ApprovalID: "a1"},
		{Type: ChunkToolApprovalResponse, MessageID: "m1", ToolCallID: "c1", Approved: &yes},
		{Type: ChunkToolOutputAvailable, MessageID: "m1", ToolCallID: "c1", Output: json.RawMessage(`{"conditions":"sunny"}`)},
		{Type: ChunkTextDelta, MessageID: "m1", ID: "t1", Offset: 0, Delta: "It is "},
		{Type: ChunkTextDelta, MessageID: "m1", ID: "t1", Offset: 6, Delta: "sunny in Paris."},
		{Type: ChunkFinish, MessageID: "m1"},
	}
}

func TestReduceBuildsMessage(t *testing.T) {
	m := Reduce("m1", RoleAssistant, turnChunks())

	require.Len(t, m.Parts, 3)
	r := m.Parts[0].(*ReasoningPart)
	assert.Equal(t, "The user wants the weather.", r.Text)
	assert.Equal(t, ReasoningDone, r.State)

	tool := m.ToolPart("c1")
	require.NotNil(t, tool)
	assert.Equal(t, ToolOutputAvailable, tool.State)
	assert.JSONEq(t, `{"city":"Paris"}`, string(tool.Input))
	assert.True(t, *tool.Approval.Approved)

	assert.Equal(t, "It is sunny in Paris.", m.Text())
}

func TestReduceIsIdempotent(t *testing.T) {
	chunks := turnChunks()
	first := Reduce("m1", RoleAssistant, chunks)
	second := Reduce("m1", RoleAssistant, chunks)
	assert.Equal(t, first, second)

	// replaying every chunk on top of the finished message changes nothing
	for _, c := range chunks {
		_ = first.Apply(c)
	}
	assert.Equal(t, second, first)
}

func TestApplyDuplicateDelta(t *testing.T) {
	m := &Message{ID: "m1", Role: RoleAssistant}
	hel := Chunk{Type: ChunkTextDelta, ID: "t1", Offset: 0, Delta: "Hel"}
	lo := Chunk{Type: ChunkTextDelta, ID: "t1", Offset: 3, Delta: "lo"}

	require.NoError(t, m.Apply(hel))
	require.NoError(t, m.Apply(lo))
	require.NoError(t, m.Apply(hel))
	require.NoError(t, m.Apply(lo))
	assert.Equal(t, "Hello", m.Text())
}

func TestApplyRejectsGap(t *testing.T) {
	m := &Message{ID: "m1", Role: RoleAssistant}
	assert.ErrorIs(t, m.Apply(Chunk{Type: ChunkTextDelta, ID: "t1", Offset: 4, Delta: "x"}), ErrDeltaGap)
	assert.Empty(t, m.Parts)

	require.NoError(t, m.Apply(Chunk{Type: ChunkTextDelta, ID: "t1", Delta: "ab"}))
	assert.ErrorIs(t, m.Apply(Chunk{Type: ChunkTextDelta, ID: "t1", Offset: 5, Delta: "x"}), ErrDeltaGap)
	assert.Equal(t, "ab", m.Text())
}

func TestApplyDropsIllegalToolTransition(t *testing.T) {
	m := &Message{ID: "m1", Role: RoleAssistant}
	assert.ErrorIs(t, m.Apply(Chunk{Type: ChunkToolOutputAvailable, ToolCallID: "c0"}), ErrUnknownTool)
	require.NoError(t, m.Apply(Chunk{Type: ChunkToolInputAvailable, ToolCallID: "c1", ToolName: "calculate", Input: json.RawMessage(`{"a":1}`)}))
	require.NoError(t, m.Apply(Chunk{Type: ChunkToolOutputDenied, ToolCallID: "c1"}))

	err := m.Apply(Chunk{Type: ChunkToolOutputAvailable, ToolCallID: "c1", Output: json.RawMessage(`{"result":2}`)})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	p := m.ToolPart("c1")
	assert.Equal(t, ToolOutputDenied, p.State)
	assert.Nil(t, p.Output)

	err = m.Apply(Chunk{Type: ChunkToolInputAvailable, ToolCallID: "c1", Input: json.RawMessage(`{"a":9}`)})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.JSONEq(t, `{"a":1}`, string(p.Input))
}

func TestApplyUnknownChunk(t *testing.T) {
	m := &Message{ID: "m1", Role: RoleAssistant}
	assert.ErrorIs(t, m.Apply(Chunk{Type: "sparkle"}), ErrUnknownChunk)
}
