package chat

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentApproval struct {
	id       string
	approved bool
}

type fakeSender struct {
	messages    []*Message
	toolResults map[string]json.RawMessage
	approvals   []sentApproval
	cancels     int
	clears      int
	fail        error
}

func newFakeSender() *fakeSender {
	return &fakeSender{toolResults: make(map[string]json.RawMessage)}
}

func (f *fakeSender) SendMessage(m *Message) error {
	if f.fail != nil {
		return f.fail
	}
	f.messages = append(f.messages, m)
	return nil
}

func (f *fakeSender) SendToolResult(id string, out json.RawMessage) error {
	f.toolResults[id] = out
	return nil
}

func (f *fakeSender) SendApproval(id string, approved bool) error {
	f.approvals = append(f.approvals, sentApproval{id, approved})
	return nil
}

func (f *fakeSender) Cancel() error { f.cancels++; return nil }
func (f *fakeSender) Clear() error  { f.clears++; return nil }

func openConversation() (*Conversation, *fakeSender) {
	s := newFakeSender()
	c := NewConversation(s)
	c.SetConn(ConnOpen)
	return c, s
}

func TestSendEmitsUserMessage(t *testing.T) {
	c, s := openConversation()
	c.SetDraft("what's the weather in Paris?")

	require.True(t, c.Send())
	assert.Empty(t, c.Draft())
	assert.Equal(t, StatusSubmitted, c.Status())
	require.Len(t, c.Messages(), 1)
	m := c.Messages()[0]
	assert.Equal(t, RoleUser, m.Role)
	require.Len(t, m.Parts, 1)
	assert.Equal(t, "what's the weather in Paris?", m.Text())
	assert.Equal(t, []*Message{m}, s.messages)
}

func TestSendIsNoOp(t *testing.T) {
	tests := []struct {
		name   string
		draft  string
		setup  func(c *Conversation)
		status StreamStatus
	}{
		{name: "blank draft", draft: "  \n\t", status: StatusIdle},
		{name: "while submitted", draft: "hello", setup: func(c *Conversation) { c.status = StatusSubmitted }, status: StatusSubmitted},
		{name: "while streaming", draft: "hello", setup: func(c *Conversation) { c.status = StatusStreaming }, status: StatusStreaming},
		{name: "while disconnected", draft: "hello", setup: func(c *Conversation) { c.SetConn(ConnClosed) }, status: StatusIdle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, s := openConversation()
			if tt.setup != nil {
				tt.setup(c)
			}
			c.SetDraft(tt.draft)

			assert.False(t, c.Send())
			assert.Equal(t, tt.draft, c.Draft())
			assert.Empty(t, c.Messages())
			assert.Empty(t, s.messages)
			assert.Equal(t, tt.status, c.Status())
		})
	}
}

func TestSendFailureKeepsDraft(t *testing.T) {
	c, s := openConversation()
	s.fail = errors.New("not connected")
	c.SetDraft("hello")

	assert.False(t, c.Send())
	assert.Equal(t, "hello", c.Draft())
	assert.Equal(t, StatusIdle, c.Status())
	assert.Equal(t, "not connected", c.LastError())
}

func TestEnterKey(t *testing.T) {
	c, s := openConversation()
	c.SetDraft("line one")

	assert.False(t, c.Enter(true))
	assert.Equal(t, "line one\n", c.Draft())
	assert.Empty(t, s.messages)

	c.SetDraft(c.Draft() + "line two")
	assert.True(t, c.Enter(false))
	require.Len(t, s.messages, 1)
	assert.Equal(t, "line one\nline two", s.messages[0].Text())
}

func TestStreamLifecycle(t *testing.T) {
	c, _ := openConversation()
	c.SetDraft("hi")
	require.True(t, c.Send())
	c.TakeFocus()

	require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkStart, MessageID: "a1"}))
	assert.Equal(t, StatusStreaming, c.Status())
	require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkTextDelta, MessageID: "a1", ID: "t1", Delta: "Hello"}))
	assert.False(t, c.TakeFocus())

	require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkFinish, MessageID: "a1"}))
	assert.Equal(t, StatusIdle, c.Status())
	assert.True(t, c.TakeFocus())
	assert.False(t, c.TakeFocus())
	assert.Equal(t, "Hello", c.LastAssistantText())
}

func TestStopKeepsPartialMessage(t *testing.T) {
	c, s := openConversation()
	c.SetDraft("tell me a story")
	require.True(t, c.Send())
	require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkTextDelta, MessageID: "a1", ID: "t1", Delta: "Once upon"}))

	c.Stop()
	assert.Equal(t, StatusIdle, c.Status())
	assert.Equal(t, 1, s.cancels)

	// late chunks for the stopped message are ignored
	require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkTextDelta, MessageID: "a1", ID: "t1", Offset: 9, Delta: " a time"}))
	require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkFinish, MessageID: "a1"}))
	assert.Equal(t, StatusIdle, c.Status())
	require.Len(t, c.Messages(), 2)
	assert.Equal(t, "Once upon", c.Messages()[1].Text())

	c.Stop()
	assert.Equal(t, 1, s.cancels, "stop while idle does nothing")
}

func TestStopBeforeFirstToken(t *testing.T) {
	c, _ := openConversation()
	c.SetDraft("hi")
	require.True(t, c.Send())
	c.Stop()

	require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkTextDelta, MessageID: "a1", ID: "t1", Delta: "late"}))
	assert.Len(t, c.Messages(), 1)
	assert.Equal(t, StatusIdle, c.Status())

	c.SetDraft("again")
	require.True(t, c.Send())
	require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkTextDelta, MessageID: "a2", ID: "t1", Delta: "fresh"}))
	assert.Len(t, c.Messages(), 3)
}

func TestConnectionLossEndsTurn(t *testing.T) {
	c, _ := openConversation()
	c.SetDraft("hi")
	require.True(t, c.Send())
	require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkTextDelta, MessageID: "a1", ID: "t1", Delta: "par"}))

	c.SetConn(ConnClosed)
	assert.Equal(t, StatusIdle, c.Status())
	assert.NotEmpty(t, c.LastError())
	assert.False(t, c.CanSend())
	assert.Equal(t, "par", c.Messages()[1].Text())
}

func TestClientToolResolvesLocally(t *testing.T) {
	c, s := openConversation()
	fixed := time.Date(2024, 1, 1, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	c.RegisterClientTool(TimezoneToolName, UserTimezone(func() time.Time { return fixed }))

	err := c.ApplyChunk(Chunk{Type: ChunkToolInputAvailable, MessageID: "a1", ToolCallID: "tz1", ToolName: TimezoneToolName, Input: json.RawMessage(`{}`)})
	require.NoError(t, err)

	p := c.Messages()[0].ToolPart("tz1")
	require.NotNil(t, p)
	assert.Equal(t, ToolOutputAvailable, p.State)

	var out map[string]string
	require.NoError(t, json.Unmarshal(p.Output, &out))
	assert.Equal(t, "CET", out["timezone"])
	assert.Equal(t, "+01:00", out["utcOffset"])
	assert.Equal(t, "2024-01-01T09:30:00+01:00", out["localTime"])
	assert.Empty(t, s.messages)
	assert.Equal(t, p.Output, s.toolResults["tz1"])

	// the agent's echo of the same result is harmless
	require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkToolOutputAvailable, MessageID: "a1", ToolCallID: "tz1", Output: p.Output}))
	assert.Equal(t, ToolOutputAvailable, p.State)
}

func TestServerToolIsNotInterceptedLocally(t *testing.T) {
	c, s := openConversation()
	RegisterDefaultClientTools(c)

	require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkToolInputAvailable, MessageID: "a1", ToolCallID: "c1", ToolName: "calculate"}))
	assert.Equal(t, ToolInputAvailable, c.Messages()[0].ToolPart("c1").State)
	assert.Empty(t, s.toolResults)
}

func TestRespondDenied(t *testing.T) {
	c, s := openConversation()
	require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkToolInputAvailable, MessageID: "a1", ToolCallID: "w1", ToolName: "get_weather", Input: json.RawMessage(`{"city":"Oslo"}`)}))
	require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkToolApprovalRequest, MessageID: "a1", ToolCallID: "w1", ApprovalID: "ap1"}))
	require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkFinish, MessageID: "a1"}))
	require.Len(t, c.PendingApprovals(), 1)

	require.NoError(t, c.Respond("w1", false))
	p := c.Messages()[0].ToolPart("w1")
	assert.Equal(t, ToolOutputDenied, p.State)
	assert.Nil(t, p.Output)
	assert.Equal(t, []sentApproval{{"ap1", false}}, s.approvals)
	assert.Empty(t, c.PendingApprovals())

	assert.ErrorIs(t, c.Respond("w1", true), ErrApprovalFinal)
	assert.ErrorIs(t, c.Respond("nope", true), ErrUnknownTool)
}

func TestIndependentApprovalsOutOfOrder(t *testing.T) {
	c, s := openConversation()
	for _, id := range []string{"w1", "w2"} {
		require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkToolInputAvailable, MessageID: "a1", ToolCallID: id, ToolName: "get_weather"}))
		require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkToolApprovalRequest, MessageID: "a1", ToolCallID: id, ApprovalID: "ap-" + id}))
	}

	require.NoError(t, c.Respond("w2", true))
	require.NoError(t, c.Respond("w1", false))

	m := c.Messages()[0]
	assert.Equal(t, ToolOutputDenied, m.ToolPart("w1").State)
	assert.Equal(t, ToolApprovalRequested, m.ToolPart("w2").State)
	assert.Equal(t, []sentApproval{{"ap-w2", true}, {"ap-w1", false}}, s.approvals)

	require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkToolOutputAvailable, MessageID: "a1", ToolCallID: "w2", Output: json.RawMessage(`{"ok":true}`)}))
	assert.Equal(t, ToolOutputAvailable, m.ToolPart("w2").State)
}

func TestDuplicateToolCallIDRejected(t *testing.T) {
	c, _ := openConversation()
	require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkToolInputAvailable, MessageID: "a1", ToolCallID: "c1", ToolName: "calculate"}))
	require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkFinish, MessageID: "a1"}))

	err := c.ApplyChunk(Chunk{Type: ChunkToolInputAvailable, MessageID: "a2", ToolCallID: "c1", ToolName: "calculate"})
	assert.ErrorIs(t, err, ErrDuplicateToolCall)
	require.Len(t, c.Messages(), 1)
	assert.Equal(t, StatusIdle, c.Status())
}

func TestUnknownChunkChangesNothing(t *testing.T) {
	c, _ := openConversation()
	c.SetDraft("hi")
	require.True(t, c.Send())

	err := c.ApplyChunk(Chunk{Type: "source-url", MessageID: "a9"})
	assert.ErrorIs(t, err, ErrUnknownChunk)
	assert.Len(t, c.Messages(), 1)
	assert.Equal(t, StatusSubmitted, c.Status())

	err = c.ApplyChunk(Chunk{Type: ChunkTextDelta, MessageID: "a9", ID: "t1", Offset: 4, Delta: "gap"})
	assert.ErrorIs(t, err, ErrDeltaGap)
	assert.Len(t, c.Messages(), 1)
	assert.Equal(t, StatusSubmitted, c.Status())

	require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkTextDelta, MessageID: "a9", ID: "t1", Delta: "ok"}))
	assert.Equal(t, StatusStreaming, c.Status())
	err = c.ApplyChunk(Chunk{Type: ChunkToolOutputAvailable, MessageID: "a9", ToolCallID: "missing"})
	assert.ErrorIs(t, err, ErrUnknownTool)
	assert.Equal(t, StatusStreaming, c.Status())
}

func TestRejectRestoresDraft(t *testing.T) {
	c, _ := openConversation()
	assert.False(t, c.Reject("busy"))

	c.SetDraft("book a table")
	require.True(t, c.Send())
	c.TakeFocus()
	c.SetDraft("for two")

	require.True(t, c.Reject("agent is busy"))
	assert.Empty(t, c.Messages())
	assert.Equal(t, StatusIdle, c.Status())
	assert.Equal(t, "book a table\nfor two", c.Draft())
	assert.Equal(t, "agent is busy", c.LastError())
	assert.True(t, c.TakeFocus())
	assert.True(t, c.CanSend())

	require.True(t, c.Send())
	require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkStart, MessageID: "a1"}))
	assert.False(t, c.Reject("late"), "a reply already started")
	assert.Len(t, c.Messages(), 2)
}

func TestRespondAfterMessageReplaced(t *testing.T) {
	c, _ := openConversation()
	require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkToolInputAvailable, MessageID: "a1", ToolCallID: "w1", ToolName: "get_weather"}))
	require.NoError(t, c.ApplyChunk(Chunk{Type: ChunkToolApprovalRequest, MessageID: "a1", ToolCallID: "w1", ApprovalID: "ap1"}))

	c.AddMessage(&Message{ID: "a1", Role: RoleAssistant, Parts: []Part{&TextPart{ID: "t1", Text: "replaced"}}})
	assert.ErrorIs(t, c.Respond("w1", true), ErrUnknownTool)
}

func TestLoadHistoryAndClear(t *testing.T) {
	c, s := openConversation()
	hist := []*Message{NewUserMessage("hi"), Reduce("a1", RoleAssistant, turnChunks())}
	c.LoadHistory(hist)
	assert.Len(t, c.Messages(), 2)

	err := c.ApplyChunk(Chunk{Type: ChunkToolInputStart, MessageID: "a2", ToolCallID: "c1", ToolName: "get_weather"})
	assert.ErrorIs(t, err, ErrDuplicateToolCall)

	require.NoError(t, c.Clear())
	assert.Empty(t, c.Messages())
	assert.Equal(t, 1, s.clears)
}

func TestAddMessageReplaces(t *testing.T) {
	c, _ := openConversation()
	m := NewUserMessage("first")
	c.AddMessage(m)
	edited := m.Clone()
	edited.Parts[0].(*TextPart).Text = "second"
	c.AddMessage(edited)

	require.Len(t, c.Messages(), 1)
	assert.Equal(t, "second", c.Messages()[0].Text())
	assert.Equal(t, "first", m.Text())
}
