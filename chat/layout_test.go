package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutOrdersByKind(t *testing.T) {
	m := &Message{ID: "a1", Role: RoleAssistant, Parts: []Part{
		&TextPart{ID: "t1", Text: "Here you go"},
		&ReasoningPart{ID: "r1", Text: "thinking", State: ReasoningDone},
		&ToolPart{ToolCallID: "c1", ToolName: "calculate", State: ToolOutputAvailable, Output: json.RawMessage(`{"result":4}`)},
	}}

	blocks := Layout([]*Message{m}, StatusIdle)[0].Blocks
	require.Len(t, blocks, 3)
	assert.Equal(t, BlockTool, blocks[0].Kind)
	assert.Equal(t, BlockReasoning, blocks[1].Kind)
	assert.Equal(t, BlockText, blocks[2].Kind)
	assert.Equal(t, "{\n  \"result\": 4\n}", blocks[0].Text)
}

func TestLayoutToolLabels(t *testing.T) {
	yes := true
	tests := []struct {
		name    string
		part    *ToolPart
		label   string
		running bool
	}{
		{"streaming", &ToolPart{ToolName: "calculate", State: ToolInputStreaming}, "Running calculate…", true},
		{"available", &ToolPart{ToolName: "calculate", State: ToolInputAvailable}, "Running calculate…", true},
		{"awaiting approval", &ToolPart{ToolName: "get_weather", State: ToolApprovalRequested, Approval: &Approval{ID: "a"}}, "get_weather needs your approval", false},
		{"approved", &ToolPart{ToolName: "get_weather", State: ToolApprovalRequested, Approval: &Approval{ID: "a", Approved: &yes}}, "Running get_weather…", true},
		{"output", &ToolPart{ToolName: "calculate", State: ToolOutputAvailable}, "calculate result", false},
		{"denied", &ToolPart{ToolName: "get_weather", State: ToolOutputDenied}, "get_weather denied", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := toolBlock(tt.part)
			assert.Equal(t, tt.label, b.Label)
			assert.Equal(t, tt.running, b.Running)
		})
	}
}

func TestLayoutReasoning(t *testing.T) {
	streaming := &ReasoningPart{ID: "r1", Text: "step one", State: ReasoningStreaming}
	blank := &ReasoningPart{ID: "r2", Text: "  \n ", State: ReasoningStreaming}
	m := &Message{ID: "a1", Role: RoleAssistant, Parts: []Part{streaming, blank}}

	blocks := Layout([]*Message{m}, StatusStreaming)[0].Blocks
	require.Len(t, blocks, 1, "whitespace-only reasoning is suppressed")
	assert.False(t, blocks[0].Collapsed)

	blocks = Layout([]*Message{m}, StatusIdle)[0].Blocks
	assert.True(t, blocks[0].Collapsed, "collapsed once streaming ends")

	streaming.State = ReasoningDone
	blocks = Layout([]*Message{m}, StatusStreaming)[0].Blocks
	assert.True(t, blocks[0].Collapsed, "collapsed once done")
}

func TestLayoutTextAlignmentAndAnimation(t *testing.T) {
	user := NewUserMessage("hi")
	older := &Message{ID: "a1", Role: RoleAssistant, Parts: []Part{&TextPart{ID: "t", Text: "first"}}}
	latest := &Message{ID: "a2", Role: RoleAssistant, Parts: []Part{&TextPart{ID: "t", Text: "second"}}}
	msgs := []*Message{user, older, NewUserMessage("more"), latest}

	layout := Layout(msgs, StatusStreaming)
	u := layout[0].Blocks[0]
	assert.Equal(t, AlignRight, u.Align)
	assert.False(t, u.Markdown)
	assert.False(t, layout[1].Blocks[0].Animating)
	assert.True(t, layout[1].Blocks[0].Markdown)
	assert.Equal(t, AlignLeft, layout[3].Blocks[0].Align)
	assert.True(t, layout[3].Blocks[0].Animating)

	layout = Layout(msgs, StatusSubmitted)
	assert.False(t, layout[3].Blocks[0].Animating)
}

func TestMessageJSON(t *testing.T) {
	no := false
	m := &Message{ID: "a1", Role: RoleAssistant, Parts: []Part{
		&ReasoningPart{ID: "r1", Text: "hm", State: ReasoningDone},
		&ToolPart{ToolCallID: "c1", ToolName: "get_weather", State: ToolOutputDenied, Approval: &Approval{ID: "ap", Approved: &no}},
		&TextPart{ID: "t1", Text: "ok"},
	}}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `{"type":"tool-call","toolCallId":"c1"`)

	var back Message
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, m.Parts, back.Parts)

	assert.Error(t, json.Unmarshal([]byte(`{"id":"x","role":"user","parts":[{"type":"image"}]}`), &back))
	assert.Error(t, json.Unmarshal([]byte(`{"id":"x","role":"robot","parts":[]}`), &back))
}
