package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type BlockKind int

const (
	BlockTool BlockKind = iota
	BlockReasoning
	BlockText
)

type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// Block is one renderable unit of a message, already ordered and styled by
// the layout rules. Renderers only decide how a block looks on screen.
type Block struct {
	Kind      BlockKind
	Text      string
	Align     Align
	Markdown  bool
	Animating bool
	Collapsed bool
	Tool      *ToolPart
	Label     string
	Running   bool
}

// MessageLayout pairs a message with its blocks.
type MessageLayout struct {
	Message *Message
	Blocks  []Block
}

// Layout orders every message's parts into blocks: tool calls first, then
// reasoning, then text, regardless of the order the parts arrived in.
func Layout(msgs []*Message, status StreamStatus) []MessageLayout {
	latest := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAssistant {
			latest = i
			break
		}
	}
	out := make([]MessageLayout, 0, len(msgs))
	for i, m := range msgs {
		out = append(out, MessageLayout{
			Message: m,
			Blocks:  layoutMessage(m, status, i == latest && status == StatusStreaming),
		})
	}
	return out
}

func layoutMessage(m *Message, status StreamStatus, animating bool) []Block {
	var tools, reasoning, text []Block
	for _, p := range m.Parts {
		switch p := p.(type) {
		case *ToolPart:
			tools = append(tools, toolBlock(p))
		case *ReasoningPart:
			if strings.TrimSpace(p.Text) == "" {
				continue
			}
			reasoning = append(reasoning, Block{
				Kind:      BlockReasoning,
				Text:      p.Text,
				Collapsed: p.State == ReasoningDone || status != StatusStreaming,
			})
		case *TextPart:
			b := Block{Kind: BlockText, Text: p.Text, Animating: animating}
			if m.Role == RoleUser {
				b.Align = AlignRight
			} else {
				b.Markdown = true
			}
			text = append(text, b)
		default:
			panic(fmt.Sprintf("chat: unhandled part %T", p))
		}
	}
	blocks := make([]Block, 0, len(tools)+len(reasoning)+len(text))
	blocks = append(blocks, tools...)
	blocks = append(blocks, reasoning...)
	return append(blocks, text...)
}

func toolBlock(p *ToolPart) Block {
	b := Block{Kind: BlockTool, Tool: p}
	switch p.State {
	case ToolInputStreaming, ToolInputAvailable:
		b.Label = fmt.Sprintf("Running %s…", p.ToolName)
		b.Running = true
	case ToolApprovalRequested:
		if p.Approval.Decided() {
			b.Label = fmt.Sprintf("Running %s…", p.ToolName)
			b.Running = true
		} else {
			b.Label = fmt.Sprintf("%s needs your approval", p.ToolName)
		}
		b.Text = prettyJSON(p.Input)
	case ToolOutputAvailable:
		b.Label = fmt.Sprintf("%s result", p.ToolName)
		b.Text = prettyJSON(p.Output)
	case ToolOutputDenied:
		b.Label = fmt.Sprintf("%s denied", p.ToolName)
	}
	return b
}

func prettyJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
