package ui

import (
	"fmt"
	"regexp"
	"strings"

	markdown "github.com/MichaelMure/go-term-markdown"
	"github.com/charmbracelet/lipgloss"
	gomarkdown "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/parser"
	"github.com/mattn/go-runewidth"

	"agentchat/chat"
)

var (
	inlineCodeRegex = regexp.MustCompile(`(?s)\x1b\[44;3m(.*?)\x1b\[0m`)
	mdLinkRegex     = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\)]+)\)`)
	urlRegex        = regexp.MustCompile(`(https?://[^\s]+)`)
)

const (
	codeGutter = "┃"
	cursor     = "▋"
)

// updateViewportContent re-renders the conversation. The view follows new
// content only when it was already at the bottom.
func (a *AppView) updateViewportContent() {
	if !a.ready {
		return
	}
	follow := a.viewport.AtBottom()
	msgs := a.conv.Messages()
	if len(msgs) == 0 {
		a.viewport.SetContent(DimStyle.Render("No messages yet. Start chatting!"))
		return
	}

	var content strings.Builder
	for _, ml := range chat.Layout(msgs, a.conv.Status()) {
		if ml.Message.Role == chat.RoleUser {
			content.WriteString(a.renderUserMessage(ml))
		} else {
			content.WriteString(a.renderAssistantMessage(ml))
		}
	}
	if a.conv.Status() == chat.StatusSubmitted {
		content.WriteString(a.spinner.View() + DimStyle.Render(" Waiting for response...") + "\n")
	}

	a.viewport.SetContent(content.String())
	if follow {
		a.viewport.GotoBottom()
	}
}

func (a *AppView) renderUserMessage(ml chat.MessageLayout) string {
	header := DimStyle.Render(ml.Message.CreatedAt.Local().Format("[15:04]")) + " " + UserStyle.Render("You")
	right := lipgloss.NewStyle().Width(a.width).Align(lipgloss.Right)

	var b strings.Builder
	b.WriteString(right.Render(header) + "\n")
	for _, block := range ml.Blocks {
		if block.Kind != chat.BlockText {
			continue
		}
		text := lipgloss.NewStyle().MaxWidth(a.width * 3 / 4).Render(block.Text)
		b.WriteString(right.Render(UserStyle.Render(text)) + "\n")
	}
	b.WriteString("\n")
	return b.String()
}

func (a *AppView) renderAssistantMessage(ml chat.MessageLayout) string {
	var b strings.Builder
	b.WriteString(DimStyle.Render(ml.Message.CreatedAt.Local().Format("[15:04]")) + " " + AssistantStyle.Render("Assistant") + "\n")

	for _, block := range ml.Blocks {
		switch block.Kind {
		case chat.BlockTool:
			b.WriteString(a.renderToolBlock(block))
		case chat.BlockReasoning:
			if block.Collapsed {
				b.WriteString(DimStyle.Render("▸ Reasoning") + "\n")
				continue
			}
			b.WriteString(DimStyle.Render("▾ Reasoning") + "\n")
			b.WriteString(DimStyle.Render(indent(runewidth.Wrap(block.Text, a.width-4), "  ")) + "\n")
		case chat.BlockText:
			if block.Animating {
				b.WriteString(runewidth.Wrap(block.Text, a.width-2) + cursor + "\n")
				continue
			}
			b.WriteString(a.renderMarkdown(block.Text) + "\n")
		}
	}
	b.WriteString("\n")
	return b.String()
}

func (a *AppView) renderToolBlock(block chat.Block) string {
	var b strings.Builder
	p := block.Tool
	switch {
	case block.Running:
		b.WriteString(fmt.Sprintf("%s %s\n", a.spinner.View(), ToolStyle.Render(block.Label)))
	case p.State == chat.ToolApprovalRequested:
		b.WriteString(ApprovalStyle.Render("? "+block.Label) + "\n")
	case p.State == chat.ToolOutputDenied:
		b.WriteString(ErrorStyle.Render("✕ "+block.Label) + "\n")
	default:
		b.WriteString(ToolStyle.Render("✓ "+block.Label) + "\n")
	}
	if block.Text != "" {
		b.WriteString(DimStyle.Render(indent(block.Text, "  │ ")) + "\n")
	}
	if p.State == chat.ToolApprovalRequested && !p.Approval.Decided() {
		kb := a.cfg.KeyBindings
		b.WriteString(fmt.Sprintf("  %s approve (%s)   %s deny (%s)\n",
			UserStyle.Render("[y]"), kb.DisplayActionKey("approve"),
			ErrorStyle.Render("[n]"), kb.DisplayActionKey("deny")))
	}
	return b.String()
}

// renderMarkdown renders finished assistant text. Results are cached per
// width since history is re-rendered on every update.
func (a *AppView) renderMarkdown(content string) string {
	key := fmt.Sprintf("%d:%s", a.width, content)
	if cached, ok := a.mdCache[key]; ok {
		return cached
	}

	// Autolink stays off so URLs remain plain text the terminal can detect.
	p := parser.NewWithExtensions(markdown.Extensions() &^ parser.Autolink)
	doc := p.Parse([]byte(mdLinkRegex.ReplaceAllString(content, "$2")))
	rendered := string(gomarkdown.Render(doc, markdown.NewRenderer(a.width-4, 0)))
	rendered = strings.TrimRight(postProcessMarkdown(rendered, a.width), "\n")

	a.mdCache[key] = rendered
	return rendered
}

func postProcessMarkdown(rendered string, width int) string {
	rendered = inlineCodeRegex.ReplaceAllString(rendered, "\x1b[31m$1\x1b[0m")
	rendered = colorURLs(rendered)
	return frameCodeBlocks(rendered, width)
}

// colorURLs paints plain URLs red outside code blocks.
func colorURLs(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if !strings.Contains(line, codeGutter) {
			lines[i] = urlRegex.ReplaceAllString(line, "\x1b[31m$1\x1b[0m")
		}
	}
	return strings.Join(lines, "\n")
}

// frameCodeBlocks replaces the renderer's gutter on code lines with a
// labelled rule above and below the block.
func frameCodeBlocks(s string, width int) string {
	const darkGray, reset = "\x1b[90m", "\x1b[0m"
	ruleLen := max(width-4, 8)
	rule := func(label string) string {
		left := (ruleLen - len(label)) / 2
		return darkGray + strings.Repeat("━", left) + reset + label +
			darkGray + strings.Repeat("━", ruleLen-len(label)-left) + reset
	}

	var out []string
	inCode := false
	for _, line := range strings.Split(s, "\n") {
		isCode := strings.Contains(line, codeGutter)
		switch {
		case isCode && !inCode:
			out = append(out, "", rule("[code]"), "")
		case !isCode && inCode:
			out = append(out, "", rule(""), "")
		}
		inCode = isCode
		if isCode {
			line = stripGutter(line)
		}
		out = append(out, line)
	}
	if inCode {
		out = append(out, "", rule(""), "")
	}
	return strings.Join(out, "\n")
}

func stripGutter(line string) string {
	idx := strings.Index(line, codeGutter)
	if idx < 0 {
		return line
	}
	return strings.TrimPrefix(line[idx+len(codeGutter):], " ")
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}
