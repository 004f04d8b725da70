package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

func (a AppView) renderHelpModal(width, height int) string {
	kb := a.cfg.KeyBindings
	line := func(action, desc string) string {
		return fmt.Sprintf("• %-13s %s", kb.DisplayActionKey(action), desc)
	}

	title := lipgloss.NewStyle().Bold(true).Foreground(successColor).Render("agentchat - Keyboard Shortcuts")
	heading := lipgloss.NewStyle().Foreground(accentColor)

	chatActions := lipgloss.JoinVertical(
		lipgloss.Left,
		heading.Render("## Chat"),
		"• Enter         Send message",
		"• Alt+Enter     New line",
		line("stop", "Stop response"),
		line("yank_last_response", "Copy last response"),
		line("clear_history", "Clear history"),
		line("clear_input", "Clear input"),
		line("help", "Toggle this help"),
		line("quit", "Quit"),
	)

	approvals := lipgloss.JoinVertical(
		lipgloss.Left,
		heading.Render("## Tool approvals"),
		"• y / n         Approve / deny (empty input)",
		line("approve", "Approve oldest request"),
		line("deny", "Deny oldest request"),
	)

	navigation := lipgloss.JoinVertical(
		lipgloss.Left,
		heading.Render("## Navigation"),
		line("scroll_down", "Scroll down 1 line"),
		line("scroll_up", "Scroll up 1 line"),
		line("half_page_down", "Half page down"),
		line("half_page_up", "Half page up"),
		line("page_down", "Full page down"),
		line("page_up", "Full page up"),
		line("scroll_to_top", "Jump to top"),
		line("scroll_to_bottom", "Jump to bottom"),
	)

	column := lipgloss.NewStyle().Width(44).PaddingLeft(4)
	columns := lipgloss.JoinHorizontal(
		lipgloss.Top,
		column.Render(lipgloss.JoinVertical(lipgloss.Left, chatActions, "", approvals)),
		column.Render(navigation),
	)

	footer := DimStyle.Render(fmt.Sprintf("Press %s or Esc to close this help", kb.DisplayActionKey("help")))
	content := lipgloss.JoinVertical(lipgloss.Center, title, "", columns, "", footer)

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("8")).
		Padding(1, 2)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box.Render(content))
}
