package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ModalType selects the title color of a modal.
type ModalType int

const (
	ModalTypeInfo ModalType = iota
	ModalTypeWarning
	ModalTypeError
)

// RenderAcknowledgeModal renders a borderless three-section modal that is
// dismissed with Enter.
func RenderAcknowledgeModal(title, message string, modalType ModalType, width, height int) string {
	return renderModal(title, message, "Press Enter to acknowledge", modalType, width, height)
}

func renderModal(title, message, footer string, modalType ModalType, width, height int) string {
	modalWidth := 60
	if width < modalWidth+10 {
		modalWidth = max(width-10, 10)
	}

	titleColor := accentColor
	switch modalType {
	case ModalTypeWarning:
		titleColor = warningColor
	case ModalTypeError:
		titleColor = dangerColor
	}

	titleSection := lipgloss.NewStyle().
		Bold(true).
		Foreground(titleColor).
		Align(lipgloss.Center).
		Width(modalWidth).
		Render(title)

	blank := strings.Repeat(" ", modalWidth)
	body := lipgloss.NewStyle().Width(modalWidth).Align(lipgloss.Center)
	lines := []string{blank}
	for _, line := range strings.Split(message, "\n") {
		lines = append(lines, body.Render(line))
	}
	lines = append(lines, blank)

	section := lipgloss.NewStyle().
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimColor)

	messageSection := section.Render(strings.Join(lines, "\n"))
	footerSection := section.
		Foreground(dimColor).
		Align(lipgloss.Center).
		Width(modalWidth).
		Render(footer)

	content := strings.Join([]string{titleSection, messageSection, footerSection}, "\n")
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}
