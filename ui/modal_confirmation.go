package ui

// confirmation is a pending yes/no question; onYes runs when the user
// answers y.
type confirmation struct {
	title   string
	message string
	onYes   func(a *AppView)
}

func RenderConfirmationModal(title, message string, width, height int) string {
	return renderModal(title, message, FormatFooter("y", "Yes", "n", "No"), ModalTypeWarning, width, height)
}

func (a *AppView) confirmClearHistory() {
	a.confirm = &confirmation{
		title:   "Clear conversation?",
		message: "This deletes the history of " + a.agent + "\nfor every connected client.",
		onYes: func(a *AppView) {
			if err := a.conv.Clear(); err != nil {
				a.setNotice("%v", err)
			}
			a.updateViewportContent()
		},
	}
}

// handleConfirmKey consumes every key while a confirmation is open.
func (a *AppView) handleConfirmKey(k string) {
	switch k {
	case "y", "Y", "enter":
		c := a.confirm
		a.confirm = nil
		c.onYes(a)
	case "n", "N", "esc":
		a.confirm = nil
	}
}
