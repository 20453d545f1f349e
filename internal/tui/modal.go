package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	modalButtonStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Background(lipgloss.Color("#3b4261")).
				Foreground(lipgloss.Color("#a9b1d6"))

	modalButtonSelectedStyle = lipgloss.NewStyle().
					Padding(0, 1).
					Background(colorBlue).
					Foreground(lipgloss.Color("#1a1b26")).
					Bold(true)
)

// Modal is a confirmation dialog.
type Modal struct {
	title           string
	message         string
	visible         bool
	confirmSelected bool
}

// NewModal creates a visible modal with the confirm button selected.
func NewModal(title, message string) Modal {
	return Modal{
		title:           title,
		message:         message,
		visible:         true,
		confirmSelected: true,
	}
}

// ToggleSelection switches the selected button.
func (m *Modal) ToggleSelection() {
	m.confirmSelected = !m.confirmSelected
}

// ConfirmSelected returns true if the confirm button is selected.
func (m Modal) ConfirmSelected() bool {
	return m.confirmSelected
}

// Visible returns whether the modal should be displayed.
func (m Modal) Visible() bool {
	return m.visible
}

// Overlay renders the modal centered on a width x height screen. When the
// modal is hidden the background is returned unchanged.
func (m Modal) Overlay(background string, width, height int) string {
	if !m.visible {
		return background
	}

	confirmStyle, cancelStyle := modalButtonStyle, modalButtonSelectedStyle
	if m.confirmSelected {
		confirmStyle, cancelStyle = modalButtonSelectedStyle, modalButtonStyle
	}

	buttons := lipgloss.JoinHorizontal(lipgloss.Center,
		confirmStyle.Render("Confirm"), "  ", cancelStyle.Render("Cancel"))

	content := lipgloss.JoinVertical(
		lipgloss.Left,
		modalTitleStyle.Render(m.title),
		"",
		m.message,
		lipgloss.NewStyle().MarginTop(1).Render(buttons),
		modalHelpStyle.Render("←/→ select  enter confirm  esc cancel"),
	)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, modalStyle.Render(content))
}
