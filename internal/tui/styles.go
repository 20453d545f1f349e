// Package tui implements the Bubble Tea viewer behind `perch tail`.
package tui

import (
	"hash/fnv"

	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/perch/internal/styles"
)

var (
	colorGreen  = styles.ColorGreen
	colorYellow = styles.ColorYellow
	colorBlue   = styles.ColorBlue
	colorRed    = styles.ColorRed
	colorGray   = styles.ColorGray
	colorWhite  = styles.ColorWhite
)

// channelPalette is cycled through when coloring channel names.
var channelPalette = []lipgloss.Color{
	"#7aa2f7", // blue
	"#9ece6a", // green
	"#e0af68", // yellow
	"#bb9af7", // magenta
	"#7dcfff", // cyan
	"#ff9e64", // orange
	"#73daca", // teal
	"#f7768e", // red
}

// colorForString picks a stable palette color for s so the same channel is
// always drawn in the same color.
func colorForString(s string) lipgloss.Color {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return channelPalette[h.Sum32()%uint32(len(channelPalette))]
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue).
			PaddingLeft(1)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	payloadStyle = lipgloss.NewStyle().
			Foreground(colorWhite)

	typeStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	connectedStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	filterPromptStyle = lipgloss.NewStyle().
				Foreground(colorBlue).
				Bold(true)

	// Left accent bar on the selected row.
	selectedBorderStyle = lipgloss.NewStyle().
				Foreground(colorBlue)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			PaddingLeft(1)
)

// Preview modal styles.
var (
	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBlue).
			Padding(1, 2)

	modalTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite)

	modalHelpStyle = lipgloss.NewStyle().
			Foreground(colorGray).
			MarginTop(1)

	previewDividerStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#3b4261"))
)

const iconDot = "•"
