package ui

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	colorGreen  = lipgloss.Color("#22c55e")
	colorRed    = lipgloss.Color("#ef4444")
	colorYellow = lipgloss.Color("#eab308")
	colorBlue   = lipgloss.Color("#3b82f6")
	colorDim    = lipgloss.Color("#6b7280")

	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue)

	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	successStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	failedStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	linkStyle = lipgloss.NewStyle().
			Underline(true)
)

const (
	checkMark = "[OK]"
	crossMark = "[!!]"
	warnMark  = "[??]"
)
