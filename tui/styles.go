package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A0A0A0")).
			Width(10)

	resultStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#04B575"))

	disabledStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87"))

	clockStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5A5A5A"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5A5A5A")).
			Italic(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(1, 2)
)
