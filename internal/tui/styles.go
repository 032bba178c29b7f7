package tui

import "github.com/charmbracelet/lipgloss"

var Styles = struct {
	Title lipgloss.Style
	Label lipgloss.Style
	Value lipgloss.Style
	Error lipgloss.Style
	Done  lipgloss.Style
}{
	Title: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(lipgloss.Color("#7D56F4")).
		Padding(0, 1),
	Label: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7D56F4")).
		Bold(true),
	Value: lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC")),
	Error: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
	Done:  lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
}
