package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1).
			MarginBottom(1)
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	focusedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	blurredStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	contactStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	containerStyle = lipgloss.NewStyle().Padding(1, 2)
)
