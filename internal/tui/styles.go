package tui

import "github.com/charmbracelet/lipgloss"

type styles struct {
	Name     lipgloss.Style
	Value    lipgloss.Style
	Button   lipgloss.Style
	Selected lipgloss.Style
	Help     lipgloss.Style
	Error    lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		Name:     lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Width(24).Align(lipgloss.Right).PaddingRight(4),
		Value:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Width(10).Align(lipgloss.Center),
		Button:   lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
		Selected: lipgloss.NewStyle().Bold(true).Reverse(true),
		Help:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
}
