package ui

import "github.com/charmbracelet/lipgloss"

type Theme struct {
	Title    lipgloss.Style
	Item     lipgloss.Style
	Selected lipgloss.Style
	Help     lipgloss.Style
	Success  lipgloss.Style
	Failure  lipgloss.Style
	Skipped  lipgloss.Style
}

func DefaultTheme() Theme {
	return Theme{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Item:     lipgloss.NewStyle().PaddingLeft(2),
		Selected: lipgloss.NewStyle().PaddingLeft(2).Bold(true).Foreground(lipgloss.Color("11")),
		Help:     lipgloss.NewStyle().Faint(true),
		Success:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Failure:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		Skipped:  lipgloss.NewStyle().Faint(true),
	}
}
