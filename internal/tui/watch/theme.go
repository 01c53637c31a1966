// Package watch is the terminal dashboard behind `hookserver watch`. It
// follows a running receiver's audit stream and health endpoint.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme keeps every colour used by the dashboard in one place.
type Theme struct {
	Accepted lipgloss.Style
	Rejected lipgloss.Style
	Warning  lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style

	PulseOn  lipgloss.Style
	PulseOff lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		Accepted: lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		Rejected: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		Warning:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")),

		PulseOn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#61AFEF")),
		PulseOff: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}
