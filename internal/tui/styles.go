package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/NarenCandy/wild-animal-detection/internal/severity"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("28")).
			Padding(0, 1)

	panelBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	runningStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("82"))

	stoppedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

var levelStyles = map[severity.Level]lipgloss.Style{
	severity.Critical: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	severity.High:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208")),
	severity.Medium:   lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
	severity.Low:      lipgloss.NewStyle().Foreground(lipgloss.Color("82")),
}

func levelStyle(level string) lipgloss.Style {
	if s, ok := levelStyles[severity.Level(level)]; ok {
		return s
	}
	return dimStyle
}
