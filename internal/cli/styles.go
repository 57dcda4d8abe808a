package cli

import "github.com/charmbracelet/lipgloss"

// Color palette
const (
	colorHeader  = "12" // Bright blue
	colorError   = "9"  // Bright red
	colorWarning = "11" // Bright yellow
	colorOK      = "10" // Bright green
	colorMuted   = "8"  // Gray
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorHeader))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorError))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorWarning))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color(colorOK))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(colorMuted))
	labelStyle   = lipgloss.NewStyle().Width(10)
	bodyStyle    = lipgloss.NewStyle().PaddingLeft(2).Width(78)
)

// countStyle colors a count by severity, green when zero.
func countStyle(n int, severe lipgloss.Style) lipgloss.Style {
	if n == 0 {
		return okStyle
	}
	return severe
}
