package infra

import "github.com/charmbracelet/lipgloss"

// Colors
var (
	ColorPrimary   = lipgloss.Color("#7C3AED") // Purple
	ColorSecondary = lipgloss.Color("#10B981") // Green
	ColorDanger    = lipgloss.Color("#EF4444") // Red
	ColorWarning   = lipgloss.Color("#F59E0B") // Amber
	ColorMuted     = lipgloss.Color("#6B7280") // Gray
	ColorBorder    = lipgloss.Color("#374151") // Dark gray
)

// Styles
var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(ColorPrimary).
			Padding(0, 2)

	// Breaker state styles
	stateClosed = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true)

	stateOpen = lipgloss.NewStyle().
			Foreground(ColorDanger).
			Bold(true)

	stateHalfOpen = lipgloss.NewStyle().
			Foreground(ColorWarning).
			Bold(true)

	// Value styles
	positiveValue = lipgloss.NewStyle().
			Foreground(ColorSecondary)

	negativeValue = lipgloss.NewStyle().
			Foreground(ColorDanger)

	mutedValue = lipgloss.NewStyle().
			Foreground(ColorMuted)
)
