package ui

import "github.com/charmbracelet/lipgloss"

// Pre-built styles; View runs on every frame.
var (
	styleStatusOpen     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	styleStatusWaiting  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	styleStatusProvider = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	styleLive      = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	styleLiveLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	styleCardText     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	styleCardSelected = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Bold(true)
	styleCardState    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	styleCardPartial  = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	styleDup          = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Underline(true)

	styleNotice           = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	styleNoticePersistent = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)

	styleAssist = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("241")).
			Padding(0, 1)

	styleHelp    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	styleHelpKey = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
)
