package ui

import "github.com/charmbracelet/lipgloss"

var (
	skyBlue   = lipgloss.Color("#0085FF")
	softCyan  = lipgloss.Color("#5EC8F2")
	warmAmber = lipgloss.Color("#F5A623")
	alertRed  = lipgloss.Color("#FF4D4F")
	leafGreen = lipgloss.Color("#3CC46B")
	orchid    = lipgloss.Color("#C86DD7")
	dimGray   = lipgloss.Color("#8A8F98")

	labelStyle = lipgloss.NewStyle().
			Foreground(softCyan).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(warmAmber)

	successStyle = lipgloss.NewStyle().
			Foreground(leafGreen).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(alertRed).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(warmAmber)

	highlightStyle = lipgloss.NewStyle().
			Foreground(orchid).
			Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(dimGray).
			Italic(true)

	titleStyle = lipgloss.NewStyle().
			Foreground(skyBlue).
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(skyBlue).
			Padding(0, 1)
)
