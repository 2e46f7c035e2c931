package output

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette. Never use inline lipgloss.Color literals elsewhere.
var (
	// ColorCyan is used for identifiable nouns: asset keys, groups, schedules.
	ColorCyan = lipgloss.Color("14")

	// ColorGreen is used for materialized assets and passing checks.
	ColorGreen = lipgloss.Color("82")

	// ColorYellow is used for skipped nodes and partitions still missing.
	ColorYellow = lipgloss.Color("220")

	// ColorBoldRed is used for failures (matches ERROR level).
	ColorBoldRed = lipgloss.Color("204")

	// ColorGreenCheck is used for the completion checkmark.
	ColorGreenCheck = lipgloss.Color("10")

	// ColorDimGray is used for borders and other structural chrome.
	ColorDimGray = lipgloss.Color("240")
)

// Semantic styles.
var (
	// StyleNoun styles identifiable nouns (asset keys, groups, schedules).
	StyleNoun = lipgloss.NewStyle().Foreground(ColorCyan)

	// StyleDim styles structural chrome.
	StyleDim = lipgloss.NewStyle().Faint(true)

	// StyleSummary styles completion and summary lines.
	StyleSummary = lipgloss.NewStyle().Bold(true)
)

// Asset status constants.
const (
	StatusMaterialized = "materialized"
	StatusPassed       = "passed"
	StatusSkipped      = "skipped"
	StatusMissing      = "missing"
	StatusFailed       = "failed"
)

// StatusStyle returns the lipgloss style for a given status string.
// Unknown statuses return an unstyled default.
func StatusStyle(status string) lipgloss.Style {
	switch status {
	case StatusMaterialized, StatusPassed:
		return lipgloss.NewStyle().Foreground(ColorGreen)
	case StatusSkipped, StatusMissing:
		return lipgloss.NewStyle().Foreground(ColorYellow)
	case StatusFailed:
		return lipgloss.NewStyle().Bold(true).Foreground(ColorBoldRed)
	default:
		return lipgloss.NewStyle()
	}
}

// minAssetColumnWidth keeps status words aligned across lines.
const minAssetColumnWidth = 48

// FormatAssetLine renders an asset key with a right-aligned status suffix.
//
// Format: a:<key>[<partition>]  <status>
func FormatAssetLine(key, partition, status string) string {
	path := key
	if partition != "" {
		path = key + "[" + partition + "]"
	}

	padding := minAssetColumnWidth - len(path)
	if padding < 2 {
		padding = 2
	}

	return StyleDim.Render("a:") + StyleNoun.Render(path) +
		strings.Repeat(" ", padding) + StatusStyle(status).Render(status)
}

// FormatCheckmark renders a green checkmark with a message for stdout output.
func FormatCheckmark(msg string) string {
	check := lipgloss.NewStyle().Foreground(ColorGreenCheck).Render("✔")
	return check + " " + msg
}
