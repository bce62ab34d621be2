package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// Style definitions.
var (
	// TitleStyle for headers.
	TitleStyle = lipgloss.NewStyle().Bold(true)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().Faint(true)

	// ErrorStyle for connector errors.
	ErrorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// FormatPriceWithTrend formats a price with an indicator of its move since the previous one.
func FormatPriceWithTrend(current, previous decimal.Decimal) string {
	price := current.String()

	if previous.IsZero() {
		return price
	}

	switch current.Cmp(previous) {
	case 1:
		return price + " ▲"
	case -1:
		return price + " ▼"
	default:
		return price
	}
}
