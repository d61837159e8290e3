package cli

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	okStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	summaryStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return cellStyle
		})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
