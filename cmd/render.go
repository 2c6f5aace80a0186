package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/imp-sim/imp-sim/sim/report"
	"github.com/imp-sim/imp-sim/sim/supply"
)

// Palette
var (
	accent  = lipgloss.Color("#00A3E0")
	muted   = lipgloss.Color("#666666")
	danger  = lipgloss.Color("#FF5F5F")
	success = lipgloss.Color("#00CC66")
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	labelStyle = lipgloss.NewStyle().Foreground(muted).Width(24)
	alertStyle = lipgloss.NewStyle().Foreground(danger).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(success).Bold(true)
	tableStyle = lipgloss.NewStyle().Foreground(muted)
)

// renderResult formats a run summary and the end state of every tier.
func renderResult(res *supply.Result) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Trial supply simulation: "+res.Scenario) + "\n\n")
	for _, row := range report.SummaryRows(res) {
		sb.WriteString(labelStyle.Render(row.Label) + " " + row.Value + "\n")
	}
	sb.WriteString("\n")
	if res.Summary.StockedOut() {
		sb.WriteString(alertStyle.Render(fmt.Sprintf("STOCKOUT: %d unmet demand events", res.Summary.UnmetDemand)) + "\n")
	} else {
		sb.WriteString(okStyle.Render("No stockouts") + "\n")
	}
	if !res.Balance.Conserved() {
		sb.WriteString(alertStyle.Render("Unit balance does not close") + "\n")
	}
	sb.WriteString("\n" + renderTable(report.TierHeader, report.TierRows(res)) + "\n")
	return sb.String()
}

// renderTable draws rows under headers with a rounded border.
func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tableStyle).
		Headers(headers...).
		Rows(rows...).
		String()
}
