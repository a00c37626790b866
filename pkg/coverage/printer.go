package coverage

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
)

func formatPercentage(p float64) string {
	return fmt.Sprintf("%.2f%%", p)
}

// Table renders the report; baseline may be nil.
func Table(report *Report, baseline *Report) string {
	tableString := &strings.Builder{}
	tableString.WriteString("Coverage:\n")
	table := tablewriter.NewWriter(tableString)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Category", "Passed", "Failed", "Skipped", "Coverage", "Minimum", "Baseline"})

	for _, name := range report.SortedCategories() {
		category := report.Categories[name]
		minimum := report.Thresholds.Minimum
		if floor, ok := report.Thresholds.Categories[name]; ok {
			minimum = floor
		}
		was := ""
		if baseline != nil {
			if previous, ok := baseline.Categories[name]; ok {
				was = formatPercentage(previous.Percentage)
			}
		}
		table.Append([]string{
			name,
			fmt.Sprintf("%d", category.Passed),
			fmt.Sprintf("%d", category.Failed),
			fmt.Sprintf("%d", category.Skipped),
			formatPercentage(category.Percentage),
			formatPercentage(minimum),
			was,
		})
	}

	was := ""
	if baseline != nil {
		was = formatPercentage(baseline.Overall)
	}
	table.SetFooter([]string{
		"overall",
		fmt.Sprintf("%d", report.Totals.Passed),
		fmt.Sprintf("%d", report.Totals.Failed),
		fmt.Sprintf("%d", report.Totals.Skipped),
		formatPercentage(report.Overall),
		formatPercentage(report.Thresholds.Minimum),
		was,
	})
	table.Render()

	if report.Status != "" {
		tableString.WriteString(fmt.Sprintf("status: %s\n", report.Status))
	}
	for _, violation := range report.Violations {
		tableString.WriteString(fmt.Sprintf("  %s\n", violation))
	}
	return tableString.String()
}
