package connectivity

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattfenwick/netpol-harness/pkg/kube"
	"github.com/olekukonko/tablewriter"
)

type Printer struct {
	// Noisy adds every probe, not just failed ones.
	Noisy   bool
	Results []*CaseResult
}

func (p *Printer) PrintSummary() {
	fmt.Println(p.SummaryTable())
	if policies := p.FailedPolicies(); policies != "" {
		fmt.Println(policies)
	}
}

// FailedPolicies renders the policies that were in effect for each failed case.
func (p *Printer) FailedPolicies() string {
	builder := &strings.Builder{}
	for _, result := range p.Results {
		if result.Status != CaseStatusFail || len(result.Policies) == 0 {
			continue
		}
		fmt.Fprintf(builder, "Policies in effect for %s:\n%s\n", result.TestCaseID, kube.NetworkPoliciesToTable(result.Policies))
	}
	return builder.String()
}

func (p *Printer) SummaryTable() string {
	tableString := &strings.Builder{}
	tableString.WriteString("Summary:\n")
	table := tablewriter.NewWriter(tableString)
	table.SetAutoWrapText(false)
	table.SetRowLine(true)
	table.SetHeader([]string{"Case", "Category", "Result", "Duration", "Probes", "Details"})

	counts := map[CaseStatus]int{}
	for _, result := range p.Results {
		counts[result.Status]++
		table.Append([]string{
			result.TestCaseID,
			result.Category,
			string(result.Status),
			result.Duration.Round(time.Millisecond).String(),
			p.probeLines(result),
			p.details(result),
		})
	}
	table.SetFooter([]string{"", "", "", "", "",
		fmt.Sprintf("passed %d, failed %d, skipped %d", counts[CaseStatusPass], counts[CaseStatusFail], counts[CaseStatusSkip])})

	table.Render()
	return tableString.String()
}

func (p *Printer) probeLines(result *CaseResult) string {
	var lines []string
	for _, probe := range result.ProbeResults {
		if !p.Noisy && probe.FailureKind() == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s", probe.Observed.ShortString(), probe.Expectation))
	}
	if len(lines) == 0 && len(result.ProbeResults) > 0 {
		return fmt.Sprintf("%d ok", len(result.ProbeResults))
	}
	return strings.Join(lines, "\n")
}

func (p *Printer) details(result *CaseResult) string {
	var lines []string
	for _, failed := range result.FailedExpectations {
		lines = append(lines, fmt.Sprintf("%s: %s", failed.FailureKind(), failed))
	}
	if result.SetupError != nil {
		lines = append(lines, result.Reason)
	}
	if result.CleanupError != nil {
		lines = append(lines, fmt.Sprintf("cleanup: %v", result.CleanupError))
	}
	return strings.Join(lines, "\n")
}
