package cli

import (
	"fmt"
	"strings"

	"github.com/mattfenwick/netpol-harness/pkg/connectivity"
	"github.com/mattfenwick/netpol-harness/pkg/kube"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type ListArgs struct {
	Cases        CaseSelectionArgs
	ShowPolicies bool
}

func setupListCommand(flags *Flags) *cobra.Command {
	args := &ListArgs{}

	command := &cobra.Command{
		Use:   "list",
		Short: "list test cases",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, as []string) error {
			if _, err := loadConfig(cmd, flags); err != nil {
				return err
			}
			return RunListCommand(args)
		},
	}

	args.Cases.AddFlags(command)
	command.Flags().BoolVar(&args.ShowPolicies, "show-policies", false, "if true, print each case's policies")

	return command
}

func RunListCommand(args *ListArgs) error {
	testCases, err := args.Cases.Select()
	if err != nil {
		return harnessError(err)
	}
	fmt.Println(casesTable(testCases))
	if args.ShowPolicies {
		for _, testCase := range testCases {
			if len(testCase.Policies) == 0 {
				continue
			}
			fmt.Printf("%s:\n%s\n", testCase.ID, kube.NetworkPoliciesToTable(testCase.Policies))
		}
	}
	return nil
}

func casesTable(testCases []*connectivity.TestCase) string {
	tableString := &strings.Builder{}
	table := tablewriter.NewWriter(tableString)
	table.SetAutoWrapText(false)
	table.SetRowLine(true)
	table.SetHeader([]string{"Case", "Category", "Requires", "Namespaces", "Fixtures", "Policies", "Expectations"})

	for _, testCase := range testCases {
		var requires []string
		for _, r := range testCase.Requires {
			requires = append(requires, string(r))
		}
		var expectations []string
		for _, e := range testCase.Expectations {
			expectations = append(expectations, e.String())
		}
		table.Append([]string{
			testCase.ID,
			testCase.Category,
			strings.Join(requires, "\n"),
			fmt.Sprintf("%d", len(testCase.NamespaceSpecs())),
			fmt.Sprintf("%d", len(testCase.Fixtures)),
			fmt.Sprintf("%d", len(testCase.Policies)),
			strings.Join(expectations, "\n"),
		})
	}
	table.SetFooter([]string{"", "", "", "", "", "", fmt.Sprintf("%d cases", len(testCases))})

	table.Render()
	return tableString.String()
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n  ")
}
