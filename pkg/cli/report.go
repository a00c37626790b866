package cli

import (
	"fmt"

	"github.com/mattfenwick/netpol-harness/pkg/config"
	"github.com/mattfenwick/netpol-harness/pkg/coverage"
	"github.com/mattfenwick/netpol-harness/pkg/utils"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type ReportArgs struct {
	InputPath string
}

func setupReportCommand(flags *Flags) *cobra.Command {
	args := &ReportArgs{}

	command := &cobra.Command{
		Use:   "report",
		Short: "re-evaluate a saved coverage report",
		Long:  "apply the current thresholds and baseline to a saved coverage report, print it, and write badges; exits like 'run' does",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, as []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return RunReportCommand(cmd, cfg, args)
		},
	}

	command.Flags().StringVar(&args.InputPath, "input", "coverage-report.json", "coverage report written by 'run'")
	command.Flags().String("baseline", "", "coverage report to check for regressions against")
	command.Flags().Float64("max-drop", 0, "largest allowed drop in percentage points versus the baseline")
	command.Flags().Float64("minimum", 0, "minimum coverage percentage for every category")
	command.Flags().String("badge-dir", "", "directory to write badge documents to")

	return command
}

func RunReportCommand(cmd *cobra.Command, cfg *config.Config, args *ReportArgs) error {
	report, err := utils.ParseJsonFromFile[coverage.Report](args.InputPath)
	if err != nil {
		return harnessError(err)
	}

	var baseline *coverage.Report
	if cfg.Regression.BaselinePath != "" {
		baseline, err = (&coverage.BaselineStore{Path: cfg.Regression.BaselinePath}).Load(cmd.Context())
		if err != nil {
			return harnessError(err)
		}
	}

	verdict := coverage.Evaluate(report, cfg.Thresholds, baseline, cfg.Regression.MaxDrop)
	fmt.Println(coverage.Table(report, baseline))

	if cfg.Output.BadgeDir != "" {
		paths, err := coverage.WriteBadges(cfg.Output.BadgeDir, report)
		if err != nil {
			return harnessError(err)
		}
		log.Infof("wrote %d badges to %s", len(paths), cfg.Output.BadgeDir)
	}

	if verdict.Status != coverage.StatusPass {
		return gateFailure("coverage gate failed:\n  %s", joinLines(verdict.Violations))
	}
	return nil
}
