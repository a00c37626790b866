package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/mattfenwick/netpol-harness/pkg/config"
	"github.com/mattfenwick/netpol-harness/pkg/connectivity"
	"github.com/mattfenwick/netpol-harness/pkg/coverage"
	"github.com/mattfenwick/netpol-harness/pkg/kube"
	"github.com/mattfenwick/netpol-harness/pkg/utils"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type RunArgs struct {
	Cases  CaseSelectionArgs
	DryRun bool
	Mock   bool
	Noisy  bool
}

func setupRunCommand(flags *Flags) *cobra.Command {
	args := &RunArgs{}

	command := &cobra.Command{
		Use:   "run",
		Short: "run test cases against a cluster and gate on coverage",
		Long:  "run test cases against a cluster, write the coverage report, and exit non-zero if a threshold or regression gate fails",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, as []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			return RunRunCommand(cmd.Context(), cfg, args)
		},
	}

	args.Cases.AddFlags(command)
	command.Flags().BoolVar(&args.DryRun, "dry-run", false, "if true, print the cases that would run and stop")
	command.Flags().BoolVar(&args.Mock, "mock", false, "if true, run against an in-memory cluster whose data plane enforces every expectation")
	command.Flags().BoolVar(&args.Noisy, "noisy", false, "if true, print every probe, not just failed ones")

	command.Flags().String("context", "", "kubernetes context to use; if empty, uses default context")
	command.Flags().String("namespace-prefix", "", "prefix for generated namespace names")
	command.Flags().Int("workers", 0, "number of cases to run concurrently")
	command.Flags().Duration("case-timeout", 0, "timeout for a single case, cleanup excluded")
	command.Flags().Bool("fail-fast", false, "if true, cancel remaining cases after the first failure")
	command.Flags().String("cni", "", "network plugin in use, to skip cases it can't enforce; one of "+fmt.Sprintf("%v", connectivity.KnownCNIs()))
	command.Flags().String("policy-mode", "", "how to wait for policies to take effect; one of [fixed, adaptive]")
	command.Flags().String("probe-command", "", "probe tool to run in fixtures; one of [curl, wget]")
	command.Flags().String("baseline", "", "coverage report to check for regressions against")
	command.Flags().Float64("max-drop", 0, "largest allowed drop in percentage points versus the baseline")
	command.Flags().Bool("update-baseline", false, "if true, write this run's report as the new baseline when every gate passes")
	command.Flags().Float64("minimum", 0, "minimum coverage percentage for every category")
	command.Flags().String("report", "", "path to write the coverage report to")
	command.Flags().String("badge-dir", "", "directory to write badge documents to")
	command.Flags().String("junit", "", "path to write junit results to")
	command.Flags().String("metrics", "", "path to write prometheus metrics to, in textfile format")
	command.Flags().String("pushgateway", "", "prometheus pushgateway url to push metrics to")

	return command
}

func RunRunCommand(ctx context.Context, cfg *config.Config, args *RunArgs) error {
	testCases, err := args.Cases.Select()
	if err != nil {
		return harnessError(err)
	}
	fmt.Println(casesTable(testCases))
	if args.DryRun {
		return nil
	}

	runID := uuid.NewString()
	log.Infof("starting run %s: %d cases, %d workers", runID, len(testCases), cfg.Workers)

	var kubernetes kube.IKubernetes
	if args.Mock {
		mock := kube.NewMockKubernetes()
		mock.ExecHandler = connectivity.ExpectedDataPlane(mock, testCases)
		kubernetes = mock
	} else {
		kubernetes, err = newKubernetes(cfg)
		if err != nil {
			return harnessError(err)
		}
	}

	// read the baseline before spending time on the run
	var baseline *coverage.Report
	var store *coverage.BaselineStore
	if cfg.Regression.BaselinePath != "" {
		store = &coverage.BaselineStore{Path: cfg.Regression.BaselinePath}
		baseline, err = store.Load(ctx)
		if err != nil {
			return harnessError(err)
		}
	}

	runner, err := connectivity.NewCaseRunner(kubernetes, cfg, runID)
	if err != nil {
		return harnessError(err)
	}
	metrics := connectivity.NewMetrics()
	done := 0
	scheduler := &connectivity.Scheduler{
		Executor: runner,
		Workers:  cfg.Workers,
		FailFast: cfg.FailFast,
		OnResult: func(result *connectivity.CaseResult) {
			done++
			metrics.ObserveCase(result)
			log.Infof("[%d/%d] %s: %s %s", done, len(testCases), result.TestCaseID, result.Status, result.Reason)
		},
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	results := scheduler.RunAll(runCtx, testCases)
	// checked before stop, which cancels runCtx itself
	interrupted := runCtx.Err()
	stop()

	printer := &connectivity.Printer{Noisy: args.Noisy, Results: results}
	printer.PrintSummary()
	if err := connectivity.PrintJUnitResults(cfg.Output.JUnitPath, results); err != nil {
		return harnessError(err)
	}
	// cancelled cases are skipped, and skips don't count against coverage
	if interrupted != nil {
		return harnessError(errors.Wrapf(interrupted, "run %s interrupted; %d of %d cases did not run, not gating or updating the baseline", runID, countCancelled(results), len(results)))
	}

	report := coverage.Aggregate(results)
	verdict := coverage.Evaluate(report, cfg.Thresholds, baseline, cfg.Regression.MaxDrop)
	fmt.Println(coverage.Table(report, baseline))

	if err := writeOutputs(cfg, report, metrics, runID); err != nil {
		return harnessError(err)
	}

	if verdict.Status != coverage.StatusPass {
		return gateFailure("coverage gate failed:\n  %s", joinLines(verdict.Violations))
	}
	if store != nil && cfg.Regression.UpdateBaseline {
		if err := store.Save(ctx, report); err != nil {
			return harnessError(err)
		}
		log.Infof("updated baseline %s", store.Path)
	}
	return nil
}

func writeOutputs(cfg *config.Config, report *coverage.Report, metrics *connectivity.Metrics, runID string) error {
	if cfg.Output.ReportPath != "" {
		if err := utils.WriteJsonToFile(report, cfg.Output.ReportPath); err != nil {
			return err
		}
		log.Infof("wrote coverage report to %s", cfg.Output.ReportPath)
	}
	if cfg.Output.BadgeDir != "" {
		paths, err := coverage.WriteBadges(cfg.Output.BadgeDir, report)
		if err != nil {
			return err
		}
		log.Infof("wrote %d badges to %s", len(paths), cfg.Output.BadgeDir)
	}

	for name, category := range report.Categories {
		metrics.SetCoverage(name, category.Percentage)
	}
	metrics.SetCoverage("overall", report.Overall)
	if cfg.Output.MetricsPath != "" {
		if err := metrics.WriteTextfile(cfg.Output.MetricsPath); err != nil {
			return err
		}
	}
	if cfg.Output.PushgatewayURL != "" {
		// push failures are logged only
		if err := metrics.Push(cfg.Output.PushgatewayURL, runID); err != nil {
			log.Warnf("%v", err)
		}
	}
	return nil
}

func countCancelled(results []*connectivity.CaseResult) int {
	count := 0
	for _, result := range results {
		if connectivity.IsErrorKind(result.SetupError, connectivity.ErrorKindCancelled) {
			count++
		}
	}
	return count
}
