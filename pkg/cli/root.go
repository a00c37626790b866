package cli

import (
	"github.com/mattfenwick/netpol-harness/pkg/config"
	"github.com/mattfenwick/netpol-harness/pkg/utils"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RunRootCommand returns the process exit code.
func RunRootCommand() int {
	command := setupRootCommand()
	err := command.Execute()
	code := ExitCode(err)
	if err != nil {
		if code == ExitGateFailure {
			log.Errorf("%v", err)
		} else {
			log.Errorf("unable to run command: %+v", err)
		}
	}
	return code
}

type Flags struct {
	Verbosity  string
	LogJSON    bool
	ConfigPath string
}

// flagMappings ties command line flags to config keys.  Only flags the user actually sets
// override the config file and environment.
var flagMappings = map[string]string{
	"verbosity":        "log_level",
	"log-json":         "log_json",
	"context":          "kube_context",
	"namespace-prefix": "namespace_prefix",
	"workers":          "workers",
	"case-timeout":     "case_timeout",
	"fail-fast":        "fail_fast",
	"cni":              "cni",
	"policy-mode":      "policy.mode",
	"probe-command":    "probe.command",
	"baseline":         "regression.baseline_path",
	"max-drop":         "regression.max_drop",
	"update-baseline":  "regression.update_baseline",
	"minimum":          "thresholds.minimum",
	"report":           "output.report_path",
	"badge-dir":        "output.badge_dir",
	"junit":            "output.junit_path",
	"metrics":          "output.metrics_path",
	"pushgateway":      "output.pushgateway_url",
}

func setupRootCommand() *cobra.Command {
	flags := &Flags{}
	command := &cobra.Command{
		Use:           "netpol-harness",
		Short:         "verify network policy enforcement against a live cluster",
		Long:          "deploy fixtures into throwaway namespaces, apply network policies, probe connectivity, and gate on coverage",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	command.PersistentFlags().StringVarP(&flags.Verbosity, "verbosity", "v", "info", "log level; one of [info, debug, trace, warn, error, fatal, panic]")
	command.PersistentFlags().BoolVar(&flags.LogJSON, "log-json", false, "if true, log json instead of text")
	command.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to a yaml config file; NETPOL_HARNESS__* environment variables and flags override it")

	command.AddCommand(setupRunCommand(flags))
	command.AddCommand(setupListCommand(flags))
	command.AddCommand(setupReportCommand(flags))
	command.AddCommand(setupCleanupCommand(flags))
	command.AddCommand(SetupVersionCommand())

	return command
}

// loadConfig layers defaults, the config file, the environment and cmd's flags, and sets up
// logging from the result.
func loadConfig(cmd *cobra.Command, flags *Flags) (*config.Config, error) {
	cfg, err := config.Load(flags.ConfigPath, cmd.Flags(), flagMappings)
	if err != nil {
		return nil, harnessError(err)
	}
	if err := utils.SetUpLogger(cfg.LogLevel, cfg.LogJSON); err != nil {
		return nil, harnessError(err)
	}
	log.Debugf("config: \n%s", utils.JsonString(cfg))
	return cfg, nil
}

func harnessError(err error) error {
	return &ExitError{Code: ExitHarnessError, Err: err}
}

func gateFailure(format string, args ...interface{}) error {
	return &ExitError{Code: ExitGateFailure, Err: errors.Errorf(format, args...)}
}
