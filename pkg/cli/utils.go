package cli

import (
	"github.com/mattfenwick/netpol-harness/pkg/config"
	"github.com/mattfenwick/netpol-harness/pkg/connectivity"
	"github.com/mattfenwick/netpol-harness/pkg/kube"
	"github.com/mattfenwick/netpol-harness/pkg/recipes"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type CaseSelectionArgs struct {
	CasePaths []string
	Builtin   bool
	Include   []string
	Exclude   []string
}

func (a *CaseSelectionArgs) AddFlags(command *cobra.Command) {
	command.Flags().StringSliceVar(&a.CasePaths, "cases", []string{}, "case files or directories to load")
	command.Flags().BoolVar(&a.Builtin, "builtin", false, "include the built in recipes and scenarios even when --cases is given; they are always included without it")
	command.Flags().StringSliceVar(&a.Include, "include", []string{}, "only run cases with any of these ids or categories; if empty, all cases are included")
	command.Flags().StringSliceVar(&a.Exclude, "exclude", []string{}, "skip cases with any of these ids or categories")
}

// Select gathers and filters cases.  Finding none is an error, since a gate over zero cases
// would pass vacuously.
func (a *CaseSelectionArgs) Select() ([]*connectivity.TestCase, error) {
	var cases []*connectivity.TestCase
	if len(a.CasePaths) == 0 || a.Builtin {
		builtin, err := recipes.BuiltinCases()
		if err != nil {
			return nil, err
		}
		cases = append(cases, builtin...)
	}
	for _, path := range a.CasePaths {
		loaded, err := recipes.LoadCases(path)
		if err != nil {
			return nil, err
		}
		cases = append(cases, loaded...)
	}

	seen := map[string]bool{}
	for _, testCase := range cases {
		if seen[testCase.ID] {
			return nil, errors.Errorf("duplicate case id '%s'", testCase.ID)
		}
		seen[testCase.ID] = true
	}

	filtered := recipes.Filter(cases, a.Include, a.Exclude)
	log.Infof("selected %d of %d cases", len(filtered), len(cases))
	if len(filtered) == 0 {
		return nil, errors.Errorf("no cases selected")
	}
	return filtered, nil
}

// newKubernetes connects to the configured cluster, throttled to the configured API rate.
func newKubernetes(cfg *config.Config) (kube.IKubernetes, error) {
	kubeClient, err := kube.NewKubernetesForContext(cfg.KubeContext)
	if err != nil {
		return nil, err
	}
	serverVersion, err := kubeClient.ServerVersion()
	if err != nil {
		return nil, err
	}
	log.Infof("kubernetes server version: %s", serverVersion)
	return kube.NewRateLimitedKubernetes(kubeClient, cfg.API.QPS, cfg.API.Burst), nil
}
