package connectivity

import (
	"github.com/mattfenwick/netpol-harness/pkg/config"
	"github.com/mattfenwick/netpol-harness/pkg/kube"
)

// NewCaseRunner wires every component of a case from the configuration.  kubernetes should
// already be rate limited; it is shared by all workers.
func NewCaseRunner(kubernetes kube.IKubernetes, cfg *config.Config, runID string) (*CaseRunner, error) {
	commandType, err := kube.ParseProbeCommandType(cfg.Probe.Command)
	if err != nil {
		return nil, err
	}
	capabilities, err := CapabilitiesForCNI(cfg.CNI, cfg.Capabilities)
	if err != nil {
		return nil, err
	}
	return &CaseRunner{
		Namespaces: &NamespaceManager{
			Kubernetes:     kubernetes,
			Prefix:         cfg.NamespacePrefix,
			RunID:          runID,
			CreateAttempts: cfg.Namespace.CreateAttempts,
			RetryInterval:  cfg.Namespace.RetryInterval,
			DeleteTimeout:  cfg.Namespace.DeleteTimeout,
		},
		Fixtures: &FixtureDeployer{
			Kubernetes:    kubernetes,
			Image:         cfg.Fixture.Image,
			DefaultPort:   cfg.Fixture.Port,
			ReadyInterval: cfg.Fixture.ReadyInterval,
			ReadyTimeout:  cfg.Fixture.ReadyTimeout,
		},
		Policies: &PolicyApplier{
			Kubernetes:       kubernetes,
			Mode:             cfg.Policy.Mode,
			PropagationDelay: cfg.Policy.PropagationDelay,
			AdaptiveInterval: cfg.Policy.AdaptiveInterval,
			AdaptiveCeiling:  cfg.Policy.AdaptiveCeiling,
		},
		Prober: &Prober{
			Kubernetes:  kubernetes,
			CommandType: commandType,
			Timeout:     cfg.Probe.Timeout,
			Attempts:    cfg.Probe.Attempts,
			Backoff:     cfg.Probe.Backoff,
		},
		Capabilities: capabilities,
		CaseTimeout:  cfg.CaseTimeout,
	}, nil
}
