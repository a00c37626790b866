package connectivity

import (
	"fmt"

	"github.com/mattfenwick/netpol-harness/pkg/kube"
	v1 "k8s.io/api/core/v1"
)

// ExpectedDataPlane answers probes on a MockKubernetes the way a cluster that enforces every
// case's expectations would: Allow gets an HTTP response, Deny times out.  Probes that no
// expectation covers are allowed.  It exercises the whole pipeline without a cluster.
func ExpectedDataPlane(mock *kube.MockKubernetes, cases []*TestCase) kube.MockExecHandler {
	byLabel := map[string]*TestCase{}
	for _, testCase := range cases {
		byLabel[labelValue(testCase.ID)] = testCase
	}

	return func(from *v1.Pod, container string, command []string) (string, string, error) {
		host, port, err := kube.ParseProbeTarget(command)
		if err != nil {
			return "", err.Error(), kube.MockExitError(2, "bad command")
		}
		to := mock.PodByIP(host)
		if to == nil {
			return "", fmt.Sprintf("curl: (7) Failed to connect to %s port %d: No route to host", host, port), kube.MockExitError(7, "exit 7")
		}
		testCase := byLabel[mock.NamespaceLabels(from.Namespace)[CaseLabel]]
		if testCase == nil {
			return "200", "", nil
		}
		outcome := expectedOutcome(testCase, from.Labels[FixtureLabel], to.Labels[FixtureLabel], port)
		if outcome == OutcomeDeny {
			return "000", "curl: (28) Connection timed out", kube.MockExitError(28, "exit 28")
		}
		return "200", "", nil
	}
}

func expectedOutcome(testCase *TestCase, from string, to string, port int) Outcome {
	for _, e := range testCase.Expectations {
		if e.From != from || e.To != to {
			continue
		}
		expectedPort := e.Port
		if expectedPort == 0 {
			if spec, ok := testCase.Fixture(to); ok && len(spec.Ports) > 0 {
				expectedPort = spec.Ports[0]
			}
		}
		if expectedPort == 0 || expectedPort == port {
			return e.Outcome
		}
	}
	return OutcomeAllow
}
