package connectivity

import (
	"fmt"
	"sync"
	"time"

	"github.com/mattfenwick/netpol-harness/pkg/config"
	"github.com/mattfenwick/netpol-harness/pkg/kube"
	v1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// scriptedDataPlane answers probes by fixture name: "from->to" maps to what curl should see.
// Anything unlisted is allowed.
type scriptedDataPlane struct {
	mock   *kube.MockKubernetes
	lock   sync.Mutex
	script map[string][]kube.ProbeStatus
	calls  map[string]int
}

func newScriptedDataPlane(mock *kube.MockKubernetes, script map[string][]kube.ProbeStatus) *scriptedDataPlane {
	d := &scriptedDataPlane{mock: mock, script: script, calls: map[string]int{}}
	mock.ExecHandler = d.handle
	return d
}

func (d *scriptedDataPlane) Calls(pair string) int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.calls[pair]
}

func (d *scriptedDataPlane) handle(from *v1.Pod, container string, command []string) (string, string, error) {
	host, port, err := kube.ParseProbeTarget(command)
	if err != nil {
		return "", err.Error(), kube.MockExitError(2, "bad command")
	}
	to := d.mock.PodByIP(host)
	if to == nil {
		return "", "curl: (28) Connection timed out", kube.MockExitError(28, "exit 28")
	}
	pair := fmt.Sprintf("%s->%s", from.Labels[FixtureLabel], to.Labels[FixtureLabel])

	d.lock.Lock()
	statuses := d.script[pair]
	call := d.calls[pair]
	d.calls[pair]++
	d.lock.Unlock()

	status := kube.ProbeStatusResponded
	if len(statuses) > 0 {
		// the last scripted status repeats
		if call >= len(statuses) {
			call = len(statuses) - 1
		}
		status = statuses[call]
	}
	return curlOutput(status, host, port)
}

func curlOutput(status kube.ProbeStatus, host string, port int) (string, string, error) {
	switch status {
	case kube.ProbeStatusResponded:
		return "200", "", nil
	case kube.ProbeStatusTimedOut:
		return "000", "curl: (28) Connection timed out after 1001 milliseconds", kube.MockExitError(28, "exit 28")
	case kube.ProbeStatusUnreachable:
		return "000", fmt.Sprintf("curl: (7) Failed to connect to %s port %d: No route to host", host, port), kube.MockExitError(7, "exit 7")
	case kube.ProbeStatusRefused:
		return "000", fmt.Sprintf("curl: (7) Failed to connect to %s port %d: Connection refused", host, port), kube.MockExitError(7, "exit 7")
	case kube.ProbeStatusReset:
		return "000", "curl: (56) Recv failure: Connection reset by peer", kube.MockExitError(56, "exit 56")
	default:
		return "", "sh: curl: not found", kube.MockExitError(127, "exit 127")
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.NamespacePrefix = "test"
	cfg.Namespace.RetryInterval = time.Millisecond
	cfg.Fixture.ReadyInterval = time.Millisecond
	cfg.Fixture.ReadyTimeout = 200 * time.Millisecond
	cfg.Policy.PropagationDelay = 0
	cfg.Policy.AdaptiveInterval = time.Millisecond
	cfg.Policy.AdaptiveCeiling = 50 * time.Millisecond
	cfg.Probe.Timeout = time.Second
	cfg.Probe.Backoff = time.Millisecond
	cfg.CaseTimeout = 10 * time.Second
	return &cfg
}

func newTestRunner(mock *kube.MockKubernetes) *CaseRunner {
	runner, err := NewCaseRunner(mock, testConfig(), "test-run")
	if err != nil {
		panic(err)
	}
	return runner
}

func denyIngressPolicy(name string, alias string, target map[string]string) *networkingv1.NetworkPolicy {
	return &networkingv1.NetworkPolicy{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: alias},
		Spec: networkingv1.NetworkPolicySpec{
			PodSelector: metav1.LabelSelector{MatchLabels: target},
			PolicyTypes: []networkingv1.PolicyType{networkingv1.PolicyTypeIngress},
			Ingress:     []networkingv1.NetworkPolicyIngressRule{},
		},
	}
}

// twoFixtureCase: client probes a web server that has an ingress deny-all applied.
func twoFixtureCase(id string) *TestCase {
	return &TestCase{
		ID:       id,
		Category: "unit",
		Fixtures: []FixtureSpec{
			{Name: "client"},
			{Name: "web", Labels: map[string]string{"app": "web"}},
		},
		Policies: []*networkingv1.NetworkPolicy{denyIngressPolicy("web-deny-all", "", map[string]string{"app": "web"})},
		Expectations: []Expectation{
			{From: "client", To: "web", Outcome: OutcomeDeny},
			{From: "web", To: "client", Outcome: OutcomeAllow},
		},
	}
}
