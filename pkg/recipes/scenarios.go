package recipes

import (
	"github.com/mattfenwick/netpol-harness/pkg/connectivity"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

var target = labeled("app", "target")

func ingressPolicy(name string, rules ...networkingv1.NetworkPolicyIngressRule) *networkingv1.NetworkPolicy {
	if rules == nil {
		rules = []networkingv1.NetworkPolicyIngressRule{}
	}
	return &networkingv1.NetworkPolicy{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec: networkingv1.NetworkPolicySpec{
			PodSelector: metav1.LabelSelector{MatchLabels: target},
			PolicyTypes: []networkingv1.PolicyType{networkingv1.PolicyTypeIngress},
			Ingress:     rules,
		},
	}
}

func fromPods(labels map[string]string) networkingv1.NetworkPolicyIngressRule {
	return networkingv1.NetworkPolicyIngressRule{
		From: []networkingv1.NetworkPolicyPeer{
			{PodSelector: &metav1.LabelSelector{MatchLabels: labels}},
		},
	}
}

// ScenarioA: without any policy, everything is reachable.
func ScenarioA() *connectivity.TestCase {
	return &connectivity.TestCase{
		ID:          "scenario-a",
		Category:    CategoryUnit,
		Description: "no policies: traffic is allowed",
		Fixtures: []connectivity.FixtureSpec{
			fixture("", "client", nil),
			fixture("", "server", target),
		},
		Expectations: []connectivity.Expectation{
			allow("client", "server"),
			allow("server", "client"),
		},
	}
}

// ScenarioB: an empty ingress rule list isolates the target from everyone.
func ScenarioB() *connectivity.TestCase {
	return &connectivity.TestCase{
		ID:          "scenario-b",
		Category:    CategoryUnit,
		Description: "empty ingress rules: traffic to the target is denied",
		Requires:    []connectivity.Capability{connectivity.CapabilityIngress},
		Fixtures: []connectivity.FixtureSpec{
			fixture("", "unrelated", nil),
			fixture("", "server", target),
		},
		Policies: []*networkingv1.NetworkPolicy{ingressPolicy("deny-all-to-target")},
		Expectations: []connectivity.Expectation{
			deny("unrelated", "server"),
			allow("server", "unrelated"),
		},
	}
}

// ScenarioC: only role=api may reach the target.
func ScenarioC() *connectivity.TestCase {
	return &connectivity.TestCase{
		ID:          "scenario-c",
		Category:    CategoryUnit,
		Description: "allow from role=api only",
		Requires:    []connectivity.Capability{connectivity.CapabilityIngress},
		Fixtures: []connectivity.FixtureSpec{
			fixture("", "api", labeled("role", "api")),
			fixture("", "unlabeled", nil),
			fixture("", "server", target),
		},
		Policies: []*networkingv1.NetworkPolicy{ingressPolicy("allow-api", fromPods(labeled("role", "api")))},
		Expectations: []connectivity.Expectation{
			allow("api", "server"),
			deny("unlabeled", "server"),
		},
	}
}

// ScenarioD: two policies on one target allow the union of their sources.
func ScenarioD() *connectivity.TestCase {
	return &connectivity.TestCase{
		ID:          "scenario-d",
		Category:    CategoryIntegration,
		Description: "two policies on one target are additive",
		Requires:    []connectivity.Capability{connectivity.CapabilityIngress},
		Fixtures: []connectivity.FixtureSpec{
			fixture("", "x", labeled("source", "x")),
			fixture("", "y", labeled("source", "y")),
			fixture("", "z", labeled("source", "z")),
			fixture("", "server", target),
		},
		Policies: []*networkingv1.NetworkPolicy{
			ingressPolicy("allow-x", fromPods(labeled("source", "x"))),
			ingressPolicy("allow-y", fromPods(labeled("source", "y"))),
		},
		Expectations: []connectivity.Expectation{
			allow("x", "server"),
			allow("y", "server"),
			deny("z", "server"),
		},
	}
}

func Scenarios() []*connectivity.TestCase {
	return []*connectivity.TestCase{ScenarioA(), ScenarioB(), ScenarioC(), ScenarioD()}
}
