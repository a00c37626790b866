package recipes

import (
	"strings"

	"github.com/mattfenwick/netpol-harness/pkg/connectivity"
	"github.com/mattfenwick/netpol-harness/pkg/kube"
	"github.com/pkg/errors"
	networkingv1 "k8s.io/api/networking/v1"
)

const (
	CategoryRecipe      = "recipe"
	CategoryUnit        = "unit"
	CategoryIntegration = "integration"
)

// Recipe is one of the well-known policy examples, with the traffic it should allow and block
// written out by hand.  Policy namespaces are namespace aliases: omitted means the primary one.
type Recipe struct {
	ID           string
	Description  string
	PolicyYamls  []string
	Requires     []connectivity.Capability
	Namespaces   []connectivity.NamespaceSpec
	Fixtures     []connectivity.FixtureSpec
	Expectations []connectivity.Expectation
}

func (r *Recipe) Policies() ([]*networkingv1.NetworkPolicy, error) {
	var policies []*networkingv1.NetworkPolicy
	for _, yamlString := range r.PolicyYamls {
		parsed, err := kube.ParseNetworkPolicies([]byte(yamlString))
		if err != nil {
			return nil, errors.WithMessagef(err, "recipe %s", r.ID)
		}
		policies = append(policies, parsed...)
	}
	return policies, nil
}

func (r *Recipe) TestCase() (*connectivity.TestCase, error) {
	policies, err := r.Policies()
	if err != nil {
		return nil, err
	}
	return &connectivity.TestCase{
		ID:           r.ID,
		Category:     CategoryRecipe,
		Description:  r.Description,
		Requires:     r.Requires,
		Namespaces:   r.Namespaces,
		Fixtures:     r.Fixtures,
		Policies:     policies,
		Expectations: r.Expectations,
	}, nil
}

// fixture names pods in the primary namespace by letter, and everything else as <alias>-<letter>.
func fixture(alias string, name string, labels map[string]string, ports ...int) connectivity.FixtureSpec {
	return connectivity.FixtureSpec{
		Name:      fixtureName(alias, name),
		Namespace: alias,
		Labels:    labels,
		Ports:     ports,
	}
}

func fixtureName(alias string, name string) string {
	if alias == "" {
		return name
	}
	return alias + "-" + name
}

// abc gives an alias the usual three fixtures; labels, if given, go on "b".
func abc(alias string, labels map[string]string, ports ...int) []connectivity.FixtureSpec {
	return []connectivity.FixtureSpec{
		fixture(alias, "a", nil, ports...),
		fixture(alias, "b", labels, ports...),
		fixture(alias, "c", nil, ports...),
	}
}

func concat(groups ...[]connectivity.FixtureSpec) []connectivity.FixtureSpec {
	var all []connectivity.FixtureSpec
	for _, group := range groups {
		all = append(all, group...)
	}
	return all
}

func allow(from string, to string) connectivity.Expectation {
	return connectivity.Expectation{From: from, To: to, Outcome: connectivity.OutcomeAllow}
}

func deny(from string, to string) connectivity.Expectation {
	return connectivity.Expectation{From: from, To: to, Outcome: connectivity.OutcomeDeny}
}

func onPort(e connectivity.Expectation, port int) connectivity.Expectation {
	e.Port = port
	return e
}

func namespaces(aliases ...string) []connectivity.NamespaceSpec {
	var specs []connectivity.NamespaceSpec
	for _, alias := range aliases {
		specs = append(specs, connectivity.NamespaceSpec{Alias: alias})
	}
	return specs
}

func labeled(kvs ...string) map[string]string {
	labels := map[string]string{}
	for i := 0; i+1 < len(kvs); i += 2 {
		labels[kvs[i]] = kvs[i+1]
	}
	return labels
}

// BuiltinCases is every recipe followed by the scenarios.
func BuiltinCases() ([]*connectivity.TestCase, error) {
	var cases []*connectivity.TestCase
	for _, recipe := range AllRecipes {
		testCase, err := recipe.TestCase()
		if err != nil {
			return nil, err
		}
		cases = append(cases, testCase)
	}
	cases = append(cases, Scenarios()...)
	for _, testCase := range cases {
		if err := testCase.Validate(); err != nil {
			return nil, err
		}
	}
	return cases, nil
}

// Filter keeps cases whose id or category is included (everything, if include is empty) and not
// excluded.
func Filter(cases []*connectivity.TestCase, include []string, exclude []string) []*connectivity.TestCase {
	matches := func(testCase *connectivity.TestCase, terms []string) bool {
		for _, term := range terms {
			term = strings.TrimSpace(term)
			if term == testCase.ID || term == testCase.Category {
				return true
			}
		}
		return false
	}
	var filtered []*connectivity.TestCase
	for _, testCase := range cases {
		if len(include) > 0 && !matches(testCase, include) {
			continue
		}
		if matches(testCase, exclude) {
			continue
		}
		filtered = append(filtered, testCase)
	}
	return filtered
}
