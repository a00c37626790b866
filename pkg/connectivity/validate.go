package connectivity

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/validation"
)

// Validate checks that a case is internally consistent before anything touches the cluster.
func (t *TestCase) Validate() error {
	var problems []string
	addf := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if t.ID == "" {
		addf("missing id")
	}
	for _, msg := range validation.IsDNS1123Label(t.Category) {
		addf("category '%s': %s", t.Category, msg)
	}
	for _, r := range t.Requires {
		if _, err := ParseCapability(string(r)); err != nil {
			addf("%s", err.Error())
		}
	}

	aliases := map[string]bool{"": true}
	for _, ns := range t.Namespaces {
		if ns.Alias != "" && aliases[ns.Alias] {
			addf("duplicate namespace alias '%s'", ns.Alias)
		}
		aliases[ns.Alias] = true
		for _, msg := range validateLabels(ns.Labels) {
			addf("namespace '%s' labels: %s", ns.Alias, msg)
		}
	}

	fixtures := map[string]FixtureSpec{}
	for _, f := range t.Fixtures {
		for _, msg := range validation.IsDNS1123Label(f.Name) {
			addf("fixture name '%s': %s", f.Name, msg)
		}
		if _, ok := fixtures[f.Name]; ok {
			addf("duplicate fixture '%s'", f.Name)
		}
		fixtures[f.Name] = f
		if !aliases[f.Namespace] {
			addf("fixture '%s': unknown namespace alias '%s'", f.Name, f.Namespace)
		}
		for _, msg := range validateLabels(f.Labels) {
			addf("fixture '%s' labels: %s", f.Name, msg)
		}
		for _, port := range f.Ports {
			for _, msg := range validation.IsValidPortNum(port) {
				addf("fixture '%s' port %d: %s", f.Name, port, msg)
			}
		}
	}

	for _, p := range t.Policies {
		if p == nil {
			addf("nil policy")
			continue
		}
		if p.Name == "" {
			addf("policy without a name")
		}
		if !aliases[p.Namespace] {
			addf("policy '%s': unknown namespace alias '%s'", p.Name, p.Namespace)
		}
	}

	if len(t.Expectations) == 0 {
		addf("no expectations")
	}
	for _, e := range t.Expectations {
		if _, err := ParseOutcome(string(e.Outcome)); err != nil {
			addf("expectation '%s': %s", e, err.Error())
		}
		if _, ok := fixtures[e.From]; !ok {
			addf("expectation '%s': unknown source fixture '%s'", e, e.From)
		}
		to, ok := fixtures[e.To]
		if !ok {
			addf("expectation '%s': unknown destination fixture '%s'", e, e.To)
			continue
		}
		// probing a port nobody listens on can only ever be refused
		if e.Port != 0 && len(to.Ports) > 0 && !containsInt(to.Ports, e.Port) {
			addf("expectation '%s': fixture '%s' does not serve port %d", e, e.To, e.Port)
		}
	}

	if len(problems) > 0 {
		return errors.Errorf("invalid test case '%s':\n  %s", t.ID, strings.Join(problems, "\n  "))
	}
	return nil
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func validateLabels(labels map[string]string) []string {
	var msgs []string
	for key, val := range labels {
		for _, msg := range validation.IsQualifiedName(key) {
			msgs = append(msgs, fmt.Sprintf("key '%s': %s", key, msg))
		}
		for _, msg := range validation.IsValidLabelValue(val) {
			msgs = append(msgs, fmt.Sprintf("value '%s': %s", val, msg))
		}
	}
	return msgs
}
