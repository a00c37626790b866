package connectivity

import (
	"fmt"
	"time"

	"github.com/mattfenwick/netpol-harness/pkg/kube"
	"github.com/pkg/errors"
	networkingv1 "k8s.io/api/networking/v1"
)

// Outcome is a reachability verdict, either expected or observed.
type Outcome string

const (
	OutcomeAllow Outcome = "Allow"
	OutcomeDeny  Outcome = "Deny"
	// OutcomeAmbiguous is only ever observed: the destination answered at the transport layer
	// without serving, so the probe says nothing about policy.
	OutcomeAmbiguous Outcome = "Ambiguous"
)

func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case OutcomeAllow, OutcomeDeny:
		return Outcome(s), nil
	default:
		return "", errors.Errorf("invalid expected outcome '%s', must be %s or %s", s, OutcomeAllow, OutcomeDeny)
	}
}

// ShortString is used in tables.
func (o Outcome) ShortString() string {
	switch o {
	case OutcomeAllow:
		return "."
	case OutcomeDeny:
		return "X"
	case OutcomeAmbiguous:
		return "?"
	default:
		return "!"
	}
}

// NamespaceSpec declares one of a case's namespaces.  Policies and fixtures refer to it by Alias;
// the empty alias is the case's primary namespace, which always exists.
type NamespaceSpec struct {
	Alias  string            `json:"alias"`
	Labels map[string]string `json:"labels,omitempty"`
}

type FixtureSpec struct {
	Name      string            `json:"name"`
	Namespace string            `json:"namespace,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	Ports     []int             `json:"ports,omitempty"`
}

// Expectation refers to fixtures by name.  A zero Port means the destination's first port.
type Expectation struct {
	From    string  `json:"from"`
	To      string  `json:"to"`
	Outcome Outcome `json:"outcome"`
	Port    int     `json:"port,omitempty"`
}

func (e Expectation) String() string {
	if e.Port == 0 {
		return fmt.Sprintf("%s -> %s: %s", e.From, e.To, e.Outcome)
	}
	return fmt.Sprintf("%s -> %s:%d: %s", e.From, e.To, e.Port, e.Outcome)
}

type TestCase struct {
	ID           string                        `json:"id"`
	Category     string                        `json:"category"`
	Description  string                        `json:"description,omitempty"`
	Requires     []Capability                  `json:"requires,omitempty"`
	Namespaces   []NamespaceSpec               `json:"namespaces,omitempty"`
	Fixtures     []FixtureSpec                 `json:"fixtures"`
	Policies     []*networkingv1.NetworkPolicy `json:"policies,omitempty"`
	Expectations []Expectation                 `json:"expectations"`
}

// NamespaceSpecs includes the primary namespace, first, whether or not it was declared.
func (t *TestCase) NamespaceSpecs() []NamespaceSpec {
	specs := []NamespaceSpec{{Alias: ""}}
	for _, ns := range t.Namespaces {
		if ns.Alias == "" {
			specs[0] = ns
		} else {
			specs = append(specs, ns)
		}
	}
	return specs
}

func (t *TestCase) Fixture(name string) (FixtureSpec, bool) {
	for _, f := range t.Fixtures {
		if f.Name == name {
			return f, true
		}
	}
	return FixtureSpec{}, false
}

type ProbeResult struct {
	Expectation Expectation
	Observed    Outcome
	// Status is what the probe tool reported on the last attempt.
	Status   kube.ProbeStatus
	Attempts int
	Elapsed  time.Duration
	// Err is set when the probe could not produce an observation at all.
	Err error
}

func (p *ProbeResult) Matches() bool {
	return p.Err == nil && p.Observed == p.Expectation.Outcome
}

func (p *ProbeResult) ElapsedMs() int64 {
	return p.Elapsed.Milliseconds()
}

type CaseStatus string

const (
	CaseStatusPass CaseStatus = "Pass"
	CaseStatusFail CaseStatus = "Fail"
	CaseStatusSkip CaseStatus = "Skip"
)

type CaseState string

const (
	CaseStatePending          CaseState = "Pending"
	CaseStateProvisioning     CaseState = "Provisioning"
	CaseStatePolicyConverging CaseState = "PolicyConverging"
	CaseStateProbing          CaseState = "Probing"
	CaseStateAsserting        CaseState = "Asserting"
	CaseStateCleaning         CaseState = "Cleaning"
	CaseStateDone             CaseState = "Done"
)

var caseStateOrder = map[CaseState]int{
	CaseStatePending:          0,
	CaseStateProvisioning:     1,
	CaseStatePolicyConverging: 2,
	CaseStateProbing:          3,
	CaseStateAsserting:        4,
	CaseStateCleaning:         5,
	CaseStateDone:             6,
}

type CaseResult struct {
	TestCaseID string
	Category   string
	Status     CaseStatus
	// Reason is a one line explanation for anything but a Pass.
	Reason             string
	ProbeResults       []*ProbeResult
	FailedExpectations []*ProbeResult
	// SetupError is whatever kept the case from reaching a verdict.
	SetupError   error
	CleanupError error
	// Policies are the policies found in the case's namespaces when it failed.
	Policies   []*networkingv1.NetworkPolicy
	States     []CaseState
	Namespaces []string
	Duration   time.Duration
}

func (c *CaseResult) LastState() CaseState {
	if len(c.States) == 0 {
		return ""
	}
	return c.States[len(c.States)-1]
}

// FailureKind says why a probe result doesn't match, or "" if it does.
func (p *ProbeResult) FailureKind() ErrorKind {
	switch {
	case p.Err != nil:
		return ErrorKindProbe
	case p.Matches():
		return ""
	case p.Observed == OutcomeAmbiguous:
		return ErrorKindProbeAmbiguous
	default:
		return ErrorKindAssertionMismatch
	}
}

func (p *ProbeResult) String() string {
	switch p.FailureKind() {
	case "":
		return fmt.Sprintf("%s: observed %s", p.Expectation, p.Observed)
	case ErrorKindProbe:
		return fmt.Sprintf("%s: probe failed after %d attempts: %v", p.Expectation, p.Attempts, p.Err)
	case ErrorKindProbeAmbiguous:
		return fmt.Sprintf("%s: observed %s (%s) after %d attempts, %dms; the destination is not serving this port", p.Expectation, p.Observed, p.Status, p.Attempts, p.ElapsedMs())
	default:
		return fmt.Sprintf("%s: observed %s (%s) after %d attempts, %dms", p.Expectation, p.Observed, p.Status, p.Attempts, p.ElapsedMs())
	}
}
