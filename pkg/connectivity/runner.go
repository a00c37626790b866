package connectivity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mattfenwick/netpol-harness/pkg/kube"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	networkingv1 "k8s.io/api/networking/v1"
)

// CaseExecutor runs a single case to completion.  It must always return a result.
type CaseExecutor interface {
	Run(ctx context.Context, testCase *TestCase) *CaseResult
}

type CaseRunner struct {
	Namespaces   *NamespaceManager
	Fixtures     *FixtureDeployer
	Policies     *PolicyApplier
	Prober       *Prober
	Capabilities Capabilities
	// CaseTimeout bounds a whole case, excluding cleanup.
	CaseTimeout time.Duration
}

// caseMachine tracks a case's progress.  States only ever move forward.
type caseMachine struct {
	result *CaseResult
	logger *log.Entry
}

func (m *caseMachine) advance(to CaseState) {
	from := m.result.LastState()
	if caseStateOrder[to] <= caseStateOrder[from] {
		panic(errors.Errorf("invalid case state transition %s -> %s", from, to))
	}
	m.result.States = append(m.result.States, to)
	m.logger = m.logger.WithField("state", to)
	m.logger.Debugf("%s -> %s", from, to)
}

func (m *caseMachine) skip(err error) {
	m.result.Status = CaseStatusSkip
	m.result.SetupError = err
	m.result.Reason = err.Error()
}

func (r *CaseRunner) Run(ctx context.Context, testCase *TestCase) *CaseResult {
	start := time.Now()
	machine := &caseMachine{
		result: &CaseResult{
			TestCaseID: testCase.ID,
			Category:   testCase.Category,
			States:     []CaseState{CaseStatePending},
		},
		logger: log.WithFields(log.Fields{"case": testCase.ID, "state": CaseStatePending}),
	}
	result := machine.result
	defer func() {
		result.Duration = time.Since(start)
	}()

	if err := ctx.Err(); err != nil {
		machine.skip(newHarnessError(ErrorKindCancelled, err, "not started"))
		machine.advance(CaseStateDone)
		return result
	}
	if missing := r.Capabilities.Missing(testCase.Requires); len(missing) > 0 {
		machine.skip(SetupFailure(nil, "enforcement engine lacks %v", missing))
		machine.advance(CaseStateDone)
		machine.logger.Infof("%s: %s", result.Status, result.Reason)
		return result
	}

	caseCtx := ctx
	if r.CaseTimeout > 0 {
		var cancel context.CancelFunc
		caseCtx, cancel = context.WithTimeout(ctx, r.CaseTimeout)
		defer cancel()
	}

	var handles []*NamespaceHandle
	defer func() {
		machine.advance(CaseStateCleaning)
		result.CleanupError = r.cleanup(ctx, handles)
		machine.advance(CaseStateDone)
		machine.logger.Infof("%s in %s %s", result.Status, time.Since(start).Round(time.Millisecond), result.Reason)
	}()

	machine.advance(CaseStateProvisioning)
	namespaces := map[string]*NamespaceHandle{}
	for _, spec := range testCase.NamespaceSpecs() {
		handle, err := r.Namespaces.Create(caseCtx, testCase, spec)
		if err != nil {
			machine.skip(r.interrupted(ctx, caseCtx, err))
			return result
		}
		handles = append(handles, handle)
		namespaces[spec.Alias] = handle
		result.Namespaces = append(result.Namespaces, handle.Name)
	}
	fixtures, err := r.Fixtures.Deploy(caseCtx, namespaces, testCase.Fixtures)
	if err != nil {
		machine.skip(r.interrupted(ctx, caseCtx, err))
		return result
	}

	machine.advance(CaseStatePolicyConverging)
	var canary CanaryFunc
	if len(testCase.Fixtures) > 0 {
		canary = r.Prober.Canary(fixtures[testCase.Fixtures[0].Name])
	}
	applied, err := r.Policies.Apply(caseCtx, namespaces, testCase.Policies, canary)
	if err != nil {
		machine.skip(r.interrupted(ctx, caseCtx, err))
		return result
	}

	machine.advance(CaseStateProbing)
	for _, expectation := range testCase.Expectations {
		result.ProbeResults = append(result.ProbeResults, r.probe(caseCtx, expectation, fixtures))
	}
	if err := caseCtx.Err(); err != nil {
		machine.skip(r.interrupted(ctx, caseCtx, err))
		return result
	}

	machine.advance(CaseStateAsserting)
	r.assert(result)
	if result.Status == CaseStatusFail {
		result.Policies = r.livePolicies(caseCtx, result.Namespaces, applied, machine.logger)
	}
	return result
}

// livePolicies reads back what the cluster holds in the case's namespaces, falling back to what
// was applied if that can't be read.
func (r *CaseRunner) livePolicies(ctx context.Context, namespaces []string, applied []*networkingv1.NetworkPolicy, logger *log.Entry) []*networkingv1.NetworkPolicy {
	live, err := r.Namespaces.Kubernetes.GetNetworkPoliciesInNamespaces(ctx, namespaces)
	if err != nil {
		logger.Warnf("unable to read back policies, reporting the applied ones: %v", err)
		return applied
	}
	policies := make([]*networkingv1.NetworkPolicy, 0, len(live))
	for i := range live {
		policies = append(policies, &live[i])
	}
	logger.Debugf("policies in effect:\n%s", kube.NetworkPoliciesToTable(policies))
	return policies
}

func (r *CaseRunner) probe(ctx context.Context, expectation Expectation, fixtures map[string]*Fixture) *ProbeResult {
	from, to := fixtures[expectation.From], fixtures[expectation.To]
	if from == nil || to == nil {
		return &ProbeResult{Expectation: expectation, Err: SetupFailure(nil, "unknown fixture in %s", expectation)}
	}
	port := expectation.Port
	if port == 0 {
		port = to.Ports[0]
	}
	if !to.ServesPort(port) {
		return &ProbeResult{Expectation: expectation, Err: SetupFailure(nil, "fixture %s does not serve port %d", to.Spec.Name, port)}
	}
	return r.Prober.Probe(ctx, expectation, from, to, port)
}

// assert: any clean mismatch fails the case, even if other probes couldn't run.  Otherwise an
// unrunnable probe skips it.
func (r *CaseRunner) assert(result *CaseResult) {
	var probeErrors []error
	var failures []string
	for _, probeResult := range result.ProbeResults {
		switch probeResult.FailureKind() {
		case "":
		case ErrorKindProbe:
			probeErrors = append(probeErrors, probeResult.Err)
		default:
			result.FailedExpectations = append(result.FailedExpectations, probeResult)
			failures = append(failures, probeResult.String())
		}
	}
	switch {
	case len(failures) > 0:
		result.Status = CaseStatusFail
		result.Reason = strings.Join(failures, "; ")
	case len(probeErrors) > 0:
		result.Status = CaseStatusSkip
		result.SetupError = probeErrors[0]
		result.Reason = fmt.Sprintf("%d probes could not run: %v", len(probeErrors), probeErrors[0])
	default:
		result.Status = CaseStatusPass
	}
}

// interrupted turns errors caused by cancellation into Cancelled errors, so the skip reason says so.
func (r *CaseRunner) interrupted(parent context.Context, caseCtx context.Context, err error) error {
	if parent.Err() != nil {
		return newHarnessError(ErrorKindCancelled, err, "run cancelled")
	}
	if caseCtx.Err() != nil {
		return SetupFailure(err, "case timed out after %s", r.CaseTimeout)
	}
	return err
}

// cleanup requests deletion of every namespace the case created.  Failures are recorded but
// never change the case's status.
func (r *CaseRunner) cleanup(ctx context.Context, handles []*NamespaceHandle) error {
	var failed []string
	var first error
	for _, handle := range handles {
		if err := r.Namespaces.Delete(ctx, handle); err != nil {
			failed = append(failed, handle.Name)
			if first == nil {
				first = err
			}
		}
	}
	if first == nil {
		return nil
	}
	return errors.WithMessagef(first, "unable to delete %d namespaces (%s)", len(failed), strings.Join(failed, ", "))
}

