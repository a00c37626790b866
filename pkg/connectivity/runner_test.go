package connectivity

import (
	"context"
	"strings"

	"github.com/mattfenwick/netpol-harness/pkg/kube"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	v1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	kerrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

var allStates = []CaseState{
	CaseStatePending,
	CaseStateProvisioning,
	CaseStatePolicyConverging,
	CaseStateProbing,
	CaseStateAsserting,
	CaseStateCleaning,
	CaseStateDone,
}

var namespaceResource = schema.GroupResource{Resource: "namespaces"}

func RunCaseRunnerTests() {
	Describe("CaseRunner", func() {
		var mock *kube.MockKubernetes
		var runner *CaseRunner
		ctx := context.TODO()

		BeforeEach(func() {
			mock = kube.NewMockKubernetes()
			runner = newTestRunner(mock)
		})

		It("passes when every observation matches, and walks every state", func() {
			newScriptedDataPlane(mock, map[string][]kube.ProbeStatus{"client->web": {kube.ProbeStatusTimedOut}})

			result := runner.Run(ctx, twoFixtureCase("deny-web"))
			Expect(result.Status).To(Equal(CaseStatusPass), result.Reason)
			Expect(result.States).To(Equal(allStates))
			Expect(result.ProbeResults).To(HaveLen(2))
			Expect(result.FailedExpectations).To(BeEmpty())
			Expect(result.SetupError).To(BeNil())
			Expect(result.CleanupError).To(BeNil())

			// the policy landed in the case's own namespace, which was then deleted
			Expect(result.Namespaces).To(HaveLen(1))
			Expect(result.Namespaces[0]).To(HavePrefix("test-unit-"))
			Expect(mock.AppliedPolicies).To(HaveLen(1))
			Expect(mock.AppliedPolicies[0].Namespace).To(Equal(result.Namespaces[0]))
			Expect(mock.DeletedNamespaces).To(Equal(result.Namespaces))
			Expect(mock.NamespaceNames()).To(BeEmpty())
		})

		It("labels its namespaces for later sweeping", func() {
			var labels map[string]string
			mock.ExecHandler = func(_ *v1.Pod, _ string, _ []string) (string, string, error) {
				namespaces, err := mock.GetNamespacesByLabel(ctx, RunLabel+"=test-run")
				Expect(err).To(BeNil())
				Expect(namespaces).To(HaveLen(1))
				labels = namespaces[0].Labels
				return "200", "", nil
			}
			testCase := twoFixtureCase("labels")
			testCase.Expectations = []Expectation{{From: "client", To: "web", Outcome: OutcomeAllow}}
			result := runner.Run(ctx, testCase)
			Expect(result.Status).To(Equal(CaseStatusPass), result.Reason)
			Expect(labels).To(HaveKeyWithValue(ManagedLabel, "true"))
			Expect(labels).To(HaveKeyWithValue(CaseLabel, "labels"))
		})

		It("fails on a clean mismatch", func() {
			newScriptedDataPlane(mock, nil)

			result := runner.Run(ctx, twoFixtureCase("allowed-anyway"))
			Expect(result.Status).To(Equal(CaseStatusFail))
			Expect(result.FailedExpectations).To(HaveLen(1))
			failed := result.FailedExpectations[0]
			Expect(failed.FailureKind()).To(Equal(ErrorKindAssertionMismatch))
			Expect(failed.Observed).To(Equal(OutcomeAllow))
			Expect(failed.Attempts).To(Equal(2))
			Expect(result.States).To(Equal(allStates))
			Expect(mock.NamespaceNames()).To(BeEmpty())

			Expect(result.Policies).To(HaveLen(1))
			Expect(result.Policies[0].Name).To(Equal("web-deny-all"))
			Expect(result.Policies[0].Namespace).To(Equal(result.Namespaces[0]))
		})

		It("doesn't read back policies for a passing case", func() {
			newScriptedDataPlane(mock, map[string][]kube.ProbeStatus{"client->web": {kube.ProbeStatusTimedOut}})

			result := runner.Run(ctx, twoFixtureCase("denied"))
			Expect(result.Status).To(Equal(CaseStatusPass), result.Reason)
			Expect(result.Policies).To(BeEmpty())
		})

		It("fails with a distinct diagnostic on connection refused", func() {
			newScriptedDataPlane(mock, map[string][]kube.ProbeStatus{"client->web": {kube.ProbeStatusRefused}})

			result := runner.Run(ctx, twoFixtureCase("refused"))
			Expect(result.Status).To(Equal(CaseStatusFail))
			Expect(result.FailedExpectations).To(HaveLen(1))
			Expect(result.FailedExpectations[0].Observed).To(Equal(OutcomeAmbiguous))
			Expect(result.FailedExpectations[0].FailureKind()).To(Equal(ErrorKindProbeAmbiguous))
			Expect(result.Reason).To(ContainSubstring("not serving"))
		})

		It("retries through propagation jitter", func() {
			plane := newScriptedDataPlane(mock, map[string][]kube.ProbeStatus{
				"client->web": {kube.ProbeStatusResponded, kube.ProbeStatusTimedOut},
			})

			result := runner.Run(ctx, twoFixtureCase("jitter"))
			Expect(result.Status).To(Equal(CaseStatusPass), result.Reason)
			Expect(result.ProbeResults[0].Attempts).To(Equal(2))
			Expect(plane.Calls("client->web")).To(Equal(2))
			Expect(result.ProbeResults[1].Attempts).To(Equal(1))
		})

		It("skips when a fixture never becomes ready, and still cleans up", func() {
			mock.NeverReadyPods["web"] = true

			result := runner.Run(ctx, twoFixtureCase("never-ready"))
			Expect(result.Status).To(Equal(CaseStatusSkip))
			Expect(IsErrorKind(result.SetupError, ErrorKindSetup)).To(BeTrue())
			Expect(result.Reason).To(ContainSubstring("web"))
			Expect(result.States).To(Equal([]CaseState{CaseStatePending, CaseStateProvisioning, CaseStateCleaning, CaseStateDone}))
			Expect(mock.ExecutedCommands).To(Equal(0))
			Expect(mock.NamespaceNames()).To(BeEmpty())
		})

		It("retries transient namespace errors", func() {
			mock.NamespaceCreateErrors = []error{kerrors.NewServerTimeout(namespaceResource, "create", 1)}
			newScriptedDataPlane(mock, map[string][]kube.ProbeStatus{"client->web": {kube.ProbeStatusTimedOut}})

			result := runner.Run(ctx, twoFixtureCase("transient"))
			Expect(result.Status).To(Equal(CaseStatusPass), result.Reason)
			Expect(mock.NamespaceCreates).To(Equal(2))
		})

		It("deletes a namespace whose create succeeded despite a transient error", func() {
			mock.NamespaceCreateLostResponses = []error{kerrors.NewServerTimeout(namespaceResource, "create", 1)}
			newScriptedDataPlane(mock, map[string][]kube.ProbeStatus{"client->web": {kube.ProbeStatusTimedOut}})

			result := runner.Run(ctx, twoFixtureCase("lost-response"))
			Expect(result.Status).To(Equal(CaseStatusPass), result.Reason)
			Expect(mock.NamespaceCreates).To(Equal(2))
			Expect(result.CleanupError).To(BeNil())
			Expect(mock.DeletedNamespaces).To(HaveLen(2))
			Expect(mock.DeletedNamespaces).To(ContainElements(result.Namespaces))
			Expect(mock.NamespaceNames()).To(BeEmpty())
		})

		It("cleans up namespaces from failed creates even when it gives up", func() {
			timeout := kerrors.NewServerTimeout(namespaceResource, "create", 1)
			mock.NamespaceCreateLostResponses = []error{timeout, timeout, timeout}

			result := runner.Run(ctx, twoFixtureCase("lost-exhausted"))
			Expect(result.Status).To(Equal(CaseStatusSkip))
			Expect(mock.NamespaceCreates).To(Equal(3))
			Expect(mock.DeletedNamespaces).To(HaveLen(3))
			Expect(mock.NamespaceNames()).To(BeEmpty())
		})

		It("gives up on namespaces after the configured attempts", func() {
			timeout := kerrors.NewServerTimeout(namespaceResource, "create", 1)
			mock.NamespaceCreateErrors = []error{timeout, timeout, timeout, timeout}

			result := runner.Run(ctx, twoFixtureCase("exhausted"))
			Expect(result.Status).To(Equal(CaseStatusSkip))
			Expect(mock.NamespaceCreates).To(Equal(3))
			Expect(IsErrorKind(result.SetupError, ErrorKindSetup)).To(BeTrue())
			Expect(result.Reason).To(ContainSubstring("3 attempts"))
		})

		It("does not retry a namespace collision", func() {
			mock.NamespaceCreateErrors = []error{kerrors.NewAlreadyExists(namespaceResource, "test-unit-x")}

			result := runner.Run(ctx, twoFixtureCase("collision"))
			Expect(result.Status).To(Equal(CaseStatusSkip))
			Expect(mock.NamespaceCreates).To(Equal(1))
			Expect(result.Reason).To(ContainSubstring("collision"))
		})

		It("skips when a policy is rejected", func() {
			mock.PolicyApplyError = kerrors.NewBadRequest("spec.podSelector: invalid")

			result := runner.Run(ctx, twoFixtureCase("rejected"))
			Expect(result.Status).To(Equal(CaseStatusSkip))
			Expect(IsErrorKind(result.SetupError, ErrorKindPolicyApply)).To(BeTrue())
			Expect(result.LastState()).To(Equal(CaseStateDone))
			Expect(result.States).To(ContainElement(CaseStatePolicyConverging))
			Expect(result.States).ToNot(ContainElement(CaseStateProbing))
			Expect(mock.NamespaceNames()).To(BeEmpty())
		})

		It("skips when probes cannot be executed", func() {
			mock.ExecSetupError = errors.New("unable to upgrade connection")

			result := runner.Run(ctx, twoFixtureCase("no-exec"))
			Expect(result.Status).To(Equal(CaseStatusSkip))
			Expect(IsErrorKind(result.SetupError, ErrorKindProbe)).To(BeTrue())
			Expect(result.FailedExpectations).To(BeEmpty())
		})

		It("skips when the probe tool itself fails", func() {
			newScriptedDataPlane(mock, map[string][]kube.ProbeStatus{"client->web": {kube.ProbeStatusFailed}})

			result := runner.Run(ctx, twoFixtureCase("no-curl"))
			Expect(result.Status).To(Equal(CaseStatusSkip))
			Expect(result.ProbeResults[0].Err).ToNot(BeNil())
		})

		It("records cleanup failures without changing the verdict", func() {
			newScriptedDataPlane(mock, map[string][]kube.ProbeStatus{"client->web": {kube.ProbeStatusTimedOut}})
			mock.DeleteNamespaceError = kerrors.NewServiceUnavailable("try later")

			result := runner.Run(ctx, twoFixtureCase("cleanup"))
			Expect(result.Status).To(Equal(CaseStatusPass))
			Expect(result.CleanupError).ToNot(BeNil())
			Expect(IsErrorKind(result.CleanupError, ErrorKindCleanup)).To(BeTrue())
		})

		It("skips cases the enforcement engine can't support without touching the cluster", func() {
			runner.Capabilities = Capabilities{CapabilityIngress: true}
			testCase := twoFixtureCase("egress-only")
			testCase.Requires = []Capability{CapabilityIngress, CapabilityEgress}

			result := runner.Run(ctx, testCase)
			Expect(result.Status).To(Equal(CaseStatusSkip))
			Expect(result.Reason).To(ContainSubstring("egress"))
			Expect(result.States).To(Equal([]CaseState{CaseStatePending, CaseStateDone}))
			Expect(mock.NamespaceCreates).To(Equal(0))
		})

		It("skips when the run is already cancelled", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			result := runner.Run(cancelled, twoFixtureCase("cancelled"))
			Expect(result.Status).To(Equal(CaseStatusSkip))
			Expect(IsErrorKind(result.SetupError, ErrorKindCancelled)).To(BeTrue())
			Expect(mock.NamespaceCreates).To(Equal(0))
		})

		It("creates one namespace per alias and resolves policies into them", func() {
			newScriptedDataPlane(mock, nil)
			testCase := &TestCase{
				ID:         "aliases",
				Category:   "integration",
				Namespaces: []NamespaceSpec{{Alias: "prod", Labels: map[string]string{"purpose": "production"}}},
				Fixtures: []FixtureSpec{
					{Name: "web", Labels: map[string]string{"app": "web"}},
					{Name: "prod-client", Namespace: "prod"},
				},
				Policies: []*networkingv1.NetworkPolicy{denyIngressPolicy("prod-deny", "prod", nil)},
				Expectations: []Expectation{
					{From: "prod-client", To: "web", Outcome: OutcomeAllow},
				},
			}

			result := runner.Run(ctx, testCase)
			Expect(result.Status).To(Equal(CaseStatusPass), result.Reason)
			Expect(result.Namespaces).To(HaveLen(2))
			Expect(mock.AppliedPolicies[0].Namespace).To(Equal(result.Namespaces[1]))
			for _, ns := range result.Namespaces {
				Expect(strings.HasPrefix(ns, "test-integration-")).To(BeTrue())
			}
			Expect(mock.DeletedNamespaces).To(ConsistOf(result.Namespaces))
		})

		It("skips an expectation against a port the destination doesn't serve", func() {
			newScriptedDataPlane(mock, nil)
			testCase := twoFixtureCase("wrong-port")
			testCase.Expectations = []Expectation{{From: "client", To: "web", Outcome: OutcomeDeny, Port: 8080}}

			result := runner.Run(ctx, testCase)
			Expect(result.Status).To(Equal(CaseStatusSkip))
			Expect(result.Reason).To(ContainSubstring("8080"))
			Expect(mock.ExecutedCommands).To(Equal(0))
		})
	})
}
