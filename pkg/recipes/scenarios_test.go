package recipes

import (
	"context"
	"time"

	"github.com/mattfenwick/netpol-harness/pkg/config"
	"github.com/mattfenwick/netpol-harness/pkg/connectivity"
	"github.com/mattfenwick/netpol-harness/pkg/coverage"
	"github.com/mattfenwick/netpol-harness/pkg/kube"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	v1 "k8s.io/api/core/v1"
)

func fastConfig() *config.Config {
	cfg := config.Default()
	cfg.NamespacePrefix = "test"
	cfg.Namespace.RetryInterval = time.Millisecond
	cfg.Fixture.ReadyInterval = time.Millisecond
	cfg.Policy.PropagationDelay = 0
	cfg.Probe.Backoff = time.Millisecond
	cfg.Probe.Timeout = time.Second
	return &cfg
}

func runCases(mock *kube.MockKubernetes, cases []*connectivity.TestCase) []*connectivity.CaseResult {
	runner, err := connectivity.NewCaseRunner(mock, fastConfig(), "recipes-test")
	Expect(err).To(BeNil())
	scheduler := &connectivity.Scheduler{Executor: runner, Workers: 4}
	return scheduler.RunAll(context.TODO(), cases)
}

// flip answers one probe, identified by fixture names, the opposite way to what's expected.
func flip(handler kube.MockExecHandler, mock *kube.MockKubernetes, from string, to string) kube.MockExecHandler {
	return func(pod *v1.Pod, container string, command []string) (string, string, error) {
		host, _, err := kube.ParseProbeTarget(command)
		if err != nil || pod.Labels[connectivity.FixtureLabel] != from {
			return handler(pod, container, command)
		}
		if target := mock.PodByIP(host); target == nil || target.Labels[connectivity.FixtureLabel] != to {
			return handler(pod, container, command)
		}
		_, _, execErr := handler(pod, container, command)
		if execErr == nil {
			return "000", "curl: (28) Connection timed out", kube.MockExitError(28, "exit 28")
		}
		return "200", "", nil
	}
}

func RunScenarioTests() {
	Describe("Built in cases against a data plane that enforces them", func() {
		It("all pass, and coverage is complete", func() {
			cases, err := BuiltinCases()
			Expect(err).To(BeNil())
			mock := kube.NewMockKubernetes()
			mock.ExecHandler = connectivity.ExpectedDataPlane(mock, cases)

			results := runCases(mock, cases)
			Expect(results).To(HaveLen(len(cases)))
			for _, result := range results {
				Expect(result.Status).To(Equal(connectivity.CaseStatusPass), "%s: %s", result.TestCaseID, result.Reason)
			}
			Expect(mock.NamespaceNames()).To(BeEmpty())

			report := coverage.Aggregate(results)
			Expect(report.Overall).To(Equal(100.0))
			Expect(report.Categories[CategoryRecipe].Total).To(Equal(len(AllRecipes)))
			Expect(report.Categories[CategoryUnit].Total).To(Equal(3))
			Expect(report.Categories[CategoryIntegration].Total).To(Equal(1))
		})
	})

	Describe("Scenarios", func() {
		var mock *kube.MockKubernetes

		BeforeEach(func() {
			mock = kube.NewMockKubernetes()
		})

		It("A: with no policies, traffic is allowed and nothing is applied", func() {
			mock.ExecHandler = connectivity.ExpectedDataPlane(mock, Scenarios())
			results := runCases(mock, []*connectivity.TestCase{ScenarioA()})
			Expect(results[0].Status).To(Equal(connectivity.CaseStatusPass))
			Expect(results[0].ProbeResults[0].Observed).To(Equal(connectivity.OutcomeAllow))
			Expect(mock.AppliedPolicies).To(BeEmpty())
		})

		It("B: an unrelated source observes Deny", func() {
			mock.ExecHandler = connectivity.ExpectedDataPlane(mock, Scenarios())
			results := runCases(mock, []*connectivity.TestCase{ScenarioB()})
			Expect(results[0].Status).To(Equal(connectivity.CaseStatusPass))
			Expect(results[0].ProbeResults[0].Observed).To(Equal(connectivity.OutcomeDeny))
			Expect(mock.AppliedPolicies[0].Spec.Ingress).To(BeEmpty())
		})

		It("C: fails when the unlabeled source gets through", func() {
			mock.ExecHandler = flip(connectivity.ExpectedDataPlane(mock, Scenarios()), mock, "unlabeled", "server")
			results := runCases(mock, []*connectivity.TestCase{ScenarioC()})
			Expect(results[0].Status).To(Equal(connectivity.CaseStatusFail))
			Expect(results[0].FailedExpectations).To(HaveLen(1))
			Expect(results[0].FailedExpectations[0].Expectation.From).To(Equal("unlabeled"))
			Expect(results[0].FailedExpectations[0].FailureKind()).To(Equal(connectivity.ErrorKindAssertionMismatch))
		})

		It("D: fails when the policies are not treated as a union", func() {
			mock.ExecHandler = flip(connectivity.ExpectedDataPlane(mock, Scenarios()), mock, "y", "server")
			results := runCases(mock, []*connectivity.TestCase{ScenarioD()})
			Expect(results[0].Status).To(Equal(connectivity.CaseStatusFail))
			Expect(results[0].FailedExpectations[0].Expectation.From).To(Equal("y"))
			Expect(mock.AppliedPolicies).To(HaveLen(2))
		})

		It("skips egress recipes on a plugin without egress support", func() {
			cfg := fastConfig()
			cfg.CNI = "calico"
			cfg.Capabilities = map[string]bool{"egress": false}
			runner, err := connectivity.NewCaseRunner(mock, cfg, "recipes-test")
			Expect(err).To(BeNil())

			testCase, err := Recipe12Case.TestCase()
			Expect(err).To(BeNil())
			result := runner.Run(context.TODO(), testCase)
			Expect(result.Status).To(Equal(connectivity.CaseStatusSkip))
			Expect(mock.NamespaceCreates).To(Equal(0))
		})
	})
}
