package kube

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	v1 "k8s.io/api/core/v1"
	kerrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func mockPod(namespace string, name string) *v1.Pod {
	return &v1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec:       v1.PodSpec{Containers: []v1.Container{{Name: "cont-80"}}},
	}
}

func RunMockKubernetesTests() {
	Describe("MockKubernetes", func() {
		var mock *MockKubernetes
		ctx := context.TODO()

		BeforeEach(func() {
			mock = NewMockKubernetes()
			_, err := mock.CreateNamespace(ctx, &v1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "x", Labels: map[string]string{"run": "abc"}}})
			Expect(err).To(BeNil())
		})

		It("returns scripted namespace errors in order", func() {
			mock.NamespaceCreateErrors = []error{kerrors.NewServerTimeout(namespacesResource, "create", 1), nil}
			_, err := mock.CreateNamespace(ctx, &v1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "y"}})
			Expect(IsTransient(err)).To(BeTrue())
			_, err = mock.CreateNamespace(ctx, &v1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "y"}})
			Expect(err).To(BeNil())
			_, err = mock.CreateNamespace(ctx, &v1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "y"}})
			Expect(IsAlreadyExists(err)).To(BeTrue())
			Expect(mock.NamespaceCreates).To(Equal(4))
		})

		It("moves pods to ready on first read", func() {
			_, err := mock.CreatePod(ctx, mockPod("x", "a"))
			Expect(err).To(BeNil())

			pod, err := mock.GetPod(ctx, "x", "a")
			Expect(err).To(BeNil())
			Expect(pod.Status.Phase).To(Equal(v1.PodRunning))
			Expect(pod.Status.PodIP).To(Equal("10.0.0.1"))
			Expect(pod.Status.ContainerStatuses).To(HaveLen(1))
			Expect(pod.Status.ContainerStatuses[0].Ready).To(BeTrue())
			Expect(mock.PodByIP("10.0.0.1").Name).To(Equal("a"))
		})

		It("leaves never-ready pods pending", func() {
			mock.NeverReadyPods["a"] = true
			_, err := mock.CreatePod(ctx, mockPod("x", "a"))
			Expect(err).To(BeNil())

			pod, err := mock.GetPod(ctx, "x", "a")
			Expect(err).To(BeNil())
			Expect(pod.Status.Phase).To(Equal(v1.PodPending))
		})

		It("rejects pods in missing namespaces", func() {
			_, err := mock.CreatePod(ctx, mockPod("nope", "a"))
			Expect(kerrors.IsNotFound(err)).To(BeTrue())
		})

		It("routes exec to the handler", func() {
			_, err := mock.CreatePod(ctx, mockPod("x", "a"))
			Expect(err).To(BeNil())
			var seen []string
			mock.ExecHandler = func(from *v1.Pod, container string, command []string) (string, string, error) {
				seen = command
				return "", "connection refused", MockExitError(7, "exit 7")
			}

			out, errOut, commandErr, err := mock.ExecuteRemoteCommand(ctx, "x", "a", "cont-80", []string{"curl", "http://10.0.0.9:80/"})
			Expect(err).To(BeNil())
			Expect(out).To(Equal(""))
			Expect(errOut).To(Equal("connection refused"))
			Expect(commandErr).ToNot(BeNil())
			Expect(seen).To(Equal([]string{"curl", "http://10.0.0.9:80/"}))
			Expect(mock.ExecutedCommands).To(Equal(1))

			_, _, _, err = mock.ExecuteRemoteCommand(ctx, "x", "a", "missing", []string{"true"})
			Expect(err).ToNot(BeNil())
		})

		It("reports exec setup errors", func() {
			_, err := mock.CreatePod(ctx, mockPod("x", "a"))
			Expect(err).To(BeNil())
			mock.ExecSetupError = errors.New("stream closed")

			_, _, commandErr, err := mock.ExecuteRemoteCommand(ctx, "x", "a", "cont-80", []string{"true"})
			Expect(commandErr).To(BeNil())
			Expect(err).To(MatchError("stream closed"))
		})

		It("selects namespaces by label and forgets deleted ones", func() {
			namespaces, err := mock.GetNamespacesByLabel(ctx, "run=abc")
			Expect(err).To(BeNil())
			Expect(namespaces).To(HaveLen(1))

			Expect(mock.DeleteNamespace(ctx, "x")).To(Succeed())
			Expect(mock.DeletedNamespaces).To(Equal([]string{"x"}))
			Expect(mock.NamespaceNames()).To(BeEmpty())
			Expect(kerrors.IsNotFound(mock.DeleteNamespace(ctx, "x"))).To(BeTrue())
		})

		It("replaces policies on re-apply", func() {
			_, err := mock.ApplyNetworkPolicy(ctx, denyAllPolicy("x"))
			Expect(err).To(BeNil())
			_, err = mock.ApplyNetworkPolicy(ctx, denyAllPolicy("x"))
			Expect(err).To(BeNil())

			policies, err := mock.GetNetworkPoliciesInNamespaces(ctx, []string{"x"})
			Expect(err).To(BeNil())
			Expect(policies).To(HaveLen(1))
			Expect(mock.AppliedPolicies).To(HaveLen(2))
		})
	})

	Describe("ParseProbeTarget", func() {
		It("finds the host and port of a probe url", func() {
			host, port, err := ParseProbeTarget([]string{"curl", "-sS", "http://10.1.2.3:8080/"})
			Expect(err).To(BeNil())
			Expect(host).To(Equal("10.1.2.3"))
			Expect(port).To(Equal(8080))
		})

		It("fails without a url", func() {
			_, _, err := ParseProbeTarget([]string{"true"})
			Expect(err).ToNot(BeNil())
		})
	})
}
