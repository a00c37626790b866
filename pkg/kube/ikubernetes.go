package kube

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	v1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	kerrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/util/exec"
)

// IKubernetes is the slice of the orchestration API that the harness consumes.
type IKubernetes interface {
	CreateNamespace(ctx context.Context, ns *v1.Namespace) (*v1.Namespace, error)
	DeleteNamespace(ctx context.Context, ns string) error
	GetNamespacesByLabel(ctx context.Context, selector string) ([]v1.Namespace, error)

	CreatePod(ctx context.Context, pod *v1.Pod) (*v1.Pod, error)
	GetPod(ctx context.Context, namespace string, podName string) (*v1.Pod, error)

	ApplyNetworkPolicy(ctx context.Context, policy *networkingv1.NetworkPolicy) (*networkingv1.NetworkPolicy, error)
	GetNetworkPoliciesInNamespaces(ctx context.Context, namespaces []string) ([]networkingv1.NetworkPolicy, error)

	// ExecuteRemoteCommand returns stdout, stderr, the command's own error (for example a
	// non-zero exit code), and an error if the command could not be run at all.
	ExecuteRemoteCommand(ctx context.Context, namespace string, pod string, container string, command []string) (string, string, error, error)
}

var (
	namespacesResource      = schema.GroupResource{Resource: "namespaces"}
	podsResource            = schema.GroupResource{Resource: "pods"}
	networkPoliciesResource = schema.GroupResource{Group: "networking.k8s.io", Resource: "networkpolicies"}
)

// MockExecHandler plays the role of the data plane for MockKubernetes.  It receives the pod the
// command runs in, and returns stdout, stderr, and the command error.
type MockExecHandler func(from *v1.Pod, container string, command []string) (string, string, error)

// AllowAllExecHandler answers every probe with an HTTP 200.
func AllowAllExecHandler(from *v1.Pod, container string, command []string) (string, string, error) {
	return "200", "", nil
}

// MockExitError builds the error a real exec returns for a non-zero exit code.
func MockExitError(code int, stderr string) error {
	return exec.CodeExitError{Err: errors.New(stderr), Code: code}
}

// ParseProbeTarget pulls the "host:port" out of a probe command's URL.
func ParseProbeTarget(command []string) (string, int, error) {
	for _, arg := range command {
		if !strings.HasPrefix(arg, "http://") {
			continue
		}
		u, err := url.Parse(arg)
		if err != nil {
			return "", 0, errors.Wrapf(err, "unable to parse url %s", arg)
		}
		port, err := strconv.Atoi(u.Port())
		if err != nil {
			return "", 0, errors.Wrapf(err, "unable to parse port from %s", arg)
		}
		return u.Hostname(), port, nil
	}
	return "", 0, errors.Errorf("no url found in command %+v", command)
}

type MockNamespace struct {
	NamespaceObject *v1.Namespace
	Netpols         map[string]*networkingv1.NetworkPolicy
	Pods            map[string]*v1.Pod
}

// MockKubernetes is an in-memory IKubernetes.  It is safe for concurrent use, so that the
// scheduler can be exercised with many workers against one mock.
type MockKubernetes struct {
	lock       sync.Mutex
	namespaces map[string]*MockNamespace
	podID      int

	// ExecHandler answers ExecuteRemoteCommand; nil means AllowAllExecHandler.
	ExecHandler MockExecHandler
	// NeverReadyPods holds pod names that never reach Running.
	NeverReadyPods map[string]bool
	// NamespaceCreateErrors are returned, in order, by successive CreateNamespace calls.
	NamespaceCreateErrors []error
	// NamespaceCreateLostResponses are returned, in order, by successive CreateNamespace calls
	// that did create the namespace, as when the response is lost in transit.
	NamespaceCreateLostResponses []error
	// PolicyApplyError, if set, is returned by every ApplyNetworkPolicy call.
	PolicyApplyError error
	// ExecSetupError, if set, is returned as the setup error of every ExecuteRemoteCommand call.
	ExecSetupError error
	// DeleteNamespaceError, if set, is returned by every DeleteNamespace call.
	DeleteNamespaceError error

	NamespaceCreates  int
	DeletedNamespaces []string
	AppliedPolicies   []*networkingv1.NetworkPolicy
	ExecutedCommands  int
}

func NewMockKubernetes() *MockKubernetes {
	return &MockKubernetes{
		namespaces:     map[string]*MockNamespace{},
		podID:          1,
		NeverReadyPods: map[string]bool{},
	}
}

func (m *MockKubernetes) getNamespaceObject(namespace string) (*MockNamespace, error) {
	if ns, ok := m.namespaces[namespace]; ok {
		return ns, nil
	}
	return nil, kerrors.NewNotFound(namespacesResource, namespace)
}

func (m *MockKubernetes) CreateNamespace(ctx context.Context, ns *v1.Namespace) (*v1.Namespace, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.NamespaceCreates++
	if len(m.NamespaceCreateErrors) > 0 {
		err := m.NamespaceCreateErrors[0]
		m.NamespaceCreateErrors = m.NamespaceCreateErrors[1:]
		if err != nil {
			return nil, err
		}
	}
	if _, ok := m.namespaces[ns.Name]; ok {
		return nil, kerrors.NewAlreadyExists(namespacesResource, ns.Name)
	}
	created := ns.DeepCopy()
	m.namespaces[ns.Name] = &MockNamespace{
		NamespaceObject: created,
		Netpols:         map[string]*networkingv1.NetworkPolicy{},
		Pods:            map[string]*v1.Pod{},
	}
	if len(m.NamespaceCreateLostResponses) > 0 {
		err := m.NamespaceCreateLostResponses[0]
		m.NamespaceCreateLostResponses = m.NamespaceCreateLostResponses[1:]
		if err != nil {
			return nil, err
		}
	}
	return created, nil
}

func (m *MockKubernetes) DeleteNamespace(ctx context.Context, ns string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.DeleteNamespaceError != nil {
		return m.DeleteNamespaceError
	}
	if _, ok := m.namespaces[ns]; !ok {
		return kerrors.NewNotFound(namespacesResource, ns)
	}
	delete(m.namespaces, ns)
	m.DeletedNamespaces = append(m.DeletedNamespaces, ns)
	return nil
}

func (m *MockKubernetes) GetNamespacesByLabel(ctx context.Context, selector string) ([]v1.Namespace, error) {
	parsed, err := labels.Parse(selector)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to parse label selector %s", selector)
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	var namespaces []v1.Namespace
	for _, ns := range m.namespaces {
		if parsed.Matches(labels.Set(ns.NamespaceObject.Labels)) {
			namespaces = append(namespaces, *ns.NamespaceObject.DeepCopy())
		}
	}
	return namespaces, nil
}

// NamespaceNames lists the namespaces currently present.
func (m *MockKubernetes) NamespaceNames() []string {
	m.lock.Lock()
	defer m.lock.Unlock()

	var names []string
	for name := range m.namespaces {
		names = append(names, name)
	}
	return names
}

func (m *MockKubernetes) CreatePod(ctx context.Context, pod *v1.Pod) (*v1.Pod, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	nsObject, err := m.getNamespaceObject(pod.Namespace)
	if err != nil {
		return nil, err
	}
	if _, ok := nsObject.Pods[pod.Name]; ok {
		return nil, kerrors.NewAlreadyExists(podsResource, pod.Name)
	}
	created := pod.DeepCopy()
	created.Status.Phase = v1.PodPending
	nsObject.Pods[pod.Name] = created
	return created.DeepCopy(), nil
}

// GetPod moves pods to Running, with an IP and ready containers, the first time they're read --
// unless they're listed in NeverReadyPods.
func (m *MockKubernetes) GetPod(ctx context.Context, namespace string, podName string) (*v1.Pod, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	nsObject, err := m.getNamespaceObject(namespace)
	if err != nil {
		return nil, err
	}
	pod, ok := nsObject.Pods[podName]
	if !ok {
		return nil, kerrors.NewNotFound(podsResource, podName)
	}
	if pod.Status.Phase == v1.PodPending && !m.NeverReadyPods[podName] {
		pod.Status.Phase = v1.PodRunning
		pod.Status.PodIP = fmt.Sprintf("10.%d.%d.%d", (m.podID>>16)&0xff, (m.podID>>8)&0xff, m.podID&0xff)
		m.podID++
		for _, cont := range pod.Spec.Containers {
			pod.Status.ContainerStatuses = append(pod.Status.ContainerStatuses, v1.ContainerStatus{Name: cont.Name, Ready: true})
		}
	}
	return pod.DeepCopy(), nil
}

// NamespaceLabels returns a namespace's labels, or nil if it doesn't exist.
func (m *MockKubernetes) NamespaceLabels(namespace string) map[string]string {
	m.lock.Lock()
	defer m.lock.Unlock()

	if ns, ok := m.namespaces[namespace]; ok {
		return ns.NamespaceObject.DeepCopy().Labels
	}
	return nil
}

// PodByIP finds a running pod by its IP.
func (m *MockKubernetes) PodByIP(ip string) *v1.Pod {
	m.lock.Lock()
	defer m.lock.Unlock()

	for _, ns := range m.namespaces {
		for _, pod := range ns.Pods {
			if pod.Status.PodIP == ip {
				return pod.DeepCopy()
			}
		}
	}
	return nil
}

func (m *MockKubernetes) ApplyNetworkPolicy(ctx context.Context, policy *networkingv1.NetworkPolicy) (*networkingv1.NetworkPolicy, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.PolicyApplyError != nil {
		return nil, m.PolicyApplyError
	}
	nsObject, err := m.getNamespaceObject(policy.Namespace)
	if err != nil {
		return nil, err
	}
	applied := policy.DeepCopy()
	nsObject.Netpols[policy.Name] = applied
	m.AppliedPolicies = append(m.AppliedPolicies, applied)
	return applied.DeepCopy(), nil
}

func (m *MockKubernetes) GetNetworkPoliciesInNamespaces(ctx context.Context, namespaces []string) ([]networkingv1.NetworkPolicy, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	var netpols []networkingv1.NetworkPolicy
	for _, ns := range namespaces {
		nsObject, err := m.getNamespaceObject(ns)
		if err != nil {
			return nil, err
		}
		for _, netpol := range nsObject.Netpols {
			netpols = append(netpols, *netpol.DeepCopy())
		}
	}
	return netpols, nil
}

func (m *MockKubernetes) ExecuteRemoteCommand(ctx context.Context, namespace string, pod string, container string, command []string) (string, string, error, error) {
	m.lock.Lock()
	m.ExecutedCommands++
	if m.ExecSetupError != nil {
		err := m.ExecSetupError
		m.lock.Unlock()
		return "", "", nil, err
	}
	nsObject, err := m.getNamespaceObject(namespace)
	if err != nil {
		m.lock.Unlock()
		return "", "", nil, err
	}
	podObject, ok := nsObject.Pods[pod]
	if !ok {
		m.lock.Unlock()
		return "", "", nil, kerrors.NewNotFound(podsResource, pod)
	}
	found := false
	for _, cont := range podObject.Spec.Containers {
		if cont.Name == container {
			found = true
			break
		}
	}
	from := podObject.DeepCopy()
	handler := m.ExecHandler
	m.lock.Unlock()

	if !found {
		return "", "", nil, errors.Errorf("container %s/%s/%s not found", namespace, pod, container)
	}
	if handler == nil {
		handler = AllowAllExecHandler
	}
	// the handler runs without the lock held, so that it can call back into the mock
	stdout, stderr, commandErr := handler(from, container, command)
	return stdout, stderr, commandErr, nil
}
