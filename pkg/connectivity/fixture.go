package connectivity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mattfenwick/netpol-harness/pkg/kube"
	"github.com/mattfenwick/netpol-harness/pkg/utils"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
)

const FixtureLabel = "netpol-harness/fixture"

// Fixture is a deployed, ready FixtureSpec.
type Fixture struct {
	Spec      FixtureSpec
	Namespace string
	PodName   string
	IP        string
	Ports     []int
}

// Container is the container probes are executed from.
func (f *Fixture) Container() string {
	return containerName(f.Ports[0])
}

func (f *Fixture) ServesPort(port int) bool {
	return containsInt(f.Ports, port)
}

func containerName(port int) string {
	return fmt.Sprintf("cont-%d", port)
}

type FixtureDeployer struct {
	Kubernetes    kube.IKubernetes
	Image         string
	DefaultPort   int
	ReadyInterval time.Duration
	ReadyTimeout  time.Duration
}

func (d *FixtureDeployer) ports(spec FixtureSpec) []int {
	if len(spec.Ports) > 0 {
		return spec.Ports
	}
	return []int{d.DefaultPort}
}

// Pod builds the pod for a fixture: one agnhost HTTP server container per port.  Readiness is
// an HTTP check, so that a ready fixture is one that is actually serving.
func (d *FixtureDeployer) Pod(namespace string, spec FixtureSpec) *v1.Pod {
	labels := map[string]string{}
	for k, v := range spec.Labels {
		labels[k] = v
	}
	labels[FixtureLabel] = spec.Name

	var containers []v1.Container
	for _, port := range d.ports(spec) {
		containers = append(containers, v1.Container{
			Name:            containerName(port),
			Image:           d.Image,
			ImagePullPolicy: v1.PullIfNotPresent,
			Command:         []string{"/agnhost", "serve-hostname", "--http", "--port", fmt.Sprintf("%d", port)},
			SecurityContext: &v1.SecurityContext{},
			Ports: []v1.ContainerPort{{
				ContainerPort: int32(port),
				Name:          fmt.Sprintf("serve-%d", port),
				Protocol:      v1.ProtocolTCP,
			}},
			ReadinessProbe: &v1.Probe{
				ProbeHandler: v1.ProbeHandler{
					HTTPGet: &v1.HTTPGetAction{Path: "/", Port: intstr.FromInt32(int32(port))},
				},
				PeriodSeconds:    1,
				FailureThreshold: 3,
			},
		})
	}

	zero := int64(0)
	return &v1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      spec.Name,
			Namespace: namespace,
			Labels:    labels,
		},
		Spec: v1.PodSpec{
			TerminationGracePeriodSeconds: &zero,
			Containers:                    containers,
		},
	}
}

// Deploy creates every fixture, then waits until all of them are running, have an IP and report
// ready.  Any failure is a SetupFailure.
func (d *FixtureDeployer) Deploy(ctx context.Context, namespaces map[string]*NamespaceHandle, specs []FixtureSpec) (map[string]*Fixture, error) {
	fixtures := map[string]*Fixture{}
	for _, spec := range specs {
		handle, ok := namespaces[spec.Namespace]
		if !ok {
			return nil, SetupFailure(nil, "fixture %s: no namespace for alias '%s'", spec.Name, spec.Namespace)
		}
		if _, err := d.Kubernetes.CreatePod(ctx, d.Pod(handle.Name, spec)); err != nil {
			return nil, SetupFailure(err, "unable to create fixture %s", spec.Name)
		}
		fixtures[spec.Name] = &Fixture{Spec: spec, Namespace: handle.Name, PodName: spec.Name, Ports: d.ports(spec)}
	}

	pending := map[string]bool{}
	for name := range fixtures {
		pending[name] = true
	}
	_, err := utils.Poll{Interval: d.ReadyInterval, Timeout: d.ReadyTimeout}.Until(ctx, func(ctx context.Context) (bool, error) {
		for name := range pending {
			fixture := fixtures[name]
			pod, err := d.Kubernetes.GetPod(ctx, fixture.Namespace, fixture.PodName)
			if err != nil {
				if kube.IsTransient(err) {
					log.Debugf("transient error reading fixture %s: %v", name, err)
					continue
				}
				return false, err
			}
			if pod.Status.Phase == v1.PodFailed || pod.Status.Phase == v1.PodSucceeded {
				return false, errors.Errorf("fixture %s exited with phase %s", name, pod.Status.Phase)
			}
			if isPodReady(pod) {
				fixture.IP = pod.Status.PodIP
				delete(pending, name)
			}
		}
		return len(pending) == 0, nil
	})
	if err != nil {
		return nil, SetupFailure(err, "fixtures not ready: %s", strings.Join(sortedKeys(pending), ", "))
	}
	return fixtures, nil
}

func isPodReady(pod *v1.Pod) bool {
	if pod.Status.Phase != v1.PodRunning || pod.Status.PodIP == "" {
		return false
	}
	if len(pod.Status.ContainerStatuses) < len(pod.Spec.Containers) {
		return false
	}
	for _, status := range pod.Status.ContainerStatuses {
		if !status.Ready {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]bool) []string {
	var keys []string
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
