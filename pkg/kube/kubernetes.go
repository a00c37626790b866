package kube

import (
	"bytes"
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	v1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	kerrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/remotecommand"
	"k8s.io/client-go/util/exec"
)

type Kubernetes struct {
	ClientSet  kubernetes.Interface
	RestConfig *rest.Config
}

// NewKubernetesForContext builds a client from the default kubeconfig loading rules; an empty
// context means the kubeconfig's current context.  It falls back to in-cluster config.
func NewKubernetesForContext(context string) (*Kubernetes, error) {
	log.Debugf("instantiating k8s Clientset for context %s", context)
	kubeConfig, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		clientcmd.NewDefaultClientConfigLoadingRules(),
		&clientcmd.ConfigOverrides{CurrentContext: context}).ClientConfig()
	if err != nil {
		log.Debugf("unable to load kubeconfig (%+v), trying in-cluster config", err)
		kubeConfig, err = rest.InClusterConfig()
		if err != nil {
			return nil, errors.Wrapf(err, "unable to build config from kubeconfig or in-cluster; check that your KUBECONFIG file is correct")
		}
	}
	// the harness rate limits itself; don't let client-go's defaults throttle underneath it
	kubeConfig.QPS = 100
	kubeConfig.Burst = 200
	clientset, err := kubernetes.NewForConfig(kubeConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to instantiate Clientset")
	}
	return &Kubernetes{
		ClientSet:  clientset,
		RestConfig: kubeConfig,
	}, nil
}

func (k *Kubernetes) ServerVersion() (string, error) {
	info, err := k.ClientSet.Discovery().ServerVersion()
	if err != nil {
		return "", errors.Wrapf(err, "unable to get server version")
	}
	return info.GitVersion, nil
}

func (k *Kubernetes) CreateNamespace(ctx context.Context, ns *v1.Namespace) (*v1.Namespace, error) {
	log.Debugf("creating namespace %s", ns.Name)
	created, err := k.ClientSet.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
	return created, errors.Wrapf(err, "unable to create namespace %s", ns.Name)
}

func (k *Kubernetes) DeleteNamespace(ctx context.Context, ns string) error {
	log.Debugf("deleting namespace %s", ns)
	background := metav1.DeletePropagationBackground
	err := k.ClientSet.CoreV1().Namespaces().Delete(ctx, ns, metav1.DeleteOptions{PropagationPolicy: &background})
	return errors.Wrapf(err, "unable to delete namespace %s", ns)
}

func (k *Kubernetes) GetNamespacesByLabel(ctx context.Context, selector string) ([]v1.Namespace, error) {
	list, err := k.ClientSet.CoreV1().Namespaces().List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list namespaces with selector %s", selector)
	}
	return list.Items, nil
}

func (k *Kubernetes) CreatePod(ctx context.Context, pod *v1.Pod) (*v1.Pod, error) {
	log.Debugf("creating pod %s/%s", pod.Namespace, pod.Name)
	created, err := k.ClientSet.CoreV1().Pods(pod.Namespace).Create(ctx, pod, metav1.CreateOptions{})
	return created, errors.Wrapf(err, "unable to create pod %s/%s", pod.Namespace, pod.Name)
}

func (k *Kubernetes) GetPod(ctx context.Context, namespace string, podName string) (*v1.Pod, error) {
	pod, err := k.ClientSet.CoreV1().Pods(namespace).Get(ctx, podName, metav1.GetOptions{})
	return pod, errors.Wrapf(err, "unable to get pod %s/%s", namespace, podName)
}

// ApplyNetworkPolicy creates the policy, or updates it in place if it already exists.
func (k *Kubernetes) ApplyNetworkPolicy(ctx context.Context, netpol *networkingv1.NetworkPolicy) (*networkingv1.NetworkPolicy, error) {
	ns := netpol.Namespace
	log.Debugf("applying network policy %s/%s", ns, netpol.Name)
	created, err := k.ClientSet.NetworkingV1().NetworkPolicies(ns).Create(ctx, netpol, metav1.CreateOptions{})
	if err == nil {
		return created, nil
	}
	if !kerrors.IsAlreadyExists(err) {
		return nil, errors.Wrapf(err, "unable to create network policy %s/%s", ns, netpol.Name)
	}

	log.Debugf("network policy %s/%s already exists, updating it instead", ns, netpol.Name)
	existing, err := k.ClientSet.NetworkingV1().NetworkPolicies(ns).Get(ctx, netpol.Name, metav1.GetOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to get network policy %s/%s", ns, netpol.Name)
	}
	updated := netpol.DeepCopy()
	updated.ResourceVersion = existing.ResourceVersion
	result, err := k.ClientSet.NetworkingV1().NetworkPolicies(ns).Update(ctx, updated, metav1.UpdateOptions{})
	return result, errors.Wrapf(err, "unable to update network policy %s/%s", ns, netpol.Name)
}

func (k *Kubernetes) GetNetworkPoliciesInNamespaces(ctx context.Context, namespaces []string) ([]networkingv1.NetworkPolicy, error) {
	var allNetpols []networkingv1.NetworkPolicy
	for _, ns := range namespaces {
		netpols, err := k.ClientSet.NetworkingV1().NetworkPolicies(ns).List(ctx, metav1.ListOptions{})
		if err != nil {
			return nil, errors.Wrapf(err, "unable to list network policies in ns %s", ns)
		}
		allNetpols = append(allNetpols, netpols.Items...)
	}
	return allNetpols, nil
}

// ExecuteRemoteCommand executes a remote shell command on the given pod
// returns the output from stdout and stderr
func (k *Kubernetes) ExecuteRemoteCommand(ctx context.Context, namespace string, pod string, container string, command []string) (string, string, error, error) {
	if k.RestConfig == nil {
		return "", "", nil, errors.Errorf("unable to exec in %s/%s: no rest config", namespace, pod)
	}
	request := k.ClientSet.
		CoreV1().
		RESTClient().
		Post().
		Namespace(namespace).
		Resource("pods").
		Name(pod).
		SubResource("exec").
		VersionedParams(
			&v1.PodExecOptions{
				Container: container,
				Command:   command,
				Stdin:     false,
				Stdout:    true,
				Stderr:    true,
				TTY:       false,
			},
			scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(k.RestConfig, "POST", request.URL())
	if err != nil {
		return "", "", nil, errors.Wrapf(err, "unable to instantiate SPDYExecutor")
	}

	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	err = executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: buf,
		Stderr: errBuf,
	})

	out, errOut := buf.String(), errBuf.String()
	if err != nil {
		// a non-zero exit is the command's result; anything else means we couldn't run it
		var exitErr exec.CodeExitError
		if errors.As(err, &exitErr) {
			return out, errOut, exitErr, nil
		}
		return out, errOut, nil, errors.Wrapf(err, "unable to stream exec to %s/%s/%s", namespace, pod, container)
	}
	return out, errOut, nil, nil
}
