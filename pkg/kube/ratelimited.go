package kube

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	v1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
)

// RateLimitedKubernetes throttles every call to the wrapped client through one token bucket,
// shared by all workers.
type RateLimitedKubernetes struct {
	Kubernetes IKubernetes
	Limiter    *rate.Limiter
}

func NewRateLimitedKubernetes(kubernetes IKubernetes, qps float64, burst int) *RateLimitedKubernetes {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(qps)
	if qps <= 0 {
		limit = rate.Inf
	}
	return &RateLimitedKubernetes{
		Kubernetes: kubernetes,
		Limiter:    rate.NewLimiter(limit, burst),
	}
}

func (r *RateLimitedKubernetes) wait(ctx context.Context, operation string) error {
	return errors.Wrapf(r.Limiter.Wait(ctx), "rate limiter wait for %s", operation)
}

func (r *RateLimitedKubernetes) CreateNamespace(ctx context.Context, ns *v1.Namespace) (*v1.Namespace, error) {
	if err := r.wait(ctx, "create namespace"); err != nil {
		return nil, err
	}
	return r.Kubernetes.CreateNamespace(ctx, ns)
}

func (r *RateLimitedKubernetes) DeleteNamespace(ctx context.Context, ns string) error {
	if err := r.wait(ctx, "delete namespace"); err != nil {
		return err
	}
	return r.Kubernetes.DeleteNamespace(ctx, ns)
}

func (r *RateLimitedKubernetes) GetNamespacesByLabel(ctx context.Context, selector string) ([]v1.Namespace, error) {
	if err := r.wait(ctx, "list namespaces"); err != nil {
		return nil, err
	}
	return r.Kubernetes.GetNamespacesByLabel(ctx, selector)
}

func (r *RateLimitedKubernetes) CreatePod(ctx context.Context, pod *v1.Pod) (*v1.Pod, error) {
	if err := r.wait(ctx, "create pod"); err != nil {
		return nil, err
	}
	return r.Kubernetes.CreatePod(ctx, pod)
}

func (r *RateLimitedKubernetes) GetPod(ctx context.Context, namespace string, podName string) (*v1.Pod, error) {
	if err := r.wait(ctx, "get pod"); err != nil {
		return nil, err
	}
	return r.Kubernetes.GetPod(ctx, namespace, podName)
}

func (r *RateLimitedKubernetes) ApplyNetworkPolicy(ctx context.Context, policy *networkingv1.NetworkPolicy) (*networkingv1.NetworkPolicy, error) {
	if err := r.wait(ctx, "apply network policy"); err != nil {
		return nil, err
	}
	return r.Kubernetes.ApplyNetworkPolicy(ctx, policy)
}

func (r *RateLimitedKubernetes) GetNetworkPoliciesInNamespaces(ctx context.Context, namespaces []string) ([]networkingv1.NetworkPolicy, error) {
	if err := r.wait(ctx, "list network policies"); err != nil {
		return nil, err
	}
	return r.Kubernetes.GetNetworkPoliciesInNamespaces(ctx, namespaces)
}

func (r *RateLimitedKubernetes) ExecuteRemoteCommand(ctx context.Context, namespace string, pod string, container string, command []string) (string, string, error, error) {
	if err := r.wait(ctx, "exec"); err != nil {
		return "", "", nil, err
	}
	return r.Kubernetes.ExecuteRemoteCommand(ctx, namespace, pod, container, command)
}
