package connectivity

import (
	"context"
	"time"

	"github.com/mattfenwick/netpol-harness/pkg/config"
	"github.com/mattfenwick/netpol-harness/pkg/kube"
	"github.com/mattfenwick/netpol-harness/pkg/utils"
	log "github.com/sirupsen/logrus"
	networkingv1 "k8s.io/api/networking/v1"
)

// CanaryFunc reports whether the data plane is answering probes yet.
type CanaryFunc func(ctx context.Context) (bool, error)

type PolicyApplier struct {
	Kubernetes kube.IKubernetes
	// Mode is config.PolicyModeFixed or config.PolicyModeAdaptive.
	Mode             string
	PropagationDelay time.Duration
	AdaptiveInterval time.Duration
	AdaptiveCeiling  time.Duration
}

// Resolve copies policies into the case's generated namespaces.  A policy's namespace field holds
// a namespace alias, not a real namespace.
func (a *PolicyApplier) Resolve(namespaces map[string]*NamespaceHandle, policies []*networkingv1.NetworkPolicy) ([]*networkingv1.NetworkPolicy, error) {
	var resolved []*networkingv1.NetworkPolicy
	for _, policy := range policies {
		handle, ok := namespaces[policy.Namespace]
		if !ok {
			return nil, PolicyApplyFailure(nil, "policy %s: no namespace for alias '%s'", policy.Name, policy.Namespace)
		}
		copied := policy.DeepCopy()
		copied.Namespace = handle.Name
		copied.ResourceVersion = ""
		copied.UID = ""
		resolved = append(resolved, copied)
	}
	return resolved, nil
}

// Apply submits every policy, then holds until the propagation window has passed.  With no
// policies there is nothing to propagate, so it returns immediately.
func (a *PolicyApplier) Apply(ctx context.Context, namespaces map[string]*NamespaceHandle, policies []*networkingv1.NetworkPolicy, canary CanaryFunc) ([]*networkingv1.NetworkPolicy, error) {
	resolved, err := a.Resolve(namespaces, policies)
	if err != nil {
		return nil, err
	}
	if len(resolved) == 0 {
		return nil, nil
	}
	for _, policy := range resolved {
		if _, err := a.Kubernetes.ApplyNetworkPolicy(ctx, policy); err != nil {
			log.WithFields(log.Fields{"namespace": policy.Namespace, "policy": policy.Name}).Errorf("policy rejected: %v", err)
			return resolved, PolicyApplyFailure(err, "unable to apply policy %s/%s", policy.Namespace, policy.Name)
		}
	}

	if err := a.waitForPropagation(ctx, canary); err != nil {
		return resolved, err
	}
	return resolved, nil
}

func (a *PolicyApplier) waitForPropagation(ctx context.Context, canary CanaryFunc) error {
	if a.Mode != config.PolicyModeAdaptive || canary == nil {
		log.Debugf("waiting %s for policies to propagate", a.PropagationDelay)
		return utils.Sleep(ctx, a.PropagationDelay)
	}

	start := time.Now()
	attempts, err := utils.Poll{Interval: a.AdaptiveInterval, Timeout: a.AdaptiveCeiling}.Until(ctx, func(ctx context.Context) (bool, error) {
		ok, err := canary(ctx)
		if err != nil {
			log.Debugf("canary probe failed: %v", err)
			return false, nil
		}
		return ok, nil
	})
	if err == nil {
		log.Debugf("canary succeeded after %d attempts, %s", attempts, time.Since(start))
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	log.Debugf("canary did not succeed within %s (%d attempts), waiting another %s", a.AdaptiveCeiling, attempts, a.PropagationDelay)
	return utils.Sleep(ctx, a.PropagationDelay)
}
