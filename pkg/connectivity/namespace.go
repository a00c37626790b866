package connectivity

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattfenwick/netpol-harness/pkg/kube"
	"github.com/mattfenwick/netpol-harness/pkg/utils"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"
)

const (
	ManagedLabel = "netpol-harness/managed"
	RunLabel     = "netpol-harness/run"
	CaseLabel    = "netpol-harness/case"
	AliasLabel   = "netpol-harness/alias"

	nameSuffixLength = 8
)

var invalidNameChars = regexp.MustCompile(`[^a-z0-9-]+`)

// NamespaceHandle is a namespace owned by exactly one running case.
type NamespaceHandle struct {
	Alias  string
	Name   string
	Labels map[string]string
	// Orphans are names from earlier create attempts that failed transiently.  The server may
	// have created them anyway, so they are deleted along with Name.
	Orphans []string
}

type NamespaceManager struct {
	Kubernetes     kube.IKubernetes
	Prefix         string
	RunID          string
	CreateAttempts int
	RetryInterval  time.Duration
	DeleteTimeout  time.Duration
	// NameSuffix is only replaced in tests; it defaults to a slice of a random uuid.
	NameSuffix func() string
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:nameSuffixLength]
}

// GenerateName returns <prefix>-<category>-<suffix>.  Random suffixes keep concurrently running
// cases apart without any shared counter.
func (m *NamespaceManager) GenerateName(category string) (string, error) {
	suffix := randomSuffix()
	if m.NameSuffix != nil {
		suffix = m.NameSuffix()
	}
	category = invalidNameChars.ReplaceAllString(strings.ToLower(category), "-")
	budget := validation.DNS1123LabelMaxLength - len(m.Prefix) - len(suffix) - 2
	if budget < 1 {
		return "", errors.Errorf("namespace prefix '%s' leaves no room for a category", m.Prefix)
	}
	if len(category) > budget {
		category = category[:budget]
	}
	category = strings.Trim(category, "-")
	if category == "" {
		category = "case"
	}
	name := fmt.Sprintf("%s-%s-%s", m.Prefix, category, suffix)
	if msgs := validation.IsDNS1123Label(name); len(msgs) > 0 {
		return "", errors.Errorf("generated invalid namespace name '%s': %s", name, strings.Join(msgs, "; "))
	}
	return name, nil
}

func (m *NamespaceManager) labels(testCase *TestCase, spec NamespaceSpec) map[string]string {
	labels := map[string]string{}
	for k, v := range spec.Labels {
		labels[k] = v
	}
	labels[ManagedLabel] = "true"
	if m.RunID != "" {
		labels[RunLabel] = m.RunID
	}
	if value := labelValue(testCase.ID); value != "" {
		labels[CaseLabel] = value
	}
	if value := labelValue(spec.Alias); value != "" {
		labels[AliasLabel] = value
	}
	return labels
}

// labelValue squeezes s into a valid label value, or "" if nothing of it survives.
func labelValue(s string) string {
	value := invalidLabelValueChars.ReplaceAllString(s, "-")
	if len(value) > validation.LabelValueMaxLength {
		value = value[:validation.LabelValueMaxLength]
	}
	value = strings.Trim(value, "-_.")
	if len(validation.IsValidLabelValue(value)) > 0 {
		return ""
	}
	return value
}

var invalidLabelValueChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Create makes a fresh namespace for one of a case's namespace specs.  Transient API errors are
// retried with a newly generated name each time; a name collision is a bug, so it isn't retried.
func (m *NamespaceManager) Create(ctx context.Context, testCase *TestCase, spec NamespaceSpec) (*NamespaceHandle, error) {
	labels := m.labels(testCase, spec)
	var handle *NamespaceHandle
	var lastErr error
	var orphans []string

	maxAttempts := m.CreateAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	attempts, err := utils.Poll{Interval: m.RetryInterval, MaxAttempts: maxAttempts}.Until(ctx, func(ctx context.Context) (bool, error) {
		name, err := m.GenerateName(testCase.Category)
		if err != nil {
			return false, err
		}
		_, err = m.Kubernetes.CreateNamespace(ctx, &v1.Namespace{
			ObjectMeta: metav1.ObjectMeta{Name: name, Labels: labels},
		})
		if err == nil {
			handle = &NamespaceHandle{Alias: spec.Alias, Name: name, Labels: labels, Orphans: orphans}
			return true, nil
		}
		if kube.IsAlreadyExists(err) {
			return false, errors.WithMessagef(err, "namespace name collision")
		}
		if !kube.IsTransient(err) {
			return false, err
		}
		log.WithFields(log.Fields{"case": testCase.ID, "namespace": name}).Debugf("transient error creating namespace, will retry: %v", err)
		lastErr = err
		orphans = append(orphans, name)
		return false, nil
	})
	if err != nil {
		if errors.Is(err, utils.ErrPollAttemptsExhausted) && lastErr != nil {
			err = lastErr
		}
		if len(orphans) > 0 {
			_ = m.Delete(ctx, &NamespaceHandle{Alias: spec.Alias, Orphans: orphans})
		}
		return nil, SetupFailure(err, "unable to create namespace for alias '%s' after %d attempts", spec.Alias, attempts)
	}
	return handle, nil
}

// Delete requests deletion and returns without waiting for the namespace to go away.  It runs on
// a context detached from ctx's cancellation, so a cancelled case still cleans up after itself.
// Orphans that turn out never to have been created are ignored.
func (m *NamespaceManager) Delete(ctx context.Context, handle *NamespaceHandle) error {
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.deleteTimeout())
	defer cancel()

	var firstErr error
	for _, orphan := range handle.Orphans {
		err := m.Kubernetes.DeleteNamespace(deleteCtx, orphan)
		if err == nil {
			log.WithFields(log.Fields{"namespace": orphan}).Infof("deleted namespace left by a failed create")
		} else if !kube.IsNotFound(err) {
			log.WithFields(log.Fields{"namespace": orphan}).Warnf("unable to delete namespace: %v", err)
			if firstErr == nil {
				firstErr = CleanupFailure(err, "unable to delete namespace %s", orphan)
			}
		}
	}
	if handle.Name == "" {
		return firstErr
	}
	if err := m.Kubernetes.DeleteNamespace(deleteCtx, handle.Name); err != nil {
		log.WithFields(log.Fields{"namespace": handle.Name}).Warnf("unable to delete namespace: %v", err)
		return CleanupFailure(err, "unable to delete namespace %s", handle.Name)
	}
	return firstErr
}

func (m *NamespaceManager) deleteTimeout() time.Duration {
	if m.DeleteTimeout <= 0 {
		return 30 * time.Second
	}
	return m.DeleteTimeout
}

// Sweep deletes every harness-managed namespace, or just one run's if runID is set.
func (m *NamespaceManager) Sweep(ctx context.Context, runID string) ([]string, error) {
	selector := ManagedLabel + "=true"
	if runID != "" {
		selector = fmt.Sprintf("%s,%s=%s", selector, RunLabel, runID)
	}
	namespaces, err := m.Kubernetes.GetNamespacesByLabel(ctx, selector)
	if err != nil {
		return nil, err
	}
	var deleted []string
	var failures []string
	for _, ns := range namespaces {
		if ns.DeletionTimestamp != nil {
			log.Debugf("namespace %s is already terminating", ns.Name)
			continue
		}
		if err := m.Delete(ctx, &NamespaceHandle{Name: ns.Name}); err != nil {
			failures = append(failures, ns.Name)
			continue
		}
		deleted = append(deleted, ns.Name)
	}
	if len(failures) > 0 {
		return deleted, errors.Errorf("unable to delete namespaces: %s", strings.Join(failures, ", "))
	}
	return deleted, nil
}
