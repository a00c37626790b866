package connectivity

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind places a failure in the harness's taxonomy, which decides how it affects a case.
type ErrorKind string

const (
	// ErrorKindSetup: namespace or fixture provisioning failed.  The case is skipped.
	ErrorKindSetup ErrorKind = "SetupFailure"
	// ErrorKindPolicyApply: the cluster rejected a policy document.  The case is skipped,
	// and the failure is logged at error level since it usually means a broken case definition.
	ErrorKindPolicyApply ErrorKind = "PolicyApplyFailure"
	// ErrorKindProbe: the probe itself could not run.  The case is skipped.
	ErrorKindProbe ErrorKind = "ProbeFailure"
	// ErrorKindProbeAmbiguous: connection refused where Allow or Deny was expected.  The case fails.
	ErrorKindProbeAmbiguous ErrorKind = "ProbeAmbiguous"
	// ErrorKindAssertionMismatch: a clean probe contradicted the expectation.  The case fails.
	ErrorKindAssertionMismatch ErrorKind = "AssertionMismatch"
	// ErrorKindCleanup is only ever logged and recorded.
	ErrorKindCleanup ErrorKind = "CleanupFailure"
	// ErrorKindCancelled: the run was cancelled before the case finished.
	ErrorKindCancelled ErrorKind = "Cancelled"
	// ErrorKindPanic: the case panicked and was caught at the worker boundary.
	ErrorKindPanic ErrorKind = "Panic"
)

type HarnessError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *HarnessError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
}

func (e *HarnessError) Unwrap() error {
	return e.Cause
}

func newHarnessError(kind ErrorKind, cause error, format string, args ...interface{}) error {
	return errors.WithStack(&HarnessError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause})
}

func SetupFailure(cause error, format string, args ...interface{}) error {
	return newHarnessError(ErrorKindSetup, cause, format, args...)
}

func PolicyApplyFailure(cause error, format string, args ...interface{}) error {
	return newHarnessError(ErrorKindPolicyApply, cause, format, args...)
}

func ProbeFailure(cause error, format string, args ...interface{}) error {
	return newHarnessError(ErrorKindProbe, cause, format, args...)
}

func CleanupFailure(cause error, format string, args ...interface{}) error {
	return newHarnessError(ErrorKindCleanup, cause, format, args...)
}

// ErrorKindOf finds the taxonomy kind anywhere in err's chain.
func ErrorKindOf(err error) (ErrorKind, bool) {
	var harnessErr *HarnessError
	if errors.As(err, &harnessErr) {
		return harnessErr.Kind, true
	}
	return "", false
}

func IsErrorKind(err error, kind ErrorKind) bool {
	found, ok := ErrorKindOf(err)
	return ok && found == kind
}
