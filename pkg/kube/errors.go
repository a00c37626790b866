package kube

import (
	"github.com/pkg/errors"
	kerrors "k8s.io/apimachinery/pkg/api/errors"
)

// IsTransient reports whether an API error is worth retrying: the server was overloaded,
// slow, or briefly unavailable.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	cause := errors.Cause(err)
	return kerrors.IsServerTimeout(cause) ||
		kerrors.IsTimeout(cause) ||
		kerrors.IsTooManyRequests(cause) ||
		kerrors.IsServiceUnavailable(cause) ||
		kerrors.IsInternalError(cause) ||
		kerrors.IsUnexpectedServerError(cause)
}

// IsAlreadyExists unwraps err before checking for a conflict on create.
func IsAlreadyExists(err error) bool {
	return err != nil && kerrors.IsAlreadyExists(errors.Cause(err))
}

func IsNotFound(err error) bool {
	return err != nil && kerrors.IsNotFound(errors.Cause(err))
}
