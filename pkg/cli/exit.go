package cli

import (
	"github.com/pkg/errors"
)

const (
	ExitPass         = 0
	ExitGateFailure  = 1
	ExitHarnessError = 2
)

// ExitError carries the process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps a command's error onto the exit code.  Anything that isn't an ExitError is a
// harness error, since only the gates decide ExitGateFailure.
func ExitCode(err error) int {
	if err == nil {
		return ExitPass
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitHarnessError
}
