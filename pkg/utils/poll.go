package utils

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/wait"
)

var (
	// ErrPollTimeout is returned when the ceiling elapses before the condition is met.
	ErrPollTimeout = errors.New("timed out waiting for condition")
	// ErrPollAttemptsExhausted is returned when MaxAttempts checks have run without success.
	ErrPollAttemptsExhausted = errors.New("attempts exhausted waiting for condition")
)

// ConditionFunc reports whether polling is finished.  A non-nil error aborts polling immediately.
type ConditionFunc func(ctx context.Context) (bool, error)

// Poll checks a condition every Interval until it succeeds, the Timeout ceiling elapses, or
// MaxAttempts checks have been made.  A zero Timeout or MaxAttempts means "unbounded" along that
// axis; the caller's context still applies.  The first check happens immediately.
//
// Readiness waits, propagation waits and probe retries all go through Poll.
type Poll struct {
	Interval    time.Duration
	Timeout     time.Duration
	MaxAttempts int
}

// Until runs the condition and returns how many times it was checked.
func (p Poll) Until(ctx context.Context, condition ConditionFunc) (int, error) {
	attempts := 0
	wrapped := func(ctx context.Context) (bool, error) {
		attempts++
		done, err := condition(ctx)
		if err != nil || done {
			return done, err
		}
		if p.MaxAttempts > 0 && attempts >= p.MaxAttempts {
			return false, ErrPollAttemptsExhausted
		}
		return false, nil
	}

	interval := p.Interval
	if interval <= 0 {
		interval = time.Millisecond
	}

	var err error
	if p.Timeout > 0 {
		err = wait.PollUntilContextTimeout(ctx, interval, p.Timeout, true, wrapped)
	} else {
		err = wait.PollUntilContextCancel(ctx, interval, true, wrapped)
	}
	if err == nil {
		return attempts, nil
	}
	if errors.Is(err, ErrPollAttemptsExhausted) {
		return attempts, ErrPollAttemptsExhausted
	}
	if wait.Interrupted(err) {
		if ctx.Err() != nil {
			return attempts, errors.Wrapf(ctx.Err(), "polling interrupted after %d attempts", attempts)
		}
		return attempts, errors.Wrapf(ErrPollTimeout, "after %s and %d attempts", p.Timeout, attempts)
	}
	return attempts, err
}

// Sleep waits for d, returning early with the context's error if it is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
