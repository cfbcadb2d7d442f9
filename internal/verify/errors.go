package verify

import (
	"fmt"
	"strings"
	"time"
)

// LookupError is returned by Capture when a group that must exist has no
// instances. It signals a misconfigured scenario and is never retried.
type LookupError struct {
	Service string
	Group   string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("no task instances found for group %q in service %s", e.Group, e.Service)
}

// TriggerError is returned when the external system rejects a change action.
// Destructive actions are never retried.
type TriggerError struct {
	Action Action
	Err    error
	// Applied lists the instances ("name@host") a multi-instance kill had
	// already hit before the rejection.
	Applied []string
}

func (e *TriggerError) Error() string {
	msg := fmt.Sprintf("trigger %s rejected: %v", e.Action, e.Err)
	if len(e.Applied) > 0 {
		msg += fmt.Sprintf(" (already applied to %s)", strings.Join(e.Applied, ", "))
	}
	return msg
}

func (e *TriggerError) Unwrap() error {
	return e.Err
}

// ConvergenceTimeout is returned when a convergence stage did not reach its
// terminal condition within the configured bound.
type ConvergenceTimeout struct {
	// Stage is one of the Stage* constants.
	Stage   string
	Timeout time.Duration
	Elapsed time.Duration
	// Last describes the last observation, e.g. "IN_PROGRESS" or "9/10 running".
	Last string
	// LastErr is the last transient error swallowed while polling, if any.
	LastErr error
}

func (e *ConvergenceTimeout) Error() string {
	msg := fmt.Sprintf("%s did not converge within %v (elapsed %v, last observed: %s)",
		e.Stage, e.Timeout, e.Elapsed.Round(time.Millisecond), e.Last)
	if e.LastErr != nil {
		msg += fmt.Sprintf(", last poll error: %v", e.LastErr)
	}
	return msg
}

// ConvergenceMismatch is returned when a group's classification disagrees
// with the expectation.
type ConvergenceMismatch struct {
	Group    string
	Expected Expectation
	Actual   Classification
	Added    []string
	Removed  []string
}

func (e *ConvergenceMismatch) Error() string {
	return fmt.Sprintf("group %q: expected %s, observed %s (added %d, removed %d)",
		e.Group, e.Expected, e.Actual, len(e.Added), len(e.Removed))
}
