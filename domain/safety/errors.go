package safety

import "errors"

var (
	// ErrCallDenied is returned by callers that convert a Deny verdict
	// into an error for propagation.
	ErrCallDenied = errors.New("call denied by policy")

	// ErrPolicyTimeout is returned when an interceptor could not reach
	// a decision inside the check timeout.
	ErrPolicyTimeout = errors.New("policy check timed out")
)

// DeniedError wraps a Deny verdict as an error so executors can propagate
// the reason without losing structure.
type DeniedError struct {
	Verdict Verdict
}

func (e *DeniedError) Error() string {
	if e.Verdict.Detail != "" {
		return "call denied: " + string(e.Verdict.Reason) + ": " + e.Verdict.Detail
	}
	return "call denied: " + string(e.Verdict.Reason)
}

func (e *DeniedError) Unwrap() error {
	if e.Verdict.Reason == ReasonPolicyTimeout {
		return ErrPolicyTimeout
	}
	return ErrCallDenied
}

// NewDeniedError wraps v, which must be a Deny verdict.
func NewDeniedError(v Verdict) *DeniedError {
	return &DeniedError{Verdict: v}
}
