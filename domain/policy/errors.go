package policy

import "errors"

// Domain errors for policy enforcement.
var (
	// ErrInvalidBudget indicates a session was configured with a zero or
	// negative resource limit.
	ErrInvalidBudget = errors.New("invalid budget")

	// ErrBudgetExhausted indicates a counter has no remaining allotment.
	ErrBudgetExhausted = errors.New("budget exhausted")

	// ErrRateLimitExceeded indicates a call arrived before its window or
	// cooldown allowed it.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrUnauthorized indicates the caller's roles do not satisfy the
	// target's access tags.
	ErrUnauthorized = errors.New("unauthorized")
)
