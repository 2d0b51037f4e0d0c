package plan

import "errors"

// Domain errors for plan and step lifecycle.
var (
	// ErrStepNotPending indicates Begin was called on a step that already ran.
	ErrStepNotPending = errors.New("step is not pending")

	// ErrStepNotRunning indicates a terminal transition on a step that is
	// not currently running.
	ErrStepNotRunning = errors.New("step is not running")

	// ErrStepFinalized indicates a mutation on a step that already reached a
	// terminal status.
	ErrStepFinalized = errors.New("step already finalized")
)
