package agent

import "errors"

// Domain errors for the agent runtime.
var (
	// ErrInvalidState indicates the state is not a recognized canonical state.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidTransition indicates an attempted state transition is not allowed.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrSessionTerminated indicates an operation was attempted on a terminated session.
	ErrSessionTerminated = errors.New("session already terminated")

	// ErrSessionNotStarted indicates an operation requires a started session.
	ErrSessionNotStarted = errors.New("session not started")
)
