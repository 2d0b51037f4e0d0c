// Package agent provides the core domain model for the agent runtime.
package agent

// State identifies a phase of the session control loop.
// States are stable strings, not behavioral definitions.
type State string

// Canonical states of the think/act/observe/reflect loop.
const (
	StateIdle       State = "idle"       // Session created, loop not started
	StatePlanning   State = "planning"   // Produce or extend the plan
	StateActing     State = "acting"     // Dispatch the next pending step
	StateObserving  State = "observing"  // Ingest the step outcome
	StateReflecting State = "reflecting" // Optionally revise the remaining plan
	StateHalted     State = "halted"     // Terminal; budget or stop condition, not an error
	StateFailed     State = "failed"     // Terminal; unrecoverable failure
)

// IsTerminal returns true if this is a terminal state.
func (s State) IsTerminal() bool {
	return s == StateHalted || s == StateFailed
}

// IsValid returns true if the state is a recognized canonical state.
func (s State) IsValid() bool {
	switch s {
	case StateIdle, StatePlanning, StateActing, StateObserving, StateReflecting, StateHalted, StateFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// AllStates returns all canonical states.
func AllStates() []State {
	return []State{
		StateIdle,
		StatePlanning,
		StateActing,
		StateObserving,
		StateReflecting,
		StateHalted,
		StateFailed,
	}
}

// TerminalStates returns all terminal states.
func TerminalStates() []State {
	return []State{StateHalted, StateFailed}
}

// HaltReason explains why a session reached the halted state.
// Halting is reported as success-with-reason, never as an error.
type HaltReason string

const (
	HaltBudgetExhausted HaltReason = "budget_exhausted"
	HaltStopCondition   HaltReason = "stop_condition"
	HaltPlanDrained     HaltReason = "plan_drained"
	HaltCancelled       HaltReason = "cancelled"
)
