package agent

// Transitions is the allowed-transition table for the session lifecycle.
type Transitions struct {
	allowed map[State][]State
}

// DefaultTransitions returns the canonical lifecycle: Idle→Planning→Acting→
// Observing→Reflecting, with Reflecting looping back to Planning. Halted is
// reachable from every non-terminal state; Failed from every working state.
func DefaultTransitions() *Transitions {
	return &Transitions{allowed: map[State][]State{
		StateIdle:       {StatePlanning, StateHalted},
		StatePlanning:   {StateActing, StateHalted, StateFailed},
		StateActing:     {StateObserving, StateHalted, StateFailed},
		StateObserving:  {StateReflecting, StateHalted, StateFailed},
		StateReflecting: {StatePlanning, StateHalted, StateFailed},
	}}
}

// CanTransition reports whether from→to is an allowed transition.
func (t *Transitions) CanTransition(from, to State) bool {
	for _, s := range t.allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Next returns the states reachable from the given state.
func (t *Transitions) Next(from State) []State {
	out := make([]State, len(t.allowed[from]))
	copy(out, t.allowed[from])
	return out
}
