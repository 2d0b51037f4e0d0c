package agent

import "testing"

func TestStateClassification(t *testing.T) {
	for _, s := range AllStates() {
		if !s.IsValid() {
			t.Errorf("%s not recognized as valid", s)
		}
	}
	if State("dreaming").IsValid() {
		t.Error("unknown state reported valid")
	}

	terminal := map[State]bool{StateHalted: true, StateFailed: true}
	for _, s := range AllStates() {
		if s.IsTerminal() != terminal[s] {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, s.IsTerminal(), terminal[s])
		}
	}
}

func TestDefaultTransitions(t *testing.T) {
	tr := DefaultTransitions()

	t.Run("working cycle", func(t *testing.T) {
		cycle := []State{StateIdle, StatePlanning, StateActing, StateObserving, StateReflecting, StatePlanning}
		for i := 0; i < len(cycle)-1; i++ {
			if !tr.CanTransition(cycle[i], cycle[i+1]) {
				t.Errorf("%s -> %s should be allowed", cycle[i], cycle[i+1])
			}
		}
	})

	t.Run("halt reachable from every non-terminal state", func(t *testing.T) {
		for _, s := range AllStates() {
			if s.IsTerminal() {
				continue
			}
			if !tr.CanTransition(s, StateHalted) {
				t.Errorf("%s -> halted should be allowed", s)
			}
		}
	})

	t.Run("failure not reachable before work begins", func(t *testing.T) {
		if tr.CanTransition(StateIdle, StateFailed) {
			t.Error("idle -> failed should not be allowed")
		}
	})

	t.Run("no skipping phases", func(t *testing.T) {
		forbidden := [][2]State{
			{StateIdle, StateActing},
			{StatePlanning, StateObserving},
			{StateActing, StateReflecting},
			{StateObserving, StatePlanning},
			{StateReflecting, StateActing},
		}
		for _, pair := range forbidden {
			if tr.CanTransition(pair[0], pair[1]) {
				t.Errorf("%s -> %s should not be allowed", pair[0], pair[1])
			}
		}
	})

	t.Run("terminal states are absorbing", func(t *testing.T) {
		for _, from := range TerminalStates() {
			if next := tr.Next(from); len(next) != 0 {
				t.Errorf("Next(%s) = %v, want none", from, next)
			}
		}
	})
}
