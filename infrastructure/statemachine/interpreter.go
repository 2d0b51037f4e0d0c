package statemachine

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/agent-runtime/domain/agent"
)

// Interpreter wraps the statekit interpreter with session-specific
// operations.
type Interpreter struct {
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewInterpreter creates an interpreter for the session state machine.
func NewInterpreter(machine *statekit.MachineConfig[*Context], ctx *Context) *Interpreter {
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	return &Interpreter{interp: interp, ctx: ctx}
}

// Start enters the initial state.
func (i *Interpreter) Start() {
	i.interp.Start()
	i.ctx.Current = agent.State(i.interp.State().Value)
}

// Stop stops the interpreter.
func (i *Interpreter) Stop() {
	i.interp.Stop()
}

// State returns the current state.
func (i *Interpreter) State() agent.State {
	return agent.State(i.interp.State().Value)
}

// Transition attempts to move into the target state.
func (i *Interpreter) Transition(to agent.State, reason string) error {
	if !to.IsTerminal() && !i.CanTransition(to) {
		return fmt.Errorf("%w: %s to %s", agent.ErrInvalidTransition, i.ctx.Current, to)
	}

	i.interp.Send(statekit.Event{
		Type:    EventForTransition(to),
		Payload: TransitionPayload{ToState: to, Reason: reason},
	})

	got := agent.State(i.interp.State().Value)
	if got != to {
		return fmt.Errorf("%w: %s to %s blocked by guard", agent.ErrInvalidTransition, i.ctx.Current, to)
	}
	return nil
}

// CanTransition checks the domain transition table.
func (i *Interpreter) CanTransition(to agent.State) bool {
	return i.ctx.Transitions.CanTransition(i.ctx.Current, to)
}

// IsTerminal reports whether the machine is in a final state.
func (i *Interpreter) IsTerminal() bool {
	return i.interp.Done()
}

// Context returns the interpreter context.
func (i *Interpreter) Context() *Context {
	return i.ctx
}

// ResumeFrom restores the interpreter to a specific state, used when a
// suspended session is picked back up.
func (i *Interpreter) ResumeFrom(state agent.State) error {
	snapshot := statekit.Snapshot[*Context]{
		MachineID:    "session",
		CurrentState: statekit.StateID(string(state)),
		Context:      i.ctx,
		CreatedAt:    time.Now(),
	}
	if err := i.interp.Restore(snapshot); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}
	i.ctx.Current = state
	return nil
}
