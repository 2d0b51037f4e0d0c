// Package statemachine provides the statekit integration for the session
// lifecycle.
package statemachine

import (
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/agent-runtime/domain/agent"
	"github.com/felixgeelhaar/agent-runtime/domain/policy"
	"github.com/felixgeelhaar/agent-runtime/domain/transcript"
)

// Context carries session state through the state machine.
type Context struct {
	SessionID   string
	Current     agent.State
	Budget      *policy.Budget
	Transcript  *transcript.Transcript
	Transitions *agent.Transitions
	HaltReason  agent.HaltReason

	// Now supplies time for budget checks; nil means the system clock.
	Now func() time.Time
}

// NewContext creates a machine context for one session.
func NewContext(sessionID string, budget *policy.Budget, tr *transcript.Transcript) *Context {
	return &Context{
		SessionID:   sessionID,
		Current:     agent.StateIdle,
		Budget:      budget,
		Transcript:  tr,
		Transitions: agent.DefaultTransitions(),
	}
}

// State IDs as StateID type for statekit.
const (
	stateIdle       statekit.StateID = statekit.StateID(agent.StateIdle)
	statePlanning   statekit.StateID = statekit.StateID(agent.StatePlanning)
	stateActing     statekit.StateID = statekit.StateID(agent.StateActing)
	stateObserving  statekit.StateID = statekit.StateID(agent.StateObserving)
	stateReflecting statekit.StateID = statekit.StateID(agent.StateReflecting)
	stateHalted     statekit.StateID = statekit.StateID(agent.StateHalted)
	stateFailed     statekit.StateID = statekit.StateID(agent.StateFailed)
)

// NewSessionMachine creates the canonical session statechart.
func NewSessionMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("session").
		WithInitial(stateIdle).
		WithContext(&Context{}).
		WithAction("recordTransition", recordTransition).
		WithGuard("canTransition", guardCanTransition).
		WithGuard("budgetAvailable", guardBudgetAvailable).
		State(stateIdle).
			On("PLAN").Target(statePlanning).Guard("canTransition").Do("recordTransition").
			On("HALT").Target(stateHalted).Do("recordTransition").
			Done().
		State(statePlanning).
			On("ACT").Target(stateActing).Guard("canTransition").Guard("budgetAvailable").Do("recordTransition").
			On("HALT").Target(stateHalted).Do("recordTransition").
			On("FAIL").Target(stateFailed).Do("recordTransition").
			Done().
		State(stateActing).
			On("OBSERVE").Target(stateObserving).Guard("canTransition").Do("recordTransition").
			On("HALT").Target(stateHalted).Do("recordTransition").
			On("FAIL").Target(stateFailed).Do("recordTransition").
			Done().
		State(stateObserving).
			On("REFLECT").Target(stateReflecting).Guard("canTransition").Do("recordTransition").
			On("HALT").Target(stateHalted).Do("recordTransition").
			On("FAIL").Target(stateFailed).Do("recordTransition").
			Done().
		State(stateReflecting).
			On("PLAN").Target(statePlanning).Guard("canTransition").Do("recordTransition").
			On("HALT").Target(stateHalted).Do("recordTransition").
			On("FAIL").Target(stateFailed).Do("recordTransition").
			Done().
		State(stateHalted).
			Final().
			Done().
		State(stateFailed).
			Final().
			Done().
		Build()
}

// EventForTransition returns the event type that drives a transition into
// the given state.
func EventForTransition(to agent.State) statekit.EventType {
	switch to {
	case agent.StatePlanning:
		return "PLAN"
	case agent.StateActing:
		return "ACT"
	case agent.StateObserving:
		return "OBSERVE"
	case agent.StateReflecting:
		return "REFLECT"
	case agent.StateHalted:
		return "HALT"
	case agent.StateFailed:
		return "FAIL"
	default:
		return statekit.EventType(to)
	}
}
