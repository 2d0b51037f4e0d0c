package statemachine

import (
	"time"

	"github.com/felixgeelhaar/statekit"
)

// guardCanTransition checks the domain transition table. Guards receive
// the context by value; since the context is *Context, that is *Context
// directly.
func guardCanTransition(ctx *Context, event statekit.Event) bool {
	if ctx == nil || ctx.Transitions == nil {
		return false
	}
	to, _ := targetOf(event)
	return ctx.Transitions.CanTransition(ctx.Current, to)
}

// guardBudgetAvailable blocks the Acting transition once any budget
// counter is exhausted.
func guardBudgetAvailable(ctx *Context, _ statekit.Event) bool {
	if ctx == nil || ctx.Budget == nil {
		return true
	}
	return !ctx.Budget.Exhausted(nowOf(ctx))
}

func nowOf(ctx *Context) time.Time {
	if ctx.Now != nil {
		return ctx.Now()
	}
	return time.Now().UTC()
}
