package statemachine

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/agent-runtime/domain/agent"
	"github.com/felixgeelhaar/agent-runtime/domain/transcript"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/logging"
)

// TransitionPayload carries the target state and reason with an event.
type TransitionPayload struct {
	ToState agent.State
	Reason  string
}

// recordTransition logs the transition and appends it to the transcript.
// Actions receive a pointer to the context; since the context is *Context,
// this is **Context.
func recordTransition(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	c := *ctx

	from := c.Current
	to, reason := targetOf(event)
	if to == "" {
		return
	}
	c.Current = to
	if to == agent.StateHalted && reason != "" {
		c.HaltReason = agent.HaltReason(reason)
	}

	logging.Debug().
		Add(logging.SessionID(c.SessionID)).
		Add(logging.FromState(from)).
		Add(logging.ToState(to)).
		Add(logging.Reason(reason)).
		Msg("session state changed")

	if c.Transcript != nil {
		_, _ = c.Transcript.Append(transcript.KindStateChanged, "", reason, nil)
	}
}

func targetOf(event statekit.Event) (agent.State, string) {
	if payload, ok := event.Payload.(TransitionPayload); ok {
		return payload.ToState, payload.Reason
	}
	return stateFromEventType(event.Type), ""
}

func stateFromEventType(eventType statekit.EventType) agent.State {
	switch eventType {
	case "PLAN":
		return agent.StatePlanning
	case "ACT":
		return agent.StateActing
	case "OBSERVE":
		return agent.StateObserving
	case "REFLECT":
		return agent.StateReflecting
	case "HALT":
		return agent.StateHalted
	case "FAIL":
		return agent.StateFailed
	default:
		return agent.State(eventType)
	}
}
