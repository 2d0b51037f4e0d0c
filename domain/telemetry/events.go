package telemetry

import "time"

// EventKind classifies a structured runtime event.
type EventKind string

const (
	EventStateTransition EventKind = "state_transition"
	EventVerdict         EventKind = "interceptor_verdict"
	EventStepOutcome     EventKind = "step_outcome"
	EventBudget          EventKind = "budget"
	EventMessageExpired  EventKind = "message_expired"
	EventSessionEnd      EventKind = "session_end"
	EventAudit           EventKind = "audit"
)

// Event is one structured observation emitted by the runtime.
type Event struct {
	Kind       EventKind
	SessionID  string
	At         time.Time
	Attributes []Attribute
}

// Sink receives runtime events. Emit must never block the caller: a slow
// or full sink drops the event.
type Sink interface {
	Emit(e Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(e Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Emit(Event) {}

// Provider bundles the three telemetry facets a session is constructed with.
type Provider interface {
	Tracer() Tracer
	Meter() Meter
	Sink() Sink
}
