// Package transcript records a session's history as an append-only ordered
// sequence of events. The transcript is the audit trail for every halt,
// failure, and policy decision; nothing is ever removed or reordered.
package transcript

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

var ErrEmptyKind = errors.New("transcript: event kind cannot be empty")

// EventKind classifies a transcript event.
type EventKind string

const (
	KindStateChanged EventKind = "state_changed"
	KindStepStarted  EventKind = "step_started"
	KindStepFinished EventKind = "step_finished"
	KindVerdict      EventKind = "verdict"
	KindModelCall    EventKind = "model_call"
	KindToolCall     EventKind = "tool_call"
	KindMessage      EventKind = "message"
	KindSessionEnd   EventKind = "session_end"
)

// Event is one recorded occurrence in a session's history.
type Event struct {
	Seq     uint64          `json:"seq"`
	Kind    EventKind       `json:"kind"`
	At      time.Time       `json:"at"`
	StepID  string          `json:"step_id,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Transcript accumulates events in order. It is safe for the single
// owning loop to append while external observers snapshot.
type Transcript struct {
	mu     sync.RWMutex
	events []Event
	next   uint64
	now    func() time.Time
}

// New creates an empty transcript.
func New() *Transcript {
	return &Transcript{now: func() time.Time { return time.Now().UTC() }}
}

// WithNow overrides the timestamp source for deterministic tests.
func (t *Transcript) WithNow(now func() time.Time) *Transcript {
	t.now = now
	return t
}

// Append records an event, assigning it the next sequence number.
func (t *Transcript) Append(kind EventKind, stepID, reason string, payload json.RawMessage) (Event, error) {
	if kind == "" {
		return Event{}, ErrEmptyKind
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e := Event{
		Seq:     t.next,
		Kind:    kind,
		At:      t.now(),
		StepID:  stepID,
		Reason:  reason,
		Payload: payload,
	}
	t.next++
	t.events = append(t.events, e)
	return e, nil
}

// Len reports how many events have been recorded.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.events)
}

// Events returns a copy of the recorded sequence.
func (t *Transcript) Events() []Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Event, len(t.events))
	copy(out, t.events)
	return out
}

// Steps returns the events of the given kind, in order.
func (t *Transcript) Steps(kind EventKind) []Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Event
	for _, e := range t.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// MarshalJSON renders the external view of the transcript.
func (t *Transcript) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Events())
}
