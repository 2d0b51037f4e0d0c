package plan

import (
	"encoding/json"
)

// Plan is the ordered sequence of steps produced by the think phase.
// Amendments append new steps; steps that have begun execution are never
// mutated in place or reordered, preserving transcript auditability.
type Plan struct {
	Goal  string  `json:"goal"`
	Steps []*Step `json:"steps"`

	// reasoning is the plan-level hidden trace, excluded from serialization.
	reasoning []string
}

// New creates an empty plan for the given goal.
func New(goal string) *Plan {
	return &Plan{Goal: goal}
}

// Append adds steps to the end of the plan.
func (p *Plan) Append(steps ...*Step) {
	p.Steps = append(p.Steps, steps...)
}

// NextPending returns the first step still awaiting execution, or nil.
func (p *Plan) NextPending() *Step {
	for _, s := range p.Steps {
		if s.Status == StatusPending {
			return s
		}
	}
	return nil
}

// Pending counts steps awaiting execution.
func (p *Plan) Pending() int {
	n := 0
	for _, s := range p.Steps {
		if s.Status == StatusPending {
			n++
		}
	}
	return n
}

// Len returns the total number of steps.
func (p *Plan) Len() int {
	return len(p.Steps)
}

// Done reports whether every step has reached a terminal status.
func (p *Plan) Done() bool {
	for _, s := range p.Steps {
		if !s.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// AddReasoning appends a note to the plan's hidden trace.
func (p *Plan) AddReasoning(note string) {
	p.reasoning = append(p.reasoning, note)
}

// Reasoning returns the hidden trace for internal consumers.
func (p *Plan) Reasoning() []string {
	return p.reasoning
}

// MarshalJSON serializes the plan without its hidden reasoning trace.
func (p *Plan) MarshalJSON() ([]byte, error) {
	type external Plan
	return json.Marshal((*external)(p))
}
