// Package plan provides the plan and step model produced by the think phase
// and consumed by the step executor.
package plan

import (
	"encoding/json"
)

// Status tracks a step through its lifecycle. Transitions are monotonic
// except for bounded retry cycles (running -> retried -> running).
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRetried   Status = "retried"
)

// IsTerminal reports whether the status is final for the step.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Subtask is an opaque sub-instruction attached to a step.
type Subtask struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Step is one unit of agent work: an instruction bound to the tools it
// requires and the output shape it expects. Once execution begins a step is
// immutable; plan amendments append new steps, never rewrite old ones.
type Step struct {
	ID          string          `json:"id"`
	Instruction string          `json:"instruction"`
	Tools       []string        `json:"tools,omitempty"`
	Input       json.RawMessage `json:"input,omitempty"`
	Expect      json.RawMessage `json:"expect,omitempty"`
	Subtasks    []Subtask       `json:"subtasks,omitempty"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts,omitempty"`
	Fallback    *Fallback       `json:"fallback,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	FailReason  string          `json:"fail_reason,omitempty"`

	// reasoning holds the hidden trace behind this step. It is excluded
	// from serialization; see Step.MarshalJSON.
	reasoning []string
}

// NewStep creates a pending step with the given instruction.
func NewStep(id, instruction string) *Step {
	return &Step{
		ID:          id,
		Instruction: instruction,
		Status:      StatusPending,
	}
}

// WithTools declares the tools the step requires.
func (s *Step) WithTools(names ...string) *Step {
	s.Tools = append(s.Tools, names...)
	return s
}

// WithInput sets the step's tool input.
func (s *Step) WithInput(input json.RawMessage) *Step {
	s.Input = input
	return s
}

// WithFallback attaches a fallback directive to the step.
func (s *Step) WithFallback(f Fallback) *Step {
	s.Fallback = &f
	return s
}

// AddSubtask records a subtask on the step.
func (s *Step) AddSubtask(id, description string) {
	s.Subtasks = append(s.Subtasks, Subtask{ID: id, Description: description})
}

// AddReasoning appends a note to the hidden reasoning trace.
func (s *Step) AddReasoning(note string) {
	s.reasoning = append(s.reasoning, note)
}

// Reasoning returns the hidden trace. Callers are responsible for keeping it
// out of any externally exposed view.
func (s *Step) Reasoning() []string {
	return s.reasoning
}

// Begin marks the step running.
func (s *Step) Begin() error {
	if s.Status != StatusPending && s.Status != StatusRetried {
		return ErrStepNotPending
	}
	s.Status = StatusRunning
	s.Attempts++
	return nil
}

// Retry marks a running step for another bounded attempt.
func (s *Step) Retry() error {
	if s.Status != StatusRunning {
		return ErrStepNotRunning
	}
	s.Status = StatusRetried
	return nil
}

// Succeed records the step's output and finalizes it.
func (s *Step) Succeed(output json.RawMessage) error {
	if s.Status != StatusRunning {
		return ErrStepNotRunning
	}
	s.Status = StatusSucceeded
	s.Output = output
	return nil
}

// Fail finalizes the step with a failure reason.
func (s *Step) Fail(reason string) error {
	if s.Status.IsTerminal() {
		return ErrStepFinalized
	}
	s.Status = StatusFailed
	s.FailReason = reason
	return nil
}

// MarshalJSON serializes the step without its hidden reasoning trace.
// Visibility is enforced here, at the serialization boundary, so the core
// model stays free of a separate hidden type.
func (s *Step) MarshalJSON() ([]byte, error) {
	type external Step
	return json.Marshal((*external)(s))
}
