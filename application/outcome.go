package application

import (
	"encoding/json"
	"errors"
	"time"
)

// OutcomeStatus is the terminal status of a single executed step.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Failure reasons carried on a failed StepOutcome.
const (
	ReasonPolicyDenied       = "policy_denied"
	ReasonUnknownTool        = "unknown_tool"
	ReasonExecutionExhausted = "execution_exhausted"
	ReasonOutputRejected     = "output_rejected"
	ReasonStepTimeout        = "step_timeout"
	ReasonStepNotRunnable    = "step_not_runnable"
	ReasonCancelled          = "cancelled"
)

var (
	ErrExecutionExhausted = errors.New("execution exhausted after retries")
	ErrOutputRejected     = errors.New("output rejected by policy")
	ErrStepTimeout        = errors.New("step deadline exceeded")
	ErrNoPendingSteps     = errors.New("no pending steps")
)

// StepOutcome is the executor's report for one step.
type StepOutcome struct {
	StepID   string          `json:"step_id"`
	Status   OutcomeStatus   `json:"status"`
	Reason   string          `json:"reason,omitempty"`
	Output   json.RawMessage `json:"output,omitempty"`
	Tokens   int             `json:"tokens,omitempty"`
	Attempts int             `json:"attempts"`
	Duration time.Duration   `json:"duration"`
	Err      error           `json:"-"`
}

// Succeeded reports whether the step completed without a failure.
func (o StepOutcome) Succeeded() bool {
	return o.Status == OutcomeSucceeded
}
