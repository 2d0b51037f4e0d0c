// Package evaluator defines the optional quality-check collaborator
// consulted by the reflection phase.
package evaluator

import (
	"context"
	"encoding/json"
)

// Judgment classifies an evaluated output.
type Judgment string

const (
	JudgmentAccept Judgment = "accept"
	JudgmentRevise Judgment = "revise"
	JudgmentReject Judgment = "reject"
)

// Verdict is the result of one evaluation.
type Verdict struct {
	Judgment Judgment `json:"judgment"`
	Score    float64  `json:"score"`

	// Feedback is guidance fed back into planning on revise or reject.
	Feedback string `json:"feedback,omitempty"`
}

// Evaluator scores a step's output against its expectation.
type Evaluator interface {
	Evaluate(ctx context.Context, instruction string, output json.RawMessage) (Verdict, error)
}

// Func adapts a plain function to the Evaluator interface.
type Func func(ctx context.Context, instruction string, output json.RawMessage) (Verdict, error)

func (f Func) Evaluate(ctx context.Context, instruction string, output json.RawMessage) (Verdict, error) {
	return f(ctx, instruction, output)
}
