package application

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/felixgeelhaar/agent-runtime/domain/agent"
	"github.com/felixgeelhaar/agent-runtime/domain/evaluator"
	"github.com/felixgeelhaar/agent-runtime/domain/plan"
	"github.com/felixgeelhaar/agent-runtime/domain/policy"
)

func TestNewControlLoopValidation(t *testing.T) {
	if _, err := NewControlLoop(LoopConfig{}); err == nil {
		t.Fatal("empty config accepted")
	}
}

func TestReviseAmendsPlan(t *testing.T) {
	revised := false
	eval := evaluator.Func(func(_ context.Context, _ string, _ json.RawMessage) (evaluator.Verdict, error) {
		if revised {
			return evaluator.Verdict{Judgment: evaluator.JudgmentAccept, Score: 1}, nil
		}
		revised = true
		return evaluator.Verdict{
			Judgment: evaluator.JudgmentRevise,
			Score:    0.4,
			Feedback: "include the units next time",
		}, nil
	})

	session, err := NewSession(SessionConfig{
		Goal:      "echo with review",
		Limits:    policy.Limits{Steps: 10, Tokens: 10_000},
		Steps:     echoSteps(1),
		Registry:  builtinRegistry(t),
		Evaluator: eval,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	result, runErr := session.Run(context.Background())
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
	if result.State != agent.StateHalted || result.HaltReason != agent.HaltPlanDrained {
		t.Fatalf("result = %+v, want halted with plan drained", result)
	}
	if result.Executed != 2 {
		t.Errorf("executed = %d, want the original step plus its revision", result.Executed)
	}

	steps := session.Plan().Steps
	if len(steps) != 2 {
		t.Fatalf("plan length = %d, want 2", len(steps))
	}
	if steps[0].ID != stepID(0) {
		t.Error("revision displaced the original step")
	}
	revision := steps[1]
	if !strings.HasSuffix(revision.ID, "-rev") {
		t.Errorf("revision ID = %s", revision.ID)
	}
	if revision.Instruction != "include the units next time" {
		t.Errorf("revision instruction = %q", revision.Instruction)
	}
	if revision.Status != plan.StatusSucceeded {
		t.Errorf("revision status = %s, want succeeded", revision.Status)
	}
}

func TestRejectFailsSession(t *testing.T) {
	eval := evaluator.Func(func(_ context.Context, _ string, _ json.RawMessage) (evaluator.Verdict, error) {
		return evaluator.Verdict{
			Judgment: evaluator.JudgmentReject,
			Score:    0,
			Feedback: "output contradicts the instruction",
		}, nil
	})

	session, err := NewSession(SessionConfig{
		Goal:      "echo under a harsh reviewer",
		Limits:    policy.Limits{Steps: 10, Tokens: 10_000},
		Steps:     echoSteps(1),
		Registry:  builtinRegistry(t),
		Evaluator: eval,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	result, runErr := session.Run(context.Background())
	if result.State != agent.StateFailed {
		t.Fatalf("state = %s, want failed", result.State)
	}
	if runErr == nil || !strings.Contains(runErr.Error(), "rejected") {
		t.Errorf("run error = %v", runErr)
	}
}

func TestEvaluatorRevisesFailedStep(t *testing.T) {
	base := builtinRegistry(t)
	if err := base.Register(failingCapability("flaky")); err != nil {
		t.Fatalf("register: %v", err)
	}

	revised := false
	eval := evaluator.Func(func(_ context.Context, _ string, _ json.RawMessage) (evaluator.Verdict, error) {
		if revised {
			return evaluator.Verdict{Judgment: evaluator.JudgmentAccept, Score: 1}, nil
		}
		revised = true
		return evaluator.Verdict{
			Judgment: evaluator.JudgmentRevise,
			Feedback: "try once more",
		}, nil
	})

	broken := plan.NewStep("s1", "flaky call").WithTools("flaky")
	session, err := NewSession(SessionConfig{
		Goal:      "recover from a failed step",
		Limits:    policy.Limits{Steps: 5, Tokens: 10_000},
		Steps:     []*plan.Step{broken},
		Registry:  base,
		Invoker:   fastInvoker(1),
		Evaluator: eval,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	result, runErr := session.Run(context.Background())
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
	if result.State != agent.StateHalted || result.HaltReason != agent.HaltPlanDrained {
		t.Fatalf("result = %+v, want halted with plan drained", result)
	}
	if result.Executed != 2 {
		t.Errorf("executed = %d, want the original and its revision", result.Executed)
	}
	if session.Plan().Len() != 2 {
		t.Errorf("plan length = %d, want 2", session.Plan().Len())
	}
}

func TestPlanningModes(t *testing.T) {
	countingPlanner := func(calls *int) PlannerFunc {
		return PlannerFunc(func(_ context.Context, p *plan.Plan) error {
			*calls++
			return nil
		})
	}

	t.Run("deterministic plans once", func(t *testing.T) {
		calls := 0
		session, err := NewSession(SessionConfig{
			Goal:     "work a committed plan",
			Limits:   policy.Limits{Steps: 10, Tokens: 10_000},
			Steps:    echoSteps(3),
			Registry: builtinRegistry(t),
			Planner:  countingPlanner(&calls),
			Mode:     ModeDeterministic,
		})
		if err != nil {
			t.Fatalf("NewSession: %v", err)
		}
		if _, err := session.Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if calls != 1 {
			t.Errorf("planner calls = %d, want 1", calls)
		}
	})

	t.Run("procedural plans only when drained", func(t *testing.T) {
		calls := 0
		session, err := NewSession(SessionConfig{
			Goal:     "extend only on a drained plan",
			Limits:   policy.Limits{Steps: 10, Tokens: 10_000},
			Steps:    echoSteps(2),
			Registry: builtinRegistry(t),
			Planner:  countingPlanner(&calls),
			Mode:     ModeProcedural,
		})
		if err != nil {
			t.Fatalf("NewSession: %v", err)
		}
		if _, err := session.Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if calls != 1 {
			t.Errorf("planner calls = %d, want 1", calls)
		}
	})
}

func TestPlannerExtendsDrainedPlan(t *testing.T) {
	planned := false
	planner := PlannerFunc(func(_ context.Context, p *plan.Plan) error {
		if planned || p.Pending() > 0 {
			return nil
		}
		planned = true
		p.Append(plan.NewStep("extra", "echo").
			WithTools("echo").
			WithInput(json.RawMessage(`"more"`)))
		return nil
	})

	session, err := NewSession(SessionConfig{
		Goal:     "keep going until the planner is done",
		Limits:   policy.Limits{Steps: 10, Tokens: 10_000},
		Registry: builtinRegistry(t),
		Planner:  planner,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	result, runErr := session.Run(context.Background())
	if runErr != nil {
		t.Fatalf("Run: %v", runErr)
	}
	if result.State != agent.StateHalted || result.HaltReason != agent.HaltPlanDrained {
		t.Fatalf("result = %+v, want halted with plan drained", result)
	}
	if result.Executed != 1 {
		t.Errorf("executed = %d, want 1", result.Executed)
	}
	if !session.Plan().Done() {
		t.Error("plan not done")
	}
}
