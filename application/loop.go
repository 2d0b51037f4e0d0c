package application

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/agent-runtime/domain/agent"
	"github.com/felixgeelhaar/agent-runtime/domain/evaluator"
	"github.com/felixgeelhaar/agent-runtime/domain/memory"
	"github.com/felixgeelhaar/agent-runtime/domain/plan"
	"github.com/felixgeelhaar/agent-runtime/domain/policy"
	"github.com/felixgeelhaar/agent-runtime/domain/telemetry"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/clock"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/logging"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/statemachine"
)

// Planner extends the plan during the planning phase. Amendments are
// append-only: a planner adds steps, it never rewrites or reorders the
// steps already in the plan.
type Planner interface {
	Plan(ctx context.Context, p *plan.Plan) error
}

// PlannerFunc adapts a function to the Planner interface.
type PlannerFunc func(ctx context.Context, p *plan.Plan) error

func (f PlannerFunc) Plan(ctx context.Context, p *plan.Plan) error { return f(ctx, p) }

// Mode selects when the loop consults its planner. Reflection is
// controlled separately, by whether an evaluator is configured.
type Mode string

const (
	// ModeReactive consults the planner on every iteration.
	ModeReactive Mode = "reactive"

	// ModeDeterministic plans once, before the first step, and then
	// works the plan as committed.
	ModeDeterministic Mode = "deterministic"

	// ModeProcedural consults the planner only when the plan drains.
	ModeProcedural Mode = "procedural"
)

// LoopResult is the terminal report of one control loop run. A Halted
// state is an orderly stop and carries its reason; only Failed carries
// an error.
type LoopResult struct {
	State      agent.State      `json:"state"`
	HaltReason agent.HaltReason `json:"halt_reason,omitempty"`
	Executed   int              `json:"executed"`
	Err        error            `json:"-"`
}

// maxConsecutiveDenials bounds how many policy-denied steps in a row
// the loop tolerates before the session fails.
const maxConsecutiveDenials = 2

// ControlLoop drives a session through the planning, acting, observing,
// and reflecting phases until the plan drains, a budget exhausts, the
// context is cancelled, or policy denies steps repeatedly. A single
// failed step stays a step-level event: it is recorded, reflected on,
// and the loop moves to the next pending step.
type ControlLoop struct {
	sessionID string
	interp    *statemachine.Interpreter
	executor  *StepExecutor
	plan      *plan.Plan
	budget    *policy.Budget
	planner   Planner
	mode      Mode
	eval      evaluator.Evaluator
	memory    memory.Store
	clk       clock.Clock
	sink      telemetry.Sink
}

// LoopConfig assembles a ControlLoop.
type LoopConfig struct {
	SessionID   string
	Interpreter *statemachine.Interpreter
	Executor    *StepExecutor
	Plan        *plan.Plan
	Budget      *policy.Budget
	Planner     Planner
	Mode        Mode
	Evaluator   evaluator.Evaluator
	Memory      memory.Store
	Clock       clock.Clock
	Sink        telemetry.Sink
}

// NewControlLoop creates a loop over an already-started session machine.
func NewControlLoop(cfg LoopConfig) (*ControlLoop, error) {
	if cfg.Interpreter == nil {
		return nil, fmt.Errorf("control loop: interpreter is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("control loop: executor is required")
	}
	if cfg.Plan == nil {
		return nil, fmt.Errorf("control loop: plan is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}
	if cfg.Sink == nil {
		cfg.Sink = telemetry.NopSink{}
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeReactive
	}
	return &ControlLoop{
		sessionID: cfg.SessionID,
		interp:    cfg.Interpreter,
		executor:  cfg.Executor,
		plan:      cfg.Plan,
		budget:    cfg.Budget,
		planner:   cfg.Planner,
		mode:      cfg.Mode,
		eval:      cfg.Evaluator,
		memory:    cfg.Memory,
		clk:       cfg.Clock,
		sink:      cfg.Sink,
	}, nil
}

// Run executes the loop until a terminal state is reached. It always
// returns with the machine in Halted or Failed.
func (l *ControlLoop) Run(ctx context.Context) LoopResult {
	executed := 0
	planned := false
	deniedRun := 0

	for {
		if ctx.Err() != nil {
			return l.halt(agent.HaltCancelled, executed)
		}

		if err := l.interp.Transition(agent.StatePlanning, ""); err != nil {
			return l.failWith(executed, fmt.Errorf("enter planning: %w", err))
		}

		if l.planner != nil && l.shouldPlan(planned) {
			planned = true
			if err := l.planner.Plan(ctx, l.plan); err != nil {
				logging.Warn().
					Add(logging.SessionID(l.sessionID)).
					Add(logging.ErrorField(err)).
					Msg("planner failed, continuing with current plan")
			}
		}

		step := l.plan.NextPending()
		if step == nil {
			return l.halt(agent.HaltPlanDrained, executed)
		}

		// The budget gate sits before every entry into Acting. Wall
		// clock, steps, and tokens are all checked here.
		if l.budgetExhausted() {
			return l.halt(agent.HaltBudgetExhausted, executed)
		}
		if ctx.Err() != nil {
			return l.halt(agent.HaltCancelled, executed)
		}

		if err := l.interp.Transition(agent.StateActing, ""); err != nil {
			// The machine guard re-checks the budget; a blocked entry
			// into Acting is an orderly budget halt, not a failure.
			return l.halt(agent.HaltBudgetExhausted, executed)
		}

		outcome := l.executor.Execute(ctx, step)
		executed++
		l.account(ctx, outcome)

		if err := l.interp.Transition(agent.StateObserving, ""); err != nil {
			return l.failWith(executed, fmt.Errorf("enter observing: %w", err))
		}
		l.observe(ctx, step, outcome)

		if outcome.Succeeded() {
			deniedRun = 0
		} else {
			if outcome.Reason == ReasonCancelled {
				return l.halt(agent.HaltCancelled, executed)
			}
			if outcome.Reason == ReasonPolicyDenied {
				deniedRun++
				if deniedRun >= maxConsecutiveDenials {
					return l.failWith(executed,
						fmt.Errorf("policy denied %d consecutive steps: %w", deniedRun, outcome.Err))
				}
			} else {
				deniedRun = 0
			}
			logging.Warn().
				Add(logging.SessionID(l.sessionID)).
				Add(logging.StepID(step.ID)).
				Add(logging.Reason(outcome.Reason)).
				Msg("step failed, continuing to reflection")
		}

		if err := l.interp.Transition(agent.StateReflecting, ""); err != nil {
			return l.failWith(executed, fmt.Errorf("enter reflecting: %w", err))
		}
		if stop, result := l.reflect(ctx, step, outcome, executed); stop {
			return result
		}
	}
}

func (l *ControlLoop) shouldPlan(planned bool) bool {
	switch l.mode {
	case ModeDeterministic:
		return !planned
	case ModeProcedural:
		return l.plan.Pending() == 0
	default:
		return true
	}
}

func (l *ControlLoop) budgetExhausted() bool {
	if l.budget == nil {
		return false
	}
	now := l.clk.Now()
	return l.budget.Exhausted(now) || !l.budget.CanConsume(policy.CounterSteps, 1)
}

// account charges the outcome against the budget and emits a budget
// event. Consumption is recorded even for failed steps; the work was
// done either way.
func (l *ControlLoop) account(ctx context.Context, outcome StepOutcome) {
	if l.budget == nil {
		return
	}
	l.budget.Consume(policy.CounterSteps, 1)
	if outcome.Tokens > 0 {
		if err := l.budget.Consume(policy.CounterTokens, outcome.Tokens); err != nil {
			logging.Warn().
				Add(logging.SessionID(l.sessionID)).
				Add(logging.Int("tokens", outcome.Tokens)).
				Msg("token spend overshot the budget, counter saturated")
		}
	}

	view := l.budget.View()
	l.sink.Emit(telemetry.Event{
		Kind:      telemetry.EventBudget,
		SessionID: l.sessionID,
		At:        l.clk.Now(),
		Attributes: []telemetry.Attribute{
			telemetry.Int("steps_remaining", view.Remaining[policy.CounterSteps]),
			telemetry.Int("tokens_remaining", view.Remaining[policy.CounterTokens]),
		},
	})
}

// observe records a successful step's output in memory so later steps
// and sessions can retrieve it.
func (l *ControlLoop) observe(ctx context.Context, step *plan.Step, outcome StepOutcome) {
	if l.memory == nil || !outcome.Succeeded() || len(outcome.Output) == 0 {
		return
	}
	key := fmt.Sprintf("session/%s/step/%s", l.sessionID, step.ID)
	if err := l.memory.Put(ctx, key, outcome.Output); err != nil {
		logging.Warn().
			Add(logging.SessionID(l.sessionID)).
			Add(logging.StepID(step.ID)).
			Add(logging.ErrorField(err)).
			Msg("failed to record step output in memory")
	}
}

// reflect consults the evaluator, if one is configured, on successful
// and failed outcomes alike, so it can drive recovery for both. A
// revise judgment amends the plan with a follow-up step; a reject
// judgment fails the session.
func (l *ControlLoop) reflect(ctx context.Context, step *plan.Step, outcome StepOutcome, executed int) (bool, LoopResult) {
	if l.eval == nil {
		return false, LoopResult{}
	}

	verdict, err := l.eval.Evaluate(ctx, step.Instruction, outcome.Output)
	if err != nil {
		logging.Warn().
			Add(logging.SessionID(l.sessionID)).
			Add(logging.StepID(step.ID)).
			Add(logging.ErrorField(err)).
			Msg("evaluator failed, accepting step output")
		return false, LoopResult{}
	}

	switch verdict.Judgment {
	case evaluator.JudgmentRevise:
		revision := plan.NewStep(step.ID+"-rev", verdict.Feedback).
			WithTools(step.Tools...).
			WithInput(step.Input)
		l.plan.Append(revision)
	case evaluator.JudgmentReject:
		return true, l.failWith(executed,
			fmt.Errorf("evaluator rejected step %s: %s", step.ID, verdict.Feedback))
	}
	return false, LoopResult{}
}

// halt moves the machine into Halted. Halted is an orderly stop, not a
// failure; the reason travels on the result and in the transcript.
func (l *ControlLoop) halt(reason agent.HaltReason, executed int) LoopResult {
	if !l.interp.IsTerminal() {
		l.interp.Transition(agent.StateHalted, string(reason))
	}
	logging.Info().
		Add(logging.SessionID(l.sessionID)).
		Add(logging.State(agent.StateHalted)).
		Add(logging.Reason(string(reason))).
		Msg("session halted")
	return LoopResult{State: agent.StateHalted, HaltReason: reason, Executed: executed}
}

func (l *ControlLoop) failWith(executed int, err error) LoopResult {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	if !l.interp.IsTerminal() {
		l.interp.Transition(agent.StateFailed, reason)
	}
	logging.Error().
		Add(logging.SessionID(l.sessionID)).
		Add(logging.State(agent.StateFailed)).
		Add(logging.ErrorField(err)).
		Msg("session failed")
	return LoopResult{State: agent.StateFailed, Executed: executed, Err: err}
}

// planPayload renders the external view of the plan for transcripts.
func planPayload(p *plan.Plan) json.RawMessage {
	out, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	return out
}
