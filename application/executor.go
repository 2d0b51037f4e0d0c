// Package application composes the domain model with the infrastructure
// adapters: step execution, the control loop, and session lifecycle.
package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/agent-runtime/domain/model"
	"github.com/felixgeelhaar/agent-runtime/domain/plan"
	"github.com/felixgeelhaar/agent-runtime/domain/safety"
	"github.com/felixgeelhaar/agent-runtime/domain/telemetry"
	"github.com/felixgeelhaar/agent-runtime/domain/tool"
	"github.com/felixgeelhaar/agent-runtime/domain/transcript"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/clock"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/logging"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/resilience"
)

// DefaultStepTimeout bounds one step end to end, retries included.
const DefaultStepTimeout = 2 * time.Minute

// maxProposedCalls caps the tool invocations one model response may
// propose.
const maxProposedCalls = 4

// StepExecutor runs one plan step at a time: resolve the tools it names,
// pass the call through the interceptor chain, invoke with bounded
// retries, run post-invocation checks, and account the result.
type StepExecutor struct {
	sessionID  string
	caller     safety.Caller
	registry   tool.Registry
	chain      *safety.Chain
	invoker    *resilience.Invoker
	provider   model.Provider
	metrics    *UsageMetrics
	transcript *transcript.Transcript
	clk        clock.Clock
	timeout    time.Duration
	tracer     telemetry.Tracer
	sink       telemetry.Sink
	maxTokens  int
}

// ExecutorConfig assembles a StepExecutor.
type ExecutorConfig struct {
	SessionID  string
	Caller     safety.Caller
	Registry   tool.Registry
	Chain      *safety.Chain
	Invoker    *resilience.Invoker
	Provider   model.Provider
	Metrics    *UsageMetrics
	Transcript *transcript.Transcript
	Clock      clock.Clock
	Timeout    time.Duration
	Tracer     telemetry.Tracer
	Sink       telemetry.Sink

	// MaxTokens caps each model call when > 0.
	MaxTokens int
}

// NewStepExecutor creates an executor, filling optional collaborators
// with no-op defaults.
func NewStepExecutor(cfg ExecutorConfig) (*StepExecutor, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("step executor: registry is required")
	}
	if cfg.Chain == nil {
		cfg.Chain = safety.NewChain()
	}
	if cfg.Invoker == nil {
		cfg.Invoker = resilience.NewInvoker(resilience.DefaultInvokerConfig())
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewUsageMetrics(time.Now().UTC())
	}
	if cfg.Transcript == nil {
		cfg.Transcript = transcript.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultStepTimeout
	}
	if cfg.Sink == nil {
		cfg.Sink = telemetry.NopSink{}
	}
	return &StepExecutor{
		sessionID:  cfg.SessionID,
		caller:     cfg.Caller,
		registry:   cfg.Registry,
		chain:      cfg.Chain,
		invoker:    cfg.Invoker,
		provider:   cfg.Provider,
		metrics:    cfg.Metrics,
		transcript: cfg.Transcript,
		clk:        cfg.Clock,
		timeout:    cfg.Timeout,
		tracer:     cfg.Tracer,
		sink:       cfg.Sink,
		maxTokens:  cfg.MaxTokens,
	}, nil
}

// Execute runs one step to a terminal status and records the outcome in
// the transcript. The step itself is mutated through its lifecycle
// methods; the returned outcome is the executor's report for the loop.
func (x *StepExecutor) Execute(ctx context.Context, step *plan.Step) StepOutcome {
	start := x.clk.Now()

	if x.tracer != nil {
		var span telemetry.Span
		ctx, span = x.tracer.StartSpan(ctx, "step.execute",
			telemetry.String("step.id", step.ID),
			telemetry.String("session.id", x.sessionID),
		)
		defer span.End()
	}

	if err := step.Begin(); err != nil {
		return x.fail(step, start, ReasonStepNotRunnable, err)
	}
	x.transcript.Append(transcript.KindStepStarted, step.ID, "", nil)

	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	var outcome StepOutcome
	if len(step.Tools) > 0 {
		outcome = x.runTools(ctx, step, start)
	} else {
		outcome = x.runModel(ctx, step, start)
	}

	x.finish(step, &outcome)
	return outcome
}

// runTools invokes each tool the step names, in order, feeding every
// tool the step input and recording the output of the last one. A
// RequireFallback verdict substitutes the directed tool and restarts
// from resolution exactly once. When retries exhaust, the step's own
// fallback directive can grant extra attempts or an alternate tool.
func (x *StepExecutor) runTools(ctx context.Context, step *plan.Step, start time.Time) StepOutcome {
	names := append([]string(nil), step.Tools...)
	fellBack := false

	var (
		output        json.RawMessage
		totalAttempts int
	)

restart:
	capabilities := make([]tool.Capability, 0, len(names))
	for _, name := range names {
		capability, err := x.registry.Resolve(name)
		if err != nil {
			return x.fail(step, start, ReasonUnknownTool, err)
		}
		capabilities = append(capabilities, capability)
	}
	for i, capability := range capabilities {
		desc := capability.Descriptor()
		call := &safety.CallContext{
			SessionID: x.sessionID,
			StepID:    step.ID,
			Kind:      safety.CallTool,
			Caller:    x.caller,
			Tool:      &desc,
			Target:    desc.Name,
			Payload:   step.Input,
		}

		verdict := x.chain.Before(ctx, call)
		x.recordVerdict(step.ID, "before_call", desc.Name, verdict)
		switch verdict.Kind {
		case safety.VerdictDeny:
			return x.fail(step, start, ReasonPolicyDenied, safety.NewDeniedError(verdict))
		case safety.VerdictRequireFallback:
			substitute, ok := x.substituteTool(names, i, verdict, fellBack)
			if !ok {
				return x.fail(step, start, ReasonPolicyDenied,
					fmt.Errorf("%w: fallback unavailable for tool %q", safety.ErrCallDenied, desc.Name))
			}
			names = substitute
			fellBack = true
			goto restart
		}

		result, attempts, err := x.invokeTool(ctx, capability, call)
		totalAttempts += attempts
		x.metrics.RecordToolCall(attempts)
		if err != nil && step.Fallback != nil && ctx.Err() == nil {
			switch step.Fallback.Strategy {
			case plan.StrategyRetryWithLimit:
				for extra := 0; extra < step.Fallback.ExtraRetries && err != nil && ctx.Err() == nil; extra++ {
					var more int
					result, more, err = x.invokeToolOnce(ctx, capability, call)
					totalAttempts += more
					x.metrics.RecordToolCall(more)
				}
			case plan.StrategyAlternateTool:
				if !fellBack && step.Fallback.Tool != "" {
					substitute := append([]string(nil), names...)
					substitute[i] = step.Fallback.Tool
					names = substitute
					fellBack = true
					goto restart
				}
			}
		}
		if err != nil {
			x.chain.After(ctx, call, result)
			return x.failFromInvoke(ctx, step, start, err)
		}

		after := x.chain.After(ctx, call, result)
		x.recordVerdict(step.ID, "after_call", desc.Name, after)
		switch after.Kind {
		case safety.VerdictDeny:
			return x.fail(step, start, ReasonOutputRejected,
				fmt.Errorf("%w: %s", ErrOutputRejected, after.Detail))
		case safety.VerdictRequireFallback:
			substitute, ok := x.substituteTool(names, i, after, fellBack)
			if !ok {
				return x.fail(step, start, ReasonOutputRejected,
					fmt.Errorf("%w: fallback unavailable for tool %q", ErrOutputRejected, desc.Name))
			}
			names = substitute
			fellBack = true
			goto restart
		}

		output = result.Payload
		x.transcript.Append(transcript.KindToolCall, step.ID, desc.Name, output)
	}

	return StepOutcome{
		StepID:   step.ID,
		Status:   OutcomeSucceeded,
		Output:   output,
		Attempts: totalAttempts,
		Duration: x.clk.Now().Sub(start),
	}
}

// runModel drives a model call for a step that names no tools.
func (x *StepExecutor) runModel(ctx context.Context, step *plan.Step, start time.Time) StepOutcome {
	if x.provider == nil {
		return x.fail(step, start, ReasonExecutionExhausted,
			errors.New("step names no tools and no model provider is configured"))
	}

	prompt, _ := json.Marshal(step.Instruction)
	call := &safety.CallContext{
		SessionID: x.sessionID,
		StepID:    step.ID,
		Kind:      safety.CallModel,
		Caller:    x.caller,
		Target:    x.provider.Name(),
		Payload:   prompt,
	}

	verdict := x.chain.Before(ctx, call)
	x.recordVerdict(step.ID, "before_call", call.Target, verdict)
	switch verdict.Kind {
	case safety.VerdictDeny:
		return x.fail(step, start, ReasonPolicyDenied, safety.NewDeniedError(verdict))
	case safety.VerdictRequireFallback:
		if verdict.Fallback == nil || verdict.Fallback.Tool == "" {
			return x.fail(step, start, ReasonPolicyDenied,
				fmt.Errorf("%w: fallback unavailable for model call", safety.ErrCallDenied))
		}
		step.Tools = []string{verdict.Fallback.Tool}
		return x.runTools(ctx, step, start)
	}

	var instruction string
	if err := json.Unmarshal(call.Payload, &instruction); err != nil {
		instruction = step.Instruction
	}

	var specs []model.ToolSpec
	if x.provider.SupportsTools() {
		for _, c := range x.registry.List() {
			d := c.Descriptor()
			specs = append(specs, model.ToolSpec{
				Name:        d.Name,
				Description: d.Description,
				InputSchema: d.InputSchema,
			})
		}
	}

	var (
		usage     model.Usage
		toolCalls []model.ToolCall
	)
	callStart := x.clk.Now()
	out, attempts, err := x.invoker.Do(ctx, func(ctx context.Context) (json.RawMessage, error) {
		resp, genErr := x.provider.Generate(ctx, model.Request{
			Messages:  []model.PromptMessage{{Role: model.RoleUser, Content: instruction}},
			Tools:     specs,
			MaxTokens: x.maxTokens,
		})
		if genErr != nil {
			return nil, genErr
		}
		usage = resp.Usage
		toolCalls = resp.ToolCalls
		return json.Marshal(resp.Content)
	})
	duration := x.clk.Now().Sub(callStart)

	x.metrics.RecordModelCall(attempts)
	x.metrics.AddTokens(usage.TotalTokens)

	result := &safety.CallResult{Payload: out, Err: err, Duration: duration, Attempts: attempts}
	if err != nil {
		x.chain.After(ctx, call, result)
		return x.failFromInvoke(ctx, step, start, err)
	}

	after := x.chain.After(ctx, call, result)
	x.recordVerdict(step.ID, "after_call", call.Target, after)
	if after.Kind == safety.VerdictDeny {
		return x.fail(step, start, ReasonOutputRejected,
			fmt.Errorf("%w: %s", ErrOutputRejected, after.Detail))
	}

	x.transcript.Append(transcript.KindModelCall, step.ID, call.Target, result.Payload)

	output := result.Payload
	if len(toolCalls) > maxProposedCalls {
		toolCalls = toolCalls[:maxProposedCalls]
	}
	for _, tc := range toolCalls {
		nested, reason, err := x.runProposedCall(ctx, step, tc)
		if err != nil {
			return x.fail(step, start, reason, err)
		}
		output = nested
	}

	return StepOutcome{
		StepID:   step.ID,
		Status:   OutcomeSucceeded,
		Output:   output,
		Tokens:   usage.TotalTokens,
		Attempts: attempts,
		Duration: x.clk.Now().Sub(start),
	}
}

// runProposedCall executes one tool invocation the model proposed. The
// call passes through the same interceptor chain as a planned tool call
// but runs without retries.
func (x *StepExecutor) runProposedCall(ctx context.Context, step *plan.Step, tc model.ToolCall) (json.RawMessage, string, error) {
	capability, err := x.registry.Resolve(tc.Name)
	if err != nil {
		return nil, ReasonUnknownTool, err
	}

	desc := capability.Descriptor()
	call := &safety.CallContext{
		SessionID: x.sessionID,
		StepID:    step.ID,
		Kind:      safety.CallTool,
		Caller:    x.caller,
		Tool:      &desc,
		Target:    desc.Name,
		Payload:   tc.Arguments,
	}

	verdict := x.chain.Before(ctx, call)
	x.recordVerdict(step.ID, "before_call", desc.Name, verdict)
	switch verdict.Kind {
	case safety.VerdictDeny:
		return nil, ReasonPolicyDenied, safety.NewDeniedError(verdict)
	case safety.VerdictRequireFallback:
		return nil, ReasonPolicyDenied,
			fmt.Errorf("%w: no fallback for proposed call to %q", safety.ErrCallDenied, desc.Name)
	}

	result, attempts, err := x.invokeToolOnce(ctx, capability, call)
	x.metrics.RecordToolCall(attempts)
	if err != nil {
		x.chain.After(ctx, call, result)
		return nil, ReasonExecutionExhausted, err
	}

	after := x.chain.After(ctx, call, result)
	x.recordVerdict(step.ID, "after_call", desc.Name, after)
	if after.Kind != safety.VerdictAllow && after.Kind != safety.VerdictModify {
		return nil, ReasonOutputRejected,
			fmt.Errorf("%w: %s", ErrOutputRejected, after.Detail)
	}

	x.transcript.Append(transcript.KindToolCall, step.ID, desc.Name, result.Payload)
	return result.Payload, "", nil
}

func (x *StepExecutor) invokeTool(ctx context.Context, capability tool.Capability, call *safety.CallContext) (*safety.CallResult, int, error) {
	callStart := x.clk.Now()
	out, attempts, err := x.invoker.Do(ctx, func(ctx context.Context) (json.RawMessage, error) {
		res, execErr := capability.Execute(ctx, call.Payload)
		if execErr != nil {
			return nil, execErr
		}
		return res.Output, nil
	})
	return &safety.CallResult{
		Payload:  out,
		Err:      err,
		Duration: x.clk.Now().Sub(callStart),
		Attempts: attempts,
	}, attempts, err
}

func (x *StepExecutor) invokeToolOnce(ctx context.Context, capability tool.Capability, call *safety.CallContext) (*safety.CallResult, int, error) {
	callStart := x.clk.Now()
	out, attempts, err := x.invoker.DoOnce(ctx, func(ctx context.Context) (json.RawMessage, error) {
		res, execErr := capability.Execute(ctx, call.Payload)
		if execErr != nil {
			return nil, execErr
		}
		return res.Output, nil
	})
	return &safety.CallResult{
		Payload:  out,
		Err:      err,
		Duration: x.clk.Now().Sub(callStart),
		Attempts: attempts,
	}, attempts, err
}

// substituteTool applies a fallback directive to the tool list. It
// refuses a second substitution for the same step.
func (x *StepExecutor) substituteTool(names []string, index int, v safety.Verdict, fellBack bool) ([]string, bool) {
	if fellBack || v.Fallback == nil || v.Fallback.Tool == "" {
		return nil, false
	}
	out := append([]string(nil), names...)
	out[index] = v.Fallback.Tool
	return out, true
}

func (x *StepExecutor) failFromInvoke(ctx context.Context, step *plan.Step, start time.Time, err error) StepOutcome {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return x.fail(step, start, ReasonStepTimeout, fmt.Errorf("%w: %v", ErrStepTimeout, err))
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return x.fail(step, start, ReasonCancelled, err)
	default:
		return x.fail(step, start, ReasonExecutionExhausted, fmt.Errorf("%w: %v", ErrExecutionExhausted, err))
	}
}

func (x *StepExecutor) fail(step *plan.Step, start time.Time, reason string, err error) StepOutcome {
	return StepOutcome{
		StepID:   step.ID,
		Status:   OutcomeFailed,
		Reason:   reason,
		Duration: x.clk.Now().Sub(start),
		Err:      err,
	}
}

// finish applies the outcome to the step, records it, and emits the
// step_outcome event.
func (x *StepExecutor) finish(step *plan.Step, outcome *StepOutcome) {
	if outcome.Succeeded() {
		step.Succeed(outcome.Output)
	} else if !step.Status.IsTerminal() {
		step.Fail(outcome.Reason)
	}

	payload, _ := json.Marshal(outcome)
	x.transcript.Append(transcript.KindStepFinished, step.ID, outcome.Reason, payload)

	log := logging.Info()
	if !outcome.Succeeded() {
		log = logging.Warn()
	}
	log.Add(logging.SessionID(x.sessionID)).
		Add(logging.StepID(step.ID)).
		Add(logging.Str("status", string(outcome.Status))).
		Add(logging.Reason(outcome.Reason)).
		Add(logging.Attempts(outcome.Attempts)).
		Add(logging.Duration(outcome.Duration)).
		Msg("step finished")

	x.sink.Emit(telemetry.Event{
		Kind:      telemetry.EventStepOutcome,
		SessionID: x.sessionID,
		At:        x.clk.Now(),
		Attributes: []telemetry.Attribute{
			telemetry.String("step_id", step.ID),
			telemetry.String("status", string(outcome.Status)),
			telemetry.String("reason", outcome.Reason),
			telemetry.Int("attempts", outcome.Attempts),
		},
	})
}

func (x *StepExecutor) recordVerdict(stepID, phase, target string, v safety.Verdict) {
	if v.Kind == safety.VerdictAllow {
		return
	}
	payload, _ := json.Marshal(v)
	x.transcript.Append(transcript.KindVerdict, stepID, string(v.Reason), payload)
	x.sink.Emit(telemetry.Event{
		Kind:      telemetry.EventVerdict,
		SessionID: x.sessionID,
		At:        x.clk.Now(),
		Attributes: []telemetry.Attribute{
			telemetry.String("step_id", stepID),
			telemetry.String("phase", phase),
			telemetry.String("target", target),
			telemetry.String("verdict", string(v.Kind)),
			telemetry.String("reason", string(v.Reason)),
		},
	})
}
