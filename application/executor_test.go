package application

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/agent-runtime/domain/model"
	"github.com/felixgeelhaar/agent-runtime/domain/plan"
	"github.com/felixgeelhaar/agent-runtime/domain/safety"
	"github.com/felixgeelhaar/agent-runtime/domain/tool"
	"github.com/felixgeelhaar/agent-runtime/domain/transcript"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/modelstub"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/registry"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/resilience"
)

// stubInterceptor lets each test script verdicts directly.
type stubInterceptor struct {
	name   string
	before func(call *safety.CallContext) safety.Verdict
	after  func(call *safety.CallContext, result *safety.CallResult) safety.Verdict
}

func (s *stubInterceptor) Name() string { return s.name }

func (s *stubInterceptor) Before(_ context.Context, call *safety.CallContext) safety.Verdict {
	if s.before == nil {
		return safety.Allow()
	}
	return s.before(call)
}

func (s *stubInterceptor) After(_ context.Context, call *safety.CallContext, result *safety.CallResult) safety.Verdict {
	if s.after == nil {
		return safety.Allow()
	}
	return s.after(call, result)
}

func echoCapability(t *testing.T, name string, calls *atomic.Int32) tool.Capability {
	t.Helper()
	return tool.NewBuilder(name).
		WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
			if calls != nil {
				calls.Add(1)
			}
			return tool.Result{Output: input}, nil
		}).
		MustBuild()
}

func fastInvoker(maxAttempts int) *resilience.Invoker {
	return resilience.NewInvoker(resilience.InvokerConfig{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		CallTimeout:  5 * time.Second,
	})
}

func newTestExecutor(t *testing.T, cfg ExecutorConfig) (*StepExecutor, *UsageMetrics, *transcript.Transcript) {
	t.Helper()
	if cfg.SessionID == "" {
		cfg.SessionID = "test-session"
	}
	if cfg.Invoker == nil {
		cfg.Invoker = fastInvoker(3)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewUsageMetrics(time.Now().UTC())
	}
	if cfg.Transcript == nil {
		cfg.Transcript = transcript.New()
	}
	x, err := NewStepExecutor(cfg)
	if err != nil {
		t.Fatalf("NewStepExecutor: %v", err)
	}
	return x, cfg.Metrics, cfg.Transcript
}

func TestExecuteEchoStep(t *testing.T) {
	reg := registry.NewInMemory()
	if err := reg.Register(echoCapability(t, "echo", nil)); err != nil {
		t.Fatalf("register: %v", err)
	}
	x, _, tr := newTestExecutor(t, ExecutorConfig{Registry: reg})

	step := plan.NewStep("s1", "echo the greeting").
		WithTools("echo").
		WithInput(json.RawMessage(`"hi"`))

	outcome := x.Execute(context.Background(), step)

	if !outcome.Succeeded() {
		t.Fatalf("outcome = %+v, want succeeded", outcome)
	}
	if got := string(outcome.Output); got != `"hi"` {
		t.Errorf("output = %s, want %q", got, `"hi"`)
	}
	if step.Status != plan.StatusSucceeded {
		t.Errorf("step status = %s, want succeeded", step.Status)
	}
	if n := len(tr.Steps(transcript.KindStepStarted)); n != 1 {
		t.Errorf("step_started events = %d, want 1", n)
	}
	if n := len(tr.Steps(transcript.KindStepFinished)); n != 1 {
		t.Errorf("step_finished events = %d, want 1", n)
	}
}

func TestDenyPreventsInvocation(t *testing.T) {
	var calls atomic.Int32
	reg := registry.NewInMemory()
	reg.Register(echoCapability(t, "echo", &calls))

	chain := safety.NewChain(&stubInterceptor{
		name: "denier",
		before: func(*safety.CallContext) safety.Verdict {
			return safety.Deny(safety.ReasonUnauthorized, "not allowed")
		},
	})
	x, _, _ := newTestExecutor(t, ExecutorConfig{Registry: reg, Chain: chain})

	step := plan.NewStep("s1", "blocked").WithTools("echo")
	outcome := x.Execute(context.Background(), step)

	if outcome.Succeeded() {
		t.Fatal("outcome succeeded, want failure")
	}
	if outcome.Reason != ReasonPolicyDenied {
		t.Errorf("reason = %s, want %s", outcome.Reason, ReasonPolicyDenied)
	}
	if !errors.Is(outcome.Err, safety.ErrCallDenied) {
		t.Errorf("err = %v, want ErrCallDenied", outcome.Err)
	}
	if calls.Load() != 0 {
		t.Errorf("tool invoked %d times despite denial", calls.Load())
	}
	if step.Status != plan.StatusFailed {
		t.Errorf("step status = %s, want failed", step.Status)
	}
}

func TestUnknownToolFailsStep(t *testing.T) {
	x, _, _ := newTestExecutor(t, ExecutorConfig{Registry: registry.NewInMemory()})

	step := plan.NewStep("s1", "use a missing tool").WithTools("nope")
	outcome := x.Execute(context.Background(), step)

	if outcome.Reason != ReasonUnknownTool {
		t.Errorf("reason = %s, want %s", outcome.Reason, ReasonUnknownTool)
	}
	if !errors.Is(outcome.Err, tool.ErrUnknownTool) {
		t.Errorf("err = %v, want ErrUnknownTool", outcome.Err)
	}
}

func TestFinalizedStepIsNotRunnable(t *testing.T) {
	reg := registry.NewInMemory()
	reg.Register(echoCapability(t, "echo", nil))
	x, _, _ := newTestExecutor(t, ExecutorConfig{Registry: reg})

	step := plan.NewStep("s1", "already done").WithTools("echo")
	if err := step.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := step.Succeed(json.RawMessage(`"done"`)); err != nil {
		t.Fatalf("Succeed: %v", err)
	}

	outcome := x.Execute(context.Background(), step)

	if outcome.Succeeded() {
		t.Fatal("outcome succeeded, want failure")
	}
	if outcome.Reason != ReasonStepNotRunnable {
		t.Errorf("reason = %s, want %s", outcome.Reason, ReasonStepNotRunnable)
	}
	if !errors.Is(outcome.Err, plan.ErrStepNotPending) {
		t.Errorf("err = %v, want ErrStepNotPending", outcome.Err)
	}
}

func TestModifyRewritesPayload(t *testing.T) {
	reg := registry.NewInMemory()
	reg.Register(echoCapability(t, "echo", nil))

	chain := safety.NewChain(&stubInterceptor{
		name: "rewriter",
		before: func(*safety.CallContext) safety.Verdict {
			return safety.Modify(json.RawMessage(`"rewritten"`))
		},
	})
	x, _, _ := newTestExecutor(t, ExecutorConfig{Registry: reg, Chain: chain})

	step := plan.NewStep("s1", "echo").WithTools("echo").WithInput(json.RawMessage(`"original"`))
	outcome := x.Execute(context.Background(), step)

	if !outcome.Succeeded() {
		t.Fatalf("outcome = %+v, want succeeded", outcome)
	}
	if got := string(outcome.Output); got != `"rewritten"` {
		t.Errorf("output = %s, want rewritten payload", got)
	}
}

func TestOutputRejected(t *testing.T) {
	reg := registry.NewInMemory()
	reg.Register(echoCapability(t, "echo", nil))

	chain := safety.NewChain(&stubInterceptor{
		name: "rejecter",
		after: func(*safety.CallContext, *safety.CallResult) safety.Verdict {
			return safety.Deny(safety.ReasonInvalidOutput, "shape mismatch")
		},
	})
	x, _, _ := newTestExecutor(t, ExecutorConfig{Registry: reg, Chain: chain})

	step := plan.NewStep("s1", "echo").WithTools("echo").WithInput(json.RawMessage(`"hi"`))
	outcome := x.Execute(context.Background(), step)

	if outcome.Reason != ReasonOutputRejected {
		t.Errorf("reason = %s, want %s", outcome.Reason, ReasonOutputRejected)
	}
	if !errors.Is(outcome.Err, ErrOutputRejected) {
		t.Errorf("err = %v, want ErrOutputRejected", outcome.Err)
	}
}

func TestFallbackSubstitutesOnce(t *testing.T) {
	var primary, backup atomic.Int32
	reg := registry.NewInMemory()
	reg.Register(echoCapability(t, "primary", &primary))
	reg.Register(echoCapability(t, "backup", &backup))

	t.Run("substitute succeeds", func(t *testing.T) {
		chain := safety.NewChain(&stubInterceptor{
			name: "router",
			before: func(call *safety.CallContext) safety.Verdict {
				if call.Target == "primary" {
					return safety.RequireFallback(plan.Fallback{
						Strategy: plan.StrategyAlternateTool,
						Tool:     "backup",
					})
				}
				return safety.Allow()
			},
		})
		x, _, _ := newTestExecutor(t, ExecutorConfig{Registry: reg, Chain: chain})

		step := plan.NewStep("s1", "routed").WithTools("primary").WithInput(json.RawMessage(`"hi"`))
		outcome := x.Execute(context.Background(), step)

		if !outcome.Succeeded() {
			t.Fatalf("outcome = %+v, want succeeded via backup", outcome)
		}
		if primary.Load() != 0 {
			t.Errorf("primary invoked %d times, want 0", primary.Load())
		}
		if backup.Load() != 1 {
			t.Errorf("backup invoked %d times, want 1", backup.Load())
		}
	})

	t.Run("second fallback fails the step", func(t *testing.T) {
		chain := safety.NewChain(&stubInterceptor{
			name: "endless-router",
			before: func(*safety.CallContext) safety.Verdict {
				return safety.RequireFallback(plan.Fallback{
					Strategy: plan.StrategyAlternateTool,
					Tool:     "backup",
				})
			},
		})
		x, _, _ := newTestExecutor(t, ExecutorConfig{Registry: reg, Chain: chain})

		step := plan.NewStep("s2", "routed forever").WithTools("primary")
		outcome := x.Execute(context.Background(), step)

		if outcome.Succeeded() {
			t.Fatal("outcome succeeded, want failure after second fallback")
		}
	})
}

func TestStepFallbackDirectives(t *testing.T) {
	t.Run("retry with limit grants extra attempts", func(t *testing.T) {
		var calls atomic.Int32
		flaky := tool.NewBuilder("flaky").
			WithHandler(func(_ context.Context, input json.RawMessage) (tool.Result, error) {
				if calls.Add(1) < 4 {
					return tool.Result{}, errors.New("transient")
				}
				return tool.Result{Output: input}, nil
			}).
			MustBuild()
		reg := registry.NewInMemory()
		reg.Register(flaky)

		x, _, _ := newTestExecutor(t, ExecutorConfig{Registry: reg, Invoker: fastInvoker(2)})

		step := plan.NewStep("s1", "flaky call").
			WithTools("flaky").
			WithInput(json.RawMessage(`"hi"`)).
			WithFallback(plan.Fallback{Strategy: plan.StrategyRetryWithLimit, ExtraRetries: 2})
		outcome := x.Execute(context.Background(), step)

		if !outcome.Succeeded() {
			t.Fatalf("outcome = %+v, want succeeded on a granted attempt", outcome)
		}
		if calls.Load() != 4 {
			t.Errorf("tool calls = %d, want 4", calls.Load())
		}
		if outcome.Attempts != 4 {
			t.Errorf("attempts = %d, want 4", outcome.Attempts)
		}
	})

	t.Run("alternate tool after exhaustion", func(t *testing.T) {
		var backup atomic.Int32
		broken := tool.NewBuilder("broken").
			WithHandler(func(_ context.Context, _ json.RawMessage) (tool.Result, error) {
				return tool.Result{}, errors.New("permanently down")
			}).
			MustBuild()
		reg := registry.NewInMemory()
		reg.Register(broken)
		reg.Register(echoCapability(t, "backup", &backup))

		x, _, _ := newTestExecutor(t, ExecutorConfig{Registry: reg, Invoker: fastInvoker(2)})

		step := plan.NewStep("s2", "broken call").
			WithTools("broken").
			WithInput(json.RawMessage(`"hi"`)).
			WithFallback(plan.Fallback{Strategy: plan.StrategyAlternateTool, Tool: "backup"})
		outcome := x.Execute(context.Background(), step)

		if !outcome.Succeeded() {
			t.Fatalf("outcome = %+v, want succeeded via backup", outcome)
		}
		if backup.Load() != 1 {
			t.Errorf("backup invoked %d times, want 1", backup.Load())
		}
		if got := string(outcome.Output); got != `"hi"` {
			t.Errorf("output = %s, want %q", got, `"hi"`)
		}
	})
}

func TestModelRetrySucceeds(t *testing.T) {
	provider := modelstub.NewScripted(
		modelstub.ScriptEntry{Err: errors.New("upstream unavailable")},
		modelstub.ScriptEntry{Err: errors.New("upstream unavailable")},
		modelstub.ScriptEntry{Response: &model.Response{
			Content: "done",
			Usage:   model.Usage{TotalTokens: 42},
		}},
	)
	x, metrics, _ := newTestExecutor(t, ExecutorConfig{
		Registry: registry.NewInMemory(),
		Provider: provider,
		Invoker:  fastInvoker(3),
	})

	step := plan.NewStep("s1", "summarize the findings")
	outcome := x.Execute(context.Background(), step)

	if !outcome.Succeeded() {
		t.Fatalf("outcome = %+v, want succeeded after retries", outcome)
	}
	if provider.Calls() != 3 {
		t.Errorf("provider calls = %d, want 3", provider.Calls())
	}
	snap := metrics.Snapshot()
	if snap.CallAttempts != 3 {
		t.Errorf("call attempts = %d, want 3", snap.CallAttempts)
	}
	if snap.Tokens != 42 {
		t.Errorf("tokens = %d, want 42", snap.Tokens)
	}
}

func TestModelProposedToolCalls(t *testing.T) {
	var calls atomic.Int32
	reg := registry.NewInMemory()
	reg.Register(echoCapability(t, "echo", &calls))

	provider := modelstub.NewScripted(modelstub.ScriptEntry{Response: &model.Response{
		Content: "let me check",
		ToolCalls: []model.ToolCall{
			{Name: "echo", Arguments: json.RawMessage(`"from the model"`)},
		},
		Usage: model.Usage{TotalTokens: 7},
	}})
	x, _, tr := newTestExecutor(t, ExecutorConfig{Registry: reg, Provider: provider})

	step := plan.NewStep("s1", "use whatever tool fits")
	outcome := x.Execute(context.Background(), step)

	if !outcome.Succeeded() {
		t.Fatalf("outcome = %+v, want succeeded", outcome)
	}
	if calls.Load() != 1 {
		t.Errorf("tool invoked %d times, want 1", calls.Load())
	}
	if got := string(outcome.Output); got != `"from the model"` {
		t.Errorf("output = %s, want the nested tool result", got)
	}
	if n := len(tr.Steps(transcript.KindToolCall)); n != 1 {
		t.Errorf("tool_call events = %d, want 1", n)
	}
}

func TestModelRetriesExhausted(t *testing.T) {
	provider := modelstub.NewScripted(
		modelstub.ScriptEntry{Err: errors.New("upstream unavailable")},
		modelstub.ScriptEntry{Err: errors.New("upstream unavailable")},
		modelstub.ScriptEntry{Err: errors.New("upstream unavailable")},
	)
	x, _, _ := newTestExecutor(t, ExecutorConfig{
		Registry: registry.NewInMemory(),
		Provider: provider,
		Invoker:  fastInvoker(3),
	})

	step := plan.NewStep("s1", "summarize the findings")
	outcome := x.Execute(context.Background(), step)

	if outcome.Reason != ReasonExecutionExhausted {
		t.Errorf("reason = %s, want %s", outcome.Reason, ReasonExecutionExhausted)
	}
	if !errors.Is(outcome.Err, ErrExecutionExhausted) {
		t.Errorf("err = %v, want ErrExecutionExhausted", outcome.Err)
	}
}

func TestStepTimeout(t *testing.T) {
	reg := registry.NewInMemory()
	slow := tool.NewBuilder("slow").
		WithHandler(func(ctx context.Context, _ json.RawMessage) (tool.Result, error) {
			select {
			case <-time.After(time.Second):
				return tool.Result{Output: json.RawMessage(`"late"`)}, nil
			case <-ctx.Done():
				return tool.Result{}, ctx.Err()
			}
		}).
		MustBuild()
	reg.Register(slow)

	x, _, _ := newTestExecutor(t, ExecutorConfig{
		Registry: reg,
		Invoker:  fastInvoker(1),
		Timeout:  20 * time.Millisecond,
	})

	step := plan.NewStep("s1", "take too long").WithTools("slow")
	outcome := x.Execute(context.Background(), step)

	if outcome.Reason != ReasonStepTimeout {
		t.Errorf("reason = %s, want %s", outcome.Reason, ReasonStepTimeout)
	}
	if !errors.Is(outcome.Err, ErrStepTimeout) {
		t.Errorf("err = %v, want ErrStepTimeout", outcome.Err)
	}
}
