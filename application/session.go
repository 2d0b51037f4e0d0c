package application

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/agent-runtime/domain/agent"
	"github.com/felixgeelhaar/agent-runtime/domain/evaluator"
	"github.com/felixgeelhaar/agent-runtime/domain/memory"
	"github.com/felixgeelhaar/agent-runtime/domain/model"
	"github.com/felixgeelhaar/agent-runtime/domain/plan"
	"github.com/felixgeelhaar/agent-runtime/domain/policy"
	"github.com/felixgeelhaar/agent-runtime/domain/safety"
	"github.com/felixgeelhaar/agent-runtime/domain/telemetry"
	"github.com/felixgeelhaar/agent-runtime/domain/tool"
	"github.com/felixgeelhaar/agent-runtime/domain/transcript"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/clock"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/interceptor"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/logging"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/registry"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/resilience"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/statemachine"
)

// Session owns one agent run: its plan, budget, transcript, metrics,
// session-scoped tool registry, and the state machine that gates every
// phase. Collaborators the session does not own, like memory and the
// model provider, are injected as handles.
type Session struct {
	ID     string
	Caller safety.Caller

	plan       *plan.Plan
	budget     *policy.Budget
	transcript *transcript.Transcript
	metrics    *UsageMetrics
	tools      *registry.Scoped
	interp     *statemachine.Interpreter
	executor   *StepExecutor
	loop       *ControlLoop

	memory   memory.Store
	provider model.Provider
	telem    telemetry.Provider
	clk      clock.Clock

	mu    sync.Mutex
	ended bool
}

// SessionConfig assembles a session. Goal and Limits are required;
// everything else has a sensible default.
type SessionConfig struct {
	// ID identifies the session; empty means a generated UUID.
	ID string

	// Goal is what the session is trying to accomplish.
	Goal string

	// Caller identifies who the session acts as for authorization.
	Caller safety.Caller

	// Limits declares the session budget. Zero or negative counter
	// limits are rejected with policy.ErrInvalidBudget.
	Limits policy.Limits

	// Steps preloads the plan. A session with no preloaded steps needs
	// a Planner to make progress.
	Steps []*plan.Step

	// Registry is the shared tool registry; the session layers its own
	// overlay on top. Nil means an empty base.
	Registry tool.Registry

	// Chain overrides the default interceptor chain of schema
	// validation, RBAC, and per-tool rate limiting.
	Chain *safety.Chain

	// Invoker overrides the default resilience stack.
	Invoker *resilience.Invoker

	Provider model.Provider
	Memory   memory.Store
	Planner  Planner

	// Mode selects when the loop consults the planner; empty means
	// ModeReactive.
	Mode Mode

	Evaluator evaluator.Evaluator
	Telemetry telemetry.Provider
	Clock     clock.Clock

	// StepTimeout bounds one step end to end.
	StepTimeout time.Duration

	// MaxTokens caps each model call when > 0.
	MaxTokens int
}

// NewSession validates the budget, builds the state machine, and wires
// the executor and loop. The session starts in Idle.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}
	now := cfg.Clock.Now()

	budget, err := policy.NewBudget(cfg.Limits, now)
	if err != nil {
		return nil, err
	}

	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	if cfg.Registry == nil {
		cfg.Registry = registry.NewInMemory()
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = noopTelemetry{}
	}

	tr := transcript.New()
	metrics := NewUsageMetrics(now)
	tools := registry.NewScoped(cfg.Registry)

	chain := cfg.Chain
	if chain == nil {
		chain = safety.NewChain(
			interceptor.NewSchemaValidator(),
			interceptor.NewRBAC(),
			interceptor.NewRateLimiter(interceptor.RateLimiterConfig{Clock: cfg.Clock}),
			interceptor.NewAudit(cfg.Telemetry.Sink()),
		)
	}
	invoker := cfg.Invoker
	if invoker == nil {
		invoker = resilience.NewInvoker(resilience.DefaultInvokerConfig())
	}

	machine, err := statemachine.NewSessionMachine()
	if err != nil {
		return nil, fmt.Errorf("build session machine: %w", err)
	}
	mctx := statemachine.NewContext(id, budget, tr)
	mctx.Now = cfg.Clock.Now
	interp := statemachine.NewInterpreter(machine, mctx)

	executor, err := NewStepExecutor(ExecutorConfig{
		SessionID:  id,
		Caller:     cfg.Caller,
		Registry:   tools,
		Chain:      chain,
		Invoker:    invoker,
		Provider:   cfg.Provider,
		Metrics:    metrics,
		Transcript: tr,
		Clock:      cfg.Clock,
		Timeout:    cfg.StepTimeout,
		Tracer:     cfg.Telemetry.Tracer(),
		Sink:       cfg.Telemetry.Sink(),
		MaxTokens:  cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	p := plan.New(cfg.Goal)
	p.Append(cfg.Steps...)

	loop, err := NewControlLoop(LoopConfig{
		SessionID:   id,
		Interpreter: interp,
		Executor:    executor,
		Plan:        p,
		Budget:      budget,
		Planner:     cfg.Planner,
		Mode:        cfg.Mode,
		Evaluator:   cfg.Evaluator,
		Memory:      cfg.Memory,
		Clock:       cfg.Clock,
		Sink:        cfg.Telemetry.Sink(),
	})
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:         id,
		Caller:     cfg.Caller,
		plan:       p,
		budget:     budget,
		transcript: tr,
		metrics:    metrics,
		tools:      tools,
		interp:     interp,
		executor:   executor,
		loop:       loop,
		memory:     cfg.Memory,
		provider:   cfg.Provider,
		telem:      cfg.Telemetry,
		clk:        cfg.Clock,
	}, nil
}

// RegisterTool adds a capability to the session's overlay registry. The
// registration is invisible to other sessions sharing the base.
func (s *Session) RegisterTool(c tool.Capability) error {
	return s.tools.Register(c)
}

// Tools returns the session's scoped registry.
func (s *Session) Tools() tool.Registry { return s.tools }

// Plan returns the session plan.
func (s *Session) Plan() *plan.Plan { return s.plan }

// Budget returns the session budget.
func (s *Session) Budget() *policy.Budget { return s.budget }

// Transcript returns the session transcript.
func (s *Session) Transcript() *transcript.Transcript { return s.transcript }

// Metrics returns the session usage counters.
func (s *Session) Metrics() *UsageMetrics { return s.metrics }

// State returns the current lifecycle state.
func (s *Session) State() agent.State { return s.interp.State() }

// Run drives the control loop to a terminal state, then tears the
// session down. Cancellation of ctx halts the session with reason
// Cancelled rather than failing it.
func (s *Session) Run(ctx context.Context) (LoopResult, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return LoopResult{}, agent.ErrSessionTerminated
	}
	s.mu.Unlock()

	s.interp.Start()
	logging.Info().
		Add(logging.SessionID(s.ID)).
		Add(logging.Str("goal", s.plan.Goal)).
		Add(logging.Int("preloaded_steps", s.plan.Len())).
		Msg("session started")

	result := s.loop.Run(ctx)
	s.metrics.UpdateWall(s.clk.Now())

	if err := s.Teardown(context.WithoutCancel(ctx)); err != nil {
		logging.Warn().
			Add(logging.SessionID(s.ID)).
			Add(logging.ErrorField(err)).
			Msg("session teardown incomplete")
	}
	return result, result.Err
}

// Teardown finalizes the session: the transcript and plan are flushed
// to memory and the terminal telemetry event is emitted. Teardown runs
// once; later calls are no-ops.
func (s *Session) Teardown(ctx context.Context) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil
	}
	s.ended = true
	s.mu.Unlock()

	now := s.clk.Now()
	s.transcript.Append(transcript.KindSessionEnd, "", string(s.interp.State()), nil)

	var flushErr error
	if s.memory != nil {
		if data, err := json.Marshal(s.transcript); err == nil {
			if err := s.memory.Put(ctx, "session/"+s.ID+"/transcript", data); err != nil {
				flushErr = fmt.Errorf("flush transcript: %w", err)
			}
		}
		if data := planPayload(s.plan); data != nil {
			if err := s.memory.Put(ctx, "session/"+s.ID+"/plan", data); err != nil && flushErr == nil {
				flushErr = fmt.Errorf("flush plan: %w", err)
			}
		}
	}

	snap := s.metrics.Snapshot()
	s.telem.Sink().Emit(telemetry.Event{
		Kind:      telemetry.EventSessionEnd,
		SessionID: s.ID,
		At:        now,
		Attributes: []telemetry.Attribute{
			telemetry.String("state", string(s.interp.State())),
			telemetry.Int("steps_executed", snap.ToolCalls+snap.ModelCalls),
			telemetry.Int("tokens", snap.Tokens),
			telemetry.Int("call_attempts", snap.CallAttempts),
			telemetry.Int64("wall_ms", snap.WallSpent.Milliseconds()),
		},
	})
	return flushErr
}

// noopTelemetry satisfies telemetry.Provider with inert facets.
type noopTelemetry struct{}

func (noopTelemetry) Tracer() telemetry.Tracer { return nil }
func (noopTelemetry) Meter() telemetry.Meter   { return nil }
func (noopTelemetry) Sink() telemetry.Sink     { return telemetry.NopSink{} }
