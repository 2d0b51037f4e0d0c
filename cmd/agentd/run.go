package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/agent-runtime/application"
	"github.com/felixgeelhaar/agent-runtime/domain/memory"
	"github.com/felixgeelhaar/agent-runtime/domain/model"
	"github.com/felixgeelhaar/agent-runtime/domain/plan"
	"github.com/felixgeelhaar/agent-runtime/domain/policy"
	"github.com/felixgeelhaar/agent-runtime/domain/safety"
	"github.com/felixgeelhaar/agent-runtime/domain/telemetry"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/anthropic"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/clock"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/config"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/interceptor"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/memstore"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/modelstub"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/observability"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/openai"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/registry"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/resilience"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/toolkit"
)

// planFile is the on-disk shape of a preloaded plan.
type planFile struct {
	Steps []struct {
		ID          string          `json:"id"`
		Instruction string          `json:"instruction"`
		Tools       []string        `json:"tools,omitempty"`
		Input       json.RawMessage `json:"input,omitempty"`
	} `json:"steps"`
}

func newRunCommand(configPath *string) *cobra.Command {
	var (
		planPath string
		callerID string
		roles    []string
		autoplan bool
		mode     string
	)

	cmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Run one agent session toward a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			initLogging(cfg)

			steps, err := loadPlan(planPath)
			if err != nil {
				return err
			}
			if len(steps) == 0 && !autoplan {
				return fmt.Errorf("no plan given: pass --plan or enable --autoplan")
			}

			telem, err := buildTelemetry(cfg)
			if err != nil {
				return err
			}
			defer telem.Shutdown(context.Background())

			provider, err := buildProvider(cfg)
			if err != nil {
				return err
			}

			store, closeStore, err := buildMemory(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			clk := clock.NewSystem()
			base := registry.NewInMemory()
			if err := toolkit.RegisterBuiltins(base, clk); err != nil {
				return err
			}

			var planner application.Planner
			if autoplan {
				planner, err = application.NewModelPlanner(provider, base, 0)
				if err != nil {
					return err
				}
			}

			session, err := application.NewSession(application.SessionConfig{
				Goal:   args[0],
				Caller: safety.Caller{ID: callerID, Roles: policy.NewRoleSet(roles...)},
				Limits: policy.Limits{
					Steps:  cfg.Budget.Steps,
					Tokens: cfg.Budget.Tokens,
					Wall:   cfg.Budget.Wall,
				},
				Steps:     steps,
				Registry:  base,
				Chain:     buildChain(cfg, clk, telem.Sink()),
				Invoker:   buildInvoker(cfg),
				Provider:  provider,
				Memory:    store,
				Planner:   planner,
				Mode:      application.Mode(mode),
				Telemetry: telem,
				Clock:     clk,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, runErr := session.Run(ctx)
			report(cmd, session, result)
			return runErr
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "path to a JSON plan file")
	cmd.Flags().StringVar(&callerID, "caller", "cli", "caller identity for authorization")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role granted to the caller (repeatable)")
	cmd.Flags().BoolVar(&autoplan, "autoplan", false, "let the model propose the plan")
	cmd.Flags().StringVar(&mode, "mode", "reactive", "planning mode: reactive, deterministic, or procedural")
	return cmd
}

func loadPlan(path string) ([]*plan.Step, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	var pf planFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	steps := make([]*plan.Step, 0, len(pf.Steps))
	for i, s := range pf.Steps {
		id := s.ID
		if id == "" {
			id = fmt.Sprintf("step-%d", i+1)
		}
		step := plan.NewStep(id, s.Instruction).WithInput(s.Input)
		if len(s.Tools) > 0 {
			step.WithTools(s.Tools...)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func buildTelemetry(cfg *config.RuntimeConfig) (*observability.Provider, error) {
	if !cfg.Tracing.Enabled {
		return observability.NewNoopProvider(), nil
	}
	return observability.New(
		observability.WithServiceName("agentd"),
		observability.WithServiceVersion(version),
		observability.WithStdoutTracing(),
		observability.WithMetrics(),
		observability.WithSampleRate(cfg.Tracing.Sample),
	)
}

func buildProvider(cfg *config.RuntimeConfig) (model.Provider, error) {
	switch cfg.Model.Provider {
	case "openai":
		return openai.New(openai.Config{
			APIKey:  cfg.Model.APIKey,
			Model:   cfg.Model.Model,
			BaseURL: cfg.Model.BaseURL,
		})
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:  cfg.Model.APIKey,
			Model:   cfg.Model.Model,
			BaseURL: cfg.Model.BaseURL,
		})
	case "echo", "":
		return modelstub.NewEcho(), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}
}

func buildMemory(cfg *config.RuntimeConfig) (memory.Store, func(), error) {
	if cfg.Memory.Backend == "redis" {
		store, err := memstore.NewRedis(memstore.RedisConfig{
			Address:   cfg.Memory.Redis.Address,
			Password:  cfg.Memory.Redis.Password,
			DB:        cfg.Memory.Redis.DB,
			KeyPrefix: cfg.Memory.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return store, func() { store.Close() }, nil
	}
	return memstore.NewInMemory(), func() {}, nil
}

func buildChain(cfg *config.RuntimeConfig, clk clock.Clock, sink telemetry.Sink) *safety.Chain {
	interceptors := []safety.Interceptor{
		interceptor.NewSchemaValidator(),
		interceptor.NewRBAC(),
		interceptor.NewRateLimiter(interceptor.RateLimiterConfig{
			Clock:       clk,
			GlobalRate:  cfg.Safety.GlobalRate,
			GlobalBurst: cfg.Safety.GlobalBurst,
		}),
	}
	if len(cfg.Safety.BlockedPhrases) > 0 {
		interceptors = append(interceptors, interceptor.NewPromptFilter(cfg.Safety.BlockedPhrases))
	}
	interceptors = append(interceptors, interceptor.NewRedactor(), interceptor.NewAudit(sink))

	chain := safety.NewChain(interceptors...)
	if cfg.Safety.CheckTimeout > 0 {
		chain = chain.WithCheckTimeout(cfg.Safety.CheckTimeout)
	}
	return chain
}

func buildInvoker(cfg *config.RuntimeConfig) *resilience.Invoker {
	return resilience.NewInvoker(resilience.InvokerConfig{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		Multiplier:   cfg.Retry.Multiplier,
		CallTimeout:  cfg.Retry.CallTimeout,
	})
}

func report(cmd *cobra.Command, session *application.Session, result application.LoopResult) {
	out := struct {
		SessionID  string                      `json:"session_id"`
		State      string                      `json:"state"`
		HaltReason string                      `json:"halt_reason,omitempty"`
		Executed   int                         `json:"executed"`
		Metrics    application.MetricsSnapshot `json:"metrics"`
	}{
		SessionID:  session.ID,
		State:      string(result.State),
		HaltReason: string(result.HaltReason),
		Executed:   result.Executed,
		Metrics:    session.Metrics().Snapshot(),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
}
