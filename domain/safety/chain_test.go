package safety

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/agent-runtime/domain/plan"
)

func planFallback() plan.Fallback {
	return plan.Fallback{Strategy: plan.StrategyAlternateTool, Tool: "backup"}
}

type scriptedInterceptor struct {
	name   string
	before func(call *CallContext) Verdict
	after  func(call *CallContext, result *CallResult) Verdict
}

func (s *scriptedInterceptor) Name() string { return s.name }

func (s *scriptedInterceptor) Before(_ context.Context, call *CallContext) Verdict {
	if s.before == nil {
		return Allow()
	}
	return s.before(call)
}

func (s *scriptedInterceptor) After(_ context.Context, call *CallContext, result *CallResult) Verdict {
	if s.after == nil {
		return Allow()
	}
	return s.after(call, result)
}

func TestChainDenyShortCircuits(t *testing.T) {
	var reached bool
	chain := NewChain(
		&scriptedInterceptor{
			name:   "denier",
			before: func(*CallContext) Verdict { return Deny(ReasonUnauthorized, "no") },
		},
		&scriptedInterceptor{
			name: "later",
			before: func(*CallContext) Verdict {
				reached = true
				return Allow()
			},
		},
	)

	v := chain.Before(context.Background(), &CallContext{Kind: CallTool, Target: "x"})
	if v.Kind != VerdictDeny || v.Reason != ReasonUnauthorized {
		t.Fatalf("verdict = %+v, want deny unauthorized", v)
	}
	if reached {
		t.Error("interceptor after a denial was consulted")
	}
}

func TestChainModifyAccumulates(t *testing.T) {
	chain := NewChain(
		&scriptedInterceptor{
			name:   "first",
			before: func(*CallContext) Verdict { return Modify(json.RawMessage(`"one"`)) },
		},
		&scriptedInterceptor{
			name: "second",
			before: func(call *CallContext) Verdict {
				if string(call.Payload) != `"one"` {
					t.Errorf("second interceptor saw %s, want first rewrite", call.Payload)
				}
				return Modify(json.RawMessage(`"two"`))
			},
		},
	)

	call := &CallContext{Kind: CallTool, Payload: json.RawMessage(`"zero"`)}
	v := chain.Before(context.Background(), call)

	if v.Kind != VerdictModify {
		t.Fatalf("verdict kind = %s, want modify", v.Kind)
	}
	if string(call.Payload) != `"two"` {
		t.Errorf("payload = %s, want final rewrite", call.Payload)
	}
}

func TestChainTimeoutDenies(t *testing.T) {
	chain := NewChain(&scriptedInterceptor{
		name: "slow",
		before: func(*CallContext) Verdict {
			time.Sleep(200 * time.Millisecond)
			return Allow()
		},
	}).WithCheckTimeout(10 * time.Millisecond)

	v := chain.Before(context.Background(), &CallContext{Kind: CallTool})
	if v.Kind != VerdictDeny || v.Reason != ReasonPolicyTimeout {
		t.Fatalf("verdict = %+v, want deny with policy timeout", v)
	}
}

func TestChainAfterRewritesResult(t *testing.T) {
	chain := NewChain(&scriptedInterceptor{
		name: "scrubber",
		after: func(_ *CallContext, _ *CallResult) Verdict {
			return Modify(json.RawMessage(`"scrubbed"`))
		},
	})

	result := &CallResult{Payload: json.RawMessage(`"raw"`)}
	v := chain.After(context.Background(), &CallContext{Kind: CallTool}, result)

	if v.Kind != VerdictModify {
		t.Fatalf("verdict kind = %s, want modify", v.Kind)
	}
	if string(result.Payload) != `"scrubbed"` {
		t.Errorf("result payload = %s, want scrubbed", result.Payload)
	}
}

func TestChainRequireFallbackShortCircuits(t *testing.T) {
	chain := NewChain(
		&scriptedInterceptor{
			name: "router",
			before: func(*CallContext) Verdict {
				return RequireFallback(planFallback())
			},
		},
		&scriptedInterceptor{
			name:   "denier",
			before: func(*CallContext) Verdict { return Deny(ReasonUnauthorized, "no") },
		},
	)

	v := chain.Before(context.Background(), &CallContext{Kind: CallTool})
	if v.Kind != VerdictRequireFallback {
		t.Fatalf("verdict kind = %s, want require_fallback", v.Kind)
	}
	if v.Fallback == nil || v.Fallback.Tool != "backup" {
		t.Errorf("fallback = %+v, want backup tool", v.Fallback)
	}
}

func TestDeniedErrorUnwrap(t *testing.T) {
	err := NewDeniedError(Deny(ReasonPolicyTimeout, "slow check"))
	if !errors.Is(err, ErrPolicyTimeout) {
		t.Errorf("policy timeout denial should unwrap to ErrPolicyTimeout")
	}

	err = NewDeniedError(Deny(ReasonUnauthorized, "no role"))
	if !errors.Is(err, ErrCallDenied) {
		t.Errorf("denial should unwrap to ErrCallDenied")
	}
}
