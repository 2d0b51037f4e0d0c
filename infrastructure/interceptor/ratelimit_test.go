package interceptor

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/agent-runtime/domain/policy"
	"github.com/felixgeelhaar/agent-runtime/domain/safety"
	"github.com/felixgeelhaar/agent-runtime/domain/tool"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/clock"
)

func limitedCall(callerID string, limit policy.RateLimit) *safety.CallContext {
	return &safety.CallContext{
		SessionID: "sess-1",
		StepID:    "s1",
		Kind:      safety.CallTool,
		Caller:    safety.Caller{ID: callerID},
		Tool: &tool.Descriptor{
			Name:      "fetch",
			RateLimit: limit,
		},
		Target: "fetch",
	}
}

func TestRateLimiterWindow(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	r := NewRateLimiter(RateLimiterConfig{Clock: clk})
	limit := policy.RateLimit{MaxCalls: 1, Window: 10 * time.Second}
	ctx := context.Background()

	if v := r.Before(ctx, limitedCall("alice", limit)); v.Kind != safety.VerdictAllow {
		t.Fatalf("first call verdict = %s, want allow", v.Kind)
	}

	v := r.Before(ctx, limitedCall("alice", limit))
	if v.Kind != safety.VerdictDeny {
		t.Fatalf("second call verdict = %s, want deny", v.Kind)
	}
	if v.Reason != safety.ReasonRateLimited {
		t.Errorf("reason = %s, want %s", v.Reason, safety.ReasonRateLimited)
	}
	if v.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %s, want positive remaining wait", v.RetryAfter)
	}
	if v.RetryAfter > 10*time.Second {
		t.Errorf("RetryAfter = %s, want at most the window", v.RetryAfter)
	}

	clk.Advance(v.RetryAfter + time.Millisecond)
	if v := r.Before(ctx, limitedCall("alice", limit)); v.Kind != safety.VerdictAllow {
		t.Errorf("call after window verdict = %s, want allow", v.Kind)
	}
}

func TestRateLimiterKeyedByToolAndCaller(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_000_000, 0))
	r := NewRateLimiter(RateLimiterConfig{Clock: clk})
	limit := policy.RateLimit{MaxCalls: 1, Window: time.Minute}
	ctx := context.Background()

	if v := r.Before(ctx, limitedCall("alice", limit)); v.Kind != safety.VerdictAllow {
		t.Fatalf("alice first call verdict = %s", v.Kind)
	}
	if v := r.Before(ctx, limitedCall("alice", limit)); v.Kind != safety.VerdictDeny {
		t.Fatalf("alice second call verdict = %s, want deny", v.Kind)
	}
	if v := r.Before(ctx, limitedCall("bob", limit)); v.Kind != safety.VerdictAllow {
		t.Errorf("bob verdict = %s, another caller must have its own window", v.Kind)
	}

	other := limitedCall("alice", limit)
	other.Tool.Name = "search"
	other.Target = "search"
	if v := r.Before(ctx, other); v.Kind != safety.VerdictAllow {
		t.Errorf("other tool verdict = %s, another tool must have its own window", v.Kind)
	}
}

func TestRateLimiterCooldown(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	r := NewRateLimiter(RateLimiterConfig{Clock: clk})
	limit := policy.RateLimit{MaxCalls: 1, Window: time.Second, Cooldown: 30 * time.Second}
	ctx := context.Background()

	r.Before(ctx, limitedCall("alice", limit))
	v := r.Before(ctx, limitedCall("alice", limit))
	if v.Kind != safety.VerdictDeny {
		t.Fatalf("verdict = %s, want deny", v.Kind)
	}
	if v.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %s, want the cooldown length", v.RetryAfter)
	}

	clk.Advance(5 * time.Second)
	v = r.Before(ctx, limitedCall("alice", limit))
	if v.Kind != safety.VerdictDeny {
		t.Fatalf("verdict during cooldown = %s, want deny", v.Kind)
	}
	if v.RetryAfter != 25*time.Second {
		t.Errorf("RetryAfter = %s, want 25s left of the cooldown", v.RetryAfter)
	}

	clk.Advance(26 * time.Second)
	if v := r.Before(ctx, limitedCall("alice", limit)); v.Kind != safety.VerdictAllow {
		t.Errorf("verdict after cooldown = %s, want allow", v.Kind)
	}
}

func TestRateLimiterIgnoresModelCalls(t *testing.T) {
	r := NewRateLimiter(RateLimiterConfig{Clock: clock.NewFake(time.Unix(0, 0))})
	call := &safety.CallContext{
		Kind:   safety.CallModel,
		Target: "gpt-4o",
		Caller: safety.Caller{ID: "alice"},
	}
	for i := 0; i < 5; i++ {
		if v := r.Before(context.Background(), call); v.Kind != safety.VerdictAllow {
			t.Fatalf("model call %d verdict = %s, want allow", i, v.Kind)
		}
	}
}

func TestRateLimiterUnlimitedTool(t *testing.T) {
	r := NewRateLimiter(RateLimiterConfig{Clock: clock.NewFake(time.Unix(0, 0))})
	for i := 0; i < 20; i++ {
		if v := r.Before(context.Background(), limitedCall("alice", policy.RateLimit{})); v.Kind != safety.VerdictAllow {
			t.Fatalf("call %d verdict = %s, want allow", i, v.Kind)
		}
	}
}
