package interceptor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"

	"github.com/felixgeelhaar/agent-runtime/domain/safety"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/clock"
	"github.com/felixgeelhaar/agent-runtime/infrastructure/logging"
)

// RateLimiter enforces each tool's declared rate-limit policy, keyed by
// (tool name, caller identity). A denial carries the remaining wait so
// callers can back off precisely. An optional process-wide fortify limiter
// guards aggregate pressure across all sessions.
type RateLimiter struct {
	clk    clock.Clock
	global ratelimit.RateLimiter

	mu      sync.Mutex
	windows map[string]*window
}

// window tracks recent call times and any active cooldown for one key.
type window struct {
	calls         []time.Time
	cooldownUntil time.Time
}

// RateLimiterConfig configures the rate-limit interceptor.
type RateLimiterConfig struct {
	// Clock supplies time; nil means the system clock.
	Clock clock.Clock

	// GlobalRate and GlobalBurst configure an optional process-wide
	// token bucket shared by every session. Zero disables it.
	GlobalRate  int
	GlobalBurst int
}

// NewRateLimiter creates the rate-limit interceptor.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}

	var global ratelimit.RateLimiter
	if cfg.GlobalRate > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = cfg.GlobalRate
		}
		global = ratelimit.New(&ratelimit.Config{
			Rate:     cfg.GlobalRate,
			Burst:    burst,
			FailOpen: false,
		})
	}

	return &RateLimiter{
		clk:     clk,
		global:  global,
		windows: make(map[string]*window),
	}
}

func (*RateLimiter) Name() string { return "rate_limiter" }

// Before checks the tool's rate-limit policy for this caller.
func (r *RateLimiter) Before(ctx context.Context, call *safety.CallContext) safety.Verdict {
	if call.Kind != safety.CallTool || call.Tool == nil {
		return safety.Allow()
	}

	limit := call.Tool.RateLimit
	if limit.IsZero() {
		if r.allowGlobal(ctx, call) {
			return safety.Allow()
		}
		return safety.Deny(safety.ReasonRateLimited, "global rate limit exceeded")
	}

	key := call.Tool.Name + "/" + call.Caller.ID
	now := r.clk.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[key]
	if !ok {
		w = &window{}
		r.windows[key] = w
	}

	if now.Before(w.cooldownUntil) {
		wait := w.cooldownUntil.Sub(now)
		logging.Warn().
			Add(logging.SessionID(call.SessionID)).
			Add(logging.ToolName(call.Tool.Name)).
			Add(logging.Duration(wait)).
			Msg("call rejected during cooldown")
		return safety.DenyFor(safety.ReasonRateLimited,
			fmt.Sprintf("cooldown active for %s", wait), wait)
	}

	cutoff := now.Add(-limit.Window)
	kept := w.calls[:0]
	for _, t := range w.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.calls = kept

	if len(w.calls) >= limit.MaxCalls {
		oldest := w.calls[0]
		wait := oldest.Add(limit.Window).Sub(now)
		if limit.Cooldown > 0 {
			w.cooldownUntil = now.Add(limit.Cooldown)
			if limit.Cooldown > wait {
				wait = limit.Cooldown
			}
		}
		return safety.DenyFor(safety.ReasonRateLimited,
			fmt.Sprintf("%d calls per %s exceeded", limit.MaxCalls, limit.Window), wait)
	}

	if !r.allowGlobal(ctx, call) {
		return safety.Deny(safety.ReasonRateLimited, "global rate limit exceeded")
	}

	w.calls = append(w.calls, now)
	return safety.Allow()
}

// After is a no-op; rate limiting only gates admission.
func (*RateLimiter) After(context.Context, *safety.CallContext, *safety.CallResult) safety.Verdict {
	return safety.Allow()
}

func (r *RateLimiter) allowGlobal(ctx context.Context, call *safety.CallContext) bool {
	if r.global == nil {
		return true
	}
	return r.global.Allow(ctx, call.Caller.ID)
}
