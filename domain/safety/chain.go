package safety

import (
	"context"
	"fmt"
	"time"
)

// DefaultCheckTimeout bounds how long a single interceptor may deliberate.
const DefaultCheckTimeout = 1 * time.Second

// Interceptor inspects a call before and after invocation. Implementations
// must be side-effect free on the call itself; transformation happens only
// through a Modify verdict.
type Interceptor interface {
	Name() string
	Before(ctx context.Context, call *CallContext) Verdict
	After(ctx context.Context, call *CallContext, result *CallResult) Verdict
}

// Chain applies interceptors in registration order. Deny and RequireFallback
// short-circuit; Modify rewrites the payload seen by subsequent interceptors
// and the callee. An interceptor that exceeds the check timeout yields a
// PolicyTimeout denial rather than stalling the call.
type Chain struct {
	interceptors []Interceptor
	timeout      time.Duration
}

// NewChain builds a chain over the given interceptors.
func NewChain(interceptors ...Interceptor) *Chain {
	return &Chain{interceptors: interceptors, timeout: DefaultCheckTimeout}
}

// WithCheckTimeout overrides the per-interceptor deliberation bound.
func (c *Chain) WithCheckTimeout(d time.Duration) *Chain {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// Append adds an interceptor at the end of the chain.
func (c *Chain) Append(i Interceptor) {
	c.interceptors = append(c.interceptors, i)
}

// Len reports how many interceptors the chain holds.
func (c *Chain) Len() int {
	return len(c.interceptors)
}

// Before runs every pre-invocation check in order. The returned verdict is
// Allow when all checks pass, Modify when at least one check rewrote the
// payload and none denied, and otherwise the first short-circuiting verdict.
func (c *Chain) Before(ctx context.Context, call *CallContext) Verdict {
	modified := false
	for _, i := range c.interceptors {
		v := c.check(ctx, i, func(cctx context.Context) Verdict {
			return i.Before(cctx, call)
		})
		switch v.Kind {
		case VerdictAllow:
		case VerdictModify:
			call.Payload = v.Payload
			modified = true
		default:
			return v
		}
	}
	if modified {
		return Modify(call.Payload)
	}
	return Allow()
}

// After runs every post-invocation check in order, applying the same
// short-circuit and payload-rewrite rules as Before.
func (c *Chain) After(ctx context.Context, call *CallContext, result *CallResult) Verdict {
	modified := false
	for _, i := range c.interceptors {
		v := c.check(ctx, i, func(cctx context.Context) Verdict {
			return i.After(cctx, call, result)
		})
		switch v.Kind {
		case VerdictAllow:
		case VerdictModify:
			result.Payload = v.Payload
			modified = true
		default:
			return v
		}
	}
	if modified {
		return Modify(result.Payload)
	}
	return Allow()
}

func (c *Chain) check(ctx context.Context, i Interceptor, fn func(context.Context) Verdict) Verdict {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan Verdict, 1)
	go func() {
		done <- fn(cctx)
	}()

	select {
	case v := <-done:
		return v
	case <-cctx.Done():
		return Deny(ReasonPolicyTimeout, fmt.Sprintf("interceptor %q exceeded %s", i.Name(), c.timeout))
	}
}
