// Package resilience wraps external calls with retry, circuit breaker, and
// bulkhead patterns using fortify.
package resilience

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
)

// CallFunc performs one attempt of an external call.
type CallFunc func(ctx context.Context) (json.RawMessage, error)

// Invoker executes external calls with bounded retries and exponential
// backoff. It reports how many attempts a call took so usage accounting
// can reflect real provider pressure.
type Invoker struct {
	bulkhead bulkhead.Bulkhead[json.RawMessage]
	breaker  circuitbreaker.CircuitBreaker[json.RawMessage]
	retry    retry.Retry[json.RawMessage]
	timeout  time.Duration
}

// InvokerConfig configures the invoker.
type InvokerConfig struct {
	// MaxConcurrent limits in-flight external calls across sessions.
	MaxConcurrent int

	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit; BreakerTimeout is how long it stays open.
	BreakerThreshold int
	BreakerTimeout   time.Duration

	// MaxAttempts bounds retries per call, initial attempt included.
	MaxAttempts int

	// InitialDelay seeds the exponential backoff between attempts.
	InitialDelay time.Duration

	// Multiplier grows the delay after each failed attempt.
	Multiplier float64

	// CallTimeout bounds one whole call, retries included.
	CallTimeout time.Duration
}

// DefaultInvokerConfig returns production defaults.
func DefaultInvokerConfig() InvokerConfig {
	return InvokerConfig{
		MaxConcurrent:    10,
		BreakerThreshold: 5,
		BreakerTimeout:   30 * time.Second,
		MaxAttempts:      3,
		InitialDelay:     100 * time.Millisecond,
		Multiplier:       2.0,
		CallTimeout:      30 * time.Second,
	}
}

// NewInvoker creates an invoker from config, filling zero fields with
// defaults.
func NewInvoker(config InvokerConfig) *Invoker {
	def := DefaultInvokerConfig()
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = def.MaxConcurrent
	}
	if config.BreakerThreshold <= 0 {
		config.BreakerThreshold = def.BreakerThreshold
	}
	if config.BreakerTimeout <= 0 {
		config.BreakerTimeout = def.BreakerTimeout
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.Multiplier <= 1 {
		config.Multiplier = def.Multiplier
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = def.CallTimeout
	}

	threshold := uint32(config.BreakerThreshold)

	return &Invoker{
		bulkhead: bulkhead.New[json.RawMessage](bulkhead.Config{
			MaxConcurrent: config.MaxConcurrent,
		}),
		breaker: circuitbreaker.New[json.RawMessage](circuitbreaker.Config{
			MaxRequests: uint32(config.MaxConcurrent),
			Interval:    config.BreakerTimeout,
			Timeout:     config.BreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		}),
		retry: retry.New[json.RawMessage](retry.Config{
			MaxAttempts:   config.MaxAttempts,
			InitialDelay:  config.InitialDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    config.Multiplier,
		}),
		timeout: config.CallTimeout,
	}
}

// Do runs fn with the full resilience stack and returns the payload, the
// number of attempts made, and the final error if every attempt failed.
func (i *Invoker) Do(ctx context.Context, fn CallFunc) (json.RawMessage, int, error) {
	var attempts atomic.Int32

	out, err := i.bulkhead.Execute(ctx, func(ctx context.Context) (json.RawMessage, error) {
		ctx, cancel := context.WithTimeout(ctx, i.timeout)
		defer cancel()

		return i.breaker.Execute(ctx, func(ctx context.Context) (json.RawMessage, error) {
			return i.retry.Do(ctx, func(ctx context.Context) (json.RawMessage, error) {
				attempts.Add(1)
				return fn(ctx)
			})
		})
	})

	return out, int(attempts.Load()), err
}

// DoOnce runs fn without retries, keeping only the bulkhead and timeout.
// Non-idempotent tool calls go through here.
func (i *Invoker) DoOnce(ctx context.Context, fn CallFunc) (json.RawMessage, int, error) {
	out, err := i.bulkhead.Execute(ctx, func(ctx context.Context) (json.RawMessage, error) {
		ctx, cancel := context.WithTimeout(ctx, i.timeout)
		defer cancel()
		return fn(ctx)
	})
	return out, 1, err
}

// BreakerState exposes the circuit breaker state for health reporting.
func (i *Invoker) BreakerState() circuitbreaker.State {
	return i.breaker.State()
}
