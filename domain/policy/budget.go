// Package policy provides domain models for policy enforcement: budgets,
// role-based access, and rate-limit policies.
package policy

import (
	"sync"
	"time"
)

// Well-known budget counter names.
const (
	CounterSteps     = "steps"
	CounterTokens    = "tokens"
	CounterToolCalls = "tool_calls"
)

// Limits declares the resource allotment for a session.
// A zero Wall means no deadline; counter limits must be positive.
type Limits struct {
	Steps  int           `json:"steps"`
	Tokens int           `json:"tokens"`
	Wall   time.Duration `json:"wall"`
}

// Budget tracks consumption against configured limits. Counters only ever
// decrease; there is no reset once a session is running.
type Budget struct {
	limits   map[string]int
	consumed map[string]int
	deadline time.Time
	mu       sync.RWMutex
}

// Snapshot is an immutable view of budget state.
type Snapshot struct {
	Limits    map[string]int `json:"limits"`
	Consumed  map[string]int `json:"consumed"`
	Remaining map[string]int `json:"remaining"`
	Deadline  time.Time      `json:"deadline,omitempty"`
}

// NewBudget creates a budget from the declared limits. Every declared limit
// must be positive; a session must not be creatable with an empty allotment.
func NewBudget(limits Limits, now time.Time) (*Budget, error) {
	if limits.Steps <= 0 || limits.Tokens <= 0 || limits.Wall < 0 {
		return nil, ErrInvalidBudget
	}

	b := &Budget{
		limits:   map[string]int{CounterSteps: limits.Steps, CounterTokens: limits.Tokens},
		consumed: map[string]int{CounterSteps: 0, CounterTokens: 0},
	}
	if limits.Wall > 0 {
		b.deadline = now.Add(limits.Wall)
	}
	return b, nil
}

// CanConsume checks if the budget allows consuming the given amount.
func (b *Budget) CanConsume(name string, amount int) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	limit, hasLimit := b.limits[name]
	if !hasLimit {
		return true
	}
	return b.consumed[name]+amount <= limit
}

// Consume deducts from the budget. An amount that overshoots the limit
// saturates the counter at its limit and reports ErrBudgetExhausted, so
// overage trips Exhausted instead of vanishing.
func (b *Budget) Consume(name string, amount int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	limit, hasLimit := b.limits[name]
	if !hasLimit {
		b.consumed[name] += amount
		return nil
	}
	if b.consumed[name]+amount > limit {
		b.consumed[name] = limit
		return ErrBudgetExhausted
	}
	b.consumed[name] += amount
	return nil
}

// Remaining returns the remaining budget for a counter, or -1 if unlimited.
func (b *Budget) Remaining(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	limit, hasLimit := b.limits[name]
	if !hasLimit {
		return -1
	}
	return limit - b.consumed[name]
}

// SetLimit declares an additional counter limit. Used at session construction
// only; limits are never raised once the loop runs.
func (b *Budget) SetLimit(name string, limit int) error {
	if limit <= 0 {
		return ErrInvalidBudget
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.limits[name] = limit
	if _, ok := b.consumed[name]; !ok {
		b.consumed[name] = 0
	}
	return nil
}

// Deadline returns the wall-clock deadline and whether one is set.
func (b *Budget) Deadline() (time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.deadline, !b.deadline.IsZero()
}

// Exhausted reports whether any counter is fully consumed or the deadline
// has passed at the given instant.
func (b *Budget) Exhausted(now time.Time) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.deadline.IsZero() && !now.Before(b.deadline) {
		return true
	}
	for name, limit := range b.limits {
		if b.consumed[name] >= limit {
			return true
		}
	}
	return false
}

// ExhaustedCounters returns the names of all exhausted counters.
func (b *Budget) ExhaustedCounters(now time.Time) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var exhausted []string
	for name, limit := range b.limits {
		if b.consumed[name] >= limit {
			exhausted = append(exhausted, name)
		}
	}
	if !b.deadline.IsZero() && !now.Before(b.deadline) {
		exhausted = append(exhausted, "wall")
	}
	return exhausted
}

// View returns an immutable view of the current budget state.
func (b *Budget) View() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Snapshot{
		Limits:    make(map[string]int, len(b.limits)),
		Consumed:  make(map[string]int, len(b.limits)),
		Remaining: make(map[string]int, len(b.limits)),
		Deadline:  b.deadline,
	}
	for k, v := range b.limits {
		s.Limits[k] = v
		s.Consumed[k] = b.consumed[k]
		s.Remaining[k] = v - b.consumed[k]
	}
	return s
}
