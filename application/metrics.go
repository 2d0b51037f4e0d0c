package application

import (
	"sync"
	"time"
)

// UsageMetrics holds the running counters attached to one session. They
// are updated after every external call and read by budget checks; counts
// only ever grow.
type UsageMetrics struct {
	mu           sync.RWMutex
	tokens       int
	toolCalls    int
	modelCalls   int
	callAttempts int
	wallStart    time.Time
	wallSpent    time.Duration
}

// NewUsageMetrics creates zeroed counters anchored at start.
func NewUsageMetrics(start time.Time) *UsageMetrics {
	return &UsageMetrics{wallStart: start}
}

// AddTokens records token consumption from a model call.
func (m *UsageMetrics) AddTokens(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.tokens += n
	m.mu.Unlock()
}

// RecordToolCall records one tool invocation and how many transport
// attempts it took.
func (m *UsageMetrics) RecordToolCall(attempts int) {
	m.mu.Lock()
	m.toolCalls++
	m.callAttempts += attempts
	m.mu.Unlock()
}

// RecordModelCall records one model invocation and its attempts.
func (m *UsageMetrics) RecordModelCall(attempts int) {
	m.mu.Lock()
	m.modelCalls++
	m.callAttempts += attempts
	m.mu.Unlock()
}

// UpdateWall records wall-clock spent relative to the session start.
func (m *UsageMetrics) UpdateWall(now time.Time) {
	m.mu.Lock()
	if now.After(m.wallStart) {
		m.wallSpent = now.Sub(m.wallStart)
	}
	m.mu.Unlock()
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Tokens       int           `json:"tokens"`
	ToolCalls    int           `json:"tool_calls"`
	ModelCalls   int           `json:"model_calls"`
	CallAttempts int           `json:"call_attempts"`
	WallSpent    time.Duration `json:"wall_spent"`
}

// Snapshot returns a copy of the current counters.
func (m *UsageMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		Tokens:       m.tokens,
		ToolCalls:    m.toolCalls,
		ModelCalls:   m.modelCalls,
		CallAttempts: m.callAttempts,
		WallSpent:    m.wallSpent,
	}
}
