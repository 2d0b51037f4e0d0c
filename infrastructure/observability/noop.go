package observability

import (
	"context"

	"github.com/felixgeelhaar/agent-runtime/domain/telemetry"
)

// NoopTracer records nothing.
type NoopTracer struct{}

// NewNoopTracer creates a no-op tracer.
func NewNoopTracer() *NoopTracer {
	return &NoopTracer{}
}

// StartSpan implements telemetry.Tracer.
func (t *NoopTracer) StartSpan(ctx context.Context, _ string, _ ...telemetry.Attribute) (context.Context, telemetry.Span) {
	return ctx, &noopSpan{}
}

var _ telemetry.Tracer = (*NoopTracer)(nil)

type noopSpan struct{}

func (s *noopSpan) End()                                        {}
func (s *noopSpan) SetAttributes(_ ...telemetry.Attribute)      {}
func (s *noopSpan) RecordError(_ error)                         {}
func (s *noopSpan) SetStatus(_ telemetry.StatusCode, _ string)  {}
func (s *noopSpan) AddEvent(_ string, _ ...telemetry.Attribute) {}

var _ telemetry.Span = (*noopSpan)(nil)

// NoopMeter records nothing.
type NoopMeter struct{}

// NewNoopMeter creates a no-op meter.
func NewNoopMeter() *NoopMeter {
	return &NoopMeter{}
}

// Counter implements telemetry.Meter.
func (m *NoopMeter) Counter(_, _ string) telemetry.Counter {
	return &noopCounter{}
}

// Histogram implements telemetry.Meter.
func (m *NoopMeter) Histogram(_, _ string) telemetry.Histogram {
	return &noopHistogram{}
}

var _ telemetry.Meter = (*NoopMeter)(nil)

type noopCounter struct{}

func (c *noopCounter) Add(_ context.Context, _ int64, _ ...telemetry.Attribute) {}

type noopHistogram struct{}

func (h *noopHistogram) Record(_ context.Context, _ float64, _ ...telemetry.Attribute) {}
