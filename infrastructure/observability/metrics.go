package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/felixgeelhaar/agent-runtime/domain/telemetry"
)

// OTelMeter wraps an OpenTelemetry meter.
type OTelMeter struct {
	meter metric.Meter
}

// NewOTelMeter creates a meter bound to the global provider.
func NewOTelMeter(name string) *OTelMeter {
	return &OTelMeter{meter: otel.Meter(name)}
}

// Counter implements telemetry.Meter.
func (m *OTelMeter) Counter(name, description string) telemetry.Counter {
	counter, err := m.meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		return &noopCounter{}
	}
	return &otelCounter{counter: counter}
}

// Histogram implements telemetry.Meter.
func (m *OTelMeter) Histogram(name, description string) telemetry.Histogram {
	histogram, err := m.meter.Float64Histogram(name, metric.WithDescription(description))
	if err != nil {
		return &noopHistogram{}
	}
	return &otelHistogram{histogram: histogram}
}

var _ telemetry.Meter = (*OTelMeter)(nil)

type otelCounter struct {
	counter metric.Int64Counter
}

func (c *otelCounter) Add(ctx context.Context, value int64, attrs ...telemetry.Attribute) {
	c.counter.Add(ctx, value, metric.WithAttributes(convertAttributes(attrs)...))
}

type otelHistogram struct {
	histogram metric.Float64Histogram
}

func (h *otelHistogram) Record(ctx context.Context, value float64, attrs ...telemetry.Attribute) {
	h.histogram.Record(ctx, value, metric.WithAttributes(convertAttributes(attrs)...))
}
