// Package telemetry defines the observability contract the runtime emits
// through. The runtime never blocks on telemetry delivery; sinks that
// cannot keep up drop events.
package telemetry

import "context"

// Tracer creates spans around state transitions and external calls.
type Tracer interface {
	// StartSpan starts a span and returns a context carrying it.
	StartSpan(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Span is one unit of traced work.
type Span interface {
	End()
	SetAttributes(attrs ...Attribute)
	RecordError(err error)
	SetStatus(code StatusCode, description string)
	AddEvent(name string, attrs ...Attribute)
}

// StatusCode is the terminal status of a span.
type StatusCode int

const (
	StatusUnset StatusCode = iota
	StatusOK
	StatusError
)

// Attribute is a key-value pair attached to spans, metrics, and events.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute  { return Attribute{Key: key, Value: value} }
func Int(key string, value int) Attribute { return Attribute{Key: key, Value: value} }
func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}
func Float64(key string, value float64) Attribute {
	return Attribute{Key: key, Value: value}
}
func Bool(key string, value bool) Attribute { return Attribute{Key: key, Value: value} }

// Meter creates metric instruments.
type Meter interface {
	Counter(name, description string) Counter
	Histogram(name, description string) Histogram
}

// Counter is a monotonically increasing value.
type Counter interface {
	Add(ctx context.Context, value int64, attrs ...Attribute)
}

// Histogram records a distribution of values.
type Histogram interface {
	Record(ctx context.Context, value float64, attrs ...Attribute)
}
