// Package observability provides the OpenTelemetry-backed implementation of
// the telemetry contract.
package observability

import "time"

// Exporter selects where trace data goes.
type Exporter string

const (
	ExporterStdout Exporter = "stdout"
	ExporterNoop   Exporter = "noop"
)

// Config configures the provider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// TracingEnabled turns span export on.
	TracingEnabled bool

	// TraceExporter selects the span exporter.
	TraceExporter Exporter

	// SampleRate is the trace sampling ratio in [0, 1].
	SampleRate float64

	// BatchTimeout bounds how long spans buffer before export.
	BatchTimeout time.Duration

	// MetricsEnabled turns the metric pipeline on.
	MetricsEnabled bool

	// SinkBuffer is the event sink queue depth; events beyond it drop.
	SinkBuffer int
}

// DefaultConfig returns a development configuration.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "agent-runtime",
		ServiceVersion: "dev",
		Environment:    "development",
		TracingEnabled: false,
		TraceExporter:  ExporterNoop,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		MetricsEnabled: false,
		SinkBuffer:     256,
	}
}

// Option configures the provider.
type Option func(*Config)

// WithServiceName sets the reported service name.
func WithServiceName(name string) Option {
	return func(c *Config) { c.ServiceName = name }
}

// WithServiceVersion sets the reported service version.
func WithServiceVersion(v string) Option {
	return func(c *Config) { c.ServiceVersion = v }
}

// WithEnvironment sets the deployment environment attribute.
func WithEnvironment(env string) Option {
	return func(c *Config) { c.Environment = env }
}

// WithStdoutTracing enables span export to stdout.
func WithStdoutTracing() Option {
	return func(c *Config) {
		c.TracingEnabled = true
		c.TraceExporter = ExporterStdout
	}
}

// WithMetrics enables the metric pipeline.
func WithMetrics() Option {
	return func(c *Config) { c.MetricsEnabled = true }
}

// WithSampleRate sets the trace sampling ratio.
func WithSampleRate(rate float64) Option {
	return func(c *Config) { c.SampleRate = rate }
}

// WithSinkBuffer sets the event sink queue depth.
func WithSinkBuffer(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.SinkBuffer = n
		}
	}
}
