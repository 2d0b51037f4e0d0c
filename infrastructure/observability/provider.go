package observability

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/felixgeelhaar/agent-runtime/domain/telemetry"
)

// Provider manages the observability infrastructure and implements
// telemetry.Provider.
type Provider struct {
	config        Config
	tracer        telemetry.Tracer
	meter         telemetry.Meter
	sink          *asyncSink
	shutdownFuncs []func(context.Context) error
}

// New creates a provider from options.
func New(opts ...Option) (*Provider, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Provider{config: cfg}

	if cfg.TracingEnabled {
		if err := p.setupTracing(); err != nil {
			return nil, err
		}
	} else {
		p.tracer = NewNoopTracer()
	}

	if cfg.MetricsEnabled {
		p.setupMetrics()
	} else {
		p.meter = NewNoopMeter()
	}

	p.sink = newAsyncSink(cfg.SinkBuffer)
	p.shutdownFuncs = append(p.shutdownFuncs, p.sink.shutdown)

	return p, nil
}

func (p *Provider) resource() *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(p.config.ServiceName),
		semconv.ServiceVersion(p.config.ServiceVersion),
		semconv.DeploymentEnvironment(p.config.Environment),
	)
}

func (p *Provider) setupTracing() error {
	var exporter sdktrace.SpanExporter

	switch p.config.TraceExporter {
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return err
		}
		exporter = exp
	case ExporterNoop:
		p.tracer = NewNoopTracer()
		return nil
	default:
		return errors.New("unknown trace exporter type")
	}

	var sampler sdktrace.Sampler
	switch {
	case p.config.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case p.config.SampleRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(p.config.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(p.config.BatchTimeout)),
		sdktrace.WithResource(p.resource()),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)

	p.tracer = NewOTelTracer(p.config.ServiceName)
	p.shutdownFuncs = append(p.shutdownFuncs, tp.Shutdown)
	return nil
}

func (p *Provider) setupMetrics() {
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(p.resource()))
	otel.SetMeterProvider(mp)

	p.meter = NewOTelMeter(p.config.ServiceName)
	p.shutdownFuncs = append(p.shutdownFuncs, mp.Shutdown)
}

// Tracer implements telemetry.Provider.
func (p *Provider) Tracer() telemetry.Tracer {
	return p.tracer
}

// Meter implements telemetry.Provider.
func (p *Provider) Meter() telemetry.Meter {
	return p.meter
}

// Sink implements telemetry.Provider.
func (p *Provider) Sink() telemetry.Sink {
	return p.sink
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdownFuncs {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewStdoutProvider creates a provider exporting spans to stdout.
func NewStdoutProvider(serviceName string) (*Provider, error) {
	return New(WithServiceName(serviceName), WithStdoutTracing(), WithMetrics())
}

// NewNoopProvider creates a provider that records nothing.
func NewNoopProvider() *Provider {
	return &Provider{
		config: DefaultConfig(),
		tracer: NewNoopTracer(),
		meter:  NewNoopMeter(),
		sink:   newAsyncSink(1),
	}
}

var _ telemetry.Provider = (*Provider)(nil)
