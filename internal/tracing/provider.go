// Package tracing sets up OpenTelemetry for a load test run and carries W3C
// trace context on queue requests.
//
// Every span a run produces shares one resource that names the run: its ID,
// the queue schedule under test, the scenario and the arrival strategy. A
// backend can therefore group thousands of short request traces by run.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/torosent/queuefire/internal/config"
)

const (
	// DefaultServiceName is reported when neither config nor OTEL_SERVICE_NAME set one.
	DefaultServiceName  = "queuefire"
	instrumentationName = "github.com/torosent/queuefire"
)

// Resource attribute keys describing the run.
const (
	AttrRunID      = attribute.Key("queuefire.run.id")
	AttrScheduleID = attribute.Key("queuefire.schedule.id")
	AttrScenario   = attribute.Key("queuefire.scenario")
	AttrStrategy   = attribute.Key("queuefire.strategy")
)

// Run identifies the load test whose spans a Provider exports.
type Run struct {
	ID         string
	ScheduleID string
	Scenario   string
	Strategy   string
}

func (r Run) attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	add := func(k attribute.Key, v string) {
		if v != "" {
			attrs = append(attrs, k.String(v))
		}
	}
	add(AttrRunID, r.ID)
	add(AttrScheduleID, r.ScheduleID)
	add(AttrScenario, r.Scenario)
	add(AttrStrategy, r.Strategy)
	return attrs
}

// Option adjusts Init.
type Option func(*options)

type options struct {
	exporter sdktrace.SpanExporter
}

// WithExporter sends spans to exp instead of an OTLP collector. Tracing is
// enabled even when cfg names no endpoint.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.exporter = exp }
}

// Provider owns the run's TracerProvider. A zero or nil Provider is a no-op.
type Provider struct {
	tp        *sdktrace.TracerProvider
	tracer    trace.Tracer
	propagate bool
	run       Run
}

// Init builds the provider for one run. With nothing configured it returns a
// no-op provider. With propagation but no endpoint, spans are created only so
// trace headers carry valid IDs, and nothing is exported.
func Init(ctx context.Context, cfg config.TracingConfig, run Run, opts ...Option) (*Provider, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if !cfg.Enabled() && o.exporter == nil {
		return &Provider{run: run}, nil
	}
	if cfg.SampleRate < 0 || cfg.SampleRate > 1.0 {
		return nil, fmt.Errorf("tracing sample_rate must be between 0.0 and 1.0, got %g", cfg.SampleRate)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName(cfg))),
		resource.WithAttributes(run.attributes()...),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	exp := o.exporter
	if exp == nil {
		endpoint := endpointFor(cfg)
		if endpoint == "" {
			if !cfg.ShouldPropagate() {
				return &Provider{run: run}, nil
			}
			tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
			installPropagator()
			return &Provider{tp: tp, tracer: tp.Tracer(instrumentationName), propagate: true, run: run}, nil
		}
		if exp, err = newExporter(ctx, cfg, endpoint); err != nil {
			return nil, fmt.Errorf("tracing exporter: %w", err)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	installPropagator()

	return &Provider{
		tp:        tp,
		tracer:    tp.Tracer(instrumentationName),
		propagate: cfg.ShouldPropagate(),
		run:       run,
	}, nil
}

func serviceName(cfg config.TracingConfig) string {
	if cfg.ServiceName != "" {
		return cfg.ServiceName
	}
	if env := os.Getenv("OTEL_SERVICE_NAME"); env != "" {
		return env
	}
	return DefaultServiceName
}

func endpointFor(cfg config.TracingConfig) string {
	if cfg.Endpoint != "" {
		return cfg.Endpoint
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate == 0:
		return sdktrace.NeverSample()
	case rate < 1.0:
		return sdktrace.TraceIDRatioBased(rate)
	default:
		return sdktrace.AlwaysSample()
	}
}

// Run returns the run this provider describes.
func (p *Provider) Run() Run {
	if p == nil {
		return Run{}
	}
	return p.run
}

// Tracer returns the run's tracer, or a no-op tracer when tracing is off.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return p.tracer
}

// ShouldPropagate returns whether W3C trace headers should be injected.
func (p *Provider) ShouldPropagate() bool {
	if p == nil {
		return false
	}
	return p.propagate
}

// ForceFlush exports every finished span without shutting down.
func (p *Provider) ForceFlush(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.ForceFlush(ctx)
}

// Shutdown flushes pending spans and shuts down the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

func newExporter(ctx context.Context, cfg config.TracingConfig, endpoint string) (sdktrace.SpanExporter, error) {
	switch protocol := strings.ToLower(cfg.Protocol); protocol {
	case "", "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts,
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
				otlptracegrpc.WithInsecure(),
			)
		}
		return otlptracegrpc.New(ctx, opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q: use \"grpc\" or \"http\"", protocol)
	}
}

func installPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}
