package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Config holds telemetry configuration
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Service string `yaml:"service"`
	Version string `yaml:"version"`

	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled    bool              `yaml:"enabled"`
	Endpoint   string            `yaml:"endpoint"`
	Headers    map[string]string `yaml:"headers"`
	SampleRate float64           `yaml:"sampleRate"`
}

// Telemetry manages OpenTelemetry providers
type Telemetry struct {
	config     Config
	tracer     trace.Tracer
	meter      metric.Meter
	shutdown   []func(context.Context) error
	resource   *resource.Resource
	propagator propagation.TextMapPropagator
}

// New creates a new telemetry instance. Runtime metrics are bridged into the
// given Prometheus registerer so everything is scraped from one endpoint.
func New(config Config, registerer prometheus.Registerer) (*Telemetry, error) {
	t := &Telemetry{
		config:   config,
		shutdown: make([]func(context.Context) error, 0),
	}

	if !config.Enabled {
		// No-op providers
		t.tracer = otel.GetTracerProvider().Tracer("cloudgateway")
		t.meter = otel.GetMeterProvider().Meter("cloudgateway")
		t.propagator = propagation.NewCompositeTextMapPropagator()
		return t, nil
	}

	if err := t.initResource(); err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if config.Tracing.Enabled {
		if err := t.initTracing(); err != nil {
			return nil, fmt.Errorf("failed to init tracing: %w", err)
		}
	} else {
		t.tracer = otel.GetTracerProvider().Tracer("cloudgateway")
	}

	if err := t.initMetrics(registerer); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	t.propagator = propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(t.propagator)

	return t, nil
}

func (t *Telemetry) initResource() error {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(t.config.Service),
			semconv.ServiceVersion(t.config.Version),
		),
	)
	if err != nil {
		return err
	}
	t.resource = res
	return nil
}

func (t *Telemetry) initTracing() error {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(t.config.Tracing.Endpoint),
		otlptracehttp.WithInsecure(),
	}
	if len(t.config.Tracing.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(t.config.Tracing.Headers))
	}

	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return err
	}

	sampleRate := t.config.Tracing.SampleRate
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 1
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(t.resource),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))),
	)

	otel.SetTracerProvider(provider)
	t.tracer = provider.Tracer("cloudgateway")
	t.shutdown = append(t.shutdown, provider.Shutdown)
	return nil
}

func (t *Telemetry) initMetrics(registerer prometheus.Registerer) error {
	exporter, err := otelprom.New(otelprom.WithRegisterer(registerer))
	if err != nil {
		return err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(t.resource),
	)

	otel.SetMeterProvider(provider)
	t.meter = provider.Meter("cloudgateway")
	t.shutdown = append(t.shutdown, provider.Shutdown)
	return nil
}

// Tracer returns the gateway tracer
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// Meter returns the gateway meter
func (t *Telemetry) Meter() metric.Meter {
	return t.meter
}

// Propagator returns the context propagator
func (t *Telemetry) Propagator() propagation.TextMapPropagator {
	return t.propagator
}

// Shutdown flushes and stops all providers
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
