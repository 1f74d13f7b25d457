// Package telemetry provides OpenTelemetry instrumentation for Kera.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/kera/config"
)

// Provider wraps OTEL tracer and meter providers.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	// Metrics
	runDuration   metric.Float64Histogram
	unitDuration  metric.Float64Histogram
	resourceCount metric.Int64Counter
	unitFailures  metric.Int64Counter
	dupesRemoved  metric.Int64Counter
}

// NewProvider creates a new telemetry provider. Metrics are always served
// through the Prometheus reader; OTLP export is added when cfg names an
// endpoint.
func NewProvider(ctx context.Context, cfg config.Telemetry) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("kera"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	p := &Provider{}

	if err := p.setupTracing(ctx, cfg, res); err != nil {
		return nil, err
	}

	if err := p.setupMetrics(ctx, cfg, res); err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}

	if err := p.initMetrics(); err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}

	return p, nil
}

func (p *Provider) setupTracing(ctx context.Context, cfg config.Telemetry, res *resource.Resource) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}

	if cfg.Enabled && cfg.Endpoint != "" {
		exp, err := createTraceExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	p.tracer = p.tracerProvider.Tracer("kera")

	return nil
}

func (p *Provider) setupMetrics(ctx context.Context, cfg config.Telemetry, res *resource.Resource) error {
	promReader, err := promexporter.New()
	if err != nil {
		return fmt.Errorf("create prometheus reader: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promReader),
	}

	if cfg.Enabled && cfg.Endpoint != "" {
		exp, err := createMetricExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	}

	p.meterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter("kera")

	return nil
}

func createTraceExporter(ctx context.Context, cfg config.Telemetry) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

func createMetricExporter(ctx context.Context, cfg config.Telemetry) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func (p *Provider) initMetrics() error {
	var err error

	p.runDuration, err = p.meter.Float64Histogram(
		"kera_run_duration_seconds",
		metric.WithDescription("Duration of collection runs"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create run_duration: %w", err)
	}

	p.unitDuration, err = p.meter.Float64Histogram(
		"kera_unit_duration_seconds",
		metric.WithDescription("Duration of individual work units"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create unit_duration: %w", err)
	}

	p.resourceCount, err = p.meter.Int64Counter(
		"kera_resources_collected_total",
		metric.WithDescription("Total resources collected"),
	)
	if err != nil {
		return fmt.Errorf("create resource_count: %w", err)
	}

	p.unitFailures, err = p.meter.Int64Counter(
		"kera_unit_failures_total",
		metric.WithDescription("Total failed work units"),
	)
	if err != nil {
		return fmt.Errorf("create unit_failures: %w", err)
	}

	p.dupesRemoved, err = p.meter.Int64Counter(
		"kera_duplicates_removed_total",
		metric.WithDescription("Duplicate observations removed during deduplication"),
	)
	if err != nil {
		return fmt.Errorf("create dupes_removed: %w", err)
	}

	return nil
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter {
	return p.meter
}

// StartSpan starts a new span.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name)
}

// RecordRunDuration records the duration of one whole collection run.
func (p *Provider) RecordRunDuration(ctx context.Context, d time.Duration) {
	p.runDuration.Record(ctx, d.Seconds())
}

// RecordUnit records one finished work unit.
func (p *Provider) RecordUnit(ctx context.Context, backend, target, kind, status string, resources int, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("target", target),
		attribute.String("kind", kind),
	)
	p.unitDuration.Record(ctx, d.Seconds(), attrs)
	p.resourceCount.Add(ctx, int64(resources), attrs)
	if status != "Complete" && status != "PartialPagination" {
		p.unitFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("target", target),
			attribute.String("kind", kind),
			attribute.String("status", status),
		))
	}
}

// RecordDuplicatesRemoved records duplicate observations removed per kind.
func (p *Provider) RecordDuplicatesRemoved(ctx context.Context, kind string, count int) {
	p.dupesRemoved.Add(ctx, int64(count), metric.WithAttributes(
		attribute.String("kind", kind),
	))
}

// Shutdown flushes and shuts down the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer: %w", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown meter: %w", err)
		}
	}
	return nil
}
