package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Telemetry wraps the planner and executor operations in OpenTelemetry
// spans and counters: a span and a duration histogram per Plan/Execute
// call, and a counter per node outcome. It is a concrete type rather than an
// interface, since this pipeline has exactly one telemetry consumer.
type Telemetry struct {
	tracer trace.Tracer
	meter  metric.Meter

	traceProvider  *sdktrace.TracerProvider
	metricProvider *sdkmetric.MeterProvider

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

// NewTelemetry configures OTLP/HTTP trace and metric export for
// serviceName against endpoint (an OTEL collector's host:port, e.g.
// "localhost:4318"), and installs the resulting providers as the global
// otel providers so any library-level instrumentation picks them up too.
func NewTelemetry(serviceName, endpoint string) (*Telemetry, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("telemetry: service name is required")
	}
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)

	ctx := context.Background()

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter for %s: %w", endpoint, err)
	}

	metricExporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(endpoint),
		otlpmetrichttp.WithInsecure(),
	)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, fmt.Errorf("creating metric exporter for %s: %w", endpoint, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return &Telemetry{
		tracer:         tp.Tracer(serviceName),
		meter:          mp.Meter(serviceName),
		traceProvider:  tp,
		metricProvider: mp,
		counters:       make(map[string]metric.Int64Counter),
		histograms:     make(map[string]metric.Float64Histogram),
	}, nil
}

// StartSpan starts a span named name and returns the derived context
// alongside it; the caller is responsible for calling span.End().
func (t *Telemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Count increments the named counter by one, lazily creating it on first
// use and caching it thereafter.
func (t *Telemetry) Count(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	t.mu.Lock()
	counter, ok := t.counters[name]
	if !ok {
		var err error
		counter, err = t.meter.Int64Counter(name)
		if err != nil {
			t.mu.Unlock()
			return
		}
		t.counters[name] = counter
	}
	t.mu.Unlock()
	counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDuration records d (in milliseconds) against the named
// histogram, lazily creating it on first use.
func (t *Telemetry) RecordDuration(ctx context.Context, name string, d time.Duration, attrs ...attribute.KeyValue) {
	t.mu.Lock()
	hist, ok := t.histograms[name]
	if !ok {
		var err error
		hist, err = t.meter.Float64Histogram(name)
		if err != nil {
			t.mu.Unlock()
			return
		}
		t.histograms[name] = hist
	}
	t.mu.Unlock()
	hist.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(attrs...))
}

// Shutdown flushes and stops both the trace and metric providers. It is a
// no-op for a NoOpTelemetry instance, which owns no exporters.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.traceProvider == nil && t.metricProvider == nil {
		return nil
	}
	if err := t.traceProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down trace provider: %w", err)
	}
	if err := t.metricProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down metric provider: %w", err)
	}
	return nil
}

// NoOpTelemetry returns a Telemetry backed by OTel's no-op tracer and the
// process-wide (default no-op, unless NewTelemetry already set one)
// global meter, for deployments that run without a collector configured.
func NoOpTelemetry() *Telemetry {
	return &Telemetry{
		tracer:     noop.NewTracerProvider().Tracer("taskgraph"),
		meter:      otel.Meter("taskgraph"),
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}
