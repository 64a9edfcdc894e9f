// Package obs wires OpenTelemetry tracing and metrics for the service.
package obs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	manager     *Manager
	managerOnce sync.Once
)

// Options configures observability setup.
type Options struct {
	ServiceName string
	// Exporter selects the span exporter: "otlp", "stdout" or "none".
	Exporter string
	// Endpoint is the OTLP HTTP endpoint when Exporter is "otlp".
	Endpoint    string
	SampleRatio float64
}

// Manager holds the configured tracer and meter.
type Manager struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
}

type noopSpanExporter struct{}

func (noopSpanExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (noopSpanExporter) Shutdown(context.Context) error                             { return nil }

// Init configures global tracing and metrics. Safe to call once.
func Init(ctx context.Context, opts Options) (func(context.Context) error, error) {
	var initErr error
	managerOnce.Do(func() {
		if opts.ServiceName == "" {
			opts.ServiceName = "wahl-chat-api"
		}
		if opts.SampleRatio <= 0 || opts.SampleRatio > 1 {
			opts.SampleRatio = 1
		}

		res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(opts.ServiceName),
		))
		if err != nil {
			initErr = err
			return
		}

		exporter, err := buildSpanExporter(ctx, opts)
		if err != nil {
			initErr = err
			return
		}

		tracerProvider := sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.TraceIDRatioBased(opts.SampleRatio)),
			sdktrace.WithBatcher(exporter),
		)
		otel.SetTracerProvider(tracerProvider)

		meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		otel.SetMeterProvider(meterProvider)

		m := &Manager{
			tracerProvider: tracerProvider,
			meterProvider:  meterProvider,
			tracer:         tracerProvider.Tracer("github.com/wahl-chat/wahl-chat-backend/obs"),
			meter:          meterProvider.Meter("github.com/wahl-chat/wahl-chat-backend/obs"),
		}
		installMetrics(m.meter)
		manager = m
	})
	if initErr != nil {
		return nil, initErr
	}

	return func(ctx context.Context) error {
		if manager == nil {
			return nil
		}
		if err := manager.tracerProvider.Shutdown(ctx); err != nil {
			return err
		}
		return manager.meterProvider.Shutdown(ctx)
	}, nil
}

func buildSpanExporter(ctx context.Context, opts Options) (sdktrace.SpanExporter, error) {
	switch opts.Exporter {
	case "otlp":
		var exporterOpts []otlptracehttp.Option
		if opts.Endpoint != "" {
			exporterOpts = append(exporterOpts, otlptracehttp.WithEndpointURL(opts.Endpoint))
		}
		return otlptracehttp.New(ctx, exporterOpts...)
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "", "none":
		return noopSpanExporter{}, nil
	default:
		return nil, fmt.Errorf("unknown exporter %q", opts.Exporter)
	}
}

// Recorder tracks one instrumented operation.
type Recorder struct {
	span  trace.Span
	start time.Time
	attrs []attribute.KeyValue
}

// StartRequest opens a span for an operation and returns a recorder that
// must be ended with the operation's terminal error.
func StartRequest(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Recorder) {
	rec := &Recorder{start: time.Now(), attrs: attrs}
	if manager == nil {
		return ctx, rec
	}
	ctx, span := manager.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	rec.span = span
	return ctx, rec
}

// AddAttributes appends attributes to the active span.
func (r *Recorder) AddAttributes(attrs ...attribute.KeyValue) {
	if r == nil {
		return
	}
	r.attrs = append(r.attrs, attrs...)
	if r.span != nil {
		r.span.SetAttributes(attrs...)
	}
}

// End closes the span and records request metrics.
func (r *Recorder) End(err error) {
	if r == nil {
		return
	}
	latency := float64(time.Since(r.start).Milliseconds())
	recordRequest(err, latency, r.attrs...)
	if r.span != nil {
		if err != nil {
			r.span.RecordError(err)
			r.span.SetStatus(codes.Error, err.Error())
		}
		r.span.End()
	}
}
