// Package otelhelper provides distributed tracing for reduction runs.
package otelhelper

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Common attribute keys.
	RunIDKey       = "ifured.run.id"
	WorkflowKey    = "ifured.workflow"
	StageIDKey     = "ifured.stage.id"
	SubjectKey     = "ifured.subject"
	SubjectsKey    = "ifured.subjects"
	EngineTaskKey  = "ifured.engine.task"
	ObservatoryKey = "ifured.observatory"
	WorkDirKey     = "ifured.work_dir"

	instrumentationName = "github.com/dukex/ifured"
)

// Tracer returns the ifured tracer from the global provider. Without
// NewTracerProvider it is a no-op tracer.
// nolint:ireturn // Returning interface is intentional for OpenTelemetry tracing
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// nolint:ireturn,spancheck // Returning interface is intentional for OpenTelemetry tracing
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// ProviderOptions describe the exporting provider installed for a run.
type ProviderOptions struct {
	ServiceName string
	Observatory string
	WorkDir     string
	// SampleRatio outside (0, 1) samples every trace.
	SampleRatio float64
}

// NewTracerProvider installs an OTLP/HTTP exporting provider as the global
// provider. Callers must Shutdown it to flush spans.
func NewTracerProvider(ctx context.Context, opts ProviderOptions) (*sdktrace.TracerProvider, error) {
	res, err := runResource(ctx, opts)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(opts.SampleRatio)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp, nil
}

func runResource(ctx context.Context, opts ProviderOptions) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(opts.ServiceName)}
	if opts.Observatory != "" {
		attrs = append(attrs, attribute.String(ObservatoryKey, opts.Observatory))
	}
	if opts.WorkDir != "" {
		attrs = append(attrs, attribute.String(WorkDirKey, opts.WorkDir))
	}

	return resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(attrs...),
	)
}

// nolint:ireturn
func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}
