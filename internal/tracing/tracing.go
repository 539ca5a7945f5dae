// Package tracing wires OpenTelemetry spans through the analysis
// pipeline and exposes trace identity for audit logging.
package tracing

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelConfig holds OpenTelemetry configuration.
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Enabled        bool
}

var globalTracer trace.Tracer

// InitOTel initializes OpenTelemetry with a stdout exporter writing to
// stderr, keeping stdout free for report output. Returns a shutdown
// function to call on exit.
func InitOTel(cfg OTelConfig) (func(context.Context) error, error) {
	// Outbound requests carry W3C trace context whether or not spans
	// are exported.
	otel.SetTextMapPropagator(propagation.TraceContext{})

	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(os.Stderr),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	globalTracer = tp.Tracer(cfg.ServiceName)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// GetTracer returns the global tracer, or a no-op tracer before InitOTel.
func GetTracer() trace.Tracer {
	if globalTracer == nil {
		return otel.Tracer("noop")
	}
	return globalTracer
}

// AnalysisSpan starts a span covering the full analysis of one test.
func AnalysisSpan(ctx context.Context, testName, framework string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "execintel.analysis",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("test.name", testName),
			attribute.String("test.framework", framework),
		),
	)
}

// StageSpan starts a span for one pipeline stage within an analysis.
func StageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "execintel.stage."+stage,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("pipeline.stage", stage)),
	)
}

// EnrichmentSpan starts a span for an outbound enrichment request.
func EnrichmentSpan(ctx context.Context, provider string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "execintel.enrichment",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("enrich.provider", provider)),
	)
}

// SetClassification records the verdict attributes on an analysis span.
func SetClassification(span trace.Span, failureType string, confidence float64) {
	span.SetAttributes(
		attribute.String("failure.type", failureType),
		attribute.Float64("failure.confidence", confidence),
	)
}

// RecordError records an error on the span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("error", true))
	}
}

// SetSuccess marks the span as successful.
func SetSuccess(span trace.Span) {
	span.SetAttributes(attribute.Bool("success", true))
}

// TraceInfo carries trace identity for audit entries.
type TraceInfo struct {
	TraceID string
	SpanID  string
}

// FromContext extracts trace identity from the active span, if any.
func FromContext(ctx context.Context) *TraceInfo {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.SpanContext().IsValid() {
		return &TraceInfo{}
	}
	sc := span.SpanContext()
	return &TraceInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
	}
}
