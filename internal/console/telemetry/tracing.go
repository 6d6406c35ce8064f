// Package telemetry configures OpenTelemetry tracing for the console backend.
//
// Custom span attributes use the `console.` prefix.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "courierops.io/console"
)

// Tracer returns the package-level tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// InitTraceProvider initialises the OTel trace provider with an OTLP gRPC exporter.
// If endpoint is empty, tracing is disabled (noop provider is used).
// Returns a shutdown function that must be called on application exit.
func InitTraceProvider(ctx context.Context, endpoint string, version string) (func(context.Context) error, error) {
	if endpoint == "" {
		// No-op: tracing disabled
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(), // TLS configurable via env (OTEL_EXPORTER_OTLP_INSECURE)
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String("console-backend"),
			semconv.ServiceVersionKey.String(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// --- Span helpers ---

// StartSigninSpan creates the parent span for a signin attempt. The identifier
// is not recorded; only provenance and outcome end up on the span.
func StartSigninSpan(ctx context.Context, remoteAddr string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "auth.signin",
		trace.WithAttributes(
			attribute.String("console.remote_addr", remoteAddr),
		),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// EndSigninSpan enriches the signin span with the attempt outcome.
func EndSigninSpan(span trace.Span, outcome, provenance string) {
	span.SetAttributes(
		attribute.String("console.signin_outcome", outcome),
	)
	if provenance != "" {
		span.SetAttributes(attribute.String("console.provenance", provenance))
	}
	span.End()
}

// StartGateSpan creates a span for an authorization gate decision.
func StartGateSpan(ctx context.Context, path string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "auth.gate",
		trace.WithAttributes(
			attribute.String("console.path", path),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndGateSpan enriches the gate span with the decision.
func EndGateSpan(span trace.Span, allowed bool, reason string) {
	span.SetAttributes(attribute.Bool("console.gate_allowed", allowed))
	if reason != "" {
		span.SetAttributes(attribute.String("console.gate_reason", reason))
	}
	span.End()
}

// StartTokenSpan creates a span for token issue or refresh.
func StartTokenSpan(ctx context.Context, operation, provenance string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "auth.token."+operation,
		trace.WithAttributes(
			attribute.String("console.provenance", provenance),
		),
	)
}
