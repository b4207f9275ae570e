// Package tracing sets up the OpenTelemetry tracer used to annotate each
// LLM call and subagent delegation with a span, so a trace viewer wired to
// the process (or a future exporter) can show where time in a run went.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName identifies this package's spans in a multi-component trace.
const TracerName = "github.com/agentcore/orchestrator"

// Init installs a process-wide TracerProvider and returns a shutdown func.
// With no exporter configured it still records spans in-process (useful for
// tests that inspect recorded spans), it just doesn't ship them anywhere;
// callers that want export wire a sdktrace.SpanExporter in before calling.
// enabled=false installs a no-op provider so span calls are free.
func Init(serviceName string, enabled bool) (shutdown func(context.Context) error) {
	if !enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	)
	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// Tracer returns the process tracer for span creation.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartLLMSpan wraps a single provider.CreateCompletion call.
func StartLLMSpan(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "llm.complete", trace.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	))
}

// StartDelegationSpan wraps one Subagent Coordinator dispatch.
func StartDelegationSpan(ctx context.Context, taskID, role string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "delegation.run", trace.WithAttributes(
		attribute.String("delegation.task_id", taskID),
		attribute.String("delegation.role", role),
	))
}

// EndSpan records err (if any) and closes span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
