package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const agentsTracerName = "agentperms-agents"

func agentsTracer() trace.Tracer {
	return Tracer(agentsTracerName)
}

// TraceResolvePermissions creates a span for a tool permission resolution.
func TraceResolvePermissions(ctx context.Context, agentID string, ephemeral bool) (context.Context, trace.Span) {
	ctx, span := agentsTracer().Start(ctx, "agents.resolve_permissions",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("agent_id", agentID),
		attribute.Bool("ephemeral", ephemeral),
	)
	return ctx, span
}

// TraceAgentFetch creates a span for a fetch-by-id against the agent source.
func TraceAgentFetch(ctx context.Context, agentID string) (context.Context, trace.Span) {
	ctx, span := agentsTracer().Start(ctx, "agents.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(attribute.String("agent_id", agentID))
	return ctx, span
}

// TraceConfigReload creates a span for re-reading the agents endpoint config.
func TraceConfigReload(ctx context.Context, path string) (context.Context, trace.Span) {
	ctx, span := agentsTracer().Start(ctx, "agents.config_reload")
	span.SetAttributes(attribute.String("config.path", path))
	return ctx, span
}

// TraceResult records the outcome of a traced operation on its span.
func TraceResult(span trace.Span, status string, err error) {
	span.SetAttributes(attribute.String("status", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
