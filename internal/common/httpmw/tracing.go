package httpmw

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/kandev/agentperms/internal/common/logger"
	"github.com/kandev/agentperms/internal/common/tracing"
)

// OtelTracing starts a server span per request, named after the matched
// route. Agent routes also tag the span with the agent id so resolution spans
// can be found by agent.
func OtelTracing(serverName string) gin.HandlerFunc {
	tracer := tracing.Tracer(serverName)

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		attrs := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(c.Request.Method),
			semconv.HTTPRoute(route),
		}
		if id, ok := logger.RequestIDFromContext(c.Request.Context()); ok {
			attrs = append(attrs, attribute.String("request.id", id))
		}
		if agentID := c.Param("id"); agentID != "" {
			attrs = append(attrs, attribute.String("agent_id", agentID))
		}

		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
		if last := c.Errors.Last(); last != nil {
			span.RecordError(last)
		}
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}
