// Package tracing sets up OpenTelemetry for agentperms and holds the span
// helpers for resolutions, fetches and config reloads. Until Init installs an
// exporter every tracer is a no-op.
package tracing

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/kandev/agentperms/internal/common/config"
)

const tracesPath = "/v1/traces"

var (
	mu       sync.Mutex
	provider *sdktrace.TracerProvider
)

// Init installs a global OTLP/HTTP tracer provider when cfg has an endpoint.
func Init(ctx context.Context, cfg config.TracingConfig) error {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil
	}

	exporter, err := otlptracehttp.New(ctx, exporterOptions(endpoint)...)
	if err != nil {
		return fmt.Errorf("create OTLP exporter for %s: %w", endpoint, err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "agentperms"
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(name)))
	if err != nil {
		res = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)

	mu.Lock()
	provider = tp
	mu.Unlock()
	return nil
}

// exporterOptions accepts either a URL (scheme decides TLS, the default
// traces path is filled in) or a bare host:port sent over plain HTTP.
func exporterOptions(endpoint string) []otlptracehttp.Option {
	if u, ok := tracesURL(endpoint); ok {
		return []otlptracehttp.Option{otlptracehttp.WithEndpointURL(u)}
	}
	return []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	}
}

func tracesURL(endpoint string) (string, bool) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = tracesPath
	}
	return u.String(), true
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Shutdown flushes pending spans. It is a no-op when Init installed nothing.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp := provider
	provider = nil
	mu.Unlock()
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}
