package obs

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// TraceConfig selects how spans are exported. Grounded on internal/
// observability/observability.go's Config/Init, trimmed to the two
// exporters the pack actually imports (OTLP-over-HTTP and stdout).
type TraceConfig struct {
	ServiceName string
	// Exporter is "otlp", "stdout", or "" (disabled).
	Exporter string
	// OTLPEndpoint is the collector address when Exporter is "otlp".
	OTLPEndpoint string
}

// InitTracing installs a global TracerProvider per cfg and returns a
// shutdown function. When cfg.Exporter is empty, it installs nothing
// and returns a no-op shutdown — otel's default global tracer is
// already a no-op in that case.
func InitTracing(ctx context.Context, cfg TraceConfig) (shutdown func(context.Context) error, err error) {
	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "":
		return func(context.Context) error { return nil }, nil
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		exporter, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
	default:
		return nil, fmt.Errorf("obs: unknown trace exporter %q", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("obs: build trace exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "agentrt"
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(name)))
	if err != nil {
		return nil, fmt.Errorf("obs: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
