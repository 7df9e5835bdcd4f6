package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerProvider wraps the OpenTelemetry SDK provider with shutdown handling.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// NewTracerProvider configures tracing with a stdout exporter. Pass
// enabled=false to get a no-op provider.
func NewTracerProvider(enabled bool) (*TracerProvider, error) {
	if !enabled {
		return &TracerProvider{}, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)
	return &TracerProvider{provider: provider}, nil
}

// Tracer returns a tracer for the given instrumentation name, or nil when
// tracing is disabled.
func (p *TracerProvider) Tracer(name string) trace.Tracer {
	if p.provider == nil {
		return nil
	}
	return p.provider.Tracer(name)
}

// Shutdown flushes pending spans.
func (p *TracerProvider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	return p.provider.Shutdown(ctx)
}
