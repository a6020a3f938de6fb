package tracing

import (
	"context"
	"log"
	"log/slog"
	"time"

	fdotel "fleetdebugger/pkg/otel"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
)

// InitTracing installs a global tracer provider exporting over OTLP when
// OTEL_TRACING_ENABLED is set. Otherwise the noop provider stays in place
// and component tracers cost nothing.
func InitTracing() (func(), error) {
	if !fdotel.IsTracingEnabled() {
		slog.Debug("OpenTelemetry tracing is disabled")
		return func() {}, nil
	}

	ctx := context.Background()
	cfg := fdotel.GetExporterConfig(fdotel.SignalTraces)

	exporter, err := fdotel.NewTraceExporter(ctx, cfg)
	if err != nil {
		log.Printf("Failed to create OTLP trace exporter, using noop: %v", err)
		return func() {}, nil
	}

	res, err := fdotel.NewResource()
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Debug("OpenTelemetry tracing initialized",
		"endpoint", cfg.Endpoint,
		"protocol", cfg.Protocol,
	)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer provider: %v", err)
		}
	}, nil
}
