package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitTracing_Disabled(t *testing.T) {
	t.Setenv("OTEL_TRACING_ENABLED", "false")

	shutdown, err := InitTracing()
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	shutdown()
}

func TestInitTracing_ExportsOnShutdown(t *testing.T) {
	var requests atomic.Int32
	var path atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		path.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	t.Setenv("OTEL_TRACING_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "http/protobuf")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", server.URL)

	shutdown, err := InitTracing()
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}

	_, span := otel.Tracer("engine").Start(context.Background(), "engine.build")
	span.End()
	shutdown()

	if requests.Load() == 0 {
		t.Fatal("expected the span batch to be exported on shutdown")
	}
	if got := path.Load(); got != "/v1/traces" {
		t.Errorf("export path = %v, want /v1/traces", got)
	}

	fields := otel.GetTextMapPropagator().Fields()
	found := map[string]bool{}
	for _, f := range fields {
		found[f] = true
	}
	if !found["traceparent"] || !found["baggage"] {
		t.Errorf("propagator fields = %v, want traceparent and baggage", fields)
	}
}
