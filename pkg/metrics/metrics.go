package metrics

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"fleetdebugger/pkg/otel"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const defaultExportInterval = 60 * time.Second

var (
	meterProvider *sdkmetric.MeterProvider

	// Meter creates every instrument. Nil disables recording.
	Meter metric.Meter

	// state of the last successful analysis, observed asynchronously
	lastSuccessTimestamp atomic.Int64
	lastEvents           atomic.Int64
	lastAnnotations      atomic.Int64
)

// InitMetrics installs a meter provider exporting over OTLP when
// OTEL_METRICS_ENABLED is set. Exporter failures leave metrics disabled
// rather than failing startup.
func InitMetrics() (func(), error) {
	if !otel.IsMetricsEnabled() {
		slog.Debug("OpenTelemetry metrics is disabled")
		return func() {}, nil
	}

	ctx := context.Background()
	cfg := otel.GetExporterConfig(otel.SignalMetrics)

	exporter, err := otel.NewMetricExporter(ctx, cfg)
	if err != nil {
		slog.Warn("Failed to create OTLP metric exporter, metrics disabled", "error", err)
		return func() {}, nil
	}

	res, err := otel.NewResource()
	if err != nil {
		slog.Warn("Failed to create resource, metrics disabled", "error", err)
		return func() {}, nil
	}

	interval := exportInterval()
	meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)
	otelapi.SetMeterProvider(meterProvider)

	if err := Use(meterProvider.Meter(otel.ServiceName)); err != nil {
		slog.Error("Failed to initialize metric instruments", "error", err)
		return func() {}, nil
	}

	slog.Debug("OpenTelemetry metrics initialized",
		"endpoint", cfg.Endpoint,
		"protocol", cfg.Protocol,
		"interval", interval,
	)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(ctx); err != nil {
			slog.Error("Error shutting down meter provider", "error", err)
		}
	}, nil
}

// Use creates every instrument on m and makes it the active meter. On
// error recording stays disabled.
func Use(m metric.Meter) error {
	Meter = m
	if err := initializeInstruments(); err != nil {
		Meter = nil
		return err
	}
	if err := registerObservers(); err != nil {
		Meter = nil
		return err
	}
	return nil
}

// exportInterval reads OTEL_METRIC_EXPORT_INTERVAL in milliseconds.
func exportInterval() time.Duration {
	if v := os.Getenv("OTEL_METRIC_EXPORT_INTERVAL"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
		slog.Warn("Ignoring invalid OTEL_METRIC_EXPORT_INTERVAL", "value", v)
	}
	return defaultExportInterval
}

// registerObservers reports runtime and last-analysis gauges from one
// callback so MemStats is read once per collection.
func registerObservers() error {
	goroutines, err := Meter.Int64ObservableGauge("runtime.go.goroutines",
		metric.WithDescription("Number of goroutines"),
		metric.WithUnit("{goroutine}"))
	if err != nil {
		return err
	}
	heapAlloc, err := Meter.Int64ObservableGauge("runtime.go.mem.heap_alloc",
		metric.WithDescription("Heap memory allocated"),
		metric.WithUnit("By"))
	if err != nil {
		return err
	}
	gcCount, err := Meter.Int64ObservableCounter("runtime.go.gc.count",
		metric.WithDescription("Number of completed GC cycles"),
		metric.WithUnit("{gc}"))
	if err != nil {
		return err
	}
	lastSuccess, err := Meter.Int64ObservableGauge("pipeline.last_success.timestamp",
		metric.WithDescription("Unix timestamp of the last successful analysis cycle"),
		metric.WithUnit("s"))
	if err != nil {
		return err
	}
	events, err := Meter.Int64ObservableGauge("pipeline.last_success.events",
		metric.WithDescription("Normalized events in the last analysed dataset"),
		metric.WithUnit("{event}"))
	if err != nil {
		return err
	}
	annotations, err := Meter.Int64ObservableGauge("pipeline.last_success.annotations",
		metric.WithDescription("Anomaly annotations found in the last analysed dataset"),
		metric.WithUnit("{annotation}"))
	if err != nil {
		return err
	}

	_, err = Meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		o.ObserveInt64(goroutines, int64(runtime.NumGoroutine()))
		o.ObserveInt64(heapAlloc, int64(m.HeapAlloc))
		o.ObserveInt64(gcCount, int64(m.NumGC))

		if ts := lastSuccessTimestamp.Load(); ts > 0 {
			o.ObserveInt64(lastSuccess, ts)
			o.ObserveInt64(events, lastEvents.Load())
			o.ObserveInt64(annotations, lastAnnotations.Load())
		}
		return nil
	}, goroutines, heapAlloc, gcCount, lastSuccess, events, annotations)
	return err
}

// RecordAnalysis marks a successful cycle over a dataset of events
// normalized events yielding annotations anomalies.
func RecordAnalysis(events, annotations int) {
	lastEvents.Store(int64(events))
	lastAnnotations.Store(int64(annotations))
	lastSuccessTimestamp.Store(time.Now().Unix())
}

// IsEnabled returns true if metrics collection is enabled
func IsEnabled() bool {
	return Meter != nil
}
