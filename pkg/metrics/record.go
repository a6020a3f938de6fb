package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// The Record helpers are no-ops until InitMetrics has created the meter.

func RecordNormalization(ctx context.Context, solutionType string, retained, dropped int, d time.Duration) {
	if Meter == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("solution_type", solutionType))
	NormalizeDuration.Record(ctx, d.Seconds(), attrs)
	NormalizedEventsTotal.Add(ctx, int64(retained), attrs)
	DroppedRecordsTotal.Add(ctx, int64(dropped), attrs)
}

func RecordSegments(ctx context.Context, segments int) {
	if Meter == nil {
		return
	}
	SegmentsBuilt.Record(ctx, int64(segments))
}

// RecordDetection records one detector pass.
func RecordDetection(ctx context.Context, detector string, pairs, significant int, d time.Duration) {
	if Meter == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("detector", detector))
	DetectionDuration.Record(ctx, d.Seconds(), attrs)
	DetectionPairsTotal.Add(ctx, int64(pairs), attrs)
	DetectionSignificantTotal.Add(ctx, int64(significant), attrs)
}

func RecordTaskUpdates(ctx context.Context, tasks, updates int) {
	if Meter == nil {
		return
	}
	TasksAggregated.Record(ctx, int64(tasks))
	TaskUpdatesTotal.Add(ctx, int64(updates))
}

// RecordDatasetFetch records a dataset load from a file, URL or Loki.
func RecordDatasetFetch(ctx context.Context, source string, records int, err error, d time.Duration) {
	if Meter == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatasetFetchTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("status", status),
	))
	DatasetFetchDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("source", source)))
	if err == nil {
		DatasetRecords.Record(ctx, int64(records))
	}
}

// RecordHTTPRequest follows the OTEL HTTP client conventions.
func RecordHTTPRequest(ctx context.Context, method, host string, statusCode int, bodySize int64, d time.Duration) {
	if Meter == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.request.method", method),
		attribute.String("server.address", host),
		attribute.Int("http.response.status_code", statusCode),
	)
	HTTPClientRequestDuration.Record(ctx, d.Seconds(), attrs)
	if bodySize >= 0 {
		HTTPClientResponseBodySize.Record(ctx, bodySize, attrs)
	}
}

func RecordLokiRequest(ctx context.Context, op, status string, d time.Duration, lines int) {
	if Meter == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("status", status),
	)
	LokiRequestDuration.Record(ctx, d.Seconds(), attrs)
	LokiRequestsTotal.Add(ctx, 1, attrs)
	LokiLines.Record(ctx, int64(lines), metric.WithAttributes(attribute.String("operation", op)))
}

func RecordPipelineCycle(ctx context.Context, status string, d time.Duration) {
	if Meter == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	PipelineCyclesTotal.Add(ctx, 1, attrs)
	PipelineCycleDuration.Record(ctx, d.Seconds(), attrs)
}
