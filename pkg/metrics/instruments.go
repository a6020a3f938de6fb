package metrics

import (
	"go.opentelemetry.io/otel/metric"
)

// HTTP Client Metrics (OTEL Semantic Conventions)
var (
	// HTTPClientRequestDuration measures the duration of HTTP client requests
	HTTPClientRequestDuration metric.Float64Histogram

	// HTTPClientResponseBodySize measures the size of HTTP response bodies
	HTTPClientResponseBodySize metric.Int64Histogram
)

// Normalizer Metrics
var (
	// NormalizeDuration measures one normalization pass
	NormalizeDuration metric.Float64Histogram

	// NormalizedEventsTotal counts retained events
	NormalizedEventsTotal metric.Int64Counter

	// DroppedRecordsTotal counts records matching no lifecycle API
	DroppedRecordsTotal metric.Int64Counter
)

// Analysis Metrics
var (
	// SegmentsBuilt measures the number of segments per dataset
	SegmentsBuilt metric.Int64Histogram

	// DetectionDuration measures detector passes
	DetectionDuration metric.Float64Histogram

	// DetectionPairsTotal counts consecutive located pairs examined
	DetectionPairsTotal metric.Int64Counter

	// DetectionSignificantTotal counts pairs flagged as anomalies
	DetectionSignificantTotal metric.Int64Counter

	// TasksAggregated measures tasks per dataset
	TasksAggregated metric.Int64Histogram

	// TaskUpdatesTotal counts task updates merged
	TaskUpdatesTotal metric.Int64Counter
)

// Dataset Metrics
var (
	// DatasetFetchTotal counts dataset loads by source and status
	DatasetFetchTotal metric.Int64Counter

	// DatasetFetchDuration measures dataset loads
	DatasetFetchDuration metric.Float64Histogram

	// DatasetRecords measures raw records per dataset
	DatasetRecords metric.Int64Histogram
)

// Pipeline Metrics
var (
	// PipelineCyclesTotal counts pipeline cycles by status
	PipelineCyclesTotal metric.Int64Counter

	// PipelineCycleDuration measures the duration of pipeline cycles
	PipelineCycleDuration metric.Float64Histogram
)

// Loki Metrics
var (
	// LokiRequestDuration measures Loki push and query requests
	LokiRequestDuration metric.Float64Histogram

	// LokiRequestsTotal counts Loki requests by operation and status
	LokiRequestsTotal metric.Int64Counter

	// LokiLines measures lines pushed or read per request
	LokiLines metric.Int64Histogram
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

// initializeInstruments creates all metric instruments
func initializeInstruments() error {
	var err error

	HTTPClientRequestDuration, err = Meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Duration of HTTP client requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1.0, 2.5, 5.0, 7.5, 10.0),
	)
	if err != nil {
		return err
	}

	HTTPClientResponseBodySize, err = Meter.Int64Histogram(
		"http.client.response.body.size",
		metric.WithDescription("Size of HTTP response bodies"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(1024, 10240, 102400, 1048576, 10485760, 104857600), // 1KB to 100MB
	)
	if err != nil {
		return err
	}

	// Normalizer Metrics
	NormalizeDuration, err = Meter.Float64Histogram(
		"normalizer.duration",
		metric.WithDescription("Duration of normalization passes"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return err
	}

	NormalizedEventsTotal, err = Meter.Int64Counter(
		"normalizer.events.total",
		metric.WithDescription("Events retained by the normalizer"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	DroppedRecordsTotal, err = Meter.Int64Counter(
		"normalizer.dropped.total",
		metric.WithDescription("Records dropped as unrecognized"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return err
	}

	// Analysis Metrics
	SegmentsBuilt, err = Meter.Int64Histogram(
		"segments.built",
		metric.WithDescription("Trip and non-trip segments per dataset"),
		metric.WithUnit("{segment}"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500),
	)
	if err != nil {
		return err
	}

	DetectionDuration, err = Meter.Float64Histogram(
		"anomaly.detection.duration",
		metric.WithDescription("Duration of anomaly detector passes"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return err
	}

	DetectionPairsTotal, err = Meter.Int64Counter(
		"anomaly.pairs.total",
		metric.WithDescription("Consecutive located pairs examined"),
		metric.WithUnit("{pair}"),
	)
	if err != nil {
		return err
	}

	DetectionSignificantTotal, err = Meter.Int64Counter(
		"anomaly.significant.total",
		metric.WithDescription("Pairs flagged as anomalies"),
		metric.WithUnit("{pair}"),
	)
	if err != nil {
		return err
	}

	TasksAggregated, err = Meter.Int64Histogram(
		"tasks.aggregated",
		metric.WithDescription("Tasks per dataset"),
		metric.WithUnit("{task}"),
		metric.WithExplicitBucketBoundaries(1, 10, 50, 100, 500, 1000, 5000),
	)
	if err != nil {
		return err
	}

	TaskUpdatesTotal, err = Meter.Int64Counter(
		"tasks.updates.total",
		metric.WithDescription("Task updates merged"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return err
	}

	// Dataset Metrics
	DatasetFetchTotal, err = Meter.Int64Counter(
		"dataset.fetch.total",
		metric.WithDescription("Dataset loads by source and status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	DatasetFetchDuration, err = Meter.Float64Histogram(
		"dataset.fetch.duration",
		metric.WithDescription("Duration of dataset loads"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return err
	}

	DatasetRecords, err = Meter.Int64Histogram(
		"dataset.records",
		metric.WithDescription("Raw records per dataset"),
		metric.WithUnit("{record}"),
		metric.WithExplicitBucketBoundaries(10, 100, 1000, 10000, 100000, 1000000),
	)
	if err != nil {
		return err
	}

	// Pipeline Metrics
	PipelineCyclesTotal, err = Meter.Int64Counter(
		"pipeline.cycles.total",
		metric.WithDescription("Total number of pipeline cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return err
	}

	PipelineCycleDuration, err = Meter.Float64Histogram(
		"pipeline.cycle.duration",
		metric.WithDescription("Duration of pipeline cycles"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return err
	}

	// Loki Metrics
	LokiRequestDuration, err = Meter.Float64Histogram(
		"loki.request.duration",
		metric.WithDescription("Duration of Loki requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return err
	}

	LokiRequestsTotal, err = Meter.Int64Counter(
		"loki.requests.total",
		metric.WithDescription("Loki requests by operation and status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	LokiLines, err = Meter.Int64Histogram(
		"loki.lines",
		metric.WithDescription("Log lines pushed or read per request"),
		metric.WithUnit("{line}"),
		metric.WithExplicitBucketBoundaries(1, 10, 100, 1000, 5000, 10000),
	)
	if err != nil {
		return err
	}

	return nil
}
