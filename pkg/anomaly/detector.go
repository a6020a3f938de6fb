package anomaly

import (
	"context"
	"time"

	"fleetdebugger/pkg/debounce"
	"fleetdebugger/pkg/metrics"
	fdotel "fleetdebugger/pkg/otel"
	"fleetdebugger/pkg/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultQuietPeriod is how long Schedule waits for further requests.
const DefaultQuietPeriod = 300 * time.Millisecond

// Report is the output of one full velocity and missing update pass.
type Report struct {
	MinDate        time.Time           `json:"min_date"`
	MaxDate        time.Time           `json:"max_date"`
	VelocityJumps  VelocityJumpResult  `json:"velocity_jumps"`
	MissingUpdates MissingUpdateResult `json:"missing_updates"`
}

// Detector runs the expensive detectors over one dataset, either directly
// or debounced.
type Detector struct {
	events    []*types.NormalizedEvent
	tracer    trace.Tracer
	debouncer *debounce.Debouncer[Report]
}

func NewDetector(events []*types.NormalizedEvent, quietPeriod time.Duration) *Detector {
	if quietPeriod <= 0 {
		quietPeriod = DefaultQuietPeriod
	}
	return &Detector{
		events:    events,
		tracer:    otel.Tracer("anomaly-detector"),
		debouncer: debounce.New[Report](quietPeriod),
	}
}

// Detect computes both detectors for [minDate, maxDate] synchronously.
func (d *Detector) Detect(ctx context.Context, minDate, maxDate time.Time) Report {
	ctx, span := d.tracer.Start(ctx, "anomaly.detect",
		trace.WithAttributes(
			attribute.String("min_date", minDate.Format(time.RFC3339)),
			attribute.String("max_date", maxDate.Format(time.RFC3339)),
		),
	)
	defer span.End()

	start := time.Now()
	velocity := VelocityJumps(d.events, minDate, maxDate)
	metrics.RecordDetection(ctx, "velocity_jump", velocity.Pairs, len(velocity.Jumps), time.Since(start))

	start = time.Now()
	missing := MissingUpdates(d.events, minDate, maxDate)
	metrics.RecordDetection(ctx, "missing_update", missing.Pairs, len(missing.Updates), time.Since(start))

	span.SetAttributes(
		attribute.Int("velocity_jumps", len(velocity.Jumps)),
		attribute.Float64("velocity_threshold", velocity.Threshold),
		attribute.Int("missing_updates", len(missing.Updates)),
		attribute.Int64("missing_threshold_ms", missing.Threshold.Milliseconds()),
	)
	fdotel.SetSpanOk(span)

	return Report{
		MinDate:        minDate,
		MaxDate:        maxDate,
		VelocityJumps:  velocity,
		MissingUpdates: missing,
	}
}

// Schedule requests a detection after the quiet period. A later call
// before the period elapses supersedes this window; every pending caller
// receives the report for the latest window.
func (d *Detector) Schedule(ctx context.Context, minDate, maxDate time.Time) <-chan Report {
	return d.debouncer.Trigger(func() Report {
		return d.Detect(ctx, minDate, maxDate)
	})
}

// Stop cancels a pending scheduled detection.
func (d *Detector) Stop() {
	d.debouncer.Stop()
}
