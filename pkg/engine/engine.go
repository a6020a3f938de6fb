// Package engine owns one fleet log dataset and answers the time-windowed
// queries of the debugger: logs, trips, task state and anomalies.
package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"fleetdebugger/pkg/anomaly"
	"fleetdebugger/pkg/normalizer"
	"fleetdebugger/pkg/profiling"
	"fleetdebugger/pkg/segments"
	"fleetdebugger/pkg/tasks"
	"fleetdebugger/pkg/types"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LogEntry is a normalized event or an anomaly annotation placed on the
// timeline.
type LogEntry struct {
	Timestamp    string                 `json:"timestamp"`
	Date         time.Time              `json:"date"`
	APIType      types.APIType          `json:"@type"`
	LastLocation *types.LastLocation    `json:"last_location,omitempty"`
	TripIDs      []string               `json:"trip_ids,omitempty"`
	Event        *types.NormalizedEvent `json:"event,omitempty"`

	VelocityJump  *anomaly.VelocityJump  `json:"velocity_jump,omitempty"`
	MissingUpdate *anomaly.MissingUpdate `json:"missing_update,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithQuietPeriod sets the debounce delay of ScheduleAnomalies.
func WithQuietPeriod(d time.Duration) Option {
	return func(e *Engine) { e.quietPeriod = d }
}

// Engine is built once per dataset and not modified afterwards; switching
// datasets means building a new Engine.
type Engine struct {
	id           string
	solutionType types.SolutionType
	events       []*types.NormalizedEvent
	quietPeriod  time.Duration

	segments *segments.Engine
	tasks    *tasks.Aggregator
	detector *anomaly.Detector
	tracer   trace.Tracer
}

// New normalizes raw and builds every derived view. Only malformed input
// fails; unrecognized records are dropped by the normalizer.
func New(ctx context.Context, raw []types.RawEvent, solutionType types.SolutionType, opts ...Option) (*Engine, error) {
	e := &Engine{
		id:           uuid.NewString(),
		solutionType: solutionType,
		tracer:       otel.Tracer("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}

	ctx, span := e.tracer.Start(ctx, "engine.build",
		trace.WithAttributes(
			attribute.String("engine.id", e.id),
			attribute.String("solution_type", string(solutionType)),
		),
	)
	defer span.End()

	var events []*types.NormalizedEvent
	var err error
	profiling.Stage(ctx, "normalize", func(ctx context.Context) {
		events, err = normalizer.New(solutionType).Normalize(ctx, raw)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to normalize dataset: %w", err)
	}

	e.events = events

	// both views only read the normalized stream
	var wg conc.WaitGroup
	wg.Go(func() {
		profiling.Stage(ctx, "segments", func(ctx context.Context) {
			e.segments = segments.New(ctx, events, solutionType)
		})
	})
	wg.Go(func() {
		profiling.Stage(ctx, "tasks", func(ctx context.Context) {
			e.tasks = tasks.New(ctx, events)
		})
	})
	wg.Wait()

	e.detector = anomaly.NewDetector(events, e.quietPeriod)

	span.SetAttributes(
		attribute.Int("events", len(events)),
		attribute.Int("trips", len(e.segments.Trips())),
	)
	return e, nil
}

// ID identifies this dataset instance.
func (e *Engine) ID() string { return e.id }

func (e *Engine) SolutionType() types.SolutionType { return e.solutionType }

// Events returns the normalized stream.
func (e *Engine) Events() []*types.NormalizedEvent {
	return slices.Clone(e.events)
}

// MinDate is the date of the first event, or the Unix epoch for an empty
// dataset.
func (e *Engine) MinDate() time.Time {
	if len(e.events) == 0 {
		return time.Unix(0, 0).UTC()
	}
	return e.events[0].Date
}

// MaxDate is the date of the last event, or now for an empty dataset.
func (e *Engine) MaxDate() time.Time {
	if len(e.events) == 0 {
		return time.Now().UTC()
	}
	return e.events[len(e.events)-1].Date
}

// Logs returns normalized events and velocity jump and missing update
// annotations dated within [minDate, maxDate], sorted by date.
func (e *Engine) Logs(ctx context.Context, minDate, maxDate time.Time, filter Filter) []LogEntry {
	var entries []LogEntry
	for _, ev := range e.events {
		if ev.Date.Before(minDate) || ev.Date.After(maxDate) {
			continue
		}
		loc := ev.LastLocation
		entries = append(entries, LogEntry{
			Timestamp:    ev.Timestamp,
			Date:         ev.Date,
			APIType:      ev.APIType,
			LastLocation: &loc,
			TripIDs:      ev.TripIDs(),
			Event:        ev,
		})
	}

	report := e.detector.Detect(ctx, minDate, maxDate)
	for i := range report.VelocityJumps.Jumps {
		jump := report.VelocityJumps.Jumps[i]
		entries = append(entries, annotation(types.APIHighVelocityJump, jump.Current, func(le *LogEntry) {
			le.VelocityJump = &jump
		}))
	}
	for i := range report.MissingUpdates.Updates {
		gap := report.MissingUpdates.Updates[i]
		entries = append(entries, annotation(types.APIMissingUpdate, gap.Current, func(le *LogEntry) {
			le.MissingUpdate = &gap
		}))
	}

	slices.SortStableFunc(entries, func(a, b LogEntry) int {
		return a.Date.Compare(b.Date)
	})

	out := entries[:0]
	for _, le := range entries {
		if filter.matches(le) {
			out = append(out, le)
		}
	}
	return out
}

// annotation places a derived entry at the time of the later event of a
// pair.
func annotation(api types.APIType, at *types.NormalizedEvent, set func(*LogEntry)) LogEntry {
	loc := at.LastLocation
	le := LogEntry{
		Timestamp:    at.Timestamp,
		Date:         at.Date,
		APIType:      api,
		LastLocation: &loc,
		TripIDs:      at.TripIDs(),
	}
	set(&le)
	return le
}

func (e *Engine) Trips() []*segments.Trip { return e.segments.Trips() }

func (e *Engine) TripIDs() []string { return e.segments.TripIDs() }

// TripStatusAt returns the trip status in effect at date.
func (e *Engine) TripStatusAt(date time.Time) (string, bool) {
	return e.segments.TripStatusAt(date)
}

func (e *Engine) MissingUpdates(minDate, maxDate time.Time) anomaly.MissingUpdateResult {
	return anomaly.MissingUpdates(e.events, minDate, maxDate)
}

func (e *Engine) HighVelocityJumps(minDate, maxDate time.Time) anomaly.VelocityJumpResult {
	return anomaly.VelocityJumps(e.events, minDate, maxDate)
}

func (e *Engine) DwellLocations(minDate, maxDate time.Time) []anomaly.DwellLocation {
	return anomaly.DwellLocations(e.events, minDate, maxDate)
}

func (e *Engine) ETADeltas(minDate, maxDate time.Time) []anomaly.ETADelta {
	return anomaly.ETADeltas(e.events, minDate, maxDate)
}

// TasksAsOf projects every task to maxDate.
func (e *Engine) TasksAsOf(maxDate time.Time) []tasks.TaskState {
	return e.tasks.TasksAsOf(maxDate)
}

// ScheduleAnomalies debounces velocity and missing update detection.
// Requests arriving within the quiet period collapse into one run for the
// latest window, delivered to every caller.
func (e *Engine) ScheduleAnomalies(ctx context.Context, minDate, maxDate time.Time) <-chan anomaly.Report {
	return e.detector.Schedule(ctx, minDate, maxDate)
}

// Close cancels a pending scheduled detection.
func (e *Engine) Close() {
	e.detector.Stop()
}
