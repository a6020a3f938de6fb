// Package segments partitions a normalized vehicle update stream into trip
// and non-trip segments and tracks trip status transitions.
package segments

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"fleetdebugger/pkg/metrics"
	fdotel "fleetdebugger/pkg/otel"
	"fleetdebugger/pkg/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// NonTripPrefix names segments during which the vehicle had no trip.
const NonTripPrefix = "non-trip-segment-"

// Engine holds the segments of one dataset. It is immutable after New.
type Engine struct {
	solutionType  types.SolutionType
	trips         []*Trip
	statusChanges []StatusChange
}

// New builds the segments and status changes of a chronological stream in
// a single pass.
func New(ctx context.Context, events []*types.NormalizedEvent, solutionType types.SolutionType) *Engine {
	_, span := otel.Tracer("segments").Start(ctx, "segments.build",
		trace.WithAttributes(
			attribute.String("solution_type", string(solutionType)),
			attribute.Int("events", len(events)),
		),
	)
	defer span.End()

	e := &Engine{solutionType: solutionType}
	tripLogs := indexTripLogs(events)
	updateAPI := solutionType.VehicleUpdateAPI()

	var current *Trip
	currentID := ""
	started := false
	nonTripRuns := 0
	lastStatus := ""

	for _, ev := range events {
		if status := ev.ResponseString("tripstatus"); status != "" && status != lastStatus {
			e.statusChanges = append(e.statusChanges, StatusChange{Status: status, Date: ev.Date})
			lastStatus = status
		}

		if ev.APIType != updateAPI {
			continue
		}

		id := e.segmentID(ev)
		if !started || id != currentID {
			started = true
			currentID = id

			name, nonTrip := id, false
			if id == "" {
				name = fmt.Sprintf("%s%d", NonTripPrefix, nonTripRuns)
				nonTrip = true
				nonTripRuns++
			}
			current = &Trip{
				Index:       len(e.trips),
				Name:        name,
				NonTrip:     nonTrip,
				FirstUpdate: ev.Date,
				PlannedPath: plannedPath(ev),
			}
			if logs, ok := tripLogs[id]; ok && !nonTrip {
				current.attachTripLogs(logs)
			}
			e.trips = append(e.trips, current)
		}
		current.extend(ev)
	}

	span.SetAttributes(
		attribute.Int("trips", len(e.trips)),
		attribute.Int("status_changes", len(e.statusChanges)),
	)
	fdotel.SetSpanOk(span)
	metrics.RecordSegments(ctx, len(e.trips))

	return e
}

// segmentID is the sorted trip id set for ODRD and the remaining stop count
// for LMFS. An empty ODRD id means the vehicle had no trip.
func (e *Engine) segmentID(ev *types.NormalizedEvent) string {
	if e.solutionType == types.SolutionLMFS {
		return strconv.Itoa(len(types.List(ev.Response, "remainingvehiclejourneysegments")))
	}
	return strings.Join(ev.CurrentTripIDs(), ",")
}

// indexTripLogs groups trip lifecycle records by trip id in stream order.
func indexTripLogs(events []*types.NormalizedEvent) map[string][]*types.NormalizedEvent {
	idx := make(map[string][]*types.NormalizedEvent)
	for _, ev := range events {
		if !ev.APIType.IsTripLifecycle() || ev.Response == nil {
			continue
		}
		id := types.ResourceID(ev.ResponseString("name"))
		if id == "" {
			if v, ok := ev.RequestValue("tripid"); ok {
				id, _ = v.(string)
			}
		}
		if id != "" {
			idx[id] = append(idx[id], ev)
		}
	}
	return idx
}

// Trips returns all segments in creation order.
func (e *Engine) Trips() []*Trip {
	out := make([]*Trip, len(e.trips))
	copy(out, e.trips)
	return out
}

// TripIDs returns segment names in creation order, non-trip segments
// included under their synthesized names.
func (e *Engine) TripIDs() []string {
	ids := make([]string, len(e.trips))
	for i, t := range e.trips {
		ids[i] = t.Name
	}
	return ids
}

// Trip returns the first segment with the given name.
func (e *Engine) Trip(name string) (*Trip, bool) {
	for _, t := range e.trips {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// TripsBetween returns the segments overlapping [minDate, maxDate].
func (e *Engine) TripsBetween(minDate, maxDate time.Time) []*Trip {
	var out []*Trip
	for _, t := range e.trips {
		if t.LastUpdate.Before(minDate) || t.FirstUpdate.After(maxDate) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// StatusChanges returns every trip status transition in stream order.
func (e *Engine) StatusChanges() []StatusChange {
	out := make([]StatusChange, len(e.statusChanges))
	copy(out, e.statusChanges)
	return out
}

// TripStatusAt returns the status of the latest transition at or before
// date.
func (e *Engine) TripStatusAt(date time.Time) (string, bool) {
	i := sort.Search(len(e.statusChanges), func(i int) bool {
		return e.statusChanges[i].Date.After(date)
	})
	if i == 0 {
		return "", false
	}
	return e.statusChanges[i-1].Status, true
}
