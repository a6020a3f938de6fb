package normalizer

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"fleetdebugger/pkg/metrics"
	fdotel "fleetdebugger/pkg/otel"
	"fleetdebugger/pkg/types"

	"github.com/clbanning/mxj/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Normalizer struct {
	tracer       trace.Tracer
	solutionType types.SolutionType
	rules        []RenameRule
}

func New(solutionType types.SolutionType) *Normalizer {
	return &Normalizer{
		tracer:       otel.Tracer("normalizer"),
		solutionType: solutionType,
		rules:        RenameRules(solutionType),
	}
}

type timedRecord struct {
	index     int
	record    mxj.Map
	timestamp string
	date      time.Time
}

// Normalize turns raw log records into an ascending, key-normalized event
// stream. Records that match no lifecycle API are skipped with a warning.
// Records without a usable timestamp fail the whole batch with a
// *ValidationError.
func (n *Normalizer) Normalize(ctx context.Context, raw []types.RawEvent) ([]*types.NormalizedEvent, error) {
	ctx, span := n.tracer.Start(ctx, "normalizer.normalize",
		trace.WithAttributes(
			attribute.String("solution_type", string(n.solutionType)),
			attribute.Int("raw_records", len(raw)),
		),
	)
	defer span.End()

	start := time.Now()

	records, err := n.timedRecords(raw)
	if err != nil {
		fdotel.RecordError(span, err, fdotel.ErrorTypeValidation, false)
		return nil, err
	}

	if len(records) > 1 && records[0].date.After(records[len(records)-1].date) {
		slices.Reverse(records)
	}
	slices.SortStableFunc(records, func(a, b timedRecord) int {
		return a.date.Compare(b.date)
	})

	events := make([]*types.NormalizedEvent, 0, len(records))
	var state CarryState
	dropped := 0

	for _, rec := range records {
		decoded, err := Decode(rec.record)
		if err != nil {
			dropped++
			slog.Warn("Skipping unrecognized log record",
				"index", rec.index,
				"timestamp", rec.timestamp,
				"error", err,
			)
			continue
		}

		ev := &types.NormalizedEvent{
			Timestamp: rec.timestamp,
			Date:      rec.date,
			APIType:   decoded.APIType,
			Request:   decoded.Request,
			Response:  decoded.Response,
			Error:     decoded.Error,
		}
		if labels, ok := types.AsMap(rec.record["labels"]); ok {
			ev.Labels = labels
		}

		applyRenames(ev, n.rules)
		state = Carry(state, ev)

		ev.SequenceIndex = len(events)
		events = append(events, ev)
	}

	span.SetAttributes(
		attribute.Int("normalized_events", len(events)),
		attribute.Int("dropped_records", dropped),
	)
	fdotel.SetSpanOk(span)

	metrics.RecordNormalization(ctx, string(n.solutionType), len(events), dropped, time.Since(start))

	slog.Debug("Normalized fleet log records",
		"solution_type", n.solutionType,
		"events", len(events),
		"dropped", dropped,
	)

	return events, nil
}

func (n *Normalizer) timedRecords(raw []types.RawEvent) ([]timedRecord, error) {
	records := make([]timedRecord, 0, len(raw))
	var missing []int

	for i, r := range raw {
		if r == nil {
			missing = append(missing, i)
			continue
		}
		lowered, _ := LowerKeys(r).(map[string]interface{})
		rec := mxj.Map(lowered)

		ts, date, ok := recordTime(rec)
		if !ok {
			missing = append(missing, i)
			continue
		}
		records = append(records, timedRecord{index: i, record: rec, timestamp: ts, date: date})
	}

	if len(missing) > 0 {
		return nil, &ValidationError{Indexes: missing, Reason: "missing or unparseable timestamp"}
	}
	return records, nil
}

// IsInvalidInput reports whether err was caused by malformed input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
