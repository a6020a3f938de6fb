package anomaly

import (
	"time"

	"fleetdebugger/pkg/types"

	"github.com/paulmach/orb"
)

// ETADelta compares two consecutive ETA-to-first-waypoint predictions.
type ETADelta struct {
	Date time.Time `json:"date"`
	// DeltaSeconds is the time elapsed between the two updates.
	DeltaSeconds float64 `json:"delta_seconds"`
	// ETAChangeSeconds is how far the predicted arrival moved.
	ETAChangeSeconds float64   `json:"eta_change_seconds"`
	Coordinate       orb.Point `json:"coordinate"`
	HasCoordinate    bool      `json:"has_coordinate"`
}

type etaSample struct {
	ev  *types.NormalizedEvent
	eta time.Time
}

// ETADeltas pairs consecutive events in [minDate, maxDate] that expose
// response.etatofirstwaypoint. The coordinate is that of the later event.
func ETADeltas(events []*types.NormalizedEvent, minDate, maxDate time.Time) []ETADelta {
	var samples []etaSample
	for _, ev := range events {
		if ev.Date.Before(minDate) || ev.Date.After(maxDate) {
			continue
		}
		v, ok := ev.ResponseValue("etatofirstwaypoint")
		if !ok {
			continue
		}
		eta, ok := parseETA(v)
		if !ok {
			continue
		}
		samples = append(samples, etaSample{ev: ev, eta: eta})
	}

	var out []ETADelta
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		d := ETADelta{
			Date:             cur.ev.Date,
			DeltaSeconds:     cur.ev.Date.Sub(prev.ev.Date).Seconds(),
			ETAChangeSeconds: cur.eta.Sub(prev.eta).Seconds(),
		}
		d.Coordinate, d.HasCoordinate = cur.ev.Position()
		out = append(out, d)
	}
	return out
}

// parseETA accepts an RFC 3339 string or a {seconds, nanos} timestamp.
func parseETA(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		d, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return d.UTC(), true
	default:
		m, ok := types.AsMap(v)
		if !ok {
			return time.Time{}, false
		}
		secs, ok := types.ToFloat(m["seconds"])
		if !ok {
			return time.Time{}, false
		}
		nanos, _ := types.ToFloat(m["nanos"])
		return time.Unix(int64(secs), int64(nanos)).UTC(), true
	}
}
