// Package anomaly runs batch detectors over a normalized vehicle update
// stream: velocity jumps, missing updates, dwell locations and ETA deltas.
package anomaly

import (
	"time"

	"fleetdebugger/pkg/types"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Pair is two consecutive located vehicle updates.
type Pair struct {
	Previous *types.NormalizedEvent `json:"-"`
	Current  *types.NormalizedEvent `json:"-"`
	From     orb.Point              `json:"from"`
	To       orb.Point              `json:"to"`
	// Distance is the great-circle distance in metres.
	Distance float64       `json:"distance"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Date is the time of the later update.
func (p Pair) Date() time.Time {
	return p.Current.Date
}

type located struct {
	ev    *types.NormalizedEvent
	point orb.Point
}

// locatedUpdates returns vehicle updates in [minDate, maxDate] whose own
// record supplied a location.
func locatedUpdates(events []*types.NormalizedEvent, minDate, maxDate time.Time) []located {
	var out []located
	for _, ev := range events {
		if !ev.APIType.IsVehicleUpdate() || !ev.LocationSupplied {
			continue
		}
		if ev.Date.Before(minDate) || ev.Date.After(maxDate) {
			continue
		}
		pt, ok := ev.Position()
		if !ok {
			continue
		}
		out = append(out, located{ev: ev, point: pt})
	}
	return out
}

func consecutivePairs(events []*types.NormalizedEvent, minDate, maxDate time.Time) []Pair {
	updates := locatedUpdates(events, minDate, maxDate)
	if len(updates) < 2 {
		return nil
	}
	pairs := make([]Pair, 0, len(updates)-1)
	for i := 1; i < len(updates); i++ {
		prev, cur := updates[i-1], updates[i]
		pairs = append(pairs, Pair{
			Previous: prev.ev,
			Current:  cur.ev,
			From:     prev.point,
			To:       cur.point,
			Distance: geo.DistanceHaversine(prev.point, cur.point),
			Elapsed:  cur.ev.Date.Sub(prev.ev.Date),
		})
	}
	return pairs
}
