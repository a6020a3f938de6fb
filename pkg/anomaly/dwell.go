package anomaly

import (
	"time"

	"fleetdebugger/pkg/types"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

const (
	// DwellRadius is the clustering radius in metres.
	DwellRadius = 20.0
	// MinDwellUpdates is the smallest cluster reported.
	MinDwellUpdates = 12
)

// DwellLocation is a cluster of updates near a leader point.
type DwellLocation struct {
	Leader      orb.Point `json:"leader"`
	UpdateCount int       `json:"update_count"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
}

// Duration is the span between the first and last clustered update.
func (d DwellLocation) Duration() time.Duration {
	return d.EndDate.Sub(d.StartDate)
}

// DwellLocations clusters located updates around leader points. Each update
// joins the first cluster whose leader lies within DwellRadius, otherwise it
// leads a new cluster. Clusters are never merged and there is no time bound,
// so revisits on different days land in the same cluster.
func DwellLocations(events []*types.NormalizedEvent, minDate, maxDate time.Time) []DwellLocation {
	var clusters []*DwellLocation

	for _, u := range locatedUpdates(events, minDate, maxDate) {
		var match *DwellLocation
		for _, c := range clusters {
			if geo.DistanceHaversine(c.Leader, u.point) <= DwellRadius {
				match = c
				break
			}
		}
		if match == nil {
			clusters = append(clusters, &DwellLocation{
				Leader:      u.point,
				UpdateCount: 1,
				StartDate:   u.ev.Date,
				EndDate:     u.ev.Date,
			})
			continue
		}
		match.UpdateCount++
		match.EndDate = u.ev.Date
	}

	var out []DwellLocation
	for _, c := range clusters {
		if c.UpdateCount >= MinDwellUpdates {
			out = append(out, *c)
		}
	}
	return out
}
