package segments

import (
	"time"

	"fleetdebugger/pkg/types"

	"github.com/paulmach/orb"
)

// PathPoint is one located vehicle update along a trip.
type PathPoint struct {
	Point    orb.Point `json:"point"`
	Date     time.Time `json:"date"`
	Heading  float64   `json:"heading"`
	EventSeq int       `json:"event_seq"`
}

// StatusChange records the moment response.tripstatus took a new value.
type StatusChange struct {
	Status string    `json:"status"`
	Date   time.Time `json:"date"`
}

// Trip is a maximal run of vehicle updates sharing one segment identity.
type Trip struct {
	Index       int           `json:"index"`
	Name        string        `json:"name"`
	NonTrip     bool          `json:"non_trip"`
	FirstUpdate time.Time     `json:"first_update"`
	LastUpdate  time.Time     `json:"last_update"`
	Duration    time.Duration `json:"duration"`
	UpdateCount int           `json:"update_count"`

	Path        []PathPoint    `json:"path"`
	PlannedPath orb.LineString `json:"planned_path,omitempty"`

	// TripLogs are the createTrip/updateTrip/getTrip records of this trip id.
	TripLogs      []*types.NormalizedEvent `json:"-"`
	Pickup        *types.LatLng            `json:"pickup,omitempty"`
	Dropoff       *types.LatLng            `json:"dropoff,omitempty"`
	ActualPickup  *types.LatLng            `json:"actual_pickup,omitempty"`
	ActualDropoff *types.LatLng            `json:"actual_dropoff,omitempty"`
}

// LineString returns the driven path as an orb geometry.
func (t *Trip) LineString() orb.LineString {
	ls := make(orb.LineString, 0, len(t.Path))
	for _, p := range t.Path {
		ls = append(ls, p.Point)
	}
	return ls
}

// Bound is the bounding box of the driven path.
func (t *Trip) Bound() orb.Bound {
	return t.LineString().Bound()
}

func (t *Trip) extend(ev *types.NormalizedEvent) {
	t.LastUpdate = ev.Date
	t.Duration = t.LastUpdate.Sub(t.FirstUpdate)
	t.UpdateCount++
	if pt, ok := ev.Position(); ok {
		t.Path = append(t.Path, PathPoint{
			Point:    pt,
			Date:     ev.Date,
			Heading:  ev.LastLocation.Heading,
			EventSeq: ev.SequenceIndex,
		})
	}
}

// attachTripLogs sets trip records and the waypoints they describe. Planned
// pickup and dropoff come from the latest record carrying them, actual
// points from the earliest.
func (t *Trip) attachTripLogs(logs []*types.NormalizedEvent) {
	t.TripLogs = logs
	for i := len(logs) - 1; i >= 0; i-- {
		if t.Pickup == nil {
			t.Pickup, _ = types.LatLngAt(logs[i].Response, "pickuppoint.point")
		}
		if t.Dropoff == nil {
			t.Dropoff, _ = types.LatLngAt(logs[i].Response, "dropoffpoint.point")
		}
	}
	for _, ev := range logs {
		if t.ActualPickup == nil {
			t.ActualPickup, _ = types.LatLngAt(ev.Response, "actualpickuppoint.point")
		}
		if t.ActualDropoff == nil {
			t.ActualDropoff, _ = types.LatLngAt(ev.Response, "actualdropoffpoint.point")
		}
	}
}

// plannedPath reads the remaining route from a vehicle response, falling
// back to the waypoint locations when no segment paths are present.
func plannedPath(ev *types.NormalizedEvent) orb.LineString {
	var ls orb.LineString
	for _, seg := range types.List(ev.Response, "remainingvehiclejourneysegments") {
		m, ok := types.AsMap(seg)
		if !ok {
			continue
		}
		for _, p := range types.List(m, "path") {
			if ll, ok := types.ToLatLng(p); ok {
				ls = append(ls, ll.Point())
			}
		}
	}
	if len(ls) > 0 {
		return ls
	}
	for _, wp := range types.List(ev.Response, "waypoints") {
		m, ok := types.AsMap(wp)
		if !ok {
			continue
		}
		if ll, ok := types.LatLngAt(m, "location.point"); ok {
			ls = append(ls, ll.Point())
		}
	}
	return ls
}
