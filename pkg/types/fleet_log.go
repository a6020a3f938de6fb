package types

import (
	"sort"
	"strings"
	"time"

	"github.com/clbanning/mxj/v2"
	"github.com/paulmach/orb"
)

// RawEvent is a single log record as fetched from a log store, before any
// key normalization.
type RawEvent = mxj.Map

// LatLng is a WGS84 coordinate as found in fleet log payloads.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Point converts to an orb point (longitude first).
func (l LatLng) Point() orb.Point {
	return orb.Point{l.Longitude, l.Latitude}
}

// LastLocation is the vehicle state carried forward across the stream.
type LastLocation struct {
	RawLocation         *LatLng     `json:"raw_location,omitempty"`
	Location            *LatLng     `json:"location,omitempty"`
	Heading             float64     `json:"heading"`
	RawLocationSensor   string      `json:"raw_location_sensor,omitempty"`
	LocationSensor      string      `json:"location_sensor,omitempty"`
	RouteSegment        string      `json:"route_segment,omitempty"`
	RouteSegmentTraffic interface{} `json:"route_segment_traffic,omitempty"`
}

// Position returns the best known coordinate, preferring the raw sensor fix.
func (l LastLocation) Position() (*LatLng, bool) {
	if l.RawLocation != nil {
		return l.RawLocation, true
	}
	if l.Location != nil {
		return l.Location, true
	}
	return nil, false
}

// NormalizedEvent is a decoded, key-normalized log record. It is not
// modified after the normalizer returns it.
type NormalizedEvent struct {
	Timestamp     string    `json:"timestamp"`
	Date          time.Time `json:"date"`
	SequenceIndex int       `json:"sequence_index"`
	APIType       APIType   `json:"@type"`

	Request  mxj.Map                `json:"request,omitempty"`
	Response mxj.Map                `json:"response,omitempty"`
	Error    mxj.Map                `json:"error,omitempty"`
	Labels   map[string]interface{} `json:"labels,omitempty"`

	LastLocation LastLocation `json:"last_location"`
	// LocationSupplied is set when this record itself carried a location,
	// as opposed to one inherited from an earlier record.
	LocationSupplied bool   `json:"location_supplied"`
	NavigationStatus string `json:"navigation_status,omitempty"`
}

// ResponseValue looks up a dotted path in the response payload.
func (e *NormalizedEvent) ResponseValue(path string) (interface{}, bool) {
	return Lookup(e.Response, path)
}

// RequestValue looks up a dotted path in the request payload.
func (e *NormalizedEvent) RequestValue(path string) (interface{}, bool) {
	return Lookup(e.Request, path)
}

// ResponseString returns the string at path in the response, or "".
func (e *NormalizedEvent) ResponseString(path string) string {
	v, _ := e.ResponseValue(path)
	s, _ := v.(string)
	return s
}

// Position returns the carried-forward coordinate of the event.
func (e *NormalizedEvent) Position() (orb.Point, bool) {
	ll, ok := e.LastLocation.Position()
	if !ok {
		return orb.Point{}, false
	}
	return ll.Point(), true
}

// CurrentTripIDs returns the sorted trip ids assigned to the vehicle in this
// record's response.
func (e *NormalizedEvent) CurrentTripIDs() []string {
	var ids []string
	for _, v := range List(e.Response, "currenttrips") {
		if s, ok := v.(string); ok && s != "" {
			ids = append(ids, s)
		}
	}
	sort.Strings(ids)
	return ids
}

// TripIDs returns every trip id the record refers to: vehicle trip
// assignments, a trip id in the request, or the name of a returned trip.
func (e *NormalizedEvent) TripIDs() []string {
	ids := e.CurrentTripIDs()
	if v, ok := e.RequestValue("tripid"); ok {
		if s, ok := v.(string); ok && s != "" {
			ids = append(ids, s)
		}
	}
	if e.APIType.IsTripLifecycle() {
		if id := ResourceID(e.ResponseString("name")); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ResourceID returns the final element of a resource name such as
// "providers/p/trips/abc".
func ResourceID(name string) string {
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
