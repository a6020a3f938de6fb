package normalizer

import (
	"fleetdebugger/pkg/types"
)

// NavigationNoGuidance is the navigation status that clears route state.
const NavigationNoGuidance = "NO_GUIDANCE"

// CarryState is the last known vehicle state threaded through the stream.
type CarryState struct {
	Location types.LastLocation
}

// locationSources are checked in order for a lastlocation object.
var locationSources = []struct {
	payload string
	path    string
}{
	{"response", "lastlocation"},
	{"request", "vehicle.lastlocation"},
	{"request", "lastlocation"},
}

// Carry folds one event into the carried state. Fields the record supplies
// replace the carried values; missing ones are back-filled onto the event.
// The event's LastLocation, LocationSupplied and NavigationStatus are set
// from the returned state.
func Carry(state CarryState, ev *types.NormalizedEvent) CarryState {
	next := state.Location

	for _, src := range locationSources {
		payload := ev.Response
		if src.payload == "request" {
			payload = ev.Request
		}
		v, ok := types.Lookup(payload, src.path)
		if !ok {
			continue
		}
		loc, ok := types.AsMap(v)
		if !ok {
			continue
		}
		raw, hasRaw := types.ToLatLng(loc["rawlocation"])
		if hasRaw {
			next.RawLocation = raw
			ev.LocationSupplied = true
		}
		if snapped, ok := types.ToLatLng(loc["location"]); ok {
			next.Location = snapped
			ev.LocationSupplied = true
			// an older raw fix must not outrank this record's snapped one
			if !hasRaw {
				next.RawLocation = nil
			}
		}
		if heading, ok := types.ToFloat(loc["heading"]); ok {
			next.Heading = heading
		}
		if s, ok := loc["rawlocationsensor"].(string); ok {
			next.RawLocationSensor = s
		}
		if s, ok := loc["locationsensor"].(string); ok {
			next.LocationSensor = s
		}
		break
	}

	if seg, ok := routeValue(ev, "currentroutesegment"); ok {
		if s, ok := seg.(string); ok {
			next.RouteSegment = s
		}
	}
	if traffic, ok := routeValue(ev, "currentroutesegmenttraffic"); ok {
		next.RouteSegmentTraffic = traffic
	}

	ev.NavigationStatus = navigationStatus(ev)
	if ev.NavigationStatus == NavigationNoGuidance {
		next.RouteSegment = ""
		next.RouteSegmentTraffic = nil
	}

	ev.LastLocation = next
	return CarryState{Location: next}
}

func routeValue(ev *types.NormalizedEvent, key string) (interface{}, bool) {
	if v, ok := types.Lookup(ev.Response, key); ok {
		return v, true
	}
	return types.Lookup(ev.Request, "vehicle."+key)
}

func navigationStatus(ev *types.NormalizedEvent) string {
	if s := ev.ResponseString("navigationstatus"); s != "" {
		return s
	}
	if v, ok := types.Lookup(ev.Request, "vehicle.navigationstatus"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
