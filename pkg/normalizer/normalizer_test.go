package normalizer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"fleetdebugger/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawRecords(t *testing.T, s string) []types.RawEvent {
	t.Helper()
	var items []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(s), &items))
	out := make([]types.RawEvent, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}

const odrdStream = `[
	{
		"timestamp": "2024-03-01T10:00:00Z",
		"jsonPayload": {
			"@type": "type.googleapis.com/maps.fleetengine.v1.UpdateVehicleLog",
			"request": {"vehicleId": "v1", "vehicle": {"lastLocation": {"rawLocation": {"latitude": 52.0, "longitude": 13.0}, "heading": 90}}},
			"response": {
				"name": "providers/p/vehicles/v1",
				"State": "VEHICLE_STATE_ONLINE",
				"navigationStatus": "NAVIGATION_STATUS_ENROUTE_TO_DESTINATION",
				"currentRouteSegment": "abc",
				"lastLocation": {"rawLocation": {"latitude": 52.0, "longitude": 13.0}, "heading": 90},
				"currentTrips": ["trip-1"]
			}
		},
		"labels": {"vehicle_id": "v1"}
	},
	{
		"timestamp": "2024-03-01T10:00:10Z",
		"jsonPayload": {
			"@type": "type.googleapis.com/maps.fleetengine.v1.UpdateTripLog",
			"request": {"tripId": "trip-1"},
			"response": {"name": "providers/p/trips/trip-1", "tripStatus": "TRIP_STATUS_ENROUTE_TO_PICKUP"}
		}
	},
	{
		"timestamp": "2024-03-01T10:00:20Z",
		"jsonPayload": {
			"@type": "type.googleapis.com/maps.fleetengine.v1.UpdateVehicleLog",
			"request": {"vehicleId": "v1"},
			"response": {"name": "providers/p/vehicles/v1", "navigationStatus": "NAVIGATION_STATUS_NO_GUIDANCE"}
		}
	},
	{
		"timestamp": "2024-03-01T10:00:30Z",
		"jsonPayload": {"@type": "type.googleapis.com/maps.fleetengine.v1.SearchVehiclesLog", "request": {}}
	}
]`

func TestNormalize_DecodesRenamesAndCarries(t *testing.T) {
	events, err := New(types.SolutionODRD).Normalize(context.Background(), rawRecords(t, odrdStream))
	require.NoError(t, err)
	require.Len(t, events, 3, "unrecognized search record must be dropped")

	first := events[0]
	assert.Equal(t, types.APIUpdateVehicle, first.APIType)
	assert.Equal(t, "ONLINE", first.ResponseString("vehiclestate"))
	assert.Equal(t, "ENROUTE_TO_DESTINATION", first.NavigationStatus)
	assert.Equal(t, "abc", first.LastLocation.RouteSegment)
	assert.Equal(t, 90.0, first.LastLocation.Heading)
	assert.True(t, first.LocationSupplied)
	assert.Equal(t, "v1", first.Labels["vehicle_id"])
	_, hasOldKey := first.Response["state"]
	assert.False(t, hasOldKey)

	trip := events[1]
	assert.Equal(t, types.APIUpdateTrip, trip.APIType)
	assert.Equal(t, "ENROUTE_TO_PICKUP", trip.ResponseString("tripstatus"))
	assert.False(t, trip.LocationSupplied)
	require.NotNil(t, trip.LastLocation.RawLocation)
	assert.Equal(t, 52.0, trip.LastLocation.RawLocation.Latitude)
	assert.Equal(t, "abc", trip.LastLocation.RouteSegment)

	noGuidance := events[2]
	assert.Equal(t, NavigationNoGuidance, noGuidance.NavigationStatus)
	assert.Empty(t, noGuidance.LastLocation.RouteSegment)
	require.NotNil(t, noGuidance.LastLocation.RawLocation)
	assert.Equal(t, 90.0, noGuidance.LastLocation.Heading)

	for i, ev := range events {
		assert.Equal(t, i, ev.SequenceIndex)
	}
}

func TestNormalize_DescendingInputIsReversed(t *testing.T) {
	raw := rawRecords(t, `[
		{"timestamp": "2024-03-01T10:00:20Z", "updateVehicle": {"response": {"lastlocation": {"rawlocation": {"latitude": 1, "longitude": 3}}}}},
		{"timestamp": "2024-03-01T10:00:10Z", "updateVehicle": {"response": {}}},
		{"serverTime": "2024-03-01T10:00:00Z", "updateVehicle": {"response": {"lastlocation": {"rawlocation": {"latitude": 1, "longitude": 1}}}}}
	]`)

	events, err := New(types.SolutionODRD).Normalize(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, events, 3)

	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Date.Before(events[i-1].Date), "events out of order at %d", i)
	}
	assert.Equal(t, "2024-03-01T10:00:00Z", events[0].Timestamp)
	// the middle record inherits the first record's location
	require.NotNil(t, events[1].LastLocation.RawLocation)
	assert.Equal(t, 1.0, events[1].LastLocation.RawLocation.Longitude)
	assert.Equal(t, 3.0, events[2].LastLocation.RawLocation.Longitude)
}

func TestNormalize_SnappedOnlyRecordUsesItsOwnFix(t *testing.T) {
	raw := rawRecords(t, `[
		{"timestamp": "2024-03-01T10:00:00Z", "updateVehicle": {"response": {"lastlocation": {"rawlocation": {"latitude": 1, "longitude": 1}, "location": {"latitude": 1, "longitude": 1}}}}},
		{"timestamp": "2024-03-01T10:00:10Z", "updateVehicle": {"response": {"lastlocation": {"location": {"latitude": 1.01, "longitude": 1}}}}},
		{"timestamp": "2024-03-01T10:00:20Z", "updateVehicle": {"response": {}}}
	]`)

	events, err := New(types.SolutionODRD).Normalize(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, events, 3)

	snapped := events[1]
	assert.True(t, snapped.LocationSupplied)
	assert.Nil(t, snapped.LastLocation.RawLocation, "the earlier raw fix is stale")
	pos, ok := snapped.LastLocation.Position()
	require.True(t, ok)
	assert.Equal(t, 1.01, pos.Latitude)

	// later records inherit the snapped fix
	inherited, ok := events[2].LastLocation.Position()
	require.True(t, ok)
	assert.Equal(t, 1.01, inherited.Latitude)
}

func TestNormalize_UnsortedInputIsSorted(t *testing.T) {
	raw := rawRecords(t, `[
		{"timestamp": "2024-03-01T10:00:00Z", "updateVehicle": {"response": {}}},
		{"timestamp": "2024-03-01T10:00:30Z", "updateVehicle": {"response": {}}},
		{"timestamp": "2024-03-01T10:00:10Z", "updateVehicle": {"response": {}}},
		{"timestamp": "2024-03-01T10:00:40Z", "updateVehicle": {"response": {}}}
	]`)

	events, err := New(types.SolutionODRD).Normalize(context.Background(), raw)
	require.NoError(t, err)
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Date.Before(events[i-1].Date))
	}
}

func TestNormalize_MissingTimestampIsValidationError(t *testing.T) {
	raw := rawRecords(t, `[
		{"timestamp": "2024-03-01T10:00:00Z", "updateVehicle": {"response": {}}},
		{"updateVehicle": {"response": {}}},
		{"timestamp": "not a time", "updateVehicle": {"response": {}}}
	]`)

	events, err := New(types.SolutionODRD).Normalize(context.Background(), raw)
	assert.Nil(t, events)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.True(t, IsInvalidInput(err))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []int{1, 2}, verr.Indexes)
}

func TestNormalize_EmptyInput(t *testing.T) {
	events, err := New(types.SolutionLMFS).Normalize(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestNormalize_LMFSDeliveryVehicle(t *testing.T) {
	raw := rawRecords(t, `[
		{
			"timestamp": "2024-03-01T10:00:00Z",
			"jsonPayload": {
				"@type": "type.googleapis.com/maps.fleetengine.delivery.v1.UpdateDeliveryVehicleLog",
				"request": {"deliveryVehicle": {"lastLocation": {"location": {"latitude": 10, "longitude": 20}}, "navigationStatus": "NAVIGATION_STATUS_NO_GUIDANCE"}},
				"response": {"name": "providers/p/deliveryVehicles/dv1", "remainingVehicleJourneySegments": [{"stop": {}}, {"stop": {}}]}
			}
		}
	]`)

	events, err := New(types.SolutionLMFS).Normalize(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, types.APIUpdateDeliveryVehicle, ev.APIType)
	assert.Equal(t, NavigationNoGuidance, ev.NavigationStatus)
	_, ok := ev.RequestValue("vehicle")
	assert.True(t, ok, "deliveryvehicle should be renamed to vehicle")
	require.NotNil(t, ev.LastLocation.Location)
	assert.Nil(t, ev.LastLocation.RawLocation)
	assert.True(t, ev.LocationSupplied)
	assert.Len(t, types.List(ev.Response, "remainingvehiclejourneysegments"), 2)
}

func TestCarry_Fold(t *testing.T) {
	withLoc := &types.NormalizedEvent{
		APIType: types.APIUpdateVehicle,
		Response: map[string]interface{}{
			"lastlocation":               map[string]interface{}{"rawlocation": map[string]interface{}{"latitude": 1.0, "longitude": 2.0}, "heading": 45.0},
			"currentroutesegment":        "seg",
			"currentroutesegmenttraffic": map[string]interface{}{"speedreadinginterval": []interface{}{}},
		},
	}
	state := Carry(CarryState{}, withLoc)
	require.NotNil(t, state.Location.RawLocation)
	assert.Equal(t, "seg", state.Location.RouteSegment)
	assert.NotNil(t, state.Location.RouteSegmentTraffic)

	bare := &types.NormalizedEvent{APIType: types.APIGetTrip}
	state = Carry(state, bare)
	assert.False(t, bare.LocationSupplied)
	require.NotNil(t, bare.LastLocation.RawLocation)
	assert.Equal(t, 45.0, bare.LastLocation.Heading)
	assert.Equal(t, "seg", bare.LastLocation.RouteSegment)

	cleared := &types.NormalizedEvent{
		APIType:  types.APIUpdateVehicle,
		Response: map[string]interface{}{"navigationstatus": "NO_GUIDANCE"},
	}
	state = Carry(state, cleared)
	assert.Empty(t, cleared.LastLocation.RouteSegment)
	assert.Nil(t, cleared.LastLocation.RouteSegmentTraffic)
	require.NotNil(t, cleared.LastLocation.RawLocation, "location survives a route reset")
	assert.Empty(t, state.Location.RouteSegment)
}

func TestCarry_LocationNeverReturnsToNil(t *testing.T) {
	var state CarryState
	seen := false
	inputs := []map[string]interface{}{
		{},
		{"lastlocation": map[string]interface{}{"rawlocation": map[string]interface{}{"latitude": 5.0, "longitude": 6.0}}},
		{},
		{"lastlocation": map[string]interface{}{"heading": 10.0}},
		{},
	}
	for _, resp := range inputs {
		ev := &types.NormalizedEvent{APIType: types.APIUpdateVehicle, Response: resp}
		state = Carry(state, ev)
		if ev.LastLocation.RawLocation != nil {
			seen = true
		}
		if seen {
			assert.NotNil(t, ev.LastLocation.RawLocation)
		}
	}
	assert.True(t, seen)
}
