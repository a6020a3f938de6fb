package types

import (
	"fmt"
	"strings"
)

// SolutionType selects which of the two backend log schemas a dataset uses.
type SolutionType string

const (
	// SolutionODRD is the on-demand rides and deliveries schema.
	SolutionODRD SolutionType = "ODRD"
	// SolutionLMFS is the last mile fleet solution schema.
	SolutionLMFS SolutionType = "LMFS"
)

// ParseSolutionType accepts "ODRD" or "LMFS" in any case. An empty string
// defaults to ODRD.
func ParseSolutionType(s string) (SolutionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(SolutionODRD):
		return SolutionODRD, nil
	case string(SolutionLMFS):
		return SolutionLMFS, nil
	default:
		return "", fmt.Errorf("unknown solution type %q", s)
	}
}

// VehicleUpdateAPI returns the API whose records drive trip segmentation.
func (s SolutionType) VehicleUpdateAPI() APIType {
	if s == SolutionLMFS {
		return APIUpdateDeliveryVehicle
	}
	return APIUpdateVehicle
}

// APIType identifies the lifecycle call that produced a log record.
type APIType string

const (
	APICreateVehicle         APIType = "createVehicle"
	APIUpdateVehicle         APIType = "updateVehicle"
	APIGetVehicle            APIType = "getVehicle"
	APICreateDeliveryVehicle APIType = "createDeliveryVehicle"
	APIUpdateDeliveryVehicle APIType = "updateDeliveryVehicle"
	APIGetDeliveryVehicle    APIType = "getDeliveryVehicle"
	APICreateTrip            APIType = "createTrip"
	APIUpdateTrip            APIType = "updateTrip"
	APIGetTrip               APIType = "getTrip"
	APICreateTask            APIType = "createTask"
	APIUpdateTask            APIType = "updateTask"
	APIGetTask               APIType = "getTask"
)

// Annotation pseudo types emitted next to normalized events in log queries.
const (
	APIHighVelocityJump APIType = "highVelocityJump"
	APIMissingUpdate    APIType = "missingUpdate"
)

// LifecycleAPIs lists every API a raw record can be decoded into.
var LifecycleAPIs = []APIType{
	APICreateVehicle,
	APIUpdateVehicle,
	APIGetVehicle,
	APICreateDeliveryVehicle,
	APIUpdateDeliveryVehicle,
	APIGetDeliveryVehicle,
	APICreateTrip,
	APIUpdateTrip,
	APIGetTrip,
	APICreateTask,
	APIUpdateTask,
	APIGetTask,
}

var apiByLowerName = func() map[string]APIType {
	m := make(map[string]APIType, len(LifecycleAPIs))
	for _, api := range LifecycleAPIs {
		m[strings.ToLower(string(api))] = api
	}
	return m
}()

// LookupAPIType matches a type marker against the lifecycle API names.
// Markers may be bare names ("UpdateVehicle"), log type names
// ("UpdateVehicleLog") or fully qualified type URLs
// ("type.googleapis.com/maps.fleetengine.v1.UpdateVehicleLog").
func LookupAPIType(marker string) (APIType, bool) {
	name := strings.TrimSpace(marker)
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.ToLower(name)
	if api, ok := apiByLowerName[name]; ok {
		return api, true
	}
	api, ok := apiByLowerName[strings.TrimSuffix(name, "log")]
	return api, ok
}

// IsVehicleUpdate reports whether records of this type carry vehicle state
// updates used for segmentation and anomaly detection.
func (a APIType) IsVehicleUpdate() bool {
	return a == APIUpdateVehicle || a == APIUpdateDeliveryVehicle
}

// IsTaskMutation reports whether the API creates or updates a task.
func (a APIType) IsTaskMutation() bool {
	return a == APICreateTask || a == APIUpdateTask
}

// IsTripLifecycle reports whether the API returns a trip resource.
func (a APIType) IsTripLifecycle() bool {
	return a == APICreateTrip || a == APIUpdateTrip || a == APIGetTrip
}

// IsAnnotation reports whether the type is a derived pseudo event.
func (a APIType) IsAnnotation() bool {
	return a == APIHighVelocityJump || a == APIMissingUpdate
}
