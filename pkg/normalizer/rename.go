package normalizer

import (
	"strings"

	"fleetdebugger/pkg/types"

	"github.com/clbanning/mxj/v2"
)

type ruleScope int

const (
	scopeAny ruleScope = iota
	scopeVehicle
	scopeTrip
	scopeTask
)

func (s ruleScope) matches(api types.APIType) bool {
	switch s {
	case scopeVehicle:
		switch api {
		case types.APICreateVehicle, types.APIUpdateVehicle, types.APIGetVehicle,
			types.APICreateDeliveryVehicle, types.APIUpdateDeliveryVehicle, types.APIGetDeliveryVehicle:
			return true
		}
		return false
	case scopeTrip:
		return api.IsTripLifecycle()
	case scopeTask:
		return api == types.APICreateTask || api == types.APIUpdateTask || api == types.APIGetTask
	default:
		return true
	}
}

// RenameRule renames a payload field and optionally trims an enum prefix
// from its string value.
type RenameRule struct {
	Payload    string // "request" or "response"
	Path       string
	NewName    string // empty keeps the key
	TrimPrefix string
	scope      ruleScope
}

var commonRules = []RenameRule{
	{Payload: "response", Path: "navstatus", NewName: "navigationstatus", TrimPrefix: "NAVIGATION_STATUS_", scope: scopeVehicle},
	{Payload: "response", Path: "navigationstatus", TrimPrefix: "NAVIGATION_STATUS_", scope: scopeVehicle},
	{Payload: "request", Path: "vehicle.navstatus", NewName: "navigationstatus", TrimPrefix: "NAVIGATION_STATUS_", scope: scopeVehicle},
	{Payload: "request", Path: "vehicle.navigationstatus", TrimPrefix: "NAVIGATION_STATUS_", scope: scopeVehicle},
}

var odrdRules = []RenameRule{
	{Payload: "response", Path: "state", NewName: "vehiclestate", TrimPrefix: "VEHICLE_STATE_", scope: scopeVehicle},
	{Payload: "response", Path: "vehiclestate", TrimPrefix: "VEHICLE_STATE_", scope: scopeVehicle},
	{Payload: "request", Path: "vehicle.state", NewName: "vehiclestate", TrimPrefix: "VEHICLE_STATE_", scope: scopeVehicle},
	{Payload: "request", Path: "vehicle.vehiclestate", TrimPrefix: "VEHICLE_STATE_", scope: scopeVehicle},
	{Payload: "response", Path: "status", NewName: "tripstatus", TrimPrefix: "TRIP_STATUS_", scope: scopeTrip},
	{Payload: "response", Path: "tripstatus", TrimPrefix: "TRIP_STATUS_", scope: scopeTrip},
	{Payload: "request", Path: "trip.tripstatus", TrimPrefix: "TRIP_STATUS_", scope: scopeTrip},
}

// LMFS requests wrap the vehicle as deliveryvehicle; renaming it first lets
// the common rules reach its fields.
var lmfsPreRules = []RenameRule{
	{Payload: "request", Path: "deliveryvehicle", NewName: "vehicle", scope: scopeVehicle},
}

var lmfsRules = []RenameRule{
	{Payload: "response", Path: "taskoutcome", TrimPrefix: "TASK_OUTCOME_", scope: scopeTask},
	{Payload: "request", Path: "task.taskoutcome", TrimPrefix: "TASK_OUTCOME_", scope: scopeTask},
	{Payload: "response", Path: "state", TrimPrefix: "STATE_", scope: scopeTask},
}

// RenameRules returns the rules for a solution type in application order.
func RenameRules(solutionType types.SolutionType) []RenameRule {
	var rules []RenameRule
	if solutionType == types.SolutionLMFS {
		rules = append(rules, lmfsPreRules...)
		rules = append(rules, commonRules...)
		return append(rules, lmfsRules...)
	}
	rules = append(rules, commonRules...)
	return append(rules, odrdRules...)
}

// applyRenames rewrites the request and response of ev in place.
func applyRenames(ev *types.NormalizedEvent, rules []RenameRule) {
	for _, r := range rules {
		if !r.scope.matches(ev.APIType) {
			continue
		}
		switch r.Payload {
		case "request":
			applyRule(ev.Request, r)
		case "response":
			applyRule(ev.Response, r)
		}
	}
}

func applyRule(root mxj.Map, r RenameRule) {
	if root == nil {
		return
	}
	parent := root
	key := r.Path
	if idx := strings.LastIndex(r.Path, "."); idx >= 0 {
		v, ok := types.Lookup(root, r.Path[:idx])
		if !ok {
			return
		}
		m, ok := types.AsMap(v)
		if !ok {
			return
		}
		parent = m
		key = r.Path[idx+1:]
	}

	v, ok := parent[key]
	if !ok {
		return
	}
	if s, ok := v.(string); ok && r.TrimPrefix != "" {
		v = strings.TrimPrefix(s, r.TrimPrefix)
	}

	if r.NewName == "" || r.NewName == key {
		parent[key] = v
		return
	}
	if _, exists := parent[r.NewName]; exists {
		// both spellings present: keep the canonical one untouched
		return
	}
	delete(parent, key)
	parent[r.NewName] = v
}
