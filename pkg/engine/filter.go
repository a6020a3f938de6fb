package engine

import (
	"fmt"
	"slices"
	"strings"

	"fleetdebugger/pkg/types"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Filter restricts Logs. Zero values match everything.
type Filter struct {
	APITypes []types.APIType
	// TripID matches entries referring to a trip id containing it.
	TripID string
	Where  *Predicate
}

func (f Filter) matches(e LogEntry) bool {
	if len(f.APITypes) > 0 && !slices.Contains(f.APITypes, e.APIType) {
		return false
	}
	if f.Where != nil && !f.Where.Match(e) {
		return false
	}
	if f.TripID == "" {
		return true
	}
	for _, id := range e.TripIDs {
		if strings.Contains(id, f.TripID) {
			return true
		}
	}
	return false
}

// Predicate is a compiled boolean expression over a log entry, for example
//
//	apiType == "updateVehicle" && response?.tripstatus == "COMPLETE"
//
// The environment exposes apiType, eventTime, timestamp, tripIds, request,
// response, lat, lng and hasLocation. Payload keys are lower case.
type Predicate struct {
	source  string
	program *vm.Program
}

func predicateEnv(e LogEntry) map[string]interface{} {
	env := map[string]interface{}{
		"apiType":     string(e.APIType),
		"eventTime":   e.Date,
		"timestamp":   e.Timestamp,
		"tripIds":     e.TripIDs,
		"request":     map[string]interface{}{},
		"response":    map[string]interface{}{},
		"lat":         0.0,
		"lng":         0.0,
		"hasLocation": false,
	}
	if e.TripIDs == nil {
		env["tripIds"] = []string{}
	}
	if e.Event != nil {
		if e.Event.Request != nil {
			env["request"] = map[string]interface{}(e.Event.Request)
		}
		if e.Event.Response != nil {
			env["response"] = map[string]interface{}(e.Event.Response)
		}
	}
	if e.LastLocation != nil {
		if pos, ok := e.LastLocation.Position(); ok {
			env["lat"] = pos.Latitude
			env["lng"] = pos.Longitude
			env["hasLocation"] = true
		}
	}
	return env
}

// CompilePredicate compiles a filter expression. The expression must
// evaluate to a boolean.
func CompilePredicate(source string) (*Predicate, error) {
	program, err := expr.Compile(source, expr.Env(predicateEnv(LogEntry{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter %q: %w", source, err)
	}
	return &Predicate{source: source, program: program}, nil
}

// Match reports whether the expression holds for e. Evaluation errors, such
// as a missing nested field, count as no match.
func (p *Predicate) Match(e LogEntry) bool {
	out, err := expr.Run(p.program, predicateEnv(e))
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}

func (p *Predicate) String() string { return p.source }
