// Package tasks merges createTask and updateTask records into per-task
// state that can be projected to any point in time.
package tasks

import (
	"context"
	"time"

	"fleetdebugger/pkg/metrics"
	"fleetdebugger/pkg/types"

	"github.com/clbanning/mxj/v2"
	"github.com/paulmach/orb/geo"
)

// Update is one create or update call for a task.
type Update struct {
	Date     time.Time
	APIType  types.APIType
	Request  mxj.Map
	Response mxj.Map
}

type Task struct {
	ID      string
	Updates []Update
}

// TaskState is a task projected to a cutoff date.
type TaskState struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	UpdateCount int       `json:"update_count"`

	Type            string        `json:"type,omitempty"`
	State           string        `json:"state,omitempty"`
	Outcome         string        `json:"outcome,omitempty"`
	TrackingID      string        `json:"tracking_id,omitempty"`
	PlannedLocation *types.LatLng `json:"planned_location,omitempty"`
	OutcomeLocation *types.LatLng `json:"outcome_location,omitempty"`
	OutcomeTime     string        `json:"outcome_time,omitempty"`

	// PlannedVsActualMeters is set only when both locations are known.
	PlannedVsActualMeters *float64 `json:"planned_vs_actual_meters,omitempty"`

	Response mxj.Map `json:"-"`
}

// StateAsOf projects the task using the latest update dated at or before
// maxDate. It reports false when every update is later than maxDate.
func (t *Task) StateAsOf(maxDate time.Time) (TaskState, bool) {
	idx := -1
	for i, u := range t.Updates {
		if u.Date.After(maxDate) {
			continue
		}
		if idx < 0 || !u.Date.Before(t.Updates[idx].Date) {
			idx = i
		}
	}
	if idx < 0 {
		return TaskState{}, false
	}
	u := t.Updates[idx]

	count := 0
	for _, other := range t.Updates {
		if !other.Date.After(maxDate) {
			count++
		}
	}

	s := TaskState{
		ID:          t.ID,
		Date:        u.Date,
		UpdateCount: count,
		Type:        u.str("type"),
		State:       stringAt(u.Response, "state"),
		Outcome:     stringAt(u.Response, "taskoutcome"),
		TrackingID:  u.str("trackingid"),
		OutcomeTime: stringAt(u.Response, "taskoutcometime"),
		Response:    u.Response,
	}
	s.PlannedLocation = u.latLng("plannedlocation.point")
	s.OutcomeLocation, _ = types.LatLngAt(u.Response, "taskoutcomelocation.point")

	if s.PlannedLocation != nil && s.OutcomeLocation != nil {
		d := geo.DistanceHaversine(s.PlannedLocation.Point(), s.OutcomeLocation.Point())
		s.PlannedVsActualMeters = &d
	}
	return s, true
}

// requestPaths lists where a task field may sit in a request: nested under
// task for create and update calls, or at the top level.
func requestPaths(path string) []string {
	return []string{"task." + path, path}
}

// str prefers the response value and falls back to the request.
func (u Update) str(path string) string {
	if s := stringAt(u.Response, path); s != "" {
		return s
	}
	for _, p := range requestPaths(path) {
		if s := stringAt(u.Request, p); s != "" {
			return s
		}
	}
	return ""
}

func (u Update) latLng(path string) *types.LatLng {
	if ll, ok := types.LatLngAt(u.Response, path); ok {
		return ll
	}
	for _, p := range requestPaths(path) {
		if ll, ok := types.LatLngAt(u.Request, p); ok {
			return ll
		}
	}
	return nil
}

func stringAt(m mxj.Map, path string) string {
	v, ok := types.Lookup(m, path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Aggregator holds every task of a dataset in first-seen order.
type Aggregator struct {
	tasks map[string]*Task
	order []string
}

// New scans the stream once. Events without a response or without a task id
// are errored calls and are skipped.
func New(ctx context.Context, events []*types.NormalizedEvent) *Aggregator {
	a := &Aggregator{tasks: make(map[string]*Task)}
	updates := 0

	for _, ev := range events {
		if !ev.APIType.IsTaskMutation() || ev.Response == nil {
			continue
		}
		id := TaskID(ev)
		if id == "" {
			continue
		}
		task, ok := a.tasks[id]
		if !ok {
			task = &Task{ID: id}
			a.tasks[id] = task
			a.order = append(a.order, id)
		}
		task.Updates = append(task.Updates, Update{
			Date:     ev.Date,
			APIType:  ev.APIType,
			Request:  ev.Request,
			Response: ev.Response,
		})
		updates++
	}

	metrics.RecordTaskUpdates(ctx, len(a.order), updates)
	return a
}

// TaskID reads the task id from request.taskid, the last element of
// request.task.name, or the response name.
func TaskID(ev *types.NormalizedEvent) string {
	if s := stringAt(ev.Request, "taskid"); s != "" {
		return s
	}
	if s := stringAt(ev.Request, "task.name"); s != "" {
		return types.ResourceID(s)
	}
	return types.ResourceID(stringAt(ev.Response, "name"))
}

// Task returns the task with the given id.
func (a *Aggregator) Task(id string) (*Task, bool) {
	t, ok := a.tasks[id]
	return t, ok
}

// IDs returns task ids in first-seen order.
func (a *Aggregator) IDs() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// TasksAsOf projects every task that existed at maxDate.
func (a *Aggregator) TasksAsOf(maxDate time.Time) []TaskState {
	var out []TaskState
	for _, id := range a.order {
		if s, ok := a.tasks[id].StateAsOf(maxDate); ok {
			out = append(out, s)
		}
	}
	return out
}
