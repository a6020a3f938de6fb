package anomaly

import (
	"math"
	"sort"
	"time"

	"fleetdebugger/pkg/stats"
	"fleetdebugger/pkg/types"
)

// MaxMissingThreshold caps the adaptive gap threshold.
const MaxMissingThreshold = 60 * time.Second

// MissingUpdateMultiplier scales the median interval into the threshold.
const MissingUpdateMultiplier = 10

type MissingUpdate struct {
	Pair
	Interval time.Duration `json:"interval"`
}

// MissingUpdateResult carries the significant gaps, sorted by interval, and
// the threshold that selected them.
type MissingUpdateResult struct {
	Updates   []MissingUpdate `json:"updates"`
	Median    time.Duration   `json:"median"`
	Threshold time.Duration   `json:"threshold"`
	Pairs     int             `json:"pairs"`
}

// MissingUpdates flags pairs whose interval is at least
// min(median*10, 60s).
func MissingUpdates(events []*types.NormalizedEvent, minDate, maxDate time.Time) MissingUpdateResult {
	var candidates []MissingUpdate
	var intervals []float64

	for _, p := range consecutivePairs(events, minDate, maxDate) {
		if p.Elapsed <= 0 {
			continue
		}
		intervals = append(intervals, float64(p.Elapsed))
		candidates = append(candidates, MissingUpdate{Pair: p, Interval: p.Elapsed})
	}
	if len(candidates) == 0 {
		return MissingUpdateResult{}
	}

	median := time.Duration(math.Round(stats.Median(intervals)))
	threshold := median * MissingUpdateMultiplier
	if threshold > MaxMissingThreshold {
		threshold = MaxMissingThreshold
	}

	result := MissingUpdateResult{
		Median:    median,
		Threshold: threshold,
		Pairs:     len(candidates),
	}
	for _, c := range candidates {
		if c.Interval >= threshold {
			result.Updates = append(result.Updates, c)
		}
	}
	sort.SliceStable(result.Updates, func(i, j int) bool {
		return result.Updates[i].Interval < result.Updates[j].Interval
	})
	return result
}
