package anomaly

import (
	"math"
	"time"

	"fleetdebugger/pkg/stats"
	"fleetdebugger/pkg/types"
)

// MaxPlausibleVelocity is the absolute ceiling in m/s (about 150 mph).
const MaxPlausibleVelocity = 68.0

// VelocityJump is a pair whose implied speed is implausible.
type VelocityJump struct {
	Pair
	// Velocity in m/s.
	Velocity float64 `json:"velocity"`
}

// VelocityJumpResult holds significant jumps together with the population
// statistics the decision was based on.
type VelocityJumpResult struct {
	Jumps     []VelocityJump `json:"jumps"`
	Stats     stats.Summary  `json:"stats"`
	Threshold float64        `json:"threshold"`
	Pairs     int            `json:"pairs"`
}

// VelocityJumps flags pairs moving more than a metre whose velocity exceeds
// min(median + 2*stddev, MaxPlausibleVelocity). Pairs with no elapsed time
// are left out of the statistics.
func VelocityJumps(events []*types.NormalizedEvent, minDate, maxDate time.Time) VelocityJumpResult {
	var candidates []VelocityJump
	var velocities []float64

	for _, p := range consecutivePairs(events, minDate, maxDate) {
		if p.Elapsed <= 0 {
			continue
		}
		v := p.Distance / p.Elapsed.Seconds()
		velocities = append(velocities, v)
		candidates = append(candidates, VelocityJump{Pair: p, Velocity: v})
	}

	summary := stats.Summarize(velocities)
	result := VelocityJumpResult{
		Stats:     summary,
		Threshold: math.Min(summary.Median+2*summary.StdDev, MaxPlausibleVelocity),
		Pairs:     len(candidates),
	}

	for _, c := range candidates {
		if c.Distance <= 1 {
			continue
		}
		// the threshold never exceeds the ceiling, so this covers both terms
		if c.Velocity > result.Threshold {
			result.Jumps = append(result.Jumps, c)
		}
	}
	return result
}
