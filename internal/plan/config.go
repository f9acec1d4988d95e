package plan

import (
	"math"
	"time"
)

// Config holds every tunable of the engine.
//
// Start from DefaultConfig and override fields; New validates the result.
type Config struct {
	// WeekdayHours is the nominal capacity per weekday, indexed by time.Weekday
	// (Sunday = 0).
	WeekdayHours [7]float64
	// BufferFraction is the share of nominal hours the engine fills (e.g. 0.8).
	BufferFraction float64
	// DisallowLimitedDays makes days with fewer than MinDayHours unavailable.
	DisallowLimitedDays bool
	MinDayHours         float64

	// DefaultDuration replaces missing or invalid estimates (hours).
	DefaultDuration float64

	MinBufferDays      int
	MaxEarlyStartWeeks int
	// MaxPlanningDays bounds every day-by-day walk of the backoff planner and
	// the window in which fixed commitments are reserved.
	MaxPlanningDays int

	DefaultHorizonDays int
	MaxHorizonDays     int

	// MaxSearchIterations bounds the capacity probe for one chain member.
	MaxSearchIterations int
	// MaxPlacements bounds priority placements across the whole run.
	MaxPlacements int
	// MaxUpdatesPerRun bounds the number of date assignments one run returns.
	MaxUpdatesPerRun int
	MaxGroupSize     int

	// Fallback placement: today + FallbackOffsetDays (+ FallbackStrideDays per
	// chain member index).
	FallbackOffsetDays int
	FallbackStrideDays int

	// CriticalityWeights multiplies the capacity score, indexed by tier-1.
	CriticalityWeights [3]float64
	ClosenessScale     float64
	CapacityScale      float64
}

// DefaultConfig mirrors the planner's historical constants: six hours on
// weekdays, 80% fill, 90-day walks and 30-day horizons.
func DefaultConfig() Config {
	return Config{
		WeekdayHours: [7]float64{
			time.Sunday:    0,
			time.Monday:    6,
			time.Tuesday:   6,
			time.Wednesday: 6,
			time.Thursday:  6,
			time.Friday:    6,
			time.Saturday:  0,
		},
		BufferFraction:      0.8,
		MinDayHours:         2,
		DefaultDuration:     1,
		MinBufferDays:       1,
		MaxEarlyStartWeeks:  2,
		MaxPlanningDays:     90,
		DefaultHorizonDays:  30,
		MaxHorizonDays:      30,
		MaxSearchIterations: 500,
		MaxPlacements:       500,
		MaxUpdatesPerRun:    50,
		MaxGroupSize:        20,
		FallbackOffsetDays:  7,
		FallbackStrideDays:  2,
		CriticalityWeights:  [3]float64{3, 2, 1},
		ClosenessScale:      10,
		CapacityScale:       10,
	}
}

// Validate reports the first invalid field as a *ConfigError.
func (c Config) Validate() error {
	for i, h := range c.WeekdayHours {
		if h < 0 || math.IsNaN(h) || math.IsInf(h, 0) {
			return configErrorf("weekday_hours", "%s hours must be >= 0", time.Weekday(i))
		}
	}
	if c.BufferFraction <= 0 || c.BufferFraction > 1 {
		return configErrorf("buffer_fraction", "must be in (0, 1], got %v", c.BufferFraction)
	}
	if c.MinDayHours < 0 {
		return configErrorf("min_day_hours", "must be >= 0")
	}
	if c.DefaultDuration <= 0 {
		return configErrorf("default_duration", "must be > 0")
	}
	if c.MinBufferDays < 0 {
		return configErrorf("min_buffer_days", "must be >= 0")
	}
	if c.MaxEarlyStartWeeks < 0 {
		return configErrorf("max_early_start_weeks", "must be >= 0")
	}
	positive := []struct {
		field string
		v     int
	}{
		{"max_planning_days", c.MaxPlanningDays},
		{"default_horizon_days", c.DefaultHorizonDays},
		{"max_horizon_days", c.MaxHorizonDays},
		{"max_search_iterations", c.MaxSearchIterations},
		{"max_placements", c.MaxPlacements},
		{"max_updates_per_run", c.MaxUpdatesPerRun},
		{"max_group_size", c.MaxGroupSize},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return configErrorf(p.field, "must be > 0, got %d", p.v)
		}
	}
	if c.FallbackOffsetDays < 0 || c.FallbackStrideDays < 0 {
		return configErrorf("fallback", "offset and stride must be >= 0")
	}
	for i, w := range c.CriticalityWeights {
		if w <= 0 {
			return configErrorf("criticality_weights", "weight for %s must be > 0", Criticality(i+1))
		}
	}
	if c.ClosenessScale < 0 || c.CapacityScale < 0 {
		return configErrorf("scale", "scores must be >= 0")
	}
	return nil
}

// Weight returns the capacity multiplier of a tier. Unknown tiers weigh 1.
func (c Config) Weight(tier Criticality) float64 {
	if !tier.Valid() {
		return 1
	}
	return c.CriticalityWeights[tier-1]
}

// Score rates placing a task at offset days from today inside a horizon of
// horizon days, on a day with the given remaining and available hours.
//
// Earlier days score higher on closeness; emptier days score higher on
// capacity, amplified by the tier weight.
func (c Config) Score(offset, horizon int, remaining, available float64, tier Criticality) float64 {
	if horizon <= 0 {
		horizon = 1
	}
	closeness := float64(horizon-offset) / float64(horizon) * c.ClosenessScale
	capacity := 0.0
	if available > 0 {
		capacity = remaining / available * c.CapacityScale
	}
	return closeness + capacity*c.Weight(tier)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
