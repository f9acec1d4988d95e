package config

// Config is the on-disk configuration of taskplan. JSON and YAML files are
// both accepted; unknown keys are rejected.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Capacity CapacityConfig `json:"capacity"`
	Planner  PlannerConfig  `json:"planner"`
	Storage  StorageConfig  `json:"storage"`
	Daemon   DaemonConfig   `json:"daemon"`

	Notifier *NotifierConfig `json:"notifier,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// CapacityConfig describes how many hours each weekday offers.
//
// Example:
//
//	"capacity": {
//	  "weekday_hours": { "monday": 6, "friday": 4, "saturday": 0 },
//	  "buffer_fraction": 0.8
//	}
//
// Weekdays that are omitted keep the default table (6h Monday..Friday,
// nothing on weekends).
type CapacityConfig struct {
	WeekdayHours        map[string]float64 `json:"weekday_hours,omitempty"`
	BufferFraction      float64            `json:"buffer_fraction,omitempty"`
	DisallowLimitedDays bool               `json:"disallow_limited_days,omitempty"`
	MinDayHours         float64            `json:"min_day_hours,omitempty"`
}

// PlannerConfig overrides the engine tunables. Zero or omitted fields keep
// their defaults; fields where zero is meaningful are pointers.
type PlannerConfig struct {
	// Timezone decides what "today" is. Defaults to daemon.timezone, then Local.
	Timezone string `json:"timezone,omitempty"`

	DefaultDuration float64 `json:"default_duration,omitempty"`

	MinBufferDays      *int `json:"min_buffer_days,omitempty"`
	MaxEarlyStartWeeks *int `json:"max_early_start_weeks,omitempty"`
	MaxPlanningDays    int  `json:"max_planning_days,omitempty"`

	DefaultHorizonDays int `json:"default_horizon_days,omitempty"`
	MaxHorizonDays     int `json:"max_horizon_days,omitempty"`

	MaxSearchIterations int `json:"max_search_iterations,omitempty"`
	MaxPlacements       int `json:"max_placements,omitempty"`
	MaxUpdatesPerRun    int `json:"max_updates_per_run,omitempty"`
	MaxGroupSize        int `json:"max_group_size,omitempty"`

	FallbackOffsetDays *int `json:"fallback_offset_days,omitempty"`
	FallbackStrideDays *int `json:"fallback_stride_days,omitempty"`

	// CriticalityWeights is keyed by tier name: critical, important, flexible.
	CriticalityWeights map[string]float64 `json:"criticality_weights,omitempty"`
	ClosenessScale     float64            `json:"closeness_scale,omitempty"`
	CapacityScale      float64            `json:"capacity_scale,omitempty"`
}

// StorageConfig selects the backlog store.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./backlog.yaml" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// DaemonConfig controls `taskplan serve`.
//
// Schedule accepts a cron expression (optionally prefixed with "cron:"),
// "@every 6h", a Go duration ("6h") or an "HH:MM" interval.
type DaemonConfig struct {
	Schedule   string `json:"schedule"`
	Timezone   string `json:"timezone,omitempty"`
	RunOnStart bool   `json:"run_on_start,omitempty"`
	// RunTimeout is a Go duration string. "0s" or empty disables it.
	RunTimeout string `json:"run_timeout,omitempty"`
}

// NotifierConfig controls the Telegram run summary.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type NotifierConfig struct {
	Enabled     bool   `json:"enabled"`
	Token       string `json:"token"`
	ChatID      int64  `json:"chat_id"`
	ThreadID    int    `json:"thread_id,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	// MaxLines caps how many placements are listed in one summary.
	MaxLines int `json:"max_lines,omitempty"`
}
