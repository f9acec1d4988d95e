package config

import (
	"reflect"
	"sort"
	"strings"

	logx "taskplan/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Capacity, newCfg.Capacity) {
		changed = append(changed, "capacity")
		attrs = append(attrs,
			logx.String("capacity.weekdays", weekdayKeys(newCfg.Capacity.WeekdayHours)),
			logx.Float64("capacity.buffer_fraction", newCfg.Capacity.BufferFraction),
			logx.Bool("capacity.disallow_limited_days", newCfg.Capacity.DisallowLimitedDays),
		)
	}

	if !reflect.DeepEqual(oldCfg.Planner, newCfg.Planner) {
		changed = append(changed, "planner")
		attrs = append(attrs,
			logx.String("planner.timezone", strings.TrimSpace(newCfg.Planner.Timezone)),
			logx.Int("planner.max_updates_per_run", newCfg.Planner.MaxUpdatesPerRun),
			logx.Int("planner.max_horizon_days", newCfg.Planner.MaxHorizonDays),
		)
	}

	// Storage changes need a restart; surface them so the operator knows.
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.String("storage.path", strings.TrimSpace(newCfg.Storage.Path)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Daemon, newCfg.Daemon) {
		changed = append(changed, "daemon")
		attrs = append(attrs,
			logx.String("daemon.schedule", strings.TrimSpace(newCfg.Daemon.Schedule)),
			logx.String("daemon.timezone", strings.TrimSpace(newCfg.Daemon.Timezone)),
			logx.String("daemon.run_timeout", strings.TrimSpace(newCfg.Daemon.RunTimeout)),
		)
	}

	// Notifier (never log token)
	oldN, newN := notifierOrZero(oldCfg.Notifier), notifierOrZero(newCfg.Notifier)
	if oldN.Enabled != newN.Enabled ||
		oldN.ChatID != newN.ChatID ||
		oldN.ThreadID != newN.ThreadID ||
		oldN.RatePerSec != newN.RatePerSec ||
		oldN.MaxLines != newN.MaxLines ||
		strings.TrimSpace(oldN.PollTimeout) != strings.TrimSpace(newN.PollTimeout) ||
		strings.TrimSpace(oldN.Token) != strings.TrimSpace(newN.Token) {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newN.Enabled),
			logx.Bool("notifier.token_set", strings.TrimSpace(newN.Token) != ""),
			logx.Int64("notifier.chat_id", newN.ChatID),
		)
	}

	return changed, attrs
}

func notifierOrZero(n *NotifierConfig) NotifierConfig {
	if n == nil {
		return NotifierConfig{}
	}
	return *n
}

func weekdayKeys(m map[string]float64) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, strings.ToLower(strings.TrimSpace(k)))
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}
