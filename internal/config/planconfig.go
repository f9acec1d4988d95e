package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"taskplan/internal/plan"
	logx "taskplan/pkg/logx"
)

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ToPlanConfig maps the capacity and planner sections onto plan.Config,
// starting from plan.DefaultConfig. The result is validated.
func (c *Config) ToPlanConfig() (plan.Config, error) {
	pc := plan.DefaultConfig()
	if c == nil {
		return pc, nil
	}

	for name, h := range c.Capacity.WeekdayHours {
		wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return pc, fmt.Errorf("capacity.weekday_hours: unknown weekday %q", name)
		}
		pc.WeekdayHours[wd] = h
	}
	setFloat(&pc.BufferFraction, c.Capacity.BufferFraction)
	pc.DisallowLimitedDays = c.Capacity.DisallowLimitedDays
	setFloat(&pc.MinDayHours, c.Capacity.MinDayHours)

	p := c.Planner
	setFloat(&pc.DefaultDuration, p.DefaultDuration)
	setIntPtr(&pc.MinBufferDays, p.MinBufferDays)
	setIntPtr(&pc.MaxEarlyStartWeeks, p.MaxEarlyStartWeeks)
	setInt(&pc.MaxPlanningDays, p.MaxPlanningDays)
	setInt(&pc.DefaultHorizonDays, p.DefaultHorizonDays)
	setInt(&pc.MaxHorizonDays, p.MaxHorizonDays)
	setInt(&pc.MaxSearchIterations, p.MaxSearchIterations)
	setInt(&pc.MaxPlacements, p.MaxPlacements)
	setInt(&pc.MaxUpdatesPerRun, p.MaxUpdatesPerRun)
	setInt(&pc.MaxGroupSize, p.MaxGroupSize)
	setIntPtr(&pc.FallbackOffsetDays, p.FallbackOffsetDays)
	setIntPtr(&pc.FallbackStrideDays, p.FallbackStrideDays)
	setFloat(&pc.ClosenessScale, p.ClosenessScale)
	setFloat(&pc.CapacityScale, p.CapacityScale)
	for name, w := range p.CriticalityWeights {
		tier, ok := plan.ParseCriticality(name)
		if !ok || strings.TrimSpace(name) == "" {
			return pc, fmt.Errorf("planner.criticality_weights: unknown tier %q", name)
		}
		pc.CriticalityWeights[tier-1] = w
	}

	if err := pc.Validate(); err != nil {
		return pc, err
	}
	return pc, nil
}

// Location returns the timezone that decides "today".
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Planner.Timezone)
	if name == "" {
		name = strings.TrimSpace(c.Daemon.Timezone)
	}
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", name, err)
	}
	return loc, nil
}

// Validate checks everything that can be checked without opening the store
// or parsing the daemon schedule.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if _, err := c.ToPlanConfig(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, ok := logx.ParseLevel(c.Logging.Level); !ok {
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "file", "sqlite", "sqlite3":
	case "":
		return errors.New("storage.driver is required")
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return errors.New("storage.path is required")
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("daemon.run_timeout", c.Daemon.RunTimeout); err != nil {
		return err
	}
	if n := c.Notifier; n != nil && n.Enabled {
		if strings.TrimSpace(n.Token) == "" {
			return errors.New("notifier.token is required when enabled")
		}
		if n.ChatID == 0 {
			return errors.New("notifier.chat_id is required when enabled")
		}
		if _, err := ParseDurationField("notifier.poll_timeout", n.PollTimeout); err != nil {
			return err
		}
	}
	return nil
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setIntPtr(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
