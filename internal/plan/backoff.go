package plan

// Zone tells which branch of the start policy produced a Window's Start.
type Zone int

const (
	// ZoneDeferred: the deadline is far enough that starting is delayed to
	// the earliest reasonable start.
	ZoneDeferred Zone = iota
	// ZoneOnTime: start exactly at the latest safe start.
	ZoneOnTime
	// ZoneBehind: the latest safe start already passed; start today.
	ZoneBehind
)

func (z Zone) String() string {
	switch z {
	case ZoneDeferred:
		return "deferred"
	case ZoneOnTime:
		return "on_time"
	case ZoneBehind:
		return "behind"
	default:
		return "unknown"
	}
}

// Window is the outcome of backing off from a deadline.
type Window struct {
	Deadline   Date
	DaysNeeded int
	Latest     Date
	Earliest   Date
	Start      Date
	Zone       Zone
	// UsableDays counts available days from today up to the deadline.
	UsableDays int
}

// Backoff converts workloads into calendar days using the weekday table, so
// weekends and other empty days stretch the result.
type Backoff struct {
	cal           *Calendar
	maxDays       int
	minBufferDays int
	maxEarlyWeeks int
}

func NewBackoff(cal *Calendar, cfg Config) Backoff {
	return Backoff{
		cal:           cal,
		maxDays:       cfg.MaxPlanningDays,
		minBufferDays: cfg.MinBufferDays,
		maxEarlyWeeks: cfg.MaxEarlyStartWeeks,
	}
}

// DaysNeeded walks backward from end (inclusive) and returns how many
// calendar days it takes to cover hours of usable capacity. The walk stops
// after MaxPlanningDays and returns that bound as a best effort.
func (b Backoff) DaysNeeded(end Date, hours float64) int {
	if hours <= 0 {
		return 0
	}
	remaining := hours
	days := 0
	for days < b.maxDays && remaining > epsilon {
		day := end.AddDays(-days)
		if b.cal.IsAvailable(day) {
			remaining -= b.cal.Usable(day)
		}
		days++
	}
	return days
}

// UsableDays counts available days in [from, to), walking at most
// MaxPlanningDays.
func (b Backoff) UsableDays(from, to Date) int {
	n := 0
	for i := 0; i < b.maxDays; i++ {
		d := from.AddDays(i)
		if !d.Before(to) {
			break
		}
		if b.cal.IsAvailable(d) {
			n++
		}
	}
	return n
}

// LatestStart is the latest safe start for hours of work finishing by
// deadline, never earlier than today.
func (b Backoff) LatestStart(today, deadline Date, hours float64) Date {
	latest := deadline.AddDays(-(b.DaysNeeded(deadline, hours) + b.minBufferDays))
	return maxDate(latest, today)
}

// Window applies the three-zone start policy: defer distant work to the
// earliest reasonable start, start on-time work at the latest safe start,
// and start late work today.
func (b Backoff) Window(today, deadline Date, hours float64) Window {
	w := Window{
		Deadline:   deadline,
		DaysNeeded: b.DaysNeeded(deadline, hours),
		UsableDays: b.UsableDays(today, deadline),
	}
	w.Latest = deadline.AddDays(-(w.DaysNeeded + b.minBufferDays))
	w.Earliest = w.Latest.AddDays(-b.maxEarlyWeeks * 7)
	switch {
	case w.Earliest.After(today):
		w.Start, w.Zone = w.Earliest, ZoneDeferred
	case w.Latest.After(today):
		w.Start, w.Zone = w.Latest, ZoneOnTime
	default:
		w.Start, w.Zone = today, ZoneBehind
	}
	return w
}
