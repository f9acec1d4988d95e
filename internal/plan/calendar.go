package plan

import "sort"

// Calendar is the capacity ledger of one run.
//
// Available hours come from the weekday table; only consumed hours are
// stored, and only for days something was placed on. Entries are never
// removed.
type Calendar struct {
	hours       [7]float64
	buffer      float64
	minDayHours float64
	limitedDays bool
	days        map[Date]*dayState
}

type dayState struct {
	consumed float64
	ids      []string

	// committed counts hours reserved for fixed or settled records.
	committed float64
	degraded  bool
}

// DayLoad is a read-only view of one calendar day.
type DayLoad struct {
	Date      Date
	Available float64
	Usable    float64
	Consumed  float64
	Committed float64
	TaskIDs   []string
	Degraded  bool
}

// Over reports whether placements pushed the day past its usable hours.
func (l DayLoad) Over() bool { return l.Consumed > l.Usable+epsilon }

const epsilon = 1e-9

func NewCalendar(cfg Config) *Calendar {
	return &Calendar{
		hours:       cfg.WeekdayHours,
		buffer:      cfg.BufferFraction,
		minDayHours: cfg.MinDayHours,
		limitedDays: !cfg.DisallowLimitedDays,
		days:        map[Date]*dayState{},
	}
}

func (c *Calendar) AvailableHours(d Date) float64 { return c.hours[d.Weekday()] }

// IsAvailable reports whether work may be placed on d at all.
func (c *Calendar) IsAvailable(d Date) bool {
	h := c.AvailableHours(d)
	if c.limitedDays {
		return h > 0
	}
	return h > 0 && h >= c.minDayHours
}

// Usable is the buffered capacity of d.
func (c *Calendar) Usable(d Date) float64 { return c.AvailableHours(d) * c.buffer }

func (c *Calendar) Consumed(d Date) float64 {
	if st, ok := c.days[d]; ok {
		return st.consumed
	}
	return 0
}

func (c *Calendar) Remaining(d Date) float64 { return c.Usable(d) - c.Consumed(d) }

// Fits reports whether hours can go on d without exceeding its usable
// capacity. A task bigger than a whole usable day fits only on an empty day;
// oversized is true in that case.
func (c *Calendar) Fits(d Date, hours float64) (ok, oversized bool) {
	if !c.IsAvailable(d) {
		return false, false
	}
	if c.Remaining(d)+epsilon >= hours {
		return true, false
	}
	if hours > c.Usable(d) && c.Consumed(d) <= 0 {
		return true, true
	}
	return false, false
}

// Place books hours on d. It never fails; callers check Fits first unless
// they are making a fallback placement.
func (c *Calendar) Place(d Date, taskID string, hours float64, degraded bool) {
	st := c.day(d)
	st.consumed += hours
	st.ids = append(st.ids, taskID)
	if degraded {
		st.degraded = true
	}
}

// Reserve books a commitment the engine does not own (fixed dates, earlier
// auto-dated tasks).
func (c *Calendar) Reserve(d Date, taskID string, hours float64) {
	st := c.day(d)
	st.consumed += hours
	st.committed += hours
	st.ids = append(st.ids, taskID)
}

func (c *Calendar) day(d Date) *dayState {
	st, ok := c.days[d]
	if !ok {
		st = &dayState{}
		c.days[d] = st
	}
	return st
}

// Load returns the view of one day.
func (c *Calendar) Load(d Date) DayLoad {
	l := DayLoad{Date: d, Available: c.AvailableHours(d), Usable: c.Usable(d)}
	if st, ok := c.days[d]; ok {
		l.Consumed = st.consumed
		l.Committed = st.committed
		l.TaskIDs = append([]string(nil), st.ids...)
		l.Degraded = st.degraded
	}
	return l
}

// Loads returns one view per day in [from, to).
func (c *Calendar) Loads(from, to Date) []DayLoad {
	if to <= from {
		return nil
	}
	out := make([]DayLoad, 0, to.Sub(from))
	for d := from; d < to; d++ {
		out = append(out, c.Load(d))
	}
	return out
}

// Dates lists every day that holds bookings, ascending.
func (c *Calendar) Dates() []Date {
	out := make([]Date, 0, len(c.days))
	for d := range c.days {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
