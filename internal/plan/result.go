package plan

import "sort"

// Source names the scheduler that produced a placement.
type Source int

const (
	SourceSequence Source = iota + 1
	SourcePriority
)

func (s Source) String() string {
	switch s {
	case SourceSequence:
		return "sequence"
	case SourcePriority:
		return "priority"
	default:
		return "unknown"
	}
}

// DegradeReason explains why a placement ignored the capacity ceiling.
type DegradeReason string

const (
	DegradeNone            DegradeReason = ""
	DegradeSearchExhausted DegradeReason = "search_exhausted"
	DegradeNoCapacity      DegradeReason = "no_capacity"
	DegradeOversized       DegradeReason = "oversized"
)

// DeferReason explains why a task got no date in this run.
type DeferReason string

const (
	DeferIterationCeiling DeferReason = "iteration_ceiling"
	DeferUpdateCeiling    DeferReason = "update_ceiling"
	DeferGroupOverflow    DeferReason = "group_overflow"
	DeferFailed           DeferReason = "failed"
)

// Placement is one date assignment the caller should persist.
type Placement struct {
	Record   TaskRecord
	Date     Date
	Source   Source
	Group    string
	Degraded bool
	Reason   DegradeReason
}

// Deferral is a task left without a date, with the reason.
type Deferral struct {
	Record TaskRecord
	Reason DeferReason
	Err    string
}

// SkippedGroup records a sequence group that was not scheduled at all.
type SkippedGroup struct {
	ID     string
	Reason string
}

// Result is the outcome of one Planner.Plan call. Placements are in
// scheduling order: sequence groups first, then priority tasks.
type Result struct {
	Today      Date
	Placements []Placement
	Deferred   []Deferral
	Skipped    []SkippedGroup
	// Kept lists records whose date the engine honoured without moving.
	Kept     []TaskRecord
	Warnings []string
	Load     []DayLoad
}

func (r *Result) place(p Placement) { r.Placements = append(r.Placements, p) }

func (r *Result) deferTask(rec TaskRecord, reason DeferReason, err error) {
	d := Deferral{Record: rec, Reason: reason}
	if err != nil {
		d.Err = err.Error()
	}
	r.Deferred = append(r.Deferred, d)
}

func (r *Result) warn(msg string) { r.Warnings = append(r.Warnings, msg) }

// DateOf returns the date assigned to the record with the given ID.
func (r *Result) DateOf(id string) (Date, bool) {
	for _, p := range r.Placements {
		if p.Record.ID == id {
			return p.Date, true
		}
	}
	return 0, false
}

// Degraded returns placements made by a fallback path.
func (r *Result) Degraded() []Placement {
	var out []Placement
	for _, p := range r.Placements {
		if p.Degraded {
			out = append(out, p)
		}
	}
	return out
}

// ByDate returns placements sorted by date, keeping scheduling order within
// a day.
func (r *Result) ByDate() []Placement {
	out := append([]Placement(nil), r.Placements...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Summary holds the headline counters of a run.
type Summary struct {
	Placed     int
	Sequential int
	Priority   int
	Degraded   int
	Deferred   int
	Skipped    int
	Kept       int
}

func (r *Result) Summary() Summary {
	s := Summary{
		Placed:   len(r.Placements),
		Deferred: len(r.Deferred),
		Skipped:  len(r.Skipped),
		Kept:     len(r.Kept),
	}
	for _, p := range r.Placements {
		switch p.Source {
		case SourceSequence:
			s.Sequential++
		case SourcePriority:
			s.Priority++
		}
		if p.Degraded {
			s.Degraded++
		}
	}
	return s
}
