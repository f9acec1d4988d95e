package plan

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Criticality is the three-level priority tier of a task.
type Criticality int

const (
	Critical  Criticality = 1
	Important Criticality = 2
	Flexible  Criticality = 3
)

func (c Criticality) Valid() bool { return c >= Critical && c <= Flexible }

func (c Criticality) String() string {
	switch c {
	case Critical:
		return "critical"
	case Important:
		return "important"
	case Flexible:
		return "flexible"
	default:
		return fmt.Sprintf("criticality(%d)", int(c))
	}
}

// ParseCriticality accepts a tier name or its number.
func ParseCriticality(s string) (Criticality, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "1":
		return Critical, true
	case "important", "2":
		return Important, true
	case "flexible", "3", "":
		return Flexible, true
	default:
		return Flexible, false
	}
}

// TaskRecord is one extracted backlog item.
//
// Classification flags are decided upstream by the record source:
//   - Sequential + Seq mark a chain member inside Group
//   - AutoDated marks a Due that an earlier run wrote (not a user commitment)
//   - Reschedule asks for an auto-dated task to be placed again
type TaskRecord struct {
	// ID must be stable enough for the caller to re-locate the item,
	// typically "<source path>#<raw excerpt or line>".
	ID   string
	Text string

	// Duration is the estimate in hours.
	Duration    float64
	Criticality Criticality
	Due         Date
	Tags        []string

	Project string
	Group   string
	Seq     int

	Sequential bool
	AutoDated  bool
	Reschedule bool
}

// HasFixedDate reports whether the record carries a user-set date that the
// engine must never move.
func (r TaskRecord) HasFixedDate() bool { return r.Due.Valid() && !r.AutoDated }

func (r TaskRecord) IsChainMember() bool { return r.Sequential && r.Seq > 0 }

// GroupKey returns the container a chain member belongs to.
func (r TaskRecord) GroupKey() string {
	if g := strings.TrimSpace(r.Group); g != "" {
		return g
	}
	if p := strings.TrimSpace(r.Project); p != "" {
		return p
	}
	src, _, _ := strings.Cut(r.ID, "#")
	return src
}

// normalize applies defaults to malformed fields and reports what it fixed.
func (r TaskRecord) normalize(cfg Config) (TaskRecord, []string) {
	var warns []string
	if r.Duration <= 0 || math.IsNaN(r.Duration) || math.IsInf(r.Duration, 0) {
		if r.Duration != 0 {
			warns = append(warns, fmt.Sprintf("%s: invalid duration %v, using %v", r.ID, r.Duration, cfg.DefaultDuration))
		}
		r.Duration = cfg.DefaultDuration
	}
	if !r.Criticality.Valid() {
		if r.Criticality != 0 {
			warns = append(warns, fmt.Sprintf("%s: invalid criticality %d, using flexible", r.ID, int(r.Criticality)))
		}
		r.Criticality = Flexible
	}
	if !r.Due.IsZero() && !r.Due.Valid() {
		warns = append(warns, fmt.Sprintf("%s: due date out of range, ignored", r.ID))
		r.Due = 0
	}
	if r.Sequential && r.Seq <= 0 {
		warns = append(warns, fmt.Sprintf("%s: sequential task without a positive index, scheduled independently", r.ID))
		r.Sequential = false
	}
	return r, warns
}

// Class is the scheduling path a record takes.
type Class int

const (
	// ClassFree records are placed by the PriorityScheduler.
	ClassFree Class = iota
	// ClassSequential records are placed by the SequenceScheduler.
	ClassSequential
	// ClassFixed records carry a user date and are only reserved on the calendar.
	ClassFixed
	// ClassSettled records were auto-dated by an earlier run and not flagged
	// for rescheduling; their date is kept.
	ClassSettled
)

func (c Class) String() string {
	switch c {
	case ClassFree:
		return "free"
	case ClassSequential:
		return "sequential"
	case ClassFixed:
		return "fixed"
	case ClassSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Classify decides the scheduling path of a normalized record.
func Classify(r TaskRecord) Class {
	switch {
	case r.IsChainMember():
		return ClassSequential
	case r.HasFixedDate():
		return ClassFixed
	case !r.Due.Valid():
		return ClassFree
	case r.Reschedule:
		return ClassFree
	default:
		return ClassSettled
	}
}

// Member is one slot in a SequenceGroup. Scheduled is the only field the
// scheduler writes.
type Member struct {
	Record    TaskRecord
	Scheduled Date
}

// SequenceGroup is an ordered chain of records sharing one container.
type SequenceGroup struct {
	ID      string
	Members []*Member
	// Dropped holds members cut by the group size cap, in chain order.
	Dropped []TaskRecord
}

// NewSequenceGroup stable-sorts records by Seq (discovery order breaks ties)
// and truncates the chain to maxSize members.
func NewSequenceGroup(id string, records []TaskRecord, maxSize int) *SequenceGroup {
	sorted := append([]TaskRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	g := &SequenceGroup{ID: id}
	for i, r := range sorted {
		if maxSize > 0 && i >= maxSize {
			g.Dropped = append(g.Dropped, r)
			continue
		}
		g.Members = append(g.Members, &Member{Record: r})
	}
	return g
}

// TotalDuration sums member durations.
func (g *SequenceGroup) TotalDuration() float64 {
	return g.durationBefore(len(g.Members))
}

func (g *SequenceGroup) durationBefore(idx int) float64 {
	var sum float64
	for i := 0; i < idx && i < len(g.Members); i++ {
		sum += g.Members[i].Record.Duration
	}
	return sum
}

// earliestFixed returns the index of the member with the earliest fixed date,
// or -1.
func (g *SequenceGroup) earliestFixed() int {
	idx := -1
	for i, m := range g.Members {
		if !m.Record.HasFixedDate() {
			continue
		}
		if idx < 0 || m.Record.Due.Before(g.Members[idx].Record.Due) {
			idx = i
		}
	}
	return idx
}

// Project returns the first non-empty project among members.
func (g *SequenceGroup) Project() string {
	for _, m := range g.Members {
		if p := strings.TrimSpace(m.Record.Project); p != "" {
			return p
		}
	}
	return ""
}
