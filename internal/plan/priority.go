package plan

import (
	"context"
	"fmt"
	"sort"

	logx "taskplan/pkg/logx"
)

// ProjectLookup resolves the deadline of an enclosing project. ok is false
// when the project has none.
type ProjectLookup interface {
	ProjectDeadline(ctx context.Context, project string) (deadline Date, ok bool, err error)
}

// ProjectLookupFunc adapts a function to ProjectLookup.
type ProjectLookupFunc func(ctx context.Context, project string) (Date, bool, error)

func (f ProjectLookupFunc) ProjectDeadline(ctx context.Context, project string) (Date, bool, error) {
	return f(ctx, project)
}

// Deadlines is an in-memory ProjectLookup.
type Deadlines map[string]Date

func (m Deadlines) ProjectDeadline(_ context.Context, project string) (Date, bool, error) {
	d, ok := m[project]
	return d, ok && d.Valid(), nil
}

// PriorityTask is a free task together with its resolved project deadline.
type PriorityTask struct {
	Record   TaskRecord
	Deadline Date
}

// SortPriority orders tasks by criticality, then project deadline (dated
// first, earliest first), then longer duration first. The sort is stable.
func SortPriority(tasks []PriorityTask) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Record.Criticality != b.Record.Criticality {
			return a.Record.Criticality < b.Record.Criticality
		}
		ad, bd := a.Deadline.Valid(), b.Deadline.Valid()
		if ad != bd {
			return ad
		}
		if ad && a.Deadline != b.Deadline {
			return a.Deadline < b.Deadline
		}
		return a.Record.Duration > b.Record.Duration
	})
}

// PriorityScheduler places independent tasks on the best-scoring day of a
// bounded horizon.
type PriorityScheduler struct {
	cfg     Config
	cal     *Calendar
	backoff Backoff
	log     logx.Logger
}

func NewPriorityScheduler(cfg Config, cal *Calendar, log logx.Logger) *PriorityScheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &PriorityScheduler{cfg: cfg, cal: cal, backoff: NewBackoff(cal, cfg), log: log}
}

// Horizon returns the scan window for a task as offsets from today:
// [0, horizon), with start marking the preferred sub-window [start, horizon)
// from the three-zone policy. start is 0 when the preferred start falls past
// the horizon. horizon is always within [1, MaxHorizonDays].
func (s *PriorityScheduler) Horizon(today, deadline Date, hours float64) (start, horizon int) {
	if !deadline.Valid() {
		return 0, clampInt(s.cfg.DefaultHorizonDays, 1, s.cfg.MaxHorizonDays)
	}
	horizon = clampInt(deadline.Sub(today), 1, s.cfg.MaxHorizonDays)
	w := s.backoff.Window(today, deadline, hours)
	start = w.Start.Sub(today)
	if start < 0 || start >= horizon {
		start = 0
	}
	return start, horizon
}

// BestDate returns the highest scoring day that can take the task. The
// preferred sub-window is scanned first; when nothing fits there the days
// before it are tried, so a task never falls back past a free day inside its
// horizon. Ties keep the earliest day. ok is false when no day fits.
func (s *PriorityScheduler) BestDate(rec TaskRecord, today, deadline Date) (best Date, oversized, ok bool) {
	start, horizon := s.Horizon(today, deadline, rec.Duration)
	best, oversized, ok = s.scan(rec, today, start, horizon, horizon)
	if !ok && start > 0 {
		best, oversized, ok = s.scan(rec, today, 0, start, horizon)
	}
	return best, oversized, ok
}

// scan scores offsets [from, to). horizon is the closeness denominator.
func (s *PriorityScheduler) scan(rec TaskRecord, today Date, from, to, horizon int) (best Date, oversized, ok bool) {
	bestScore := 0.0
	for off := from; off < to; off++ {
		d := today.AddDays(off)
		if !s.cal.IsAvailable(d) || s.cal.Remaining(d) <= epsilon {
			continue
		}
		fits, over := s.cal.Fits(d, rec.Duration)
		if !fits {
			continue
		}
		score := s.cfg.Score(off, horizon, s.cal.Remaining(d), s.cal.AvailableHours(d), rec.Criticality)
		if !ok || score > bestScore {
			best, bestScore, oversized, ok = d, score, over, true
		}
	}
	return best, oversized, ok
}

// Schedule orders tasks, places each one and records the outcome in res.
// Tasks past the budget are deferred, never dropped.
func (s *PriorityScheduler) Schedule(tasks []PriorityTask, today Date, budget *Budget, res *Result) {
	ordered := append([]PriorityTask(nil), tasks...)
	SortPriority(ordered)

	for i, t := range ordered {
		if !budget.TakeIteration() {
			s.deferRest(ordered[i:], DeferIterationCeiling, res)
			return
		}
		if !budget.TakeUpdate() {
			s.deferRest(ordered[i:], DeferUpdateCeiling, res)
			return
		}

		var p Placement
		err := guard(func() error {
			p = s.place(t, today)
			return nil
		})
		if err != nil {
			s.log.Error("priority task failed", logx.String("task", t.Record.ID), logx.Err(err), stackField(err))
			res.deferTask(t.Record, DeferFailed, err)
			continue
		}
		res.place(p)
	}
}

func (s *PriorityScheduler) place(t PriorityTask, today Date) Placement {
	rec := t.Record
	d, oversized, ok := s.BestDate(rec, today, t.Deadline)
	if !ok {
		d = today.AddDays(s.cfg.FallbackOffsetDays)
		s.log.Warn("no capacity in horizon; fallback placement",
			logx.String("task", rec.ID),
			logx.String("date", d.String()),
		)
		s.cal.Place(d, rec.ID, rec.Duration, true)
		return Placement{Record: rec, Date: d, Source: SourcePriority, Degraded: true, Reason: DegradeNoCapacity}
	}
	s.cal.Place(d, rec.ID, rec.Duration, oversized)
	p := Placement{Record: rec, Date: d, Source: SourcePriority, Degraded: oversized}
	if oversized {
		p.Reason = DegradeOversized
	}
	return p
}

func (s *PriorityScheduler) deferRest(rest []PriorityTask, reason DeferReason, res *Result) {
	s.log.Warn("scheduling ceiling reached; deferring remaining tasks",
		logx.String("reason", string(reason)),
		logx.Int("deferred", len(rest)),
	)
	for _, t := range rest {
		res.deferTask(t.Record, reason, nil)
	}
	res.warn(fmt.Sprintf("%d task(s) deferred: %s", len(rest), reason))
}
