package plan

import logx "taskplan/pkg/logx"

// SequenceScheduler places the members of one chain in order, one day apart
// at least, starting from an anchor derived from fixed dates or the project
// deadline.
type SequenceScheduler struct {
	cfg     Config
	cal     *Calendar
	backoff Backoff
	log     logx.Logger
}

func NewSequenceScheduler(cfg Config, cal *Calendar, log logx.Logger) *SequenceScheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SequenceScheduler{cfg: cfg, cal: cal, backoff: NewBackoff(cal, cfg), log: log}
}

// Anchor returns the date the walk over g starts from.
func (s *SequenceScheduler) Anchor(g *SequenceGroup, today, deadline Date) Date {
	if idx := g.earliestFixed(); idx >= 0 {
		return s.backoff.LatestStart(today, g.Members[idx].Record.Due, g.durationBefore(idx))
	}
	if deadline.Valid() {
		w := s.backoff.Window(today, deadline, g.TotalDuration())
		if w.Zone == ZoneBehind {
			s.log.Warn("sequence group behind schedule",
				logx.String("group", g.ID),
				logx.String("deadline", deadline.String()),
				logx.Int("days_needed", w.DaysNeeded),
				logx.Int("usable_days", w.UsableDays),
			)
		}
		return w.Start
	}
	return today
}

// Schedule places every non-fixed member of g and records the outcome in res.
// deadline is the enclosing project's deadline, or zero.
func (s *SequenceScheduler) Schedule(g *SequenceGroup, today, deadline Date, budget *Budget, res *Result) {
	if g == nil {
		return
	}
	for _, r := range g.Dropped {
		res.deferTask(r, DeferGroupOverflow, nil)
	}
	if len(g.Members) == 0 {
		res.Skipped = append(res.Skipped, SkippedGroup{ID: g.ID, Reason: "empty"})
		return
	}

	anchor := s.Anchor(g, today, deadline)
	log := s.log.With(logx.String("group", g.ID))
	log.Debug("sequence group start",
		logx.Int("members", len(g.Members)),
		logx.Int("dropped", len(g.Dropped)),
		logx.String("anchor", anchor.String()),
		logx.String("deadline", deadline.String()),
	)

	cursor := anchor
	var stop DeferReason
	for i, m := range g.Members {
		if m.Record.HasFixedDate() {
			cursor = maxDate(maxDate(cursor, m.Record.Due.AddDays(1)), today)
			res.Kept = append(res.Kept, m.Record)
			continue
		}
		// Fixed members cost nothing; every other member is one attempt and
		// one update, same as a priority task.
		if stop == "" && !budget.TakeIteration() {
			stop = DeferIterationCeiling
		}
		if stop == "" && !budget.TakeUpdate() {
			stop = DeferUpdateCeiling
		}
		if stop != "" {
			res.deferTask(m.Record, stop, nil)
			continue
		}

		var p Placement
		err := guard(func() error {
			p = s.placeMember(m, i, cursor, today)
			return nil
		})
		if err != nil {
			log.Error("sequence member failed", logx.String("task", m.Record.ID), logx.Err(err), stackField(err))
			res.deferTask(m.Record, DeferFailed, err)
			continue
		}
		p.Group = g.ID
		m.Scheduled = p.Date
		res.place(p)
		cursor = p.Date.AddDays(1)
	}
}

func (s *SequenceScheduler) placeMember(m *Member, index int, cursor, today Date) Placement {
	rec := m.Record
	d := cursor
	probes := 0
	for {
		ok, oversized := s.cal.Fits(d, rec.Duration)
		if ok {
			reason := DegradeNone
			if oversized {
				reason = DegradeOversized
			}
			s.cal.Place(d, rec.ID, rec.Duration, oversized)
			return Placement{Record: rec, Date: d, Source: SourceSequence, Degraded: oversized, Reason: reason}
		}
		probes++
		if probes > s.cfg.MaxSearchIterations {
			break
		}
		d = d.AddDays(1)
	}

	fallback := today.AddDays(s.cfg.FallbackOffsetDays + s.cfg.FallbackStrideDays*index)
	fallback = maxDate(fallback, cursor)
	s.log.Warn("sequence search exhausted; emergency placement",
		logx.String("task", rec.ID),
		logx.Int("probes", probes),
		logx.String("date", fallback.String()),
	)
	s.cal.Place(fallback, rec.ID, rec.Duration, true)
	return Placement{Record: rec, Date: fallback, Source: SourceSequence, Degraded: true, Reason: DegradeSearchExhausted}
}
