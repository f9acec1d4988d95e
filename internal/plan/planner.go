package plan

import (
	"context"
	"fmt"
	"strings"

	logx "taskplan/pkg/logx"
)

// Planner runs the scheduling engine. A Planner holds no per-run state; each
// Plan call builds its own calendar and budget.
type Planner struct {
	cfg    Config
	log    logx.Logger
	lookup ProjectLookup
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the logger used for scheduling decisions.
func WithLogger(log logx.Logger) Option {
	return func(p *Planner) { p.log = log }
}

// WithProjectLookup sets the collaborator that resolves project deadlines.
func WithProjectLookup(l ProjectLookup) Option {
	return func(p *Planner) { p.lookup = l }
}

// New validates cfg and returns a Planner.
func New(cfg Config, opts ...Option) (*Planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Planner{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	if p.log.IsZero() {
		p.log = logx.Nop()
	}
	return p, nil
}

func (p *Planner) Config() Config { return p.cfg }

// Plan schedules records as of today. Data problems never fail the run; they
// show up as warnings, deferrals or degraded placements in the Result.
func (p *Planner) Plan(ctx context.Context, today Date, records []TaskRecord) (*Result, error) {
	if !today.Valid() {
		return nil, fmt.Errorf("plan: invalid today %q", today.String())
	}

	res := &Result{Today: today}
	cal := NewCalendar(p.cfg)
	budget := NewBudget(p.cfg.MaxPlacements, p.cfg.MaxUpdatesPerRun)
	horizonEnd := today.AddDays(p.cfg.MaxPlanningDays)

	groups := map[string][]TaskRecord{}
	var groupOrder []string
	var free []TaskRecord
	for _, raw := range records {
		rec, warns := raw.normalize(p.cfg)
		for _, w := range warns {
			res.warn(w)
		}
		switch Classify(rec) {
		case ClassSequential:
			key := rec.GroupKey()
			if _, ok := groups[key]; !ok {
				groupOrder = append(groupOrder, key)
			}
			groups[key] = append(groups[key], rec)
		case ClassFixed, ClassSettled:
			res.Kept = append(res.Kept, rec)
			if !rec.Due.Before(today) && rec.Due.Before(horizonEnd) {
				cal.Reserve(rec.Due, rec.ID, rec.Duration)
			}
		default:
			free = append(free, rec)
		}
	}

	// Fixed chain members are commitments too.
	for _, key := range groupOrder {
		for _, rec := range groups[key] {
			if rec.HasFixedDate() && !rec.Due.Before(today) && rec.Due.Before(horizonEnd) {
				cal.Reserve(rec.Due, rec.ID, rec.Duration)
			}
		}
	}

	p.log.Info("plan start",
		logx.String("today", today.String()),
		logx.Int("records", len(records)),
		logx.Int("groups", len(groupOrder)),
		logx.Int("free", len(free)),
		logx.Int("kept", len(res.Kept)),
	)

	seq := NewSequenceScheduler(p.cfg, cal, p.log)
	for _, key := range groupOrder {
		g := NewSequenceGroup(key, groups[key], p.cfg.MaxGroupSize)
		if len(g.Dropped) > 0 {
			res.warn(fmt.Sprintf("group %s: %d member(s) over the cap of %d dropped", key, len(g.Dropped), p.cfg.MaxGroupSize))
		}
		deadline := p.deadline(ctx, g.Project(), res)
		seq.Schedule(g, today, deadline, budget, res)
	}

	tasks := make([]PriorityTask, 0, len(free))
	for _, rec := range free {
		tasks = append(tasks, PriorityTask{Record: rec, Deadline: p.deadline(ctx, rec.Project, res)})
	}
	NewPriorityScheduler(p.cfg, cal, p.log).Schedule(tasks, today, budget, res)

	end := today.AddDays(p.cfg.MaxHorizonDays)
	for _, pl := range res.Placements {
		if !pl.Date.Before(end) {
			end = pl.Date.AddDays(1)
		}
	}
	res.Load = cal.Loads(today, end)

	sum := res.Summary()
	p.log.Info("plan done",
		logx.Int("placed", sum.Placed),
		logx.Int("sequential", sum.Sequential),
		logx.Int("priority", sum.Priority),
		logx.Int("degraded", sum.Degraded),
		logx.Int("deferred", sum.Deferred),
		logx.Int("skipped_groups", sum.Skipped),
	)
	return res, nil
}

// deadline resolves a project deadline. Lookup failures mean "no deadline".
func (p *Planner) deadline(ctx context.Context, project string, res *Result) Date {
	project = strings.TrimSpace(project)
	if project == "" || p.lookup == nil {
		return 0
	}
	var (
		d   Date
		ok  bool
		err error
	)
	if gerr := guard(func() error {
		d, ok, err = p.lookup.ProjectDeadline(ctx, project)
		return nil
	}); gerr != nil {
		err = gerr
	}
	if err != nil {
		p.log.Warn("project deadline lookup failed", logx.String("project", project), logx.Err(err))
		res.warn(fmt.Sprintf("project %s: deadline unavailable: %v", project, err))
		return 0
	}
	if !ok || !d.Valid() {
		return 0
	}
	return d
}
