package plan

import (
	"math"
	"testing"
	"time"

	logx "taskplan/pkg/logx"
)

var nilLogger = logx.Nop()

func newPriority(cfg Config) (*PriorityScheduler, *Budget) {
	return NewPriorityScheduler(cfg, NewCalendar(cfg), nilLogger), NewBudget(cfg.MaxPlacements, cfg.MaxUpdatesPerRun)
}

func TestSortPriority(t *testing.T) {
	t.Parallel()
	tasks := []PriorityTask{
		{Record: TaskRecord{ID: "flexible", Criticality: Flexible, Duration: 1}},
		{Record: TaskRecord{ID: "critical-undated", Criticality: Critical, Duration: 1}},
		{Record: TaskRecord{ID: "critical-late", Criticality: Critical, Duration: 1}, Deadline: MustParseDate("2026-10-30")},
		{Record: TaskRecord{ID: "critical-soon-short", Criticality: Critical, Duration: 1}, Deadline: MustParseDate("2026-10-20")},
		{Record: TaskRecord{ID: "critical-soon-long", Criticality: Critical, Duration: 3}, Deadline: MustParseDate("2026-10-20")},
		{Record: TaskRecord{ID: "important", Criticality: Important, Duration: 1}},
	}
	SortPriority(tasks)

	want := []string{"critical-soon-long", "critical-soon-short", "critical-late", "critical-undated", "important", "flexible"}
	for i, id := range want {
		if tasks[i].Record.ID != id {
			t.Fatalf("position %d = %s, want %s", i, tasks[i].Record.ID, id)
		}
	}
}

func TestScore(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	tests := []struct {
		name      string
		offset    int
		horizon   int
		remaining float64
		tier      Criticality
		want      float64
	}{
		{name: "today empty critical", offset: 0, horizon: 10, remaining: 4.8, tier: Critical, want: 34},
		{name: "midway half full flexible", offset: 5, horizon: 10, remaining: 2.4, tier: Flexible, want: 9},
		{name: "zero horizon treated as one", offset: 0, horizon: 0, remaining: 0, tier: Important, want: 10},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := cfg.Score(tt.offset, tt.horizon, tt.remaining, 6, tt.tier)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("Score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHorizon(t *testing.T) {
	t.Parallel()
	s, _ := newPriority(DefaultConfig())
	tests := []struct {
		name     string
		deadline Date
		start    int
		horizon  int
	}{
		{name: "no deadline", deadline: 0, start: 0, horizon: 30},
		{name: "near deadline", deadline: MustParseDate("2026-10-16"), start: 2, horizon: 4},
		{name: "past deadline", deadline: MustParseDate("2026-10-10"), start: 0, horizon: 1},
		{name: "far deadline scans whole horizon", deadline: MustParseDate("2026-12-31"), start: 0, horizon: 30},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			start, horizon := s.Horizon(monday, tt.deadline, 1)
			if start != tt.start || horizon != tt.horizon {
				t.Fatalf("Horizon = (%d, %d), want (%d, %d)", start, horizon, tt.start, tt.horizon)
			}
		})
	}
}

func TestPriorityPlacesOnEarliestFittingDay(t *testing.T) {
	t.Parallel()
	s, budget := newPriority(DefaultConfig())
	res := &Result{}
	s.Schedule([]PriorityTask{
		{Record: TaskRecord{ID: "big", Duration: 4, Criticality: Flexible}},
		{Record: TaskRecord{ID: "next", Duration: 4, Criticality: Flexible}},
		{Record: TaskRecord{ID: "dated", Duration: 1, Criticality: Flexible}, Deadline: MustParseDate("2026-10-16")},
	}, monday, budget, res)

	if d, _ := res.DateOf("big"); d != monday {
		t.Fatalf("big = %s, want %s", d, monday)
	}
	if d, _ := res.DateOf("next"); d != monday.AddDays(1) {
		t.Fatalf("next = %s, want %s", d, monday.AddDays(1))
	}
	// The deadline window starts on Wednesday.
	if d, _ := res.DateOf("dated"); d.String() != "2026-10-14" {
		t.Fatalf("dated = %s, want 2026-10-14", d)
	}
	if len(res.Degraded()) != 0 {
		t.Fatalf("degraded = %+v", res.Degraded())
	}
}

func TestPriorityFarDeadlineUsesWholeHorizon(t *testing.T) {
	t.Parallel()
	s, budget := newPriority(DefaultConfig())
	friday := MustParseDate("2026-10-16")
	res := &Result{}
	s.Schedule([]PriorityTask{
		{Record: TaskRecord{ID: "far", Duration: 1, Criticality: Flexible}, Deadline: friday.AddDays(60)},
	}, friday, budget, res)

	p := res.Placements[0]
	if p.Date != friday || p.Degraded {
		t.Fatalf("placement = %s degraded=%v (%s), want %s not degraded", p.Date, p.Degraded, p.Reason, friday)
	}
}

func TestPriorityNearDeadlineRescansEarlierDays(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cal := NewCalendar(cfg)
	// Wednesday and Thursday, the preferred days, are fully committed.
	cal.Reserve(monday.AddDays(2), "wed", 4.8)
	cal.Reserve(monday.AddDays(3), "thu", 4.8)
	s := NewPriorityScheduler(cfg, cal, nilLogger)
	deadline := MustParseDate("2026-10-16")

	if start, horizon := s.Horizon(monday, deadline, 1); start != 2 || horizon != 4 {
		t.Fatalf("Horizon = (%d, %d), want (2, 4)", start, horizon)
	}
	res := &Result{}
	s.Schedule([]PriorityTask{
		{Record: TaskRecord{ID: "urgent", Duration: 1, Criticality: Critical}, Deadline: deadline},
	}, monday, NewBudget(cfg.MaxPlacements, cfg.MaxUpdatesPerRun), res)

	p := res.Placements[0]
	if p.Date != monday || p.Degraded {
		t.Fatalf("placement = %s degraded=%v (%s), want %s not degraded", p.Date, p.Degraded, p.Reason, monday)
	}
	if !p.Date.Before(deadline) {
		t.Fatalf("placement %s not before deadline %s", p.Date, deadline)
	}
}

func TestPriorityOversizedTaskTakesEmptyDay(t *testing.T) {
	t.Parallel()
	s, budget := newPriority(DefaultConfig())
	res := &Result{}
	s.Schedule([]PriorityTask{{Record: TaskRecord{ID: "six", Duration: 6, Criticality: Critical}}}, monday, budget, res)

	p := res.Placements[0]
	if p.Date != monday {
		t.Fatalf("date = %s, want %s", p.Date, monday)
	}
	if !p.Degraded || p.Reason != DegradeOversized {
		t.Fatalf("placement = %+v, want degraded oversized", p)
	}
}

func TestPriorityBacklogRespectsCapacity(t *testing.T) {
	t.Parallel()
	for _, hours := range []float64{4, 6} {
		hours := hours
		t.Run(time.Duration(hours*float64(time.Hour)).String(), func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			cal := NewCalendar(cfg)
			s := NewPriorityScheduler(cfg, cal, nilLogger)
			var tasks []PriorityTask
			for i := 0; i < 25; i++ {
				tasks = append(tasks, PriorityTask{Record: TaskRecord{ID: string(rune('A' + i)), Duration: hours, Criticality: Flexible}})
			}
			res := &Result{}
			s.Schedule(tasks, monday, NewBudget(cfg.MaxPlacements, cfg.MaxUpdatesPerRun), res)

			if len(res.Placements) != 25 {
				t.Fatalf("placements = %d, want 25", len(res.Placements))
			}
			// 22 weekdays fall inside the 30-day horizon; the rest fall back.
			fallbacks := 0
			for _, p := range res.Placements {
				if p.Reason == DegradeNoCapacity {
					fallbacks++
				}
				if wd := p.Date.Weekday(); wd == time.Saturday || wd == time.Sunday {
					t.Fatalf("%s placed on weekend %s", p.Record.ID, p.Date)
				}
			}
			if fallbacks != 3 {
				t.Fatalf("fallbacks = %d, want 3", fallbacks)
			}
			for _, d := range cal.Dates() {
				l := cal.Load(d)
				if !l.Degraded && l.Over() {
					t.Fatalf("day %s over capacity without degradation: %+v", d, l)
				}
			}
		})
	}
}

func TestPriorityCeilingsDefer(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		iterations int
		updates    int
		placed     int
		reason     DeferReason
	}{
		{name: "iterations", iterations: 3, updates: 50, placed: 3, reason: DeferIterationCeiling},
		{name: "updates", iterations: 500, updates: 2, placed: 2, reason: DeferUpdateCeiling},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, _ := newPriority(DefaultConfig())
			var tasks []PriorityTask
			for i := 0; i < 5; i++ {
				tasks = append(tasks, PriorityTask{Record: TaskRecord{ID: string(rune('a' + i)), Duration: 1, Criticality: Flexible}})
			}
			res := &Result{}
			s.Schedule(tasks, monday, NewBudget(tt.iterations, tt.updates), res)

			if len(res.Placements) != tt.placed {
				t.Fatalf("placements = %d, want %d", len(res.Placements), tt.placed)
			}
			if len(res.Deferred) != 5-tt.placed {
				t.Fatalf("deferred = %d, want %d", len(res.Deferred), 5-tt.placed)
			}
			for _, d := range res.Deferred {
				if d.Reason != tt.reason {
					t.Fatalf("reason = %s, want %s", d.Reason, tt.reason)
				}
			}
			if len(res.Warnings) != 1 {
				t.Fatalf("warnings = %v, want one", res.Warnings)
			}
		})
	}
}
