package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskplan/internal/plan"
)

// TagFlags is the classification carried by a task's tags.
type TagFlags struct {
	Criticality plan.Criticality
	Sequential  bool
	AutoDated   bool
	Reschedule  bool
	// Estimate comes from a "time:<duration>" tag.
	Estimate string
}

// ClassifyTags reads classification from tags. A leading '#' is ignored and
// matching is case-insensitive. critical wins over important.
func ClassifyTags(tags []string) TagFlags {
	var f TagFlags
	for _, raw := range tags {
		tag := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "#"))
		if name, val, ok := strings.Cut(tag, ":"); ok && name == "time" {
			f.Estimate = strings.TrimSpace(val)
			continue
		}
		switch tag {
		case "critical":
			f.Criticality = plan.Critical
		case "important":
			if f.Criticality != plan.Critical {
				f.Criticality = plan.Important
			}
		case "seq", "sequential":
			f.Sequential = true
		case "autodate", "autodated":
			f.AutoDated = true
		case "reschedule":
			f.Reschedule = true
		}
	}
	return f
}

// ParseEstimate converts an estimate to hours. It accepts Go durations
// ("90m", "1h30m", "1.5h") and bare numbers of hours ("2").
func ParseEstimate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if h, err := strconv.ParseFloat(s, 64); err == nil {
		if h < 0 {
			return 0, fmt.Errorf("negative estimate %q", s)
		}
		return h, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid estimate %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative estimate %q", s)
	}
	return d.Hours(), nil
}

// seqPrefix reads a "[N] " chain index from the start of text.
func seqPrefix(text string) (int, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "[") {
		return 0, false
	}
	end := strings.IndexByte(text, ']')
	if end < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(text[1:end])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// taskID returns the stored ID, or a positional one for documents that do
// not carry IDs.
func taskID(t Task, source string, index int) string {
	if id := strings.TrimSpace(t.ID); id != "" {
		return id
	}
	return fmt.Sprintf("%s#%d", source, index+1)
}

// toRecord converts a stored task into an engine record. Problems with
// individual fields are returned as warnings; the record is still usable.
func toRecord(t Task, id string) (plan.TaskRecord, []string) {
	var warns []string
	flags := ClassifyTags(t.Tags)

	rec := plan.TaskRecord{
		ID:          id,
		Text:        t.Text,
		Criticality: flags.Criticality,
		Tags:        append([]string(nil), t.Tags...),
		Project:     strings.TrimSpace(t.Project),
		Group:       strings.TrimSpace(t.Group),
		Seq:         t.Seq,
		Sequential:  t.Sequential || flags.Sequential,
		AutoDated:   t.AutoDated || flags.AutoDated,
		Reschedule:  t.Reschedule || flags.Reschedule,
	}

	if s := strings.TrimSpace(t.Criticality); s != "" {
		c, ok := plan.ParseCriticality(s)
		if !ok {
			warns = append(warns, fmt.Sprintf("%s: unknown criticality %q", id, s))
		}
		rec.Criticality = c
	}

	rec.Duration = t.Hours
	if rec.Duration == 0 {
		est := t.Estimate
		if strings.TrimSpace(est) == "" {
			est = flags.Estimate
		}
		h, err := ParseEstimate(est)
		if err != nil {
			warns = append(warns, fmt.Sprintf("%s: %v", id, err))
		}
		rec.Duration = h
	}

	if s := strings.TrimSpace(t.Due); s != "" {
		d, err := plan.ParseDate(s)
		if err != nil {
			warns = append(warns, fmt.Sprintf("%s: %v", id, err))
		}
		rec.Due = d
	}

	if rec.Sequential && rec.Seq == 0 {
		if n, ok := seqPrefix(t.Text); ok {
			rec.Seq = n
		}
	}
	return rec, warns
}

// markPlaced records a placement on the stored task: the new date, the
// auto-dated marker, and a cleared reschedule request.
func markPlaced(t *Task, d plan.Date) {
	t.Due = d.String()
	t.AutoDated = true
	t.Reschedule = false
	if len(t.Tags) == 0 {
		return
	}
	kept := make([]string, 0, len(t.Tags))
	for _, tag := range t.Tags {
		if strings.EqualFold(strings.TrimPrefix(strings.TrimSpace(tag), "#"), "reschedule") {
			continue
		}
		kept = append(kept, tag)
	}
	t.Tags = kept
}

// Summarize condenses a run into the counters stored in run history.
func Summarize(run Run) RunSummary {
	s := RunSummary{ID: run.ID, StartedAt: run.StartedAt}
	if run.Result == nil {
		return s
	}
	sum := run.Result.Summary()
	s.Today = run.Result.Today.String()
	s.Placed = sum.Placed
	s.Sequential = sum.Sequential
	s.Priority = sum.Priority
	s.Degraded = sum.Degraded
	s.Deferred = sum.Deferred
	s.Skipped = sum.Skipped
	s.Kept = sum.Kept
	s.Warnings = len(run.Result.Warnings)
	return s
}

// NewRun stamps a result with a fresh run ID.
func NewRun(res *plan.Result, startedAt time.Time) Run {
	return Run{ID: uuid.NewString(), StartedAt: startedAt, Result: res}
}
