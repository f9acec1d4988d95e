package storage

import (
	"strings"
	"testing"

	"taskplan/internal/plan"
	logx "taskplan/pkg/logx"
)

func TestClassifyTags(t *testing.T) {
	t.Parallel()
	f := ClassifyTags([]string{"#Important", "critical", "#seq", "autodate", "#reschedule", "time:90m", "misc"})
	if f.Criticality != plan.Critical {
		t.Fatalf("Criticality = %v, want critical", f.Criticality)
	}
	if !f.Sequential || !f.AutoDated || !f.Reschedule {
		t.Fatalf("flags = %+v", f)
	}
	if f.Estimate != "90m" {
		t.Fatalf("Estimate = %q, want 90m", f.Estimate)
	}
	if got := ClassifyTags(nil); got != (TagFlags{}) {
		t.Fatalf("ClassifyTags(nil) = %+v, want zero", got)
	}
}

func TestParseEstimate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want float64
		err  bool
	}{
		{raw: "", want: 0},
		{raw: "2", want: 2},
		{raw: "1.5h", want: 1.5},
		{raw: "90m", want: 1.5},
		{raw: "1h30m", want: 1.5},
		{raw: "-1", err: true},
		{raw: "soon", err: true},
	}
	for _, tt := range tests {
		got, err := ParseEstimate(tt.raw)
		if (err != nil) != tt.err {
			t.Fatalf("ParseEstimate(%q) error = %v, want error %v", tt.raw, err, tt.err)
		}
		if !tt.err && got != tt.want {
			t.Fatalf("ParseEstimate(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestToRecord(t *testing.T) {
	t.Parallel()
	rec, warns := toRecord(Task{
		Text:    "[3] Draft chapter",
		Tags:    []string{"#seq", "#important", "time:2h"},
		Project: " book ",
		Due:     "2026-10-20",
	}, "backlog.yaml#4")
	if len(warns) != 0 {
		t.Fatalf("warnings = %v", warns)
	}
	if rec.ID != "backlog.yaml#4" || rec.Project != "book" {
		t.Fatalf("rec = %+v", rec)
	}
	if !rec.Sequential || rec.Seq != 3 {
		t.Fatalf("Sequential/Seq = %v/%d, want true/3", rec.Sequential, rec.Seq)
	}
	if rec.Criticality != plan.Important || rec.Duration != 2 {
		t.Fatalf("Criticality/Duration = %v/%v", rec.Criticality, rec.Duration)
	}
	if rec.Due != plan.MustParseDate("2026-10-20") {
		t.Fatalf("Due = %s", rec.Due)
	}
}

func TestToRecordWarnings(t *testing.T) {
	t.Parallel()
	rec, warns := toRecord(Task{Criticality: "urgent", Estimate: "lots", Due: "someday"}, "x")
	if len(warns) != 3 {
		t.Fatalf("warnings = %v, want 3", warns)
	}
	if rec.Criticality != plan.Flexible || rec.Duration != 0 || !rec.Due.IsZero() {
		t.Fatalf("rec = %+v", rec)
	}
	for _, w := range warns {
		if !strings.HasPrefix(w, "x: ") {
			t.Fatalf("warning %q should name the task", w)
		}
	}
}

func TestMarkPlaced(t *testing.T) {
	t.Parallel()
	tags := []string{"#reschedule", "#critical"}
	task := Task{Tags: tags, Reschedule: true}
	markPlaced(&task, plan.MustParseDate("2026-10-21"))

	if task.Due != "2026-10-21" || !task.AutoDated || task.Reschedule {
		t.Fatalf("task = %+v", task)
	}
	if len(task.Tags) != 1 || task.Tags[0] != "#critical" {
		t.Fatalf("Tags = %v, want [#critical]", task.Tags)
	}
	if tags[0] != "#reschedule" {
		t.Fatal("markPlaced must not modify the caller's tag slice")
	}
}

func TestSeqPrefix(t *testing.T) {
	t.Parallel()
	tests := map[string]int{
		"[2] step":  2,
		" [10] x":   10,
		"[] x":      0,
		"[a] x":     0,
		"[0] x":     0,
		"no prefix": 0,
	}
	for in, want := range tests {
		got, _ := seqPrefix(in)
		if got != want {
			t.Fatalf("seqPrefix(%q) = %d, want %d", in, got, want)
		}
	}
}

var nilLog = logx.Nop()
