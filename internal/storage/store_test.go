package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskplan/internal/plan"
)

const backlogYAML = `projects:
  - name: Launch
    deadline: "2026-10-30"
  - name: someday
tasks:
  - id: a
    text: Write docs
    hours: 2
    project: launch
  - text: Review
    estimate: 30m
    tags: ["#reschedule"]
    due: "2026-10-13"
    auto_dated: true
  - id: done
    text: Old
    done: true
`

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	fileCfg := Config{Driver: "file", Path: filepath.Join(dir, "backlog.yaml")}
	if err := os.WriteFile(fileCfg.Path, []byte(backlogYAML), 0o600); err != nil {
		t.Fatalf("write backlog: %v", err)
	}
	fs, err := Open(fileCfg, nilLog)
	if err != nil {
		t.Fatalf("Open(file): %v", err)
	}

	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "taskplan.db"), BusyTimeout: time.Second}, nilLog)
	if err != nil {
		t.Fatalf("Open(sqlite): %v", err)
	}
	doc, err := DecodeBacklog([]byte(backlogYAML), true)
	if err != nil {
		t.Fatalf("DecodeBacklog: %v", err)
	}
	// Positional IDs only exist in the file driver.
	doc.Tasks[1].ID = "backlog.yaml#2"
	if err := sq.Import(context.Background(), *doc); err != nil {
		t.Fatalf("Import(sqlite): %v", err)
	}

	stores := map[string]Store{"file": fs, "sqlite": sq}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()
	for name, st := range openStores(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			recs, err := st.LoadRecords(ctx)
			if err != nil {
				t.Fatalf("LoadRecords: %v", err)
			}
			if len(recs) != 2 {
				t.Fatalf("records = %d, want 2 (done task skipped)", len(recs))
			}
			if recs[0].ID != "a" || recs[1].ID != "backlog.yaml#2" {
				t.Fatalf("IDs = %s, %s", recs[0].ID, recs[1].ID)
			}
			if recs[1].Duration != 0.5 || !recs[1].AutoDated || !recs[1].Reschedule {
				t.Fatalf("second record = %+v", recs[1])
			}

			d, ok, err := st.ProjectDeadline(ctx, "LAUNCH")
			if err != nil || !ok || d.String() != "2026-10-30" {
				t.Fatalf("ProjectDeadline(LAUNCH) = %s, %v, %v", d, ok, err)
			}
			if _, ok, err := st.ProjectDeadline(ctx, "someday"); ok || err != nil {
				t.Fatalf("ProjectDeadline(someday) = %v, %v; want no deadline", ok, err)
			}
			if _, ok, err := st.ProjectDeadline(ctx, "missing"); ok || err != nil {
				t.Fatalf("ProjectDeadline(missing) = %v, %v; want no deadline", ok, err)
			}

			today := plan.MustParseDate("2026-10-12")
			res := &plan.Result{Today: today, Placements: []plan.Placement{
				{Record: recs[0], Date: today.AddDays(1), Source: plan.SourcePriority},
				{Record: recs[1], Date: today.AddDays(2), Source: plan.SourcePriority},
				{Record: plan.TaskRecord{ID: "ghost"}, Date: today, Source: plan.SourcePriority},
			}}
			run := NewRun(res, time.Date(2026, 10, 12, 7, 0, 0, 0, time.UTC))
			sum, err := st.Apply(ctx, run)
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if sum.Placed != 3 || sum.Today != "2026-10-12" || sum.ID != run.ID {
				t.Fatalf("summary = %+v", sum)
			}

			recs, err = st.LoadRecords(ctx)
			if err != nil {
				t.Fatalf("LoadRecords after Apply: %v", err)
			}
			for i, want := range []string{"2026-10-13", "2026-10-14"} {
				if recs[i].Due.String() != want || !recs[i].AutoDated || recs[i].Reschedule {
					t.Fatalf("record %d after Apply = %+v, want due %s auto-dated", i, recs[i], want)
				}
			}
			if plan.Classify(recs[1]) != plan.ClassSettled {
				t.Fatalf("applied record should be settled, got %v", plan.Classify(recs[1]))
			}

			runs, err := st.Runs(ctx, 5)
			if err != nil {
				t.Fatalf("Runs: %v", err)
			}
			if len(runs) != 1 || runs[0].ID != run.ID || !runs[0].StartedAt.Equal(run.StartedAt) {
				t.Fatalf("runs = %+v", runs)
			}
		})
	}
}

func TestApplyCanceledLeavesBacklog(t *testing.T) {
	t.Parallel()
	for name, st := range openStores(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			recs, err := st.LoadRecords(context.Background())
			if err != nil {
				t.Fatalf("LoadRecords: %v", err)
			}
			today := plan.MustParseDate("2026-10-12")
			res := &plan.Result{Today: today, Placements: []plan.Placement{
				{Record: recs[0], Date: today.AddDays(3), Source: plan.SourcePriority},
			}}

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			if _, err := st.Apply(ctx, NewRun(res, time.Now())); !errors.Is(err, context.Canceled) {
				t.Fatalf("Apply(canceled) error = %v, want context.Canceled", err)
			}

			after, err := st.LoadRecords(context.Background())
			if err != nil {
				t.Fatalf("LoadRecords: %v", err)
			}
			if after[0].Due != recs[0].Due {
				t.Fatalf("due after canceled Apply = %s, want %s", after[0].Due, recs[0].Due)
			}
			runs, err := st.Runs(context.Background(), 5)
			if err != nil || len(runs) != 0 {
				t.Fatalf("Runs() = %+v, %v; want none", runs, err)
			}
		})
	}
}

func TestFileStoreImportMerges(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "new.json")
	st, err := Open(Config{Driver: "file", Path: path}, nilLog)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	if err := st.Import(ctx, Backlog{Tasks: []Task{{ID: "a", Text: "one"}}}); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if err := st.Import(ctx, Backlog{
		Projects: []Project{{Name: "p", Deadline: "2026-11-01"}},
		Tasks:    []Task{{ID: "a", Text: "one, edited"}, {Text: "two"}},
	}); err != nil {
		t.Fatalf("Import: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	doc, err := DecodeBacklog(b, false)
	if err != nil {
		t.Fatalf("DecodeBacklog: %v", err)
	}
	if len(doc.Tasks) != 2 || doc.Tasks[0].Text != "one, edited" || len(doc.Projects) != 1 {
		t.Fatalf("doc = %+v", doc)
	}
	if strings.Contains(string(b), "\"done\"") {
		t.Fatalf("zero fields should be omitted: %s", b)
	}
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{}, nilLog); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Open(empty) error = %v, want ErrDisabled", err)
	}
	if _, err := Open(Config{Driver: "redis", Path: "x"}, nilLog); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "b.txt")}, nilLog); err == nil {
		t.Fatal("expected error for unsupported extension")
	}

	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "missing.yaml")}, nilLog)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := st.LoadRecords(context.Background()); err == nil {
		t.Fatal("expected error for missing backlog")
	}
	_ = st.Close()
	if _, err := st.LoadRecords(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("LoadRecords after Close = %v, want ErrClosed", err)
	}
}

func TestDecodeBacklogRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	if _, err := DecodeBacklog([]byte("tasks:\n  - text: x\n    colour: red\n"), true); err == nil {
		t.Fatal("expected error for unknown YAML key")
	}
	if _, err := DecodeBacklog([]byte(`{"tasks":[{"text":"x","colour":"red"}]}`), false); err == nil {
		t.Fatal("expected error for unknown JSON key")
	}
	doc, err := DecodeBacklog([]byte("  \n"), true)
	if err != nil || len(doc.Tasks) != 0 {
		t.Fatalf("empty document = %+v, %v", doc, err)
	}
}
