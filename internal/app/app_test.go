package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"taskplan/internal/plan"
)

type recordingSender struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingSender) SendText(_ context.Context, _ int64, _ int, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts)
}

const testBacklog = `tasks:
  - id: a
    text: Write docs
    hours: 2
  - id: b
    text: Review
    hours: 1
    criticality: critical
`

// 2026-10-12 is a Monday.
var monday = time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)

func writeSetup(t *testing.T, runOnStart bool) (cfgPath, backlogPath string) {
	t.Helper()
	dir := t.TempDir()
	backlogPath = filepath.Join(dir, "backlog.yaml")
	if err := os.WriteFile(backlogPath, []byte(testBacklog), 0o600); err != nil {
		t.Fatalf("write backlog: %v", err)
	}
	cfg := fmt.Sprintf(`{
  "logging": {"level": "error", "console": false},
  "planner": {"timezone": "UTC"},
  "storage": {"driver": "file", "path": %q},
  "daemon": {"schedule": "@every 1h", "run_on_start": %t},
  "notifier": {"enabled": true, "token": "test", "chat_id": 42}
}`, backlogPath, runOnStart)
	cfgPath = filepath.Join(dir, "taskplan.json")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath, backlogPath
}

func newTestApp(t *testing.T, runOnStart bool) (*App, *recordingSender, string) {
	t.Helper()
	cfgPath, backlogPath := writeSetup(t, runOnStart)
	sender := &recordingSender{}
	a, err := New(cfgPath, WithSender(sender), WithClock(func() time.Time { return monday }))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a, sender, backlogPath
}

func TestToday(t *testing.T) {
	t.Parallel()
	a, _, _ := newTestApp(t, false)
	if got := a.Today(); got != plan.MustParseDate("2026-10-12") {
		t.Fatalf("Today() = %s, want 2026-10-12", got)
	}
}

func TestRunOnceDryRunWritesNothing(t *testing.T) {
	t.Parallel()
	a, sender, backlogPath := newTestApp(t, false)
	before, err := os.ReadFile(backlogPath)
	if err != nil {
		t.Fatalf("read backlog: %v", err)
	}

	rep, err := a.RunOnce(context.Background(), a.Today(), true)
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !rep.DryRun || rep.Summary.Placed != 2 {
		t.Fatalf("report = %+v, want dry run with 2 placements", rep.Summary)
	}

	after, err := os.ReadFile(backlogPath)
	if err != nil {
		t.Fatalf("read backlog: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("dry run modified the backlog:\n%s", after)
	}
	if n := sender.count(); n != 0 {
		t.Fatalf("messages sent = %d, want 0", n)
	}
	runs, err := a.Store().Runs(context.Background(), 10)
	if err != nil || len(runs) != 0 {
		t.Fatalf("Runs() = %v, %v; want none", runs, err)
	}
}

func TestRunOnceAppliesAndNotifies(t *testing.T) {
	t.Parallel()
	a, sender, _ := newTestApp(t, false)
	ctx := context.Background()
	today := a.Today()

	rep, err := a.RunOnce(ctx, today, false)
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if rep.Summary.Placed != 2 || rep.Summary.ID != rep.RunID {
		t.Fatalf("summary = %+v, want 2 placements under run %s", rep.Summary, rep.RunID)
	}
	if n := sender.count(); n == 0 {
		t.Fatalf("no summary sent")
	}

	recs, err := a.Store().LoadRecords(ctx)
	if err != nil {
		t.Fatalf("LoadRecords error: %v", err)
	}
	for _, r := range recs {
		d, ok := rep.Result.DateOf(r.ID)
		if !ok {
			t.Fatalf("record %s has no placement", r.ID)
		}
		if r.Due != d || !r.AutoDated {
			t.Fatalf("record %s due=%s auto=%v, want %s auto-dated", r.ID, r.Due, r.AutoDated, d)
		}
	}

	// Dated tasks are settled; a second run keeps them where they are.
	rep2, err := a.RunOnce(ctx, today, false)
	if err != nil {
		t.Fatalf("second RunOnce error: %v", err)
	}
	if rep2.Summary.Placed != 0 || rep2.Summary.Kept != 2 {
		t.Fatalf("second summary = %+v, want 0 placed, 2 kept", rep2.Summary)
	}
	runs, err := a.Store().Runs(ctx, 10)
	if err != nil || len(runs) != 2 || runs[0].ID != rep2.RunID {
		t.Fatalf("Runs() = %+v, %v; want 2 runs, newest first", runs, err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	a, _, _ := newTestApp(t, false)
	if err := a.Validate(context.Background()); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	bad := *a.Config()
	bad.Daemon.Schedule = "not a schedule at all"
	if err := a.validate(context.Background(), &bad); err == nil {
		t.Fatalf("validate accepted a bad schedule")
	}
}

func TestServeRunsOnStart(t *testing.T) {
	t.Parallel()
	a, sender, _ := newTestApp(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if sender.count() > 0 {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("startup run did not happen")
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve() = %v, want nil", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("Serve did not return after cancel")
	}
	runs, err := a.Store().Runs(context.Background(), 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("Runs() = %+v, %v; want exactly the startup run", runs, err)
	}
}
