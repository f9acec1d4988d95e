package storage

import (
	"context"
	"errors"
	"strings"

	"taskplan/internal/plan"
	logx "taskplan/pkg/logx"
)

// Store is the persistence API used by the app.
//
// ProjectDeadline lets a Store serve as the planner's plan.ProjectLookup.
type Store interface {
	LoadRecords(ctx context.Context) ([]plan.TaskRecord, error)
	ProjectDeadline(ctx context.Context, project string) (plan.Date, bool, error)
	// Apply writes each placement's date back to its task, marks it
	// auto-dated and records the run summary.
	Apply(ctx context.Context, run Run) (RunSummary, error)
	// Runs returns the most recent run summaries, newest first.
	Runs(ctx context.Context, limit int) ([]RunSummary, error)
	// Import upserts projects and tasks by name and ID.
	Import(ctx context.Context, b Backlog) error
	Close() error
}

var _ plan.ProjectLookup = Store(nil)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, ErrDisabled
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
