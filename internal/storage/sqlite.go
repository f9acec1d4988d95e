package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"taskplan/internal/plan"
	logx "taskplan/pkg/logx"
)

// runTimeLayout has fixed width so started_at sorts as text.
const runTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const taskColumns = `id, text, hours, estimate, criticality, due, tags, project, grp, seq, sequential, auto_dated, reschedule, done`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var t Task
	var estimate, crit, due, tags, project, grp sql.NullString
	err := row.Scan(&t.ID, &t.Text, &t.Hours, &estimate, &crit, &due, &tags, &project, &grp,
		&t.Seq, &t.Sequential, &t.AutoDated, &t.Reschedule, &t.Done)
	if err != nil {
		return t, err
	}
	t.Estimate, t.Criticality, t.Due = estimate.String, crit.String, due.String
	t.Project, t.Group = project.String, grp.String
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &t.Tags); err != nil {
			return t, fmt.Errorf("task %s: tags: %w", t.ID, err)
		}
	}
	return t, nil
}

func (s *sqliteStore) LoadRecords(ctx context.Context) ([]plan.TaskRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE done = 0 ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []plan.TaskRecord
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		rec, warns := toRecord(t, t.ID)
		for _, w := range warns {
			s.log.Warn("backlog task problem", logx.String("detail", w))
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ProjectDeadline(ctx context.Context, project string) (plan.Date, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, ErrDisabled
	}
	var deadline sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT deadline FROM projects WHERE name = ?`, strings.TrimSpace(project)).Scan(&deadline)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return projectDeadline([]Project{{Name: project, Deadline: deadline.String}}, project)
}

func (s *sqliteStore) Apply(ctx context.Context, run Run) (RunSummary, error) {
	sum := Summarize(run)
	if s == nil || s.db == nil {
		return sum, ErrDisabled
	}
	if run.Result == nil {
		return sum, errors.New("apply: nil result")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sum, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs(id, today, started_at, placed, sequential, priority, degraded, deferred, skipped, kept, warnings)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		sum.ID, sum.Today, sum.StartedAt.UTC().Format(runTimeLayout),
		sum.Placed, sum.Sequential, sum.Priority, sum.Degraded, sum.Deferred, sum.Skipped, sum.Kept, sum.Warnings,
	)
	if err != nil {
		return sum, fmt.Errorf("insert run: %w", err)
	}

	for _, p := range run.Result.Placements {
		t, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, p.Record.ID))
		if errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("placement for unknown task", logx.String("task", p.Record.ID))
			continue
		}
		if err != nil {
			return sum, err
		}
		markPlaced(&t, p.Date)
		tags, err := encodeTags(t.Tags)
		if err != nil {
			return sum, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE tasks SET due = ?, auto_dated = 1, reschedule = 0, tags = ? WHERE id = ?`,
			t.Due, tags, t.ID,
		); err != nil {
			return sum, fmt.Errorf("update task %s: %w", t.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO placements(run_id, task_id, date, source, grp, degraded, reason) VALUES(?,?,?,?,?,?,?)`,
			run.ID, t.ID, p.Date.String(), p.Source.String(), nullStr(p.Group), p.Degraded, nullStr(string(p.Reason)),
		); err != nil {
			return sum, fmt.Errorf("insert placement %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return sum, err
	}
	s.log.Debug("run applied", logx.String("run", run.ID), logx.Int("placed", sum.Placed))
	return sum, nil
}

func (s *sqliteStore) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, today, started_at, placed, sequential, priority, degraded, deferred, skipped, kept, warnings
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			r       RunSummary
			started string
		)
		if err := rows.Scan(&r.ID, &r.Today, &started, &r.Placed, &r.Sequential, &r.Priority,
			&r.Degraded, &r.Deferred, &r.Skipped, &r.Kept, &r.Warnings); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse(runTimeLayout, started)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Import(ctx context.Context, b Backlog) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range b.Projects {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO projects(name, deadline) VALUES(?,?)
			 ON CONFLICT(name) DO UPDATE SET deadline = excluded.deadline`,
			strings.TrimSpace(p.Name), nullStr(p.Deadline),
		); err != nil {
			return fmt.Errorf("import project %s: %w", p.Name, err)
		}
	}

	var pos int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) FROM tasks`).Scan(&pos); err != nil {
		return err
	}
	for _, t := range b.Tasks {
		pos++
		id := strings.TrimSpace(t.ID)
		if id == "" {
			id = uuid.NewString()
		}
		tags, err := encodeTags(t.Tags)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tasks(id, position, text, hours, estimate, criticality, due, tags, project, grp, seq, sequential, auto_dated, reschedule, done)
			 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			 ON CONFLICT(id) DO UPDATE SET
			   text = excluded.text, hours = excluded.hours, estimate = excluded.estimate,
			   criticality = excluded.criticality, due = excluded.due, tags = excluded.tags,
			   project = excluded.project, grp = excluded.grp, seq = excluded.seq,
			   sequential = excluded.sequential, auto_dated = excluded.auto_dated,
			   reschedule = excluded.reschedule, done = excluded.done`,
			id, pos, t.Text, t.Hours, nullStr(t.Estimate), nullStr(t.Criticality), nullStr(t.Due), tags,
			nullStr(t.Project), nullStr(t.Group), t.Seq, t.Sequential, t.AutoDated, t.Reschedule, t.Done,
		); err != nil {
			return fmt.Errorf("import task %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func encodeTags(tags []string) (any, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
