package storage

import (
	"errors"
	"time"

	"taskplan/internal/plan"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": backlog document at Path (.yaml, .yml or .json)
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Backlog is the document form of the store contents. Import and the file
// driver use it.
type Backlog struct {
	Projects []Project `json:"projects,omitempty" yaml:"projects,omitempty"`
	Tasks    []Task    `json:"tasks" yaml:"tasks"`
}

// Project is a container with an optional deadline (YYYY-MM-DD).
type Project struct {
	Name     string `json:"name" yaml:"name"`
	Deadline string `json:"deadline,omitempty" yaml:"deadline,omitempty"`
}

// Task is one stored backlog item.
//
// Hours and Estimate are alternatives: Estimate accepts "90m", "1.5h" or a
// bare number of hours. Tags may carry classification instead of the
// boolean fields (see ClassifyTags).
type Task struct {
	ID          string   `json:"id,omitempty" yaml:"id,omitempty"`
	Text        string   `json:"text" yaml:"text"`
	Hours       float64  `json:"hours,omitempty" yaml:"hours,omitempty"`
	Estimate    string   `json:"estimate,omitempty" yaml:"estimate,omitempty"`
	Criticality string   `json:"criticality,omitempty" yaml:"criticality,omitempty"`
	Due         string   `json:"due,omitempty" yaml:"due,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Project     string   `json:"project,omitempty" yaml:"project,omitempty"`
	Group       string   `json:"group,omitempty" yaml:"group,omitempty"`
	Seq         int      `json:"seq,omitempty" yaml:"seq,omitempty"`
	Sequential  bool     `json:"sequential,omitempty" yaml:"sequential,omitempty"`
	AutoDated   bool     `json:"auto_dated,omitempty" yaml:"auto_dated,omitempty"`
	Reschedule  bool     `json:"reschedule,omitempty" yaml:"reschedule,omitempty"`
	Done        bool     `json:"done,omitempty" yaml:"done,omitempty"`
}

// Run is one planning run handed to Store.Apply.
type Run struct {
	ID        string
	StartedAt time.Time
	Result    *plan.Result
}

// RunSummary is the persisted headline of a run.
type RunSummary struct {
	ID         string    `json:"id"`
	Today      string    `json:"today"`
	StartedAt  time.Time `json:"started_at"`
	Placed     int       `json:"placed"`
	Sequential int       `json:"sequential"`
	Priority   int       `json:"priority"`
	Degraded   int       `json:"degraded"`
	Deferred   int       `json:"deferred"`
	Skipped    int       `json:"skipped"`
	Kept       int       `json:"kept"`
	Warnings   int       `json:"warnings"`
}
