// Package storage holds the task backlog and the history of planning runs.
//
// Drivers:
//   - "file": a YAML or JSON backlog document, rewritten atomically, plus a
//     JSON Lines run log next to it
//   - "sqlite": a SQLite database (modernc.org/sqlite, no cgo)
package storage
