package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"taskplan/internal/plan"
	logx "taskplan/pkg/logx"
)

// fileStore keeps the backlog in one document.
//
// Files:
//   - <path>              (backlog, YAML or JSON by extension)
//   - <prefix>.runs.jsonl (append-only run summaries)
//
// The backlog is rewritten through a temp file + rename, so a crash never
// leaves a half-written document.
type fileStore struct {
	log logx.Logger

	path     string
	source   string
	yaml     bool
	runsPath string

	mu     sync.Mutex
	closed bool

	// cache of the last read document, keyed by its mtime and size
	cached    *Backlog
	cachedMod time.Time
	cachedLen int64
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml", ".json":
	default:
		return nil, fmt.Errorf("file store: unsupported backlog extension %q", ext)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	prefix := filepath.Join(dir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))

	return &fileStore{
		log:      log,
		path:     path,
		source:   filepath.Base(path),
		yaml:     ext != ".json",
		runsPath: prefix + ".runs.jsonl",
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cached = nil
	return nil
}

func (s *fileStore) LoadRecords(ctx context.Context) ([]plan.TaskRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readLocked()
	if err != nil {
		return nil, err
	}

	out := make([]plan.TaskRecord, 0, len(doc.Tasks))
	for i, t := range doc.Tasks {
		if t.Done {
			continue
		}
		rec, warns := toRecord(t, taskID(t, s.source, i))
		for _, w := range warns {
			s.log.Warn("backlog task problem", logx.String("detail", w))
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *fileStore) ProjectDeadline(ctx context.Context, project string) (plan.Date, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.readLocked()
	if err != nil {
		return 0, false, err
	}
	return projectDeadline(doc.Projects, project)
}

func projectDeadline(projects []Project, name string) (plan.Date, bool, error) {
	name = strings.TrimSpace(name)
	for _, p := range projects {
		if !strings.EqualFold(strings.TrimSpace(p.Name), name) {
			continue
		}
		if strings.TrimSpace(p.Deadline) == "" {
			return 0, false, nil
		}
		d, err := plan.ParseDate(p.Deadline)
		if err != nil {
			return 0, false, fmt.Errorf("project %s: %w", name, err)
		}
		return d, true, nil
	}
	return 0, false, nil
}

func (s *fileStore) Apply(ctx context.Context, run Run) (RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := Summarize(run)
	if run.Result == nil {
		return sum, errors.New("apply: nil result")
	}
	if err := ctx.Err(); err != nil {
		return sum, err
	}

	doc, err := s.readLocked()
	if err != nil {
		return sum, err
	}
	tasks := append([]Task(nil), doc.Tasks...)
	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		index[taskID(t, s.source, i)] = i
	}

	for _, p := range run.Result.Placements {
		i, ok := index[p.Record.ID]
		if !ok {
			s.log.Warn("placement for unknown task", logx.String("task", p.Record.ID))
			continue
		}
		// Pin positional IDs so later edits to the document do not shift them.
		tasks[i].ID = p.Record.ID
		markPlaced(&tasks[i], p.Date)
	}

	// Last point where the run can be abandoned without touching disk.
	if err := ctx.Err(); err != nil {
		return sum, err
	}
	next := &Backlog{Projects: doc.Projects, Tasks: tasks}
	if err := s.writeLocked(next); err != nil {
		return sum, err
	}
	if err := appendJSONLine(s.runsPath, sum); err != nil {
		return sum, fmt.Errorf("append run: %w", err)
	}
	s.log.Debug("run applied", logx.String("run", run.ID), logx.Int("placed", sum.Placed))
	return sum, nil
}

func (s *fileStore) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	f, err := os.Open(s.runsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var all []RunSummary
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r RunSummary
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.ID == "" {
			continue
		}
		all = append(all, r)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	out := make([]RunSummary, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (s *fileStore) Import(ctx context.Context, b Backlog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if errors.Is(err, fs.ErrNotExist) {
		doc, err = &Backlog{}, nil
	}
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	next := mergeBacklog(*doc, b)
	return s.writeLocked(&next)
}

// mergeBacklog upserts projects by name and tasks by ID. Tasks without an ID
// are appended.
func mergeBacklog(dst, src Backlog) Backlog {
	out := Backlog{
		Projects: append([]Project(nil), dst.Projects...),
		Tasks:    append([]Task(nil), dst.Tasks...),
	}
	for _, p := range src.Projects {
		replaced := false
		for i := range out.Projects {
			if strings.EqualFold(out.Projects[i].Name, p.Name) {
				out.Projects[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			out.Projects = append(out.Projects, p)
		}
	}
	for _, t := range src.Tasks {
		replaced := false
		if id := strings.TrimSpace(t.ID); id != "" {
			for i := range out.Tasks {
				if out.Tasks[i].ID == id {
					out.Tasks[i] = t
					replaced = true
					break
				}
			}
		}
		if !replaced {
			out.Tasks = append(out.Tasks, t)
		}
	}
	return out
}

func (s *fileStore) readLocked() (*Backlog, error) {
	if s.closed {
		return nil, ErrClosed
	}
	st, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("read backlog: %w", err)
	}
	if s.cached != nil && st.ModTime().Equal(s.cachedMod) && st.Size() == s.cachedLen {
		return s.cached, nil
	}

	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read backlog: %w", err)
	}
	doc, err := decodeBacklog(b, s.yaml)
	if err != nil {
		return nil, fmt.Errorf("decode backlog %s: %w", s.source, err)
	}
	s.cached, s.cachedMod, s.cachedLen = doc, st.ModTime(), st.Size()
	return doc, nil
}

func (s *fileStore) writeLocked(doc *Backlog) error {
	b, err := encodeBacklog(doc, s.yaml)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.path, b, 0o644); err != nil {
		return fmt.Errorf("write backlog: %w", err)
	}
	s.cached = nil
	return nil
}

// DecodeBacklog reads a backlog document; isYAML selects the format.
func DecodeBacklog(b []byte, isYAML bool) (*Backlog, error) { return decodeBacklog(b, isYAML) }

func decodeBacklog(b []byte, isYAML bool) (*Backlog, error) {
	var doc Backlog
	if len(bytes.TrimSpace(b)) == 0 {
		return &doc, nil
	}
	if isYAML {
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return &doc, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func encodeBacklog(doc *Backlog, isYAML bool) ([]byte, error) {
	if !isYAML {
		b, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp, perm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func appendJSONLine(path string, v any) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
