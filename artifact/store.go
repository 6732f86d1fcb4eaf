package artifact

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"web/resalegeo/cluster"
	"web/resalegeo/features"
)

var ErrRunNotFound = errors.New("artifact: run not found")

// Run is everything one training run persists: a summary table and point
// assignments per entity, plus the feature schema.
type Run struct {
	ID          string
	Timestamp   time.Time
	Tables      map[string]*cluster.SummaryTable
	Assignments map[string][]AssignmentRow
	Schema      *features.Schema
}

// NewRun starts an empty run stamped now.
func NewRun() *Run {
	return &Run{
		ID:          NewRunID(),
		Timestamp:   time.Now().UTC().Truncate(time.Second),
		Tables:      make(map[string]*cluster.SummaryTable),
		Assignments: make(map[string][]AssignmentRow),
	}
}

// AddResult records a clustering result under its entity.
func (r *Run) AddResult(res *cluster.Result) {
	r.Tables[res.Entity] = res.Table
	r.Assignments[res.Entity] = Assignments(res)
}

// RunInfo lists the files of one stored run.
type RunInfo struct {
	ID        string     `json:"id"`
	Timestamp time.Time  `json:"timestamp"`
	Entities  []string   `json:"entities"`
	HasSchema bool       `json:"hasSchema"`
	Files     []FileInfo `json:"files"`
	TotalSize int64      `json:"totalSize"`
}

// Store keeps runs as flat files in one directory.
type Store struct {
	Dir      string
	Compress bool
	Logger   *slog.Logger
}

func NewStore(dir string, compress bool, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{Dir: dir, Compress: compress, Logger: logger}, nil
}

// Save writes every table of run and returns the paths written.
func (s *Store) Save(run *Run) ([]string, error) {
	var paths []string

	for _, entity := range sortedKeys(run.Tables) {
		if strings.Contains(entity, "-") {
			return paths, fmt.Errorf("artifact: entity %q may not contain '-'", entity)
		}
		t := run.Tables[entity]

		assignments := run.Assignments[entity]
		n := len(assignments)
		if n == 0 {
			n = t.MemberTotal(countColumn(t))
		}

		summaryPath := filepath.Join(s.Dir, FileName(entity, n, run.Timestamp, run.ID, KindSummary, s.Compress))
		if err := writeFile(summaryPath, s.Compress, func(w io.Writer) error { return WriteSummary(w, t) }); err != nil {
			return paths, fmt.Errorf("failed to save %s summary: %w", entity, err)
		}
		paths = append(paths, summaryPath)

		if assignments != nil {
			assignPath := filepath.Join(s.Dir, FileName(entity, n, run.Timestamp, run.ID, KindAssignments, s.Compress))
			if err := writeFile(assignPath, s.Compress, func(w io.Writer) error { return WriteAssignments(w, assignments) }); err != nil {
				return paths, fmt.Errorf("failed to save %s assignments: %w", entity, err)
			}
			paths = append(paths, assignPath)
		}
	}

	if run.Schema != nil {
		schemaPath := filepath.Join(s.Dir, SchemaFileName(len(run.Schema.Columns), run.Timestamp, run.ID))
		if err := run.Schema.Save(schemaPath); err != nil {
			return paths, err
		}
		paths = append(paths, schemaPath)
	}

	s.Logger.Info("saved run", "run", run.ID, "files", len(paths), "dir", s.Dir)
	return paths, nil
}

// countColumn is the first summary column, the member count.
func countColumn(t *cluster.SummaryTable) string {
	if len(t.Columns) == 0 {
		return ""
	}
	return t.Columns[0]
}

// List returns the stored runs, newest first. Unrecognised files are
// skipped.
func (s *Store) List() ([]RunInfo, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact dir: %w", err)
	}

	runs := make(map[string]*RunInfo)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := ParseFileName(filepath.Join(s.Dir, entry.Name()))
		if err != nil {
			continue
		}
		if fi, err := entry.Info(); err == nil {
			info.FileSize = fi.Size()
		}

		r, ok := runs[info.RunID]
		if !ok {
			r = &RunInfo{ID: info.RunID, Timestamp: info.Timestamp}
			runs[info.RunID] = r
		}
		r.Files = append(r.Files, info)
		r.TotalSize += info.FileSize
		switch info.Kind {
		case KindSchema:
			r.HasSchema = true
		case KindSummary:
			r.Entities = append(r.Entities, info.Entity)
		}
	}

	out := make([]RunInfo, 0, len(runs))
	for _, r := range runs {
		sort.Strings(r.Entities)
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Info returns the listing of a single run.
func (s *Store) Info(id string) (RunInfo, error) {
	runs, err := s.List()
	if err != nil {
		return RunInfo{}, err
	}
	for _, r := range runs {
		if r.ID == id {
			return r, nil
		}
	}
	return RunInfo{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
}

// Load reads a run back. Assignments are not loaded; inference only needs
// the summary tables and the schema.
func (s *Store) Load(id string) (*Run, error) {
	info, err := s.Info(id)
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:          info.ID,
		Timestamp:   info.Timestamp,
		Tables:      make(map[string]*cluster.SummaryTable),
		Assignments: make(map[string][]AssignmentRow),
	}

	start := time.Now()
	for _, f := range info.Files {
		switch f.Kind {
		case KindSummary:
			var t *cluster.SummaryTable
			err := readFile(f.Path, func(r io.Reader) error {
				var err error
				t, err = ReadSummary(r, f.Entity)
				return err
			})
			if err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", filepath.Base(f.Path), err)
			}
			run.Tables[f.Entity] = t
		case KindSchema:
			schema, err := features.LoadSchema(f.Path)
			if err != nil {
				return nil, err
			}
			run.Schema = schema
		}
	}

	s.Logger.Info("loaded run", "run", id, "entities", len(run.Tables),
		"size", FormatFileSize(info.TotalSize), "elapsed", time.Since(start))
	return run, nil
}

// LoadAssignments reads the point assignments of one entity in a run.
func (s *Store) LoadAssignments(id, entity string) ([]AssignmentRow, error) {
	info, err := s.Info(id)
	if err != nil {
		return nil, err
	}
	for _, f := range info.Files {
		if f.Kind != KindAssignments || f.Entity != entity {
			continue
		}
		var rows []AssignmentRow
		err := readFile(f.Path, func(r io.Reader) error {
			var err error
			rows, err = ReadAssignments(r)
			return err
		})
		return rows, err
	}
	return nil, fmt.Errorf("%w: no %s assignments in %s", ErrRunNotFound, entity, id)
}

// Latest loads the newest run that has a schema.
func (s *Store) Latest() (*Run, error) {
	runs, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, r := range runs {
		if r.HasSchema {
			return s.Load(r.ID)
		}
	}
	return nil, ErrRunNotFound
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
