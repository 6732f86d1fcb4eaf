package artifact

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"web/resalegeo/features"
	"web/resalegeo/join"
	"web/resalegeo/table"
)

var ErrNoSnapshot = errors.New("artifact: no snapshot loaded")

// Snapshot is the immutable state inference reads: one joiner per entity,
// in join order, and the training schema.
type Snapshot struct {
	RunID    string
	RunTime  time.Time
	LoadedAt time.Time
	Joiners  []*join.Joiner
	Schema   *features.Schema
}

// NewSnapshot builds joiners over the run's tables for each spec.
func NewSnapshot(run *Run, specs []join.Spec) (*Snapshot, error) {
	if run.Schema == nil {
		return nil, fmt.Errorf("artifact: run %s has no feature schema", run.ID)
	}

	snap := &Snapshot{
		RunID:    run.ID,
		RunTime:  run.Timestamp,
		LoadedAt: time.Now(),
		Schema:   run.Schema,
	}
	for _, spec := range specs {
		t, ok := run.Tables[spec.Entity]
		if !ok {
			return nil, fmt.Errorf("artifact: run %s has no %s table", run.ID, spec.Entity)
		}
		j, err := join.New(spec, t)
		if err != nil {
			return nil, fmt.Errorf("artifact: run %s: %w", run.ID, err)
		}
		snap.Joiners = append(snap.Joiners, j)
	}
	return snap, nil
}

// Join runs every joiner over rec in order.
func (s *Snapshot) Join(rec table.Record) (table.Record, error) {
	out := rec
	for _, j := range s.Joiners {
		var err error
		if out, err = j.JoinOne(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Registry publishes the current snapshot. Readers never block; a reload
// swaps the pointer.
type Registry struct {
	current atomic.Pointer[Snapshot]
}

func (r *Registry) Publish(s *Snapshot) *Snapshot {
	return r.current.Swap(s)
}

func (r *Registry) Current() (*Snapshot, error) {
	s := r.current.Load()
	if s == nil {
		return nil, ErrNoSnapshot
	}
	return s, nil
}
