// Package runner keeps trained runs loaded for inference and serves them
// over gRPC.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"web/resalegeo/artifact"
	"web/resalegeo/events"
	"web/resalegeo/join"
)

// SnapshotObserver is told about reloads; metrics.Metrics implements it.
type SnapshotObserver interface {
	SnapshotPublished(at time.Time, clusters map[string]int)
	SnapshotFailed()
}

// Fetcher copies a run that is not on local disk into dir.
type Fetcher interface {
	Download(ctx context.Context, runID, dir string) ([]string, error)
}

// Loader caches snapshots of recently used runs and publishes the active
// one to the registry. The least recently used run is evicted when the
// cache is full; the active run is never evicted.
type Loader struct {
	store    *artifact.Store
	registry *artifact.Registry
	specs    []join.Spec
	fetcher  Fetcher
	observer SnapshotObserver
	logger   *slog.Logger

	snapshots    map[string]*artifact.Snapshot
	lastAccessed map[string]time.Time
	maxRuns      int
	lock         sync.RWMutex
}

type LoaderOptions struct {
	MaxRuns  int
	Fetcher  Fetcher
	Observer SnapshotObserver
	Logger   *slog.Logger
}

func NewLoader(store *artifact.Store, registry *artifact.Registry, specs []join.Spec, opts LoaderOptions) *Loader {
	if opts.MaxRuns <= 0 {
		opts.MaxRuns = 3
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Loader{
		store:        store,
		registry:     registry,
		specs:        specs,
		fetcher:      opts.Fetcher,
		observer:     opts.Observer,
		logger:       opts.Logger,
		snapshots:    make(map[string]*artifact.Snapshot),
		lastAccessed: make(map[string]time.Time),
		maxRuns:      opts.MaxRuns,
	}
}

func (l *Loader) Registry() *artifact.Registry {
	return l.registry
}

func (l *Loader) Store() *artifact.Store {
	return l.store
}

// Load returns the snapshot of run id, reading it from disk if needed.
func (l *Loader) Load(ctx context.Context, id string) (*artifact.Snapshot, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if snap, ok := l.snapshots[id]; ok {
		l.lastAccessed[id] = time.Now()
		return snap, nil
	}

	if len(l.snapshots) >= l.maxRuns {
		l.evictOldest()
	}

	run, err := l.store.Load(id)
	if err != nil && l.fetcher != nil {
		l.logger.Info("run not on disk, fetching", "run", id)
		if _, ferr := l.fetcher.Download(ctx, id, l.store.Dir); ferr != nil {
			return nil, fmt.Errorf("failed to fetch run %s: %w", id, ferr)
		}
		run, err = l.store.Load(id)
	}
	if err != nil {
		return nil, err
	}

	snap, err := artifact.NewSnapshot(run, l.specs)
	if err != nil {
		return nil, err
	}

	l.snapshots[id] = snap
	l.lastAccessed[id] = time.Now()
	return snap, nil
}

// evictOldest drops the least recently used inactive run. Callers hold the
// lock.
func (l *Loader) evictOldest() {
	active := ""
	if cur, err := l.registry.Current(); err == nil {
		active = cur.RunID
	}

	var oldestID string
	var oldestTime time.Time
	for id, accessTime := range l.lastAccessed {
		if id == active {
			continue
		}
		if oldestID == "" || accessTime.Before(oldestTime) {
			oldestID = id
			oldestTime = accessTime
		}
	}
	if oldestID != "" {
		delete(l.snapshots, oldestID)
		delete(l.lastAccessed, oldestID)
		l.logger.Debug("evicted run", "run", oldestID)
	}
}

// Activate loads run id and makes it the snapshot inference reads.
func (l *Loader) Activate(ctx context.Context, id string) (*artifact.Snapshot, error) {
	snap, err := l.Load(ctx, id)
	if err != nil {
		if l.observer != nil {
			l.observer.SnapshotFailed()
		}
		return nil, err
	}

	prev := l.registry.Publish(snap)
	if l.observer != nil {
		l.observer.SnapshotPublished(time.Now(), Clusters(snap))
	}
	attrs := []any{"run", snap.RunID, "trained", snap.RunTime}
	if prev != nil {
		attrs = append(attrs, "previous", prev.RunID)
	}
	l.logger.Info("activated run", attrs...)
	return snap, nil
}

// ActivateLatest activates the newest complete run unless it already is
// the active one.
func (l *Loader) ActivateLatest(ctx context.Context) (*artifact.Snapshot, error) {
	runs, err := l.store.List()
	if err != nil {
		return nil, err
	}
	for _, r := range runs {
		if !r.HasSchema {
			continue
		}
		if cur, err := l.registry.Current(); err == nil && cur.RunID == r.ID {
			return cur, nil
		}
		return l.Activate(ctx, r.ID)
	}
	return nil, artifact.ErrRunNotFound
}

// HandleRunPublished activates the run named by a training event.
func (l *Loader) HandleRunPublished(ctx context.Context, ev events.RunPublished) {
	if _, err := l.Activate(ctx, ev.RunID); err != nil {
		l.logger.Error("failed to activate published run", "run", ev.RunID, "error", err)
	}
}

// Loaded lists the cached run ids and their last access.
func (l *Loader) Loaded() map[string]time.Time {
	l.lock.RLock()
	defer l.lock.RUnlock()
	out := make(map[string]time.Time, len(l.lastAccessed))
	for id, t := range l.lastAccessed {
		out[id] = t
	}
	return out
}

// Run evicts runs unused for idle every sweep and, when poll is positive,
// activates newer runs found on disk. It returns when ctx is done.
func (l *Loader) Run(ctx context.Context, sweep, idle, poll time.Duration) {
	cleanup := time.NewTicker(sweep)
	defer cleanup.Stop()

	var pollC <-chan time.Time
	if poll > 0 {
		t := time.NewTicker(poll)
		defer t.Stop()
		pollC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanup.C:
			l.cleanupInactive(idle)
		case <-pollC:
			if _, err := l.ActivateLatest(ctx); err != nil {
				l.logger.Warn("run poll failed", "error", err)
			}
		}
	}
}

func (l *Loader) cleanupInactive(idle time.Duration) {
	active := ""
	if cur, err := l.registry.Current(); err == nil {
		active = cur.RunID
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	now := time.Now()
	for id, lastAccess := range l.lastAccessed {
		if id != active && now.Sub(lastAccess) > idle {
			delete(l.snapshots, id)
			delete(l.lastAccessed, id)
			l.logger.Debug("unloaded inactive run", "run", id)
		}
	}
}

// Clusters counts the summary rows per entity of a snapshot.
func Clusters(snap *artifact.Snapshot) map[string]int {
	out := make(map[string]int, len(snap.Joiners))
	for _, j := range snap.Joiners {
		out[j.Spec().Entity] = len(j.Table().Rows)
	}
	return out
}
