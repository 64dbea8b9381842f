// Package runner manages simulation runs for the serving layer: it builds
// engines over a shared master-data store, executes them on their own
// goroutines, keeps a registry of descriptors and results, and archives
// finished runs to an optional result store.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hsichihchen-design/cpdoldsim/internal/eventsink"
	"github.com/hsichihchen-design/cpdoldsim/internal/masterdata"
	"github.com/hsichihchen-design/cpdoldsim/internal/scheduler"
	"github.com/hsichihchen-design/cpdoldsim/pkg/metrics"
)

// Registry errors.
var (
	ErrRunNotFound    = errors.New("run not found")
	ErrNotFinished    = errors.New("run not finished")
	ErrNotStarted     = errors.New("run not started")
	ErrAlreadyStarted = errors.New("run already started")
)

// Timeout for archiving a finished run; independent of the run context,
// which may already be cancelled.
const saveTimeout = 10 * time.Second

// Descriptor is the public view of a registered run.
type Descriptor struct {
	RunID      string           `json:"run_id" bson:"run_id"`
	State      scheduler.State  `json:"state" bson:"state"`
	Config     scheduler.Config `json:"config" bson:"config"`
	CreatedAt  time.Time        `json:"created_at" bson:"created_at"`
	StartedAt  *time.Time       `json:"started_at,omitempty" bson:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty" bson:"finished_at,omitempty"`
}

// RunRecord is the archived form of a finished run.
type RunRecord struct {
	Descriptor Descriptor          `json:"descriptor" bson:"descriptor"`
	Results    *scheduler.RunStats `json:"results" bson:"results"`
}

// ResultStore archives finished runs. FetchRun returns ErrRunNotFound when
// the id is unknown. Implementations must be safe for concurrent use.
type ResultStore interface {
	SaveRun(ctx context.Context, record *RunRecord) error
	FetchRun(ctx context.Context, runID string) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)
}

type runEntry struct {
	descriptor Descriptor
	engine     *scheduler.Engine
	results    *scheduler.RunStats
	cancel     context.CancelFunc
	done       chan struct{}
	started    bool
}

// Runner is the run registry. The engine itself is single-goroutine and
// lock-free; the registry mutex is what lets HTTP handlers create, start,
// inspect and cancel runs concurrently.
type Runner struct {
	store *masterdata.Store
	sink  eventsink.Sink
	repo  ResultStore
	mon   *metrics.Metrics
	log   *slog.Logger

	mu    sync.RWMutex
	runs  map[string]*runEntry
	order []string
}

// NewRunner builds a run registry over a loaded master-data store. Sink,
// result store and metrics are optional; a nil logger falls back to the
// process default.
func NewRunner(store *masterdata.Store, sink eventsink.Sink, repo ResultStore, mon *metrics.Metrics, logger *slog.Logger) (*Runner, error) {
	if store == nil {
		return nil, errors.New("runner: nil master-data store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store: store,
		sink:  sink,
		repo:  repo,
		mon:   mon,
		log:   logger.With("component", "runner"),
		runs:  make(map[string]*runEntry),
	}, nil
}

// Create builds and initializes an engine for the configuration and
// registers it. The run does not execute until Start.
func (r *Runner) Create(cfg scheduler.Config) (Descriptor, error) {
	return r.CreateWith(r.store, cfg)
}

// CreateWith registers a run over a store other than the runner's default.
// The serving layer uses it for runs that carry parameter overrides: those
// get their own store built from an overridden bundle.
func (r *Runner) CreateWith(store *masterdata.Store, cfg scheduler.Config) (Descriptor, error) {
	engine, err := scheduler.NewEngine(store, cfg, r.sink, r.mon, r.log)
	if err != nil {
		return Descriptor{}, err
	}
	runID, err := engine.Initialize()
	if err != nil {
		return Descriptor{}, err
	}

	entry := &runEntry{
		descriptor: Descriptor{
			RunID:     runID,
			State:     engine.State(),
			Config:    cfg,
			CreatedAt: time.Now().UTC(),
		},
		engine: engine,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	r.runs[runID] = entry
	r.order = append(r.order, runID)
	r.mu.Unlock()

	r.log.Info("run registered", "run_id", runID,
		"start", cfg.StartDate.Format("2006-01-02"),
		"end", cfg.EndDate.Format("2006-01-02"),
		"seed", cfg.Seed)
	return entry.descriptor, nil
}

// Start launches the run on its own goroutine. It may be called once per
// run.
func (r *Runner) Start(runID string) error {
	r.mu.Lock()
	entry, ok := r.runs[runID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if entry.started {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, runID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	entry.started = true
	entry.cancel = cancel
	entry.descriptor.State = scheduler.StateRunning
	now := time.Now().UTC()
	entry.descriptor.StartedAt = &now
	r.mu.Unlock()

	go r.execute(ctx, entry)
	return nil
}

// execute drives one run to completion and records the outcome.
func (r *Runner) execute(ctx context.Context, entry *runEntry) {
	defer close(entry.done)

	if r.mon != nil {
		r.mon.RecordRunStarted()
	}

	runErr := entry.engine.Run(ctx)
	stats := entry.engine.Stats()

	r.mu.Lock()
	entry.results = stats
	entry.descriptor.State = stats.State
	now := time.Now().UTC()
	entry.descriptor.FinishedAt = &now
	record := &RunRecord{Descriptor: entry.descriptor, Results: stats}
	r.mu.Unlock()

	if r.mon != nil {
		r.mon.RecordRunCompleted(string(stats.State), stats.WallEnd.Sub(stats.WallStart))
	}
	if runErr != nil {
		r.log.Error("run finished with error", "run_id", stats.RunID, "state", stats.State, "error", runErr)
	}

	if r.repo != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := r.repo.SaveRun(saveCtx, record); err != nil {
			r.log.Error("failed to archive run", "run_id", stats.RunID, "error", err)
		}
	}
}

// Wait blocks until the run finishes or the context expires, then returns
// its results.
func (r *Runner) Wait(ctx context.Context, runID string) (*scheduler.RunStats, error) {
	r.mu.RLock()
	entry, ok := r.runs[runID]
	if !ok {
		r.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if !entry.started {
		r.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", ErrNotStarted, runID)
	}
	done := entry.done
	r.mu.RUnlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return entry.results, nil
}

// RunSync creates, starts and waits for a run in one call. It serves the
// batch CLI and the scenario runner.
func (r *Runner) RunSync(ctx context.Context, cfg scheduler.Config) (*scheduler.RunStats, error) {
	descriptor, err := r.Create(cfg)
	if err != nil {
		return nil, err
	}
	if err := r.Start(descriptor.RunID); err != nil {
		return nil, err
	}
	return r.Wait(ctx, descriptor.RunID)
}

// Cancel stops a running simulation. The run settles into CANCELLED with
// partial results.
func (r *Runner) Cancel(runID string) error {
	r.mu.RLock()
	entry, ok := r.runs[runID]
	if !ok {
		r.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if !entry.started {
		r.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrNotStarted, runID)
	}
	cancel := entry.cancel
	r.mu.RUnlock()

	cancel()
	return nil
}

// Get returns the descriptor for a run, falling back to the archive for
// runs from earlier processes.
func (r *Runner) Get(ctx context.Context, runID string) (Descriptor, error) {
	r.mu.RLock()
	entry, ok := r.runs[runID]
	if ok {
		descriptor := entry.descriptor
		r.mu.RUnlock()
		return descriptor, nil
	}
	r.mu.RUnlock()

	if r.repo == nil {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	record, err := r.repo.FetchRun(ctx, runID)
	if err != nil {
		return Descriptor{}, err
	}
	return record.Descriptor, nil
}

// Results returns the final results of a finished run, falling back to the
// archive.
func (r *Runner) Results(ctx context.Context, runID string) (*scheduler.RunStats, error) {
	r.mu.RLock()
	entry, ok := r.runs[runID]
	if ok {
		results := entry.results
		r.mu.RUnlock()
		if results == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFinished, runID)
		}
		return results, nil
	}
	r.mu.RUnlock()

	if r.repo == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	record, err := r.repo.FetchRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return record.Results, nil
}

// List returns descriptors newest-first: every run in this process, plus
// archived runs not in the registry. An unreachable archive degrades the
// list to live runs only.
func (r *Runner) List(ctx context.Context, limit int) ([]Descriptor, error) {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.order))
	seen := make(map[string]bool, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		id := r.order[i]
		out = append(out, r.runs[id].descriptor)
		seen[id] = true
	}
	r.mu.RUnlock()

	if r.repo != nil {
		records, err := r.repo.ListRuns(ctx, limit)
		if err != nil {
			r.log.Warn("archive unavailable, listing live runs only", "error", err)
		}
		for _, record := range records {
			if !seen[record.Descriptor.RunID] {
				out = append(out, record.Descriptor)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Active counts runs that have started and not yet finished.
func (r *Runner) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	active := 0
	for _, entry := range r.runs {
		if entry.started && entry.results == nil {
			active++
		}
	}
	return active
}

// Shutdown cancels every active run and waits for them to settle, bounded
// by the context.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	var pending []chan struct{}
	for _, entry := range r.runs {
		if !entry.started {
			continue
		}
		select {
		case <-entry.done:
		default:
			entry.cancel()
			pending = append(pending, entry.done)
		}
	}
	r.mu.RUnlock()

	for _, done := range pending {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
		}
	}
	return nil
}
