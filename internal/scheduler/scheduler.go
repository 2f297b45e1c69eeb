// Package scheduler owns the indexing cadence: one full index at startup,
// then periodic incremental runs. Triggers that arrive while a run is
// active are dropped, never queued, so the cadence can't build a backlog.
package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/semantica-dev/codectx/internal/indexer"
)

// DefaultInterval is the incremental indexing cadence.
const DefaultInterval = 5 * time.Minute

// Runner is the subset of the indexer the scheduler drives.
type Runner interface {
	RunFull(ctx context.Context) (*indexer.Result, error)
	RunIncremental(ctx context.Context) (*indexer.Result, error)
	StartFull(ctx context.Context, done func(*indexer.Result, error)) bool
}

// Scheduler drives startup and periodic indexing runs.
type Scheduler struct {
	runner   Runner
	interval time.Duration

	// onRunDone is invoked after every completed run, used to drop the
	// query cache so results reflect the new index.
	onRunDone func()

	wg   sync.WaitGroup
	stop context.CancelFunc
	mu   sync.Mutex
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval overrides the incremental cadence.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithRunDone registers a callback invoked after every completed run.
func WithRunDone(fn func()) Option {
	return func(s *Scheduler) { s.onRunDone = fn }
}

// New creates a Scheduler over the given runner.
func New(runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:   runner,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the startup full index and the incremental ticker. It
// returns immediately; runs happen on a background goroutine until ctx is
// canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}

	ctx, s.stop = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop cancels the scheduling loop and waits for any in-flight run to
// finish committing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()
	if stop == nil {
		return
	}
	stop()
	s.wg.Wait()
}

// TriggerFull requests a full index. The run-lock reservation happens
// before this returns, so a true result means the run was actually taken;
// false means one was already active and the trigger was dropped.
func (s *Scheduler) TriggerFull(ctx context.Context) bool {
	s.wg.Add(1)
	started := s.runner.StartFull(ctx, func(result *indexer.Result, err error) {
		defer s.wg.Done()
		s.report("full", result, err)
	})
	if !started {
		s.wg.Done()
		log.Printf("full index trigger dropped: run already active")
	}
	return started
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	s.runFull(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runIncremental(ctx)
		}
	}
}

func (s *Scheduler) runFull(ctx context.Context) {
	result, err := s.runner.RunFull(ctx)
	s.report("full", result, err)
}

func (s *Scheduler) runIncremental(ctx context.Context) {
	result, err := s.runner.RunIncremental(ctx)
	s.report("incremental", result, err)
}

func (s *Scheduler) report(kind string, result *indexer.Result, err error) {
	switch {
	case errors.Is(err, indexer.ErrRunActive):
		log.Printf("%s index trigger dropped: run already active", kind)
		return
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		log.Printf("%s index run failed: %v", kind, err)
		return
	}

	log.Printf("%s index run done: %d changed, %d deleted, %d embedded, %d reused in %s",
		kind, result.FilesChanged, result.FilesDeleted,
		result.ChunksEmbedded, result.ChunksReused, result.Duration.Round(time.Millisecond))
	if result.Degraded {
		log.Printf("%s index run degraded: %d file(s) deferred to next cycle", kind, len(result.DeferredFiles))
	}

	if s.onRunDone != nil {
		s.onRunDone()
	}
}
