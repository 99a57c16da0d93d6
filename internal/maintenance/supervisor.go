// Package maintenance runs the slow background housekeeping: sweeping
// checklist groups whose recipe is gone and flagging generations that
// have been running suspiciously long.
package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
)

// Snapshotter provides the current recipe list.
type Snapshotter interface {
	Snapshot() []domain.Recipe
}

// Sweeper drops checklist groups that no longer have a recipe.
type Sweeper interface {
	SweepOrphans(ctx context.Context, recipes []domain.Recipe) (int, error)
}

// Option configures the supervisor.
type Option func(*Supervisor)

// WithSweepInterval sets how often orphaned checklists are swept.
// Non-positive values keep the default.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithWatcher enables the hung-generation watcher.
func WithWatcher(opts ...WatcherOption) Option {
	return func(s *Supervisor) {
		s.watch = true
		s.watcherOpts = opts
	}
}

// Supervisor runs the orphan sweep on a ticker, and optionally a Watcher
// on its own cycle.
type Supervisor struct {
	recipes       Snapshotter
	sweeper       Sweeper
	log           *logger.Logger
	sweepInterval time.Duration

	watch       bool
	watcherOpts []WatcherOption
	watcher     *Watcher

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    sync.WaitGroup
}

// New creates a supervisor.
func New(recipes Snapshotter, sweeper Sweeper, log *logger.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		recipes:       recipes,
		sweeper:       sweeper,
		log:           log,
		sweepInterval: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the background loops. Non-blocking.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.log.Warn("maintenance supervisor already running")
		return
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.done.Add(1)
	go func() {
		defer s.done.Done()
		s.loop(childCtx)
	}()

	if s.watch {
		s.watcher = NewWatcher(s.recipes, s.log, s.watcherOpts...)
		s.done.Add(1)
		go func() {
			defer s.done.Done()
			s.watcher.Run(childCtx)
		}()
	}

	s.log.Info("maintenance supervisor started (sweep=%s)", s.sweepInterval)
}

// Stop shuts the loops down and waits for them to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.done.Wait()
	s.log.Info("maintenance supervisor stopped")
}

func (s *Supervisor) loop(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one orphan sweep against the current snapshot and returns
// how many groups were removed.
func (s *Supervisor) Sweep(ctx context.Context) int {
	n, err := s.sweeper.SweepOrphans(ctx, s.recipes.Snapshot())
	if err != nil {
		s.log.Error("maintenance: sweeping checklists: %v", err)
		return 0
	}
	if n > 0 {
		s.log.Debug("maintenance: swept %d checklist groups", n)
	}
	return n
}
