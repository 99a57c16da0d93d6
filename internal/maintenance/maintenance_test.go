package maintenance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
)

type staticRecipes struct {
	mu sync.Mutex
	rs []domain.Recipe
}

func (s *staticRecipes) Snapshot() []domain.Recipe {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Recipe(nil), s.rs...)
}

func (s *staticRecipes) set(rs ...domain.Recipe) {
	s.mu.Lock()
	s.rs = rs
	s.mu.Unlock()
}

type countingSweeper struct {
	calls atomic.Int32
	seen  atomic.Int32
	err   error
}

func (c *countingSweeper) SweepOrphans(_ context.Context, rs []domain.Recipe) (int, error) {
	c.calls.Add(1)
	c.seen.Store(int32(len(rs)))
	return 1, c.err
}

var quiet = logger.New(logger.LevelOff, nil)

func TestSweepUsesSnapshot(t *testing.T) {
	recipes := &staticRecipes{}
	recipes.set(domain.Recipe{ID: "a"}, domain.Recipe{ID: "b"})
	sweeper := &countingSweeper{}
	s := New(recipes, sweeper, quiet)

	assert.Equal(t, 1, s.Sweep(context.Background()))
	assert.EqualValues(t, 2, sweeper.seen.Load())

	sweeper.err = errors.New("disk")
	assert.Zero(t, s.Sweep(context.Background()))
}

func TestSupervisorTicksUntilStopped(t *testing.T) {
	sweeper := &countingSweeper{}
	s := New(&staticRecipes{}, sweeper, quiet, WithSweepInterval(10*time.Millisecond))

	s.Start(context.Background())
	s.Start(context.Background()) // second start is ignored
	require.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	after := sweeper.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, sweeper.calls.Load(), "no sweeps after Stop")
	s.Stop()
}

func TestWatcherReportsHungGenerationsOnce(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	recipes := &staticRecipes{}
	recipes.set(
		domain.Recipe{ID: "hung", State: domain.StateGenerating, CreatedAt: now.Add(-6 * time.Minute)},
		domain.Recipe{ID: "fresh", State: domain.StateGenerating, CreatedAt: now.Add(-1 * time.Minute)},
		domain.Recipe{ID: "old-done", State: domain.StateComplete, CreatedAt: now.Add(-time.Hour)},
	)
	w := NewWatcher(recipes, quiet, WithWatchClock(func() time.Time { return now }))

	assert.Equal(t, []string{"hung"}, w.Check())
	assert.Empty(t, w.Check(), "already reported")

	// Once it leaves Generating and comes back, it is reported again.
	recipes.set(domain.Recipe{ID: "hung", State: domain.StateFailed, CreatedAt: now.Add(-6 * time.Minute)})
	assert.Empty(t, w.Check())
	recipes.set(domain.Recipe{ID: "hung", State: domain.StateGenerating, CreatedAt: now.Add(-6 * time.Minute)})
	assert.Equal(t, []string{"hung"}, w.Check())
}

func TestWatcherNeverMutates(t *testing.T) {
	now := time.Now()
	r := domain.Recipe{ID: "hung", State: domain.StateGenerating, CreatedAt: now.Add(-time.Hour)}
	recipes := &staticRecipes{}
	recipes.set(r)

	NewWatcher(recipes, quiet).Check()
	assert.Equal(t, domain.StateGenerating, recipes.Snapshot()[0].State)
}

func TestNonPositiveIntervalsKeepDefaults(t *testing.T) {
	recipes := &staticRecipes{}
	s := New(recipes, &countingSweeper{}, quiet,
		WithSweepInterval(0),
		WithWatcher(WithWatchInterval(-time.Second)),
	)
	assert.Equal(t, 10*time.Minute, s.sweepInterval)

	w := NewWatcher(recipes, quiet, WithWatchInterval(0))
	assert.Equal(t, 30*time.Second, w.interval)

	// Starting with the rejected values must not panic the tickers.
	s.Start(context.Background())
	s.Stop()
}
