package maintenance

import (
	"context"
	"time"

	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
)

// WatcherOption configures the watcher.
type WatcherOption func(*Watcher)

// WithWatchInterval sets how often the watcher looks. Non-positive
// values keep the default.
func WithWatchInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithHangThreshold sets how long a generation may run before it is
// reported.
func WithHangThreshold(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.threshold = d
	}
}

// WithWatchClock overrides time.Now.
func WithWatchClock(now func() time.Time) WatcherOption {
	return func(w *Watcher) {
		w.now = now
	}
}

// Watcher logs generations that have been Generating for longer than the
// threshold. It never changes a record: a live generation is left to
// finish or be cancelled by the user.
type Watcher struct {
	recipes   Snapshotter
	log       *logger.Logger
	interval  time.Duration
	threshold time.Duration
	now       func() time.Time

	reported map[string]struct{}
}

// NewWatcher creates a watcher.
func NewWatcher(recipes Snapshotter, log *logger.Logger, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		recipes:   recipes,
		log:       log,
		interval:  30 * time.Second,
		threshold: 5 * time.Minute,
		now:       time.Now,
		reported:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts the watcher loop. Blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("watcher started (interval=%s, threshold=%s)", w.interval, w.threshold)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watcher stopped")
			return
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check runs one cycle and returns the IDs newly reported as hung. Each
// record is reported once while it stays Generating.
func (w *Watcher) Check() []string {
	now := w.now()
	var hung []string
	still := make(map[string]struct{})

	for _, r := range w.recipes.Snapshot() {
		if r.State != domain.StateGenerating {
			continue
		}
		age := now.Sub(r.CreatedAt)
		if age <= w.threshold {
			continue
		}
		still[r.ID] = struct{}{}
		if _, done := w.reported[r.ID]; done {
			continue
		}
		w.log.Warn("generation %s still running after %s", r.ID, age.Round(time.Second))
		hung = append(hung, r.ID)
	}

	w.reported = still
	return hung
}
