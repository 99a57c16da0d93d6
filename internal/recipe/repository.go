// Package recipe provides the reactive recipe repository: an in-memory
// snapshot of every persisted recipe, republished wholesale to all
// subscribers after each committed write.
package recipe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
)

// Repository wraps a RecordStore. Writes are serialized; reads never touch
// the store.
type Repository struct {
	store domain.RecordStore
	log   *logger.Logger

	// writeMu is the single write path. Operations on one ID are applied
	// in submission order.
	writeMu sync.Mutex

	snapMu sync.RWMutex
	snap   []domain.Recipe
	byID   map[string]int

	subMu  sync.Mutex
	subs   map[int]chan []domain.Recipe
	nextID int
}

// New creates a repository over store and hooks into its change
// callback. Call Load before serving reads.
func New(store domain.RecordStore, log *logger.Logger) *Repository {
	r := &Repository{
		store: store,
		log:   log,
		byID:  make(map[string]int),
		subs:  make(map[int]chan []domain.Recipe),
	}
	store.OnChange(r.refresh)
	return r
}

// Load materializes the snapshot from the store.
func (r *Repository) Load(ctx context.Context) error {
	all, err := r.store.All(ctx)
	if err != nil {
		return fmt.Errorf("loading recipes: %w", err)
	}
	r.publish(all)
	r.log.Info("loaded %d recipes", len(all))
	return nil
}

// Snapshot returns the current recipes, newest first. The slice is a copy.
func (r *Repository) Snapshot() []domain.Recipe {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()
	return cloneAll(r.snap)
}

// Get returns one recipe from the snapshot.
func (r *Repository) Get(id string) (domain.Recipe, error) {
	r.snapMu.RLock()
	defer r.snapMu.RUnlock()

	i, ok := r.byID[id]
	if !ok {
		return domain.Recipe{}, domain.ErrNotFound
	}
	return r.snap[i].Clone(), nil
}

// Subscribe returns a channel that receives the full recipe list after
// every committed mutation, starting with the current snapshot. A slow
// reader only ever sees the latest list. Call cancel to unsubscribe.
func (r *Repository) Subscribe() (<-chan []domain.Recipe, func()) {
	ch := make(chan []domain.Recipe, 1)

	// Registering and seeding under subMu means no publish can slip
	// between the two.
	r.subMu.Lock()
	ch <- r.Snapshot()
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	r.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, id)
			r.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Save inserts or replaces rec by ID.
func (r *Repository) Save(ctx context.Context, rec domain.Recipe) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("saving recipe %s: %w", rec.ID, err)
	}
	return nil
}

// Update replaces an existing recipe. Returns ErrNotFound when no record
// with rec.ID exists.
func (r *Repository) Update(ctx context.Context, rec domain.Recipe) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if _, err := r.store.Get(ctx, rec.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("updating recipe %s: %w", rec.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("updating recipe %s: %w", rec.ID, err)
	}
	if err := r.store.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("updating recipe %s: %w", rec.ID, err)
	}
	return nil
}

// Delete removes a recipe. Deleting a missing ID is a no-op.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	err := r.store.Delete(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		r.log.Debug("delete of absent recipe %s ignored", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting recipe %s: %w", id, err)
	}
	return nil
}

// refresh re-reads the store after a committed write. It runs inside the
// writer's critical section, so snapshots are published in commit order.
func (r *Repository) refresh() {
	all, err := r.store.All(context.Background())
	if err != nil {
		// Keep the previous snapshot; the next successful commit repairs it.
		r.log.Error("refreshing snapshot: %v", err)
		return
	}
	r.publish(all)
}

func (r *Repository) publish(all []domain.Recipe) {
	byID := make(map[string]int, len(all))
	for i, rec := range all {
		byID[rec.ID] = i
	}

	r.snapMu.Lock()
	r.snap = all
	r.byID = byID
	r.snapMu.Unlock()

	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		// Drop any undelivered list; the new one supersedes it.
		select {
		case <-ch:
		default:
		}
		ch <- cloneAll(all)
	}
	r.log.Debug("published snapshot (%d recipes, %d subscribers)", len(all), len(r.subs))
}

func cloneAll(rs []domain.Recipe) []domain.Recipe {
	out := make([]domain.Recipe, len(rs))
	for i, rec := range rs {
		out[i] = rec.Clone()
	}
	return out
}
