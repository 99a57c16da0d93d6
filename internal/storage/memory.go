// Package storage provides recipe and checklist persistence
// implementations.
package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
)

// Compile-time interface checks.
var (
	_ domain.RecordStore    = (*MemoryStore)(nil)
	_ domain.ChecklistStore = (*MemoryStore)(nil)
)

// MemoryStore is an in-memory record store. Safe for concurrent access.
// Backs tests and the "memory" store driver.
type MemoryStore struct {
	mu         sync.RWMutex
	recipes    map[string]domain.Recipe
	checklists []domain.ChecklistGroup
	hooks      hooks
	log        *logger.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(log *logger.Logger) *MemoryStore {
	return &MemoryStore{
		recipes: make(map[string]domain.Recipe),
		log:     log,
	}
}

// Upsert persists a recipe. Overwrites if it already exists.
func (s *MemoryStore) Upsert(ctx context.Context, r domain.Recipe) error {
	s.mu.Lock()
	s.log.Debug("upserting recipe %s (state=%s)", r.ID, r.State)
	s.recipes[r.ID] = r.Clone()
	s.mu.Unlock()

	s.hooks.fire()
	return nil
}

// Get retrieves a recipe by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (domain.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.recipes[id]
	if !ok {
		s.log.Debug("recipe not found: %s", id)
		return domain.Recipe{}, domain.ErrNotFound
	}
	return r.Clone(), nil
}

// Delete removes a recipe by ID.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.recipes[id]; !ok {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	delete(s.recipes, id)
	s.log.Debug("deleted recipe %s", id)
	s.mu.Unlock()

	s.hooks.fire()
	return nil
}

// All returns every recipe, newest first.
func (s *MemoryStore) All(ctx context.Context) ([]domain.Recipe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Recipe, 0, len(s.recipes))
	for _, r := range s.recipes {
		out = append(out, r.Clone())
	}
	sortNewestFirst(out)
	return out, nil
}

// OnChange registers a callback fired after every committed write.
func (s *MemoryStore) OnChange(fn func()) {
	s.hooks.add(fn)
}

// SaveChecklists replaces the stored checklist groups.
func (s *MemoryStore) SaveChecklists(ctx context.Context, groups []domain.ChecklistGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checklists = make([]domain.ChecklistGroup, len(groups))
	for i, g := range groups {
		s.checklists[i] = g.Clone()
	}
	return nil
}

// LoadChecklists returns the stored checklist groups.
func (s *MemoryStore) LoadChecklists(ctx context.Context) ([]domain.ChecklistGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ChecklistGroup, len(s.checklists))
	for i, g := range s.checklists {
		out[i] = g.Clone()
	}
	return out, nil
}

// sortNewestFirst orders by creation time descending, then by ID so ties
// stay stable between calls.
func sortNewestFirst(rs []domain.Recipe) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.After(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}

// hooks is the change-callback list shared by the store implementations.
// Callbacks run outside the store lock so they may read the store.
type hooks struct {
	mu  sync.Mutex
	fns []func()
}

func (h *hooks) add(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fns = append(h.fns, fn)
}

func (h *hooks) fire() {
	h.mu.Lock()
	fns := append([]func(){}, h.fns...)
	h.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
