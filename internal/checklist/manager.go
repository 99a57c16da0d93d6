package checklist

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
)

// Option configures the manager.
type Option func(*Manager)

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager owns every checklist group. Groups are replaced wholesale on
// each change and the full list is persisted after every mutation.
type Manager struct {
	store domain.ChecklistStore
	log   *logger.Logger
	now   func() time.Time

	mu     sync.Mutex
	groups map[domain.GroupKey]domain.ChecklistGroup
}

// NewManager creates a manager backed by store. Call Load once at startup.
func NewManager(store domain.ChecklistStore, log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		log:    log,
		now:    time.Now,
		groups: make(map[domain.GroupKey]domain.ChecklistGroup),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load reads the persisted groups. Duplicate entries within a group are
// dropped so the no-duplicate-ID invariant holds even for damaged data.
func (m *Manager) Load(ctx context.Context) error {
	groups, err := m.store.LoadChecklists(ctx)
	if err != nil {
		return fmt.Errorf("loading checklists: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.groups = make(map[domain.GroupKey]domain.ChecklistGroup, len(groups))
	for _, g := range groups {
		m.groups[g.Key()] = dedupe(g)
	}
	m.log.Info("loaded %d checklist groups", len(m.groups))
	return nil
}

// Group returns the group for (r, category), deriving and persisting it
// the first time it is requested.
func (m *Manager) Group(ctx context.Context, r domain.Recipe, category domain.Category) (domain.ChecklistGroup, error) {
	if !category.Valid() {
		return domain.ChecklistGroup{}, fmt.Errorf("%w: unknown checklist category %q", domain.ErrValidation, category)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := domain.GroupKey{FormulaID: r.ID, Category: category}
	if g, ok := m.groups[key]; ok {
		return g.Clone(), nil
	}

	g := Derive(r, category, m.now())
	if err := m.commit(ctx, key, &g); err != nil {
		return domain.ChecklistGroup{}, err
	}
	m.log.Debug("created checklist %s/%s with %d entries", r.ID, category, len(g.Entries))
	return g.Clone(), nil
}

// Rederive rebuilds the group from r, keeping completion state for
// entries whose IDs survive.
func (m *Manager) Rederive(ctx context.Context, r domain.Recipe, category domain.Category) (domain.ChecklistGroup, error) {
	if !category.Valid() {
		return domain.ChecklistGroup{}, fmt.Errorf("%w: unknown checklist category %q", domain.ErrValidation, category)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := domain.GroupKey{FormulaID: r.ID, Category: category}
	g := Derive(r, category, m.now())
	if prev, ok := m.groups[key]; ok {
		g = carryCompletion(prev, g)
	}
	if err := m.commit(ctx, key, &g); err != nil {
		return domain.ChecklistGroup{}, err
	}
	return g.Clone(), nil
}

// Refresh re-derives every group r has at the time of the call, in one
// step, so groups removed concurrently are never brought back. Categories
// that were never opened stay underived.
func (m *Manager) Refresh(ctx context.Context, r domain.Recipe) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.groups
	next := make(map[domain.GroupKey]domain.ChecklistGroup, len(prev))
	n := 0
	for key, g := range prev {
		if key.FormulaID == r.ID {
			g = dedupe(carryCompletion(g, Derive(r, key.Category, m.now())))
			n++
		}
		next[key] = g
	}
	if n == 0 {
		return 0, nil
	}

	m.groups = next
	if err := m.persistLocked(ctx); err != nil {
		m.groups = prev
		return 0, err
	}
	return n, nil
}

// Toggle flips one entry. A missing group or entry is logged and
// reported as false, never as an error.
func (m *Manager) Toggle(ctx context.Context, recipeID string, category domain.Category, entryID string) (domain.ChecklistGroup, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := domain.GroupKey{FormulaID: recipeID, Category: category}
	g, ok := m.groups[key]
	if !ok {
		m.log.Warn("toggle: no checklist %s/%s", recipeID, category)
		return domain.ChecklistGroup{}, false, nil
	}

	next, changed := Toggle(g, entryID, m.now())
	if !changed {
		m.log.Warn("toggle: no entry %s in checklist %s/%s", entryID, recipeID, category)
		return g.Clone(), false, nil
	}
	if err := m.commit(ctx, key, &next); err != nil {
		return domain.ChecklistGroup{}, false, err
	}
	return next.Clone(), true, nil
}

// RemoveGroupsFor deletes every group owned by recipeID and returns how
// many were removed.
func (m *Manager) RemoveGroupsFor(ctx context.Context, recipeID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.removeWhere(ctx, func(g domain.ChecklistGroup) bool {
		return g.FormulaID == recipeID
	})
}

// SweepOrphans removes every group whose recipe is not in recipes (the
// repository's current snapshot) and returns how many were removed.
func (m *Manager) SweepOrphans(ctx context.Context, recipes []domain.Recipe) (int, error) {
	live := make(map[string]struct{}, len(recipes))
	for _, r := range recipes {
		live[r.ID] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.removeWhere(ctx, func(g domain.ChecklistGroup) bool {
		_, ok := live[g.FormulaID]
		return !ok
	})
	if n > 0 {
		m.log.Info("swept %d orphaned checklist groups", n)
	}
	return n, err
}

// Groups returns every group ordered by recipe then category.
func (m *Manager) Groups() []domain.ChecklistGroup {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked()
}

// GroupsFor returns the groups owned by recipeID.
func (m *Manager) GroupsFor(recipeID string) []domain.ChecklistGroup {
	var out []domain.ChecklistGroup
	for _, g := range m.Groups() {
		if g.FormulaID == recipeID {
			out = append(out, g)
		}
	}
	return out
}

func (m *Manager) removeWhere(ctx context.Context, match func(domain.ChecklistGroup) bool) (int, error) {
	prev := m.groups
	next := make(map[domain.GroupKey]domain.ChecklistGroup, len(prev))
	removed := 0
	for k, g := range prev {
		if match(g) {
			removed++
			continue
		}
		next[k] = g
	}
	if removed == 0 {
		return 0, nil
	}

	m.groups = next
	if err := m.persistLocked(ctx); err != nil {
		m.groups = prev
		return 0, err
	}
	return removed, nil
}

// commit installs g under key and persists; on failure the previous map
// is restored so memory and storage stay in step.
func (m *Manager) commit(ctx context.Context, key domain.GroupKey, g *domain.ChecklistGroup) error {
	*g = dedupe(*g)

	prev, had := m.groups[key]
	m.groups[key] = *g
	if err := m.persistLocked(ctx); err != nil {
		if had {
			m.groups[key] = prev
		} else {
			delete(m.groups, key)
		}
		return err
	}
	return nil
}

func (m *Manager) persistLocked(ctx context.Context) error {
	if err := m.store.SaveChecklists(ctx, m.listLocked()); err != nil {
		m.log.Error("persisting checklists: %v", err)
		return fmt.Errorf("persisting checklists: %w", err)
	}
	return nil
}

func (m *Manager) listLocked() []domain.ChecklistGroup {
	out := make([]domain.ChecklistGroup, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, g.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FormulaID != out[j].FormulaID {
			return out[i].FormulaID < out[j].FormulaID
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// dedupe keeps the first entry for each ID.
func dedupe(g domain.ChecklistGroup) domain.ChecklistGroup {
	seen := make(map[string]struct{}, len(g.Entries))
	out := g.Entries[:0:0]
	for _, e := range g.Entries {
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	g.Entries = out
	return g
}
