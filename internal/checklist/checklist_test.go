package checklist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
	"github.com/hammamikhairi/mealscribe/internal/storage"
)

func dumplings() domain.Recipe {
	return domain.Recipe{
		ID:   "r-42",
		Name: "Pork dumplings",
		Ingredients: domain.IngredientGroups{
			Main: []domain.Ingredient{
				{Name: "ground pork", Quantity: "300 g"},
				{Name: "dumpling wrappers", Quantity: "30"},
			},
			Seasoning: []domain.Ingredient{{Name: "soy sauce", Quantity: "1 tbsp", Category: "liquid"}},
			Dip: []domain.Ingredient{
				{Name: "black vinegar", Quantity: "2 tbsp"},
				{Name: "chili oil", Quantity: "1 tsp"},
			},
		},
		PreparationSteps: []string{"Mix filling", "Fold dumplings"},
		CookingSteps:     []string{"Pan fry", "Steam"},
		State:            domain.StateAwaitingImage,
	}
}

func ids(entries []domain.ChecklistEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestEntryIDDeterministic(t *testing.T) {
	assert.Equal(t, "r-42_steps_3", EntryID("r-42", domain.CategorySteps, 3))
	assert.Equal(t, EntryID("a", domain.CategorySauce, 0), EntryID("a", domain.CategorySauce, 0))
	assert.NotEqual(t, EntryID("a", domain.CategorySauce, 0), EntryID("a", domain.CategoryIngredients, 0))
}

func TestDeriveIsIdempotent(t *testing.T) {
	r := dumplings()
	for _, cat := range domain.Categories {
		t.Run(string(cat), func(t *testing.T) {
			a := Derive(r, cat, time.Unix(1, 0))
			b := Derive(r, cat, time.Unix(2, 0))
			assert.Equal(t, ids(a.Entries), ids(b.Entries))
			assert.Len(t, b.Entries, len(a.Entries))
		})
	}
}

func TestDeriveCategories(t *testing.T) {
	r := dumplings()
	now := time.Unix(100, 0)

	ing := Derive(r, domain.CategoryIngredients, now)
	require.Len(t, ing.Entries, 3)
	assert.Equal(t, "ground pork", ing.Entries[0].Title)
	assert.Equal(t, "300 g", ing.Entries[0].Subtitle)
	assert.Equal(t, "soy sauce", ing.Entries[2].Title)
	assert.Equal(t, "1 tbsp · liquid", ing.Entries[2].Subtitle)
	assert.Equal(t, 2, ing.Entries[2].OriginalIndex)

	steps := Derive(r, domain.CategorySteps, now)
	require.Len(t, steps.Entries, 4)
	assert.Equal(t, "Mix filling", steps.Entries[0].Title)
	assert.Equal(t, "prep 1/2", steps.Entries[0].Subtitle)
	assert.Equal(t, "Steam", steps.Entries[3].Title)
	assert.Equal(t, "cook 2/2", steps.Entries[3].Subtitle)

	sauce := Derive(r, domain.CategorySauce, now)
	assert.Equal(t, []string{"r-42_sauce_0", "r-42_sauce_1"}, ids(sauce.Entries))
	assert.Equal(t, "r-42", sauce.FormulaID)
	assert.True(t, sauce.UpdatedAt.Equal(now))
}

func TestToggleIsPureAndStamps(t *testing.T) {
	g := Derive(dumplings(), domain.CategorySauce, time.Unix(1, 0))
	at := time.Unix(50, 0)

	next, ok := Toggle(g, "r-42_sauce_1", at)
	require.True(t, ok)
	assert.True(t, next.Entries[1].Completed)
	assert.True(t, next.Entries[1].UpdatedAt.Equal(at))
	assert.True(t, next.UpdatedAt.Equal(at))
	assert.False(t, g.Entries[1].Completed, "input untouched")

	back, ok := Toggle(next, "r-42_sauce_1", at.Add(time.Second))
	require.True(t, ok)
	assert.False(t, back.Entries[1].Completed)

	same, ok := Toggle(g, "nope", at)
	assert.False(t, ok)
	assert.Equal(t, g, same)
}

func TestSortedItemsOrdering(t *testing.T) {
	g := domain.ChecklistGroup{Entries: []domain.ChecklistEntry{
		{ID: "e0", OriginalIndex: 0, Completed: true, UpdatedAt: time.Unix(20, 0)},
		{ID: "e1", OriginalIndex: 1, Completed: true, UpdatedAt: time.Unix(10, 0)},
		{ID: "e2", OriginalIndex: 2},
	}}

	assert.Equal(t, []string{"e2", "e1", "e0"}, ids(SortedItems(g)))
}

func TestSortedItemsIncompleteByOriginalIndex(t *testing.T) {
	g := domain.ChecklistGroup{Entries: []domain.ChecklistEntry{
		{ID: "e3", OriginalIndex: 3, UpdatedAt: time.Unix(1, 0)},
		{ID: "e1", OriginalIndex: 1, UpdatedAt: time.Unix(99, 0)},
		{ID: "e2", OriginalIndex: 2, Completed: true, UpdatedAt: time.Unix(5, 0)},
		{ID: "e0", OriginalIndex: 0, UpdatedAt: time.Unix(50, 0)},
	}}

	assert.Equal(t, []string{"e0", "e1", "e3", "e2"}, ids(SortedItems(g)))
}

// fakeClock returns increasing instants one second apart.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func setupManager(t *testing.T) (*Manager, *storage.MemoryStore, context.Context) {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	store := storage.NewMemoryStore(log)
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := NewManager(store, log, WithClock(clock.now))
	ctx := context.Background()
	require.NoError(t, m.Load(ctx))
	return m, store, ctx
}

func TestManagerGroupIsLazyAndStable(t *testing.T) {
	m, store, ctx := setupManager(t)
	r := dumplings()

	assert.Empty(t, m.Groups())

	g1, err := m.Group(ctx, r, domain.CategoryIngredients)
	require.NoError(t, err)
	g2, err := m.Group(ctx, r, domain.CategoryIngredients)
	require.NoError(t, err)
	assert.Equal(t, g1, g2, "second view returns the stored group")

	persisted, err := store.LoadChecklists(ctx)
	require.NoError(t, err)
	assert.Len(t, persisted, 1)

	_, err = m.Group(ctx, r, domain.Category("garnish"))
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestManagerTogglePersists(t *testing.T) {
	m, store, ctx := setupManager(t)
	r := dumplings()
	_, err := m.Group(ctx, r, domain.CategorySteps)
	require.NoError(t, err)

	g, ok, err := m.Toggle(ctx, r.ID, domain.CategorySteps, EntryID(r.ID, domain.CategorySteps, 0))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, g.Completed())

	persisted, err := store.LoadChecklists(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.True(t, persisted[0].Entries[0].Completed)

	_, ok, err = m.Toggle(ctx, r.ID, domain.CategorySteps, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = m.Toggle(ctx, "no-recipe", domain.CategorySteps, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManagerRederiveKeepsCompletion(t *testing.T) {
	m, _, ctx := setupManager(t)
	r := dumplings()
	_, err := m.Group(ctx, r, domain.CategorySauce)
	require.NoError(t, err)
	_, _, err = m.Toggle(ctx, r.ID, domain.CategorySauce, EntryID(r.ID, domain.CategorySauce, 0))
	require.NoError(t, err)

	r.Ingredients.Dip = append(r.Ingredients.Dip, domain.Ingredient{Name: "scallion"})
	g, err := m.Rederive(ctx, r, domain.CategorySauce)
	require.NoError(t, err)

	require.Len(t, g.Entries, 3)
	assert.True(t, g.Entries[0].Completed)
	assert.False(t, g.Entries[2].Completed)
	assert.Len(t, m.Groups(), 1, "re-derivation replaces, never duplicates")
}

func TestManagerRefreshOnlyTouchesOpenedGroups(t *testing.T) {
	m, _, ctx := setupManager(t)
	r := dumplings()
	_, err := m.Group(ctx, r, domain.CategorySauce)
	require.NoError(t, err)

	r.Ingredients.Dip = append(r.Ingredients.Dip, domain.Ingredient{Name: "scallion"})
	n, err := m.Refresh(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	groups := m.GroupsFor(r.ID)
	require.Len(t, groups, 1, "unopened categories stay underived")
	assert.Len(t, groups[0].Entries, 3)
}

func TestManagerRefreshAfterRemovalRecreatesNothing(t *testing.T) {
	m, store, ctx := setupManager(t)
	r := dumplings()
	_, err := m.Group(ctx, r, domain.CategorySauce)
	require.NoError(t, err)
	_, err = m.Group(ctx, r, domain.CategoryIngredients)
	require.NoError(t, err)

	removed, err := m.RemoveGroupsFor(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	n, err := m.Refresh(ctx, r)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, m.GroupsFor(r.ID))

	persisted, err := store.LoadChecklists(ctx)
	require.NoError(t, err)
	assert.Empty(t, persisted, "removed groups stay removed in storage")
}

func TestRemoveGroupsForThenSweepFindsNothing(t *testing.T) {
	m, _, ctx := setupManager(t)
	keep := dumplings()
	gone := dumplings()
	gone.ID = "r-gone"

	for _, cat := range domain.Categories {
		_, err := m.Group(ctx, keep, cat)
		require.NoError(t, err)
		_, err = m.Group(ctx, gone, cat)
		require.NoError(t, err)
	}

	n, err := m.RemoveGroupsFor(ctx, gone.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, m.GroupsFor(gone.ID))

	n, err = m.SweepOrphans(ctx, []domain.Recipe{keep})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, m.GroupsFor(keep.ID), 3)
}

func TestSweepOrphansRemovesUnknownOwners(t *testing.T) {
	m, store, ctx := setupManager(t)
	a := dumplings()
	b := dumplings()
	b.ID = "r-b"

	_, err := m.Group(ctx, a, domain.CategoryIngredients)
	require.NoError(t, err)
	_, err = m.Group(ctx, b, domain.CategoryIngredients)
	require.NoError(t, err)

	n, err := m.SweepOrphans(ctx, []domain.Recipe{b})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	persisted, err := store.LoadChecklists(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, "r-b", persisted[0].FormulaID)
}

func TestLoadDropsDuplicateEntries(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	store := storage.NewMemoryStore(log)
	ctx := context.Background()

	require.NoError(t, store.SaveChecklists(ctx, []domain.ChecklistGroup{{
		FormulaID: "r",
		Category:  domain.CategorySauce,
		Entries:   []domain.ChecklistEntry{{ID: "x"}, {ID: "x"}, {ID: "y"}},
	}}))

	m := NewManager(store, log)
	require.NoError(t, m.Load(ctx))
	groups := m.Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"x", "y"}, ids(groups[0].Entries))
}

type failingStore struct{ *storage.MemoryStore }

func (f *failingStore) SaveChecklists(context.Context, []domain.ChecklistGroup) error {
	return errors.New("disk full")
}

func TestManagerRollsBackOnPersistFailure(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	m := NewManager(&failingStore{MemoryStore: storage.NewMemoryStore(log)}, log)
	ctx := context.Background()

	_, err := m.Group(ctx, dumplings(), domain.CategorySauce)
	require.Error(t, err)
	assert.Empty(t, m.Groups())
}
