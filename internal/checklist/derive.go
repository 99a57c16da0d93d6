// Package checklist derives per-category checklists ("tab status") from
// finished recipes and tracks their completion.
//
// The functions in this file are pure: they take a group and return a new
// one. Manager owns the live groups and their persistence.
package checklist

import (
	"fmt"
	"sort"
	"time"

	"github.com/hammamikhairi/mealscribe/internal/domain"
)

// EntryID builds the composite entry ID. The same inputs always produce
// the same ID, so re-deriving a recipe never duplicates entries.
func EntryID(recipeID string, category domain.Category, index int) string {
	return fmt.Sprintf("%s_%s_%d", recipeID, category, index)
}

// line is one source item before it becomes an entry.
type line struct {
	title, subtitle string
}

// Derive builds the checklist group for one category of r. Entries are
// numbered 0.. in source order.
func Derive(r domain.Recipe, category domain.Category, now time.Time) domain.ChecklistGroup {
	lines := sourceLines(r, category)

	entries := make([]domain.ChecklistEntry, len(lines))
	for i, l := range lines {
		entries[i] = domain.ChecklistEntry{
			ID:            EntryID(r.ID, category, i),
			Title:         l.title,
			Subtitle:      l.subtitle,
			Category:      category,
			OriginalIndex: i,
			UpdatedAt:     now,
		}
	}

	return domain.ChecklistGroup{
		FormulaID: r.ID,
		Category:  category,
		Entries:   entries,
		UpdatedAt: now,
	}
}

func sourceLines(r domain.Recipe, category domain.Category) []line {
	var out []line
	switch category {
	case domain.CategoryIngredients:
		for _, ing := range r.Ingredients.Main {
			out = append(out, ingredientLine(ing))
		}
		for _, ing := range r.Ingredients.Seasoning {
			out = append(out, ingredientLine(ing))
		}
	case domain.CategorySauce:
		for _, ing := range r.Ingredients.Dip {
			out = append(out, ingredientLine(ing))
		}
	case domain.CategorySteps:
		for i, s := range r.PreparationSteps {
			out = append(out, line{title: s, subtitle: fmt.Sprintf("prep %d/%d", i+1, len(r.PreparationSteps))})
		}
		for i, s := range r.CookingSteps {
			out = append(out, line{title: s, subtitle: fmt.Sprintf("cook %d/%d", i+1, len(r.CookingSteps))})
		}
	}
	return out
}

func ingredientLine(ing domain.Ingredient) line {
	sub := ing.Quantity
	if ing.Category != "" {
		if sub != "" {
			sub += " · "
		}
		sub += ing.Category
	}
	return line{title: ing.Name, subtitle: sub}
}

// Toggle flips the completion flag of entryID and stamps the entry and
// the group with now. The input group is left untouched. Unknown IDs
// return the group unchanged and false.
func Toggle(g domain.ChecklistGroup, entryID string, now time.Time) (domain.ChecklistGroup, bool) {
	for i, e := range g.Entries {
		if e.ID != entryID {
			continue
		}
		out := g.Clone()
		out.Entries[i].Completed = !e.Completed
		out.Entries[i].UpdatedAt = now
		out.UpdatedAt = now
		return out, true
	}
	return g, false
}

// SortedItems returns the entries to display: incomplete ones by original
// position, then completed ones oldest-completed first. Computed fresh on
// every call.
func SortedItems(g domain.ChecklistGroup) []domain.ChecklistEntry {
	var todo, done []domain.ChecklistEntry
	for _, e := range g.Entries {
		if e.Completed {
			done = append(done, e)
		} else {
			todo = append(todo, e)
		}
	}

	sort.SliceStable(todo, func(i, j int) bool {
		return todo[i].OriginalIndex < todo[j].OriginalIndex
	})
	sort.SliceStable(done, func(i, j int) bool {
		if !done[i].UpdatedAt.Equal(done[j].UpdatedAt) {
			return done[i].UpdatedAt.Before(done[j].UpdatedAt)
		}
		return done[i].OriginalIndex < done[j].OriginalIndex
	})

	return append(todo, done...)
}

// carryCompletion copies completion state from prev onto entries of next
// that kept the same ID.
func carryCompletion(prev, next domain.ChecklistGroup) domain.ChecklistGroup {
	old := make(map[string]domain.ChecklistEntry, len(prev.Entries))
	for _, e := range prev.Entries {
		old[e.ID] = e
	}
	for i, e := range next.Entries {
		if o, ok := old[e.ID]; ok && o.Completed {
			next.Entries[i].Completed = true
			next.Entries[i].UpdatedAt = o.UpdatedAt
		}
	}
	return next
}
