package domain

import (
	"slices"
	"time"
)

// Category selects which part of a recipe a checklist tab covers.
type Category string

const (
	// CategoryIngredients covers main and seasoning ingredients.
	CategoryIngredients Category = "ingredients"
	// CategorySteps covers preparation then cooking steps.
	CategorySteps Category = "steps"
	// CategorySauce covers the dip/sauce ingredients.
	CategorySauce Category = "sauce"
)

// Categories lists every checklist tab in display order.
var Categories = []Category{CategoryIngredients, CategorySteps, CategorySauce}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return slices.Contains(Categories, c)
}

// ChecklistEntry is one actionable line derived from a recipe.
type ChecklistEntry struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Subtitle      string    `json:"subtitle,omitempty"`
	Category      Category  `json:"category"`
	OriginalIndex int       `json:"original_index"`
	Completed     bool      `json:"completed"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ChecklistGroup is the tab status for one (recipe, category) pair.
// FormulaID refers to the owning recipe but does not keep it alive.
type ChecklistGroup struct {
	FormulaID string           `json:"formula_id"`
	Category  Category         `json:"category"`
	Entries   []ChecklistEntry `json:"entries"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Key identifies the group among all groups.
func (g ChecklistGroup) Key() GroupKey {
	return GroupKey{FormulaID: g.FormulaID, Category: g.Category}
}

// Completed returns the number of completed entries.
func (g ChecklistGroup) Completed() int {
	n := 0
	for _, e := range g.Entries {
		if e.Completed {
			n++
		}
	}
	return n
}

// Progress returns completed/total in [0, 1]. Empty groups report 0.
func (g ChecklistGroup) Progress() float64 {
	if len(g.Entries) == 0 {
		return 0
	}
	return float64(g.Completed()) / float64(len(g.Entries))
}

// Clone returns a copy whose entry slice can be modified freely.
func (g ChecklistGroup) Clone() ChecklistGroup {
	out := g
	out.Entries = slices.Clone(g.Entries)
	return out
}

// GroupKey identifies a checklist group.
type GroupKey struct {
	FormulaID string
	Category  Category
}
