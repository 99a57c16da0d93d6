// Package domain defines the core types and interfaces for mealscribe.
// All other packages depend on domain; domain depends on nothing.
package domain

import (
	"fmt"
	"slices"
	"time"
)

// PlaceholderName is the name a recipe carries while its generation is
// still in flight.
const PlaceholderName = "processing"

// Recipe is the central record: generated from a free-text prompt, then
// enriched with a photo. The ID never changes once assigned.
type Recipe struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Ingredients      IngredientGroups `json:"ingredients"`
	Tools            []string         `json:"tools,omitempty"`
	PreparationSteps []string         `json:"preparation_steps,omitempty"`
	CookingSteps     []string         `json:"cooking_steps,omitempty"`
	Tips             []string         `json:"tips,omitempty"`
	Tags             []string         `json:"tags,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	Prompt           string           `json:"prompt,omitempty"`
	State            State            `json:"state"`
	ImagePath        string           `json:"image_path,omitempty"`
	InChecklist      bool             `json:"in_checklist"`
}

// IngredientGroups splits ingredients the way a recipe card shows them.
type IngredientGroups struct {
	Main      []Ingredient `json:"main,omitempty"`
	Seasoning []Ingredient `json:"seasoning,omitempty"`
	Dip       []Ingredient `json:"dip,omitempty"`
}

// Ingredient is a single ingredient line. Quantity is free text
// ("2 cloves", "a pinch").
type Ingredient struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Category string `json:"category,omitempty"`
}

// Clone returns a deep copy so callers can mutate it without touching a
// published snapshot.
func (r Recipe) Clone() Recipe {
	out := r
	out.Ingredients = IngredientGroups{
		Main:      slices.Clone(r.Ingredients.Main),
		Seasoning: slices.Clone(r.Ingredients.Seasoning),
		Dip:       slices.Clone(r.Ingredients.Dip),
	}
	out.Tools = slices.Clone(r.Tools)
	out.PreparationSteps = slices.Clone(r.PreparationSteps)
	out.CookingSteps = slices.Clone(r.CookingSteps)
	out.Tips = slices.Clone(r.Tips)
	out.Tags = slices.Clone(r.Tags)
	return out
}

// IsPlaceholder reports whether the record is still waiting on the model.
func (r Recipe) IsPlaceholder() bool {
	return r.State == StateGenerating
}

// State is the lifecycle position of a recipe.
type State int

const (
	// StateGenerating means the remote call is pending (or was interrupted
	// and awaits recovery).
	StateGenerating State = iota
	// StateAwaitingImage means the recipe text is final but no photo yet.
	StateAwaitingImage
	// StateComplete means a photo has been attached.
	StateComplete
	// StateFailed means the remote call errored or the task went stale.
	StateFailed
)

// String returns a human-readable state.
func (s State) String() string {
	switch s {
	case StateGenerating:
		return "generating"
	case StateAwaitingImage:
		return "awaiting_image"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// transitions lists every valid lifecycle edge.
var transitions = map[State][]State{
	StateGenerating:    {StateAwaitingImage, StateFailed},
	StateAwaitingImage: {StateComplete},
	StateFailed:        {StateGenerating},
}

// CanTransition reports whether moving from s to next is a valid
// lifecycle edge.
func (s State) CanTransition(next State) bool {
	return slices.Contains(transitions[s], next)
}

// stateNames maps persisted names back to states.
var stateNames = map[string]State{
	"generating":     StateGenerating,
	"awaiting_image": StateAwaitingImage,
	"complete":       StateComplete,
	"failed":         StateFailed,
}

// StateFromString converts a persisted state name to a State.
// Returns false for unrecognized names.
func StateFromString(name string) (State, bool) {
	s, ok := stateNames[name]
	return s, ok
}

// MarshalText stores states by name so persisted records survive enum
// reordering.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	st, ok := StateFromString(string(b))
	if !ok {
		return fmt.Errorf("unknown recipe state %q", b)
	}
	*s = st
	return nil
}
