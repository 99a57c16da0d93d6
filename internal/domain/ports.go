package domain

import (
	"context"
	"io"
)

// RecordStore is the durable key/record storage for recipes.
// Implementations can be in-memory or SQLite-backed.
type RecordStore interface {
	// Upsert inserts or replaces the record with r.ID.
	Upsert(ctx context.Context, r Recipe) error
	Get(ctx context.Context, id string) (Recipe, error)
	// Delete removes a record. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id string) error
	// All returns every record, newest CreatedAt first.
	All(ctx context.Context) ([]Recipe, error)
	// OnChange registers fn to run after every committed write.
	OnChange(fn func())
}

// ChecklistStore persists the flat list of checklist groups. The whole
// list is written on every save and loaded once at startup.
type ChecklistStore interface {
	SaveChecklists(ctx context.Context, groups []ChecklistGroup) error
	LoadChecklists(ctx context.Context) ([]ChecklistGroup, error)
}

// Generator turns a free-text prompt into a structured recipe. The
// returned recipe carries content only; identity and lifecycle fields are
// owned by the caller.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Recipe, error)
}

// Notifier delivers messages to the user. Implementations can write to
// stdout, push notifications, or use text-to-speech.
type Notifier interface {
	Notify(ctx context.Context, message string) error
	NotifyUrgent(ctx context.Context, message string) error
}

// AppState reports whether the process is in the background.
type AppState interface {
	Backgrounded() bool
}

// Feedback gives immediate local feedback when the user is looking at the
// app (a haptic tap on a phone, a short chime in a terminal).
type Feedback interface {
	Success()
	Failure()
}

// PhotoStore holds the photos attached to recipes.
type PhotoStore interface {
	// Put stores the photo under key and returns the path recorded on
	// the recipe.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	// Delete removes a stored photo. Missing photos are not an error.
	Delete(ctx context.Context, path string) error
}

// IntentParser converts a line typed (or dictated) in the interactive
// shell into an Intent.
type IntentParser interface {
	Parse(ctx context.Context, input string) (*Intent, error)
}
