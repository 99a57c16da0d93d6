package engine

import "github.com/google/uuid"

// generateID returns a random UUID for a new recipe.
func generateID() string {
	return uuid.NewString()
}
