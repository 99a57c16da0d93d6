// Package speech provides local audio feedback and spoken prompt input.
package speech

import (
	"context"

	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
)

// Compile-time interface check.
var _ domain.Feedback = (*NoOp)(nil)

// NoOp is feedback and dictation that does nothing. Used when audio is
// unavailable or voice is disabled.
type NoOp struct {
	log *logger.Logger
}

// NewNoOp creates a no-op provider.
func NewNoOp(log *logger.Logger) *NoOp {
	return &NoOp{log: log}
}

// Success does nothing.
func (n *NoOp) Success() { n.log.Debug("feedback no-op: success") }

// Failure does nothing.
func (n *NoOp) Failure() { n.log.Debug("feedback no-op: failure") }

// Dictate returns ErrNotImplemented.
func (n *NoOp) Dictate(ctx context.Context) (string, error) {
	return "", domain.ErrNotImplemented
}
