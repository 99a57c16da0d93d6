package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across layers.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrRemote            = errors.New("remote generation failed")
	ErrDecoding          = errors.New("unexpected generation response")
	ErrNotImplemented    = errors.New("not implemented")
)

// Validation errors. Both wrap ErrValidation so callers can treat every
// rejected request the same way.
var (
	ErrEmptyPrompt   = fmt.Errorf("%w: prompt is empty", ErrValidation)
	ErrMissingPrompt = fmt.Errorf("%w: recipe has no stored prompt", ErrValidation)
)
