package flag

import "errors"

// Predefined errors for the flag package.
var (
	// ErrInvalidKey indicates a flag key with illegal characters or length.
	ErrInvalidKey = errors.New("invalid flag key")

	// ErrValidation indicates a malformed flag definition. It is raised only
	// at authoring time, never during evaluation.
	ErrValidation = errors.New("invalid flag definition")

	// ErrInvalidStatusTransition indicates a disallowed lifecycle transition.
	ErrInvalidStatusTransition = errors.New("invalid flag status transition")
)
