package flag

import "fmt"

// Status is the lifecycle state of a flag definition.
type Status string

const (
	StatusActive     Status = "active"
	StatusDisabled   Status = "disabled"
	StatusTesting    Status = "testing"
	StatusDeprecated Status = "deprecated"
	StatusArchived   Status = "archived"
)

// statusTransitions is the allowed edge set of the lifecycle state machine.
// Archived is terminal.
var statusTransitions = map[Status][]Status{
	StatusTesting:    {StatusActive, StatusDisabled, StatusArchived},
	StatusActive:     {StatusDisabled, StatusDeprecated, StatusArchived},
	StatusDisabled:   {StatusActive, StatusTesting, StatusArchived},
	StatusDeprecated: {StatusActive, StatusArchived},
	StatusArchived:   {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// ShortCircuits reports whether evaluation skips straight to the default
// value for this status. Deprecated still evaluates normally until archived.
func (s Status) ShortCircuits() bool {
	return s == StatusDisabled || s == StatusArchived
}

// CanTransition reports whether the lifecycle allows moving to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition returns next if the edge is allowed, or
// ErrInvalidStatusTransition otherwise.
func (s Status) Transition(next Status) (Status, error) {
	if !next.Valid() {
		return s, fmt.Errorf("%w: unknown status %q", ErrInvalidStatusTransition, next)
	}
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, s, next)
	}
	return next, nil
}
