package storage

import (
	"errors"
	"fmt"

	"github.com/dmitrymomot/flagkit/pkg/flag"
)

var (
	// ErrNotFound is returned when no flag exists under the requested id.
	ErrNotFound = errors.New("flag not found")
	// ErrAlreadyExists is returned by Create when the id is taken.
	ErrAlreadyExists = errors.New("flag already exists")
	// ErrVersionConflict is returned by Update when the expected version no
	// longer matches the stored one.
	ErrVersionConflict = errors.New("flag version conflict")
	// ErrConnectionFailed is returned when a backend cannot be reached.
	ErrConnectionFailed = errors.New("storage connection failed")
)

// StorageError wraps backend failures so callers can tell infrastructure
// faults apart from a plain missing flag.
type StorageError struct {
	Op     string
	FlagID flag.ID
	Err    error
}

func (e *StorageError) Error() string {
	if e.FlagID != "" {
		return fmt.Sprintf("storage: %s %q: %v", e.Op, e.FlagID, e.Err)
	}
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, id flag.ID, err error) error {
	return &StorageError{Op: op, FlagID: id, Err: err}
}
