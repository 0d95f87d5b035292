package storage

import (
	"context"
	"time"

	"github.com/dmitrymomot/flagkit/pkg/flag"
)

// StoredFlag is a definition together with its persistence metadata.
type StoredFlag struct {
	Definition flag.Definition `json:"definition"`
	Version    int64           `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Filter narrows List results. Zero-value fields do not filter.
type Filter struct {
	Status      flag.Status
	Environment string
	Tag         string
	Owner       string
	Prefix      string
}

// Matches reports whether a stored flag passes the filter.
func (f Filter) Matches(sf *StoredFlag) bool {
	def := &sf.Definition
	if f.Status != "" && def.Status != f.Status {
		return false
	}
	if f.Environment != "" && !def.EnabledIn(f.Environment) {
		return false
	}
	if f.Owner != "" && def.Metadata.Owner != f.Owner {
		return false
	}
	if f.Prefix != "" && !hasPrefix(def.ID, f.Prefix) {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, tag := range def.Metadata.Tags {
			if tag == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func hasPrefix(id flag.ID, prefix string) bool {
	s := string(id)
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Store is the persistence contract for flag definitions.
//
// Update enforces optimistic concurrency: expectedVersion must equal the
// stored version or the call fails with ErrVersionConflict. Backends
// distinguish missing flags (ErrNotFound) from infrastructure faults
// (a *StorageError wrapping the cause).
type Store interface {
	// Get returns a single flag by id.
	Get(ctx context.Context, id flag.ID) (*StoredFlag, error)
	// GetMany returns the flags that exist among ids; missing ids are
	// simply absent from the result, not an error.
	GetMany(ctx context.Context, ids []flag.ID) (map[flag.ID]*StoredFlag, error)
	// List returns every flag passing the filter, ordered by id.
	List(ctx context.Context, filter Filter) ([]*StoredFlag, error)
	// Create persists a new flag at version 1.
	Create(ctx context.Context, def *flag.Definition) (*StoredFlag, error)
	// Update replaces the definition when expectedVersion matches,
	// bumping the version.
	Update(ctx context.Context, def *flag.Definition, expectedVersion int64) (*StoredFlag, error)
	// Delete removes a flag. Deleting a missing flag returns ErrNotFound.
	Delete(ctx context.Context, id flag.ID) error
	// GetModifiedSince returns flags updated strictly after the given
	// time, for catch-up sync.
	GetModifiedSince(ctx context.Context, since time.Time) ([]*StoredFlag, error)
}
