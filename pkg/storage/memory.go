package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrymomot/flagkit/pkg/flag"
)

// MemoryStore keeps flags in process memory. It is safe for concurrent use
// and intended for tests and single-process embedding.
type MemoryStore struct {
	mu    sync.RWMutex
	flags map[flag.ID]*StoredFlag
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flags: make(map[flag.ID]*StoredFlag),
		now:   time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, id flag.ID) (*StoredFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sf, ok := s.flags[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneStored(sf), nil
}

func (s *MemoryStore) GetMany(_ context.Context, ids []flag.ID) (map[flag.ID]*StoredFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := make(map[flag.ID]*StoredFlag, len(ids))
	for _, id := range ids {
		if sf, ok := s.flags[id]; ok {
			found[id] = cloneStored(sf)
		}
	}
	return found, nil
}

func (s *MemoryStore) List(_ context.Context, filter Filter) ([]*StoredFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*StoredFlag
	for _, sf := range s.flags {
		if filter.Matches(sf) {
			out = append(out, cloneStored(sf))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Definition.ID < out[j].Definition.ID
	})
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, def *flag.Definition) (*StoredFlag, error) {
	if err := flag.Validate(def); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.flags[def.ID]; ok {
		return nil, ErrAlreadyExists
	}

	now := s.now()
	sf := &StoredFlag{
		Definition: *def.Clone(),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.flags[def.ID] = sf
	return cloneStored(sf), nil
}

func (s *MemoryStore) Update(_ context.Context, def *flag.Definition, expectedVersion int64) (*StoredFlag, error) {
	if err := flag.Validate(def); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.flags[def.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if cur.Version != expectedVersion {
		return nil, ErrVersionConflict
	}

	sf := &StoredFlag{
		Definition: *def.Clone(),
		Version:    cur.Version + 1,
		CreatedAt:  cur.CreatedAt,
		UpdatedAt:  s.now(),
	}
	s.flags[def.ID] = sf
	return cloneStored(sf), nil
}

func (s *MemoryStore) Delete(_ context.Context, id flag.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.flags[id]; !ok {
		return ErrNotFound
	}
	delete(s.flags, id)
	return nil
}

func (s *MemoryStore) GetModifiedSince(_ context.Context, since time.Time) ([]*StoredFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*StoredFlag
	for _, sf := range s.flags {
		if sf.UpdatedAt.After(since) {
			out = append(out, cloneStored(sf))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out, nil
}

func cloneStored(sf *StoredFlag) *StoredFlag {
	return &StoredFlag{
		Definition: *sf.Definition.Clone(),
		Version:    sf.Version,
		CreatedAt:  sf.CreatedAt,
		UpdatedAt:  sf.UpdatedAt,
	}
}

var _ Store = (*MemoryStore)(nil)
