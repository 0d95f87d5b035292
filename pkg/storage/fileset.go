package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/flagkit/pkg/flag"
)

// ErrInvalidFileSet is returned when a definitions file cannot be parsed.
var ErrInvalidFileSet = errors.New("invalid flag definitions file")

// fileSet is the on-disk shape of a definitions file.
type fileSet struct {
	Flags []flag.Definition `json:"flags"`
}

// LoadFileSet reads flag definitions from a YAML or JSON file. The format is
// chosen by extension; .yaml and .yml parse as YAML, everything else as JSON.
// Every definition is normalized and validated before being returned.
func LoadFileSet(path string) ([]*flag.Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrInvalidFileSet, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		// Round-trip through JSON so the definition's json tags stay the
		// single source of field naming.
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, errors.Join(ErrInvalidFileSet, err)
		}
		raw, err = json.Marshal(doc)
		if err != nil {
			return nil, errors.Join(ErrInvalidFileSet, err)
		}
	}

	var set fileSet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, errors.Join(ErrInvalidFileSet, err)
	}

	defs := make([]*flag.Definition, 0, len(set.Flags))
	seen := make(map[flag.ID]struct{}, len(set.Flags))
	for i := range set.Flags {
		def := &set.Flags[i]
		def.Normalize()
		if err := flag.Validate(def); err != nil {
			return nil, errors.Join(ErrInvalidFileSet, fmt.Errorf("flag %q: %w", def.ID, err))
		}
		if _, dup := seen[def.ID]; dup {
			return nil, errors.Join(ErrInvalidFileSet, fmt.Errorf("duplicate flag %q", def.ID))
		}
		seen[def.ID] = struct{}{}
		defs = append(defs, def)
	}
	return defs, nil
}

// NewFileSetStore loads a definitions file into a fresh in-memory store.
// The store is mutable afterwards; reloading means building a new one.
func NewFileSetStore(ctx context.Context, path string) (*MemoryStore, error) {
	defs, err := LoadFileSet(path)
	if err != nil {
		return nil, err
	}
	store := NewMemoryStore()
	for _, def := range defs {
		if _, err := store.Create(ctx, def); err != nil {
			return nil, errors.Join(ErrInvalidFileSet, err)
		}
	}
	return store, nil
}
