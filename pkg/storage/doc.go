// Package storage persists flag definitions behind a single Store interface
// with pluggable backends.
//
// Every stored flag carries a monotonically increasing version used for
// optimistic concurrency: Update takes the version the caller last read and
// fails with ErrVersionConflict when someone else wrote in between. The
// in-memory backend suits tests and single-process embedding, the Postgres
// and Mongo backends suit shared deployments, and the fileset backend seeds
// definitions from a YAML or JSON file for GitOps-style workflows.
//
// Usage:
//
//	store := storage.NewMemoryStore()
//	stored, err := store.Create(ctx, def)
//	if err != nil { ... }
//
//	stored.Definition.Status = flag.StatusDisabled
//	_, err = store.Update(ctx, &stored.Definition, stored.Version)
//	if errors.Is(err, storage.ErrVersionConflict) {
//		// reload and retry
//	}
package storage
