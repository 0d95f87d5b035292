package audit

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrymomot/flagkit/pkg/flag"
)

// ErrEntryValidation is returned when an entry misses required fields.
var ErrEntryValidation = errors.New("invalid audit entry")

// Action names the audited flag mutation.
type Action string

const (
	ActionCreated       Action = "flag.created"
	ActionUpdated       Action = "flag.updated"
	ActionDeleted       Action = "flag.deleted"
	ActionStatusChanged Action = "flag.status_changed"
)

// Entry is one audit record. Before and After carry the definition around
// the mutation; Before is nil on create, After is nil on delete.
type Entry struct {
	ID        string           `json:"id"`
	Action    Action           `json:"action"`
	FlagID    flag.ID          `json:"flag_id"`
	Actor     string           `json:"actor,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
	Before    *flag.Definition `json:"before,omitempty"`
	After     *flag.Definition `json:"after,omitempty"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Validate checks the required fields.
func (e *Entry) Validate() error {
	if e.Action == "" {
		return errors.Join(ErrEntryValidation, errors.New("action is required"))
	}
	if e.FlagID == "" {
		return errors.Join(ErrEntryValidation, errors.New("flag id is required"))
	}
	return nil
}

// Sink receives drained audit entries. Implementations own durability.
type Sink interface {
	Store(ctx context.Context, entry Entry) error
}
