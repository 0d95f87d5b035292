package engine

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/flagkit/pkg/audit"
	"github.com/dmitrymomot/flagkit/pkg/flag"
	"github.com/dmitrymomot/flagkit/pkg/storage"
	"github.com/dmitrymomot/flagkit/pkg/synchub"
)

// Publisher receives change events after successful mutations.
// *synchub.Hub satisfies it.
type Publisher interface {
	Publish(ev synchub.Event)
}

// Auditor records mutation audit entries. *audit.Recorder satisfies it.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Invalidator drops cached definitions. *cache.TieredCache satisfies it.
type Invalidator interface {
	InvalidateMany(ctx context.Context, ids ...flag.ID)
}

// Service orchestrates flag mutations: persist first, then invalidate the
// cache, broadcast the change and record the audit trail. Only the store
// write can fail the call; the follow-ups are best-effort by design of
// their packages.
type Service struct {
	store storage.Store
	cache Invalidator
	hub   Publisher
	audit Auditor
	log   *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceCache wires cache invalidation into mutations.
func WithServiceCache(c Invalidator) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithPublisher wires change broadcasting into mutations.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) { s.hub = p }
}

// WithAuditor wires audit recording into mutations.
func WithAuditor(a Auditor) ServiceOption {
	return func(s *Service) { s.audit = a }
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates the mutation service.
func NewService(store storage.Store, opts ...ServiceOption) *Service {
	s := &Service{
		store: store,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateFlag persists a new flag and announces it.
func (s *Service) CreateFlag(ctx context.Context, def *flag.Definition, actor string) (*storage.StoredFlag, error) {
	sf, err := s.store.Create(ctx, def)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, sf.Definition.ID)
	s.publish(synchub.CreatedEvent(sf))
	s.record(ctx, audit.Entry{
		Action: audit.ActionCreated,
		FlagID: sf.Definition.ID,
		Actor:  actor,
		After:  &sf.Definition,
	})
	return sf, nil
}

// UpdateFlag replaces a definition under optimistic concurrency and
// announces the change. A stale expectedVersion fails with
// storage.ErrVersionConflict.
func (s *Service) UpdateFlag(ctx context.Context, def *flag.Definition, expectedVersion int64, actor string) (*storage.StoredFlag, error) {
	before, err := s.store.Get(ctx, def.ID)
	if err != nil {
		return nil, err
	}
	sf, err := s.store.Update(ctx, def, expectedVersion)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, sf.Definition.ID)
	s.publish(synchub.UpdatedEvent(sf))
	s.record(ctx, audit.Entry{
		Action: audit.ActionUpdated,
		FlagID: sf.Definition.ID,
		Actor:  actor,
		Before: &before.Definition,
		After:  &sf.Definition,
	})
	return sf, nil
}

// DeleteFlag removes a flag and announces the removal.
func (s *Service) DeleteFlag(ctx context.Context, id flag.ID, actor string) error {
	before, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.publish(synchub.DeletedEvent(id))
	s.record(ctx, audit.Entry{
		Action: audit.ActionDeleted,
		FlagID: id,
		Actor:  actor,
		Before: &before.Definition,
	})
	return nil
}

// SetStatus moves a flag through its lifecycle. Illegal transitions fail
// with flag.ErrInvalidStatusTransition before anything is written.
func (s *Service) SetStatus(ctx context.Context, id flag.ID, next flag.Status, actor string) (*storage.StoredFlag, error) {
	before, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := before.Definition.Status

	transitioned, err := from.Transition(next)
	if err != nil {
		return nil, err
	}

	def := before.Definition.Clone()
	def.Status = transitioned
	sf, err := s.store.Update(ctx, def, before.Version)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	s.publish(synchub.StatusChangedEvent(sf, from, transitioned))
	s.record(ctx, audit.Entry{
		Action: audit.ActionStatusChanged,
		FlagID: id,
		Actor:  actor,
		Before: &before.Definition,
		After:  &sf.Definition,
		Metadata: map[string]any{
			"from": string(from),
			"to":   string(transitioned),
		},
	})
	return sf, nil
}

// GetFlag reads one flag with its version for later CAS updates.
func (s *Service) GetFlag(ctx context.Context, id flag.ID) (*storage.StoredFlag, error) {
	return s.store.Get(ctx, id)
}

// ListFlags returns flags passing the filter.
func (s *Service) ListFlags(ctx context.Context, filter storage.Filter) ([]*storage.StoredFlag, error) {
	return s.store.List(ctx, filter)
}

func (s *Service) invalidate(ctx context.Context, id flag.ID) {
	if s.cache != nil {
		s.cache.InvalidateMany(ctx, id)
	}
}

func (s *Service) publish(ev synchub.Event) {
	if s.hub != nil {
		s.hub.Publish(ev)
	}
}

func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if s.audit != nil {
		s.audit.Record(ctx, entry)
	}
}
