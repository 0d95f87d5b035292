package audit

import (
	"context"
	"log/slog"
	"sync"
)

// SlogSink writes entries to structured logs. It is the default choice when
// no dedicated audit store exists yet.
type SlogSink struct {
	log *slog.Logger
}

// NewSlogSink creates a sink writing through the given logger.
func NewSlogSink(log *slog.Logger) *SlogSink {
	if log == nil {
		log = slog.Default()
	}
	return &SlogSink{log: log}
}

func (s *SlogSink) Store(ctx context.Context, entry Entry) error {
	attrs := []any{
		"audit_id", entry.ID,
		"action", entry.Action,
		"flag_id", entry.FlagID,
	}
	if entry.Actor != "" {
		attrs = append(attrs, "actor", entry.Actor)
	}
	if entry.RequestID != "" {
		attrs = append(attrs, "request_id", entry.RequestID)
	}
	if entry.Before != nil {
		attrs = append(attrs, "before_status", entry.Before.Status)
	}
	if entry.After != nil {
		attrs = append(attrs, "after_status", entry.After.Status)
	}
	s.log.InfoContext(ctx, "flag audit", attrs...)
	return nil
}

// MemorySink keeps entries in memory for tests and introspection.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Store(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Entries returns a copy of everything stored so far.
func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

var (
	_ Sink = (*SlogSink)(nil)
	_ Sink = (*MemorySink)(nil)
)
