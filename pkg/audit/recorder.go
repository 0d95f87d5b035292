package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Recorder queues entries for asynchronous delivery to a Sink.
type Recorder struct {
	sink    Sink
	log     *slog.Logger
	timeout time.Duration

	entries chan Entry
	dropped atomic.Int64
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithBufferSize sets the queue capacity. Minimum 1.
func WithBufferSize(n int) RecorderOption {
	return func(r *Recorder) {
		r.entries = make(chan Entry, max(n, 1))
	}
}

// WithStoreTimeout bounds each sink write.
func WithStoreTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRecorderLogger sets the logger for sink failures and drops.
func WithRecorderLogger(log *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRecorder starts the drain worker. Close stops it.
func NewRecorder(sink Sink, opts ...RecorderOption) *Recorder {
	if sink == nil {
		panic("audit: sink cannot be nil")
	}
	r := &Recorder{
		sink:    sink,
		log:     slog.Default(),
		timeout: 5 * time.Second,
		entries: make(chan Entry, 1000),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.wg.Add(1)
	go r.worker()
	return r
}

// Record enqueues an entry and returns immediately. Invalid entries and
// full-buffer drops are logged, never surfaced to the mutation path.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := entry.Validate(); err != nil {
		r.log.WarnContext(ctx, "discarding invalid audit entry", "error", err)
		return
	}

	select {
	case r.entries <- entry:
	case <-r.done:
	default:
		r.dropped.Add(1)
		r.log.WarnContext(ctx, "audit buffer full, entry dropped",
			"action", entry.Action, "flag_id", entry.FlagID)
	}
}

// Dropped reports how many entries were discarded because the buffer was
// full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting entries and drains the queue, bounded by ctx.
func (r *Recorder) Close(ctx context.Context) error {
	r.once.Do(func() { close(r.done) })

	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for {
		select {
		case entry := <-r.entries:
			r.store(entry)
		case <-r.done:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case entry := <-r.entries:
					r.store(entry)
				default:
					return
				}
			}
		}
	}
}

// store isolates sink writes from caller contexts so a cancelled request
// cannot abort an already-accepted entry.
func (r *Recorder) store(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.sink.Store(ctx, entry); err != nil {
		r.log.ErrorContext(ctx, "failed to store audit entry",
			"action", entry.Action, "flag_id", entry.FlagID, "error", err)
	}
}
