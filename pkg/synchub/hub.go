package synchub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/flagkit/pkg/storage"
)

// Hub broadcasts flag change events to subscribers. All methods are safe
// for concurrent use.
type Hub struct {
	store      storage.Store
	bufferSize int
	heartbeat  time.Duration
	log        *slog.Logger

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool

	version atomic.Int64
	lastMod atomic.Pointer[time.Time]
	live    atomic.Int64

	done chan struct{}
	wg   sync.WaitGroup
}

// Config is the env-driven hub setup.
type Config struct {
	BufferSize        int           `env:"SYNC_BUFFER_SIZE" envDefault:"64"`
	HeartbeatInterval time.Duration `env:"SYNC_HEARTBEAT_INTERVAL" envDefault:"30s"`
}

// Option configures a Hub.
type Option func(*Hub)

// WithBufferSize sets the per-subscriber event buffer. Minimum 1.
func WithBufferSize(n int) Option {
	return func(h *Hub) { h.bufferSize = max(n, 1) }
}

// WithHeartbeatInterval sets the idle heartbeat cadence. Zero disables it.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(h *Hub) { h.heartbeat = d }
}

// WithLogger sets the hub logger.
func WithLogger(log *slog.Logger) Option {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}

// NewHub creates a hub reading snapshot state from store. Close releases it.
func NewHub(store storage.Store, opts ...Option) *Hub {
	h := &Hub{
		store:      store,
		bufferSize: 64,
		heartbeat:  30 * time.Second,
		log:        slog.Default(),
		subs:       make(map[*Subscription]struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	now := time.Now()
	h.lastMod.Store(&now)

	if h.heartbeat > 0 {
		h.wg.Add(1)
		go h.heartbeatLoop()
	}
	return h
}

// NewHubFromConfig builds a hub from an env-loaded Config.
func NewHubFromConfig(store storage.Store, cfg Config, opts ...Option) *Hub {
	base := []Option{WithBufferSize(cfg.BufferSize), WithHeartbeatInterval(cfg.HeartbeatInterval)}
	return NewHub(store, append(base, opts...)...)
}

// SubscribeOption tweaks a single subscription.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	skipSnapshot bool
}

// WithoutSnapshot skips the initial state replay. Used by relays that only
// care about live traffic.
func WithoutSnapshot() SubscribeOption {
	return func(c *subscribeConfig) { c.skipSnapshot = true }
}

// Subscribe registers a subscriber. Unless skipped, the current store state
// is replayed first, one Updated event per flag, closed by SyncComplete with
// the flag count. The subscription ends when ctx is cancelled or Close is
// called on either side.
func (h *Hub) Subscribe(ctx context.Context, opts ...SubscribeOption) (*Subscription, error) {
	var cfg subscribeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	// Register before reading the snapshot so an event published during the
	// store read is not lost. The subscription holds such events back until
	// the handshake has been flushed, keeping replay order intact.
	sub := newSubscription(h)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.subs[sub] = struct{}{}
	h.live.Add(1)
	h.mu.Unlock()

	var handshake []Event
	if !cfg.skipSnapshot {
		flags, err := h.store.List(ctx, storage.Filter{})
		if err != nil {
			h.unsubscribe(sub)
			return nil, errors.Join(ErrSnapshotFailed, err)
		}
		handshake = make([]Event, 0, len(flags)+1)
		for _, sf := range flags {
			handshake = append(handshake, UpdatedEvent(sf))
		}
		handshake = append(handshake, syncCompleteEvent(len(flags)))
	}
	sub.open(h.bufferSize, handshake)

	if ctx.Done() != nil {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			select {
			case <-ctx.Done():
				h.unsubscribe(sub)
			case <-h.done:
			}
		}()
	}

	return sub, nil
}

// Publish fans an event out to every live subscriber. Slow subscribers lose
// their oldest buffered event, never the one being published. Publishing on
// a closed hub is a no-op and leaves Version and LastModified untouched.
func (h *Hub) Publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	if ev.Type != EventHeartbeat {
		h.version.Add(1)
		now := time.Now()
		h.lastMod.Store(&now)
	}
	for sub := range h.subs {
		sub.send(ev)
	}
}

// Subscribers reports how many subscriptions are currently live.
func (h *Hub) Subscribers() int {
	return int(h.live.Load())
}

// Version is a monotonic counter bumped on every non-heartbeat publish.
// The HTTP poll endpoint derives its ETag from it.
func (h *Hub) Version() int64 {
	return h.version.Load()
}

// LastModified is the wall-clock time of the latest non-heartbeat publish.
func (h *Hub) LastModified() time.Time {
	return *h.lastMod.Load()
}

// Close shuts the hub down and closes every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.done)
	for sub := range h.subs {
		sub.close()
	}
	clear(h.subs)
	h.live.Store(0)
	h.mu.Unlock()

	h.wg.Wait()
	return nil
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		h.live.Add(-1)
	}
	h.mu.Unlock()
	sub.close()
}

func (h *Hub) heartbeatLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.Publish(heartbeatEvent())
		}
	}
}

// Subscription is one subscriber's view of the event stream.
type Subscription struct {
	hub     *Hub
	mu      sync.Mutex
	ch      chan Event // nil until open; sends queue into pending meanwhile
	pending []Event
	closed  bool
	dropped atomic.Int64
}

func newSubscription(h *Hub) *Subscription {
	return &Subscription{hub: h}
}

// open allocates the channel and flushes the snapshot handshake followed by
// any live events that arrived during the store read. The buffer is sized so
// this flush can never trigger drops.
func (s *Subscription) open(bufferSize int, handshake []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		// The hub shut down mid-handshake. Hand the caller an already
		// closed channel so reads terminate.
		s.ch = make(chan Event)
		close(s.ch)
		return
	}
	s.ch = make(chan Event, max(bufferSize, len(handshake)+len(s.pending)))
	for _, ev := range handshake {
		s.ch <- ev
	}
	for _, ev := range s.pending {
		s.ch <- ev
	}
	s.pending = nil
}

// Events returns the receive channel. It is closed when the subscription
// ends.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped reports how many events were discarded under backpressure.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() error {
	s.hub.unsubscribe(s)
	return nil
}

// send enqueues without ever blocking the publisher: when the buffer is
// full the oldest buffered event is discarded to make room.
func (s *Subscription) send(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.ch == nil {
		s.pending = append(s.pending, ev)
		return
	}
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		if s.ch != nil {
			close(s.ch)
		}
	}
}
