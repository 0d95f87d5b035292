package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/flagkit/pkg/flag"
)

// Config tunes the tiered cache. Zero values fall back to the env defaults.
type Config struct {
	L1Capacity    int           `env:"FLAG_CACHE_L1_CAPACITY" envDefault:"10000"`
	L1TTL         time.Duration `env:"FLAG_CACHE_L1_TTL" envDefault:"1m"`
	SweepInterval time.Duration `env:"FLAG_CACHE_SWEEP_INTERVAL" envDefault:"1m"`
	L2TTL         time.Duration `env:"FLAG_CACHE_L2_TTL" envDefault:"5m"`
	L2Timeout     time.Duration `env:"FLAG_CACHE_L2_TIMEOUT" envDefault:"50ms"`
	KeyPrefix     string        `env:"FLAG_CACHE_KEY_PREFIX" envDefault:"flagkit:flags:"`
}

func (c *Config) applyDefaults() {
	if c.L1Capacity <= 0 {
		c.L1Capacity = 10000
	}
	if c.L1TTL <= 0 {
		c.L1TTL = time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.L2TTL <= 0 {
		c.L2TTL = 5 * time.Minute
	}
	if c.L2Timeout <= 0 {
		c.L2Timeout = 50 * time.Millisecond
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "flagkit:flags:"
	}
}

// Tier is the secondary (networked) cache tier. Implementations degrade
// failures to misses; none of the methods return errors to the hot path.
type Tier interface {
	Get(ctx context.Context, id flag.ID) (*flag.Definition, bool)
	GetMany(ctx context.Context, ids []flag.ID) map[flag.ID]*flag.Definition
	Set(ctx context.Context, def *flag.Definition)
	SetMany(ctx context.Context, defs []*flag.Definition)
	Invalidate(ctx context.Context, ids ...flag.ID)
	Clear(ctx context.Context)
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
	Size        int
}

// HitRate is hits/(hits+misses), 0 when there are no observations.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type counters struct {
	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64
}

// TieredCache is the L1+optional-L2 read-through cache.
type TieredCache struct {
	cfg      Config
	l1       *memoryTier
	l2       Tier // nil when no secondary tier is configured
	counters counters
	log      *slog.Logger
}

// Option configures a TieredCache.
type Option func(*TieredCache)

// WithLogger sets the logger for tier degradation events.
func WithLogger(log *slog.Logger) Option {
	return func(c *TieredCache) {
		if log != nil {
			c.log = log
		}
	}
}

// WithSecondary attaches an L2 tier, consulted only on L1 misses.
func WithSecondary(tier Tier) Option {
	return func(c *TieredCache) { c.l2 = tier }
}

// New creates a tiered cache and starts the L1 expiry sweep. Close stops it.
func New(cfg Config, opts ...Option) *TieredCache {
	cfg.applyDefaults()
	c := &TieredCache{
		cfg: cfg,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.l1 = newMemoryTier(cfg.L1Capacity, cfg.L1TTL, cfg.SweepInterval, &c.counters)
	return c
}

// Get resolves a definition through the tiers. An L2 hit is promoted into L1
// under L1's own TTL.
func (c *TieredCache) Get(ctx context.Context, id flag.ID) (*flag.Definition, bool) {
	if def, ok := c.l1.get(id); ok {
		c.counters.hits.Add(1)
		return def, true
	}

	if c.l2 != nil {
		l2ctx, cancel := context.WithTimeout(ctx, c.cfg.L2Timeout)
		def, ok := c.l2.Get(l2ctx, id)
		cancel()
		if ok {
			c.l1.set(def)
			c.counters.hits.Add(1)
			return def, true
		}
	}

	c.counters.misses.Add(1)
	return nil, false
}

// GetMany resolves a batch through the tiers in one pass per tier. Missing
// ids are simply absent from the result.
func (c *TieredCache) GetMany(ctx context.Context, ids []flag.ID) map[flag.ID]*flag.Definition {
	found := make(map[flag.ID]*flag.Definition, len(ids))
	var missing []flag.ID
	for _, id := range ids {
		if def, ok := c.l1.get(id); ok {
			found[id] = def
		} else {
			missing = append(missing, id)
		}
	}

	if c.l2 != nil && len(missing) > 0 {
		l2ctx, cancel := context.WithTimeout(ctx, c.cfg.L2Timeout)
		promoted := c.l2.GetMany(l2ctx, missing)
		cancel()
		for id, def := range promoted {
			c.l1.set(def)
			found[id] = def
		}
	}

	c.counters.hits.Add(int64(len(found)))
	c.counters.misses.Add(int64(len(ids) - len(found)))
	return found
}

// Set writes through both tiers. Concurrent duplicate fills for the same key
// are last-writer-wins; the durable store stays the source of truth.
func (c *TieredCache) Set(ctx context.Context, def *flag.Definition) {
	if def == nil {
		return
	}
	c.l1.set(def)
	if c.l2 != nil {
		l2ctx, cancel := context.WithTimeout(ctx, c.cfg.L2Timeout)
		c.l2.Set(l2ctx, def)
		cancel()
	}
}

// SetMany writes a batch through both tiers.
func (c *TieredCache) SetMany(ctx context.Context, defs []*flag.Definition) {
	for _, def := range defs {
		if def != nil {
			c.l1.set(def)
		}
	}
	if c.l2 != nil {
		l2ctx, cancel := context.WithTimeout(ctx, c.cfg.L2Timeout)
		c.l2.SetMany(l2ctx, defs)
		cancel()
	}
}

// Invalidate drops ids from both tiers. There is no cross-tier atomicity;
// the inconsistency window is bounded by change propagation.
func (c *TieredCache) Invalidate(ctx context.Context, id flag.ID) {
	c.InvalidateMany(ctx, id)
}

// InvalidateMany drops a batch from both tiers.
func (c *TieredCache) InvalidateMany(ctx context.Context, ids ...flag.ID) {
	for _, id := range ids {
		c.l1.remove(id)
	}
	if c.l2 != nil {
		l2ctx, cancel := context.WithTimeout(ctx, c.cfg.L2Timeout)
		c.l2.Invalidate(l2ctx, ids...)
		cancel()
	}
}

// Clear empties both tiers.
func (c *TieredCache) Clear(ctx context.Context) {
	c.l1.clear()
	if c.l2 != nil {
		l2ctx, cancel := context.WithTimeout(ctx, c.cfg.L2Timeout)
		c.l2.Clear(l2ctx)
		cancel()
	}
}

// Stats returns a race-free snapshot of the counters.
func (c *TieredCache) Stats() Stats {
	return Stats{
		Hits:        c.counters.hits.Load(),
		Misses:      c.counters.misses.Load(),
		Evictions:   c.counters.evictions.Load(),
		Expirations: c.counters.expirations.Load(),
		Size:        c.l1.len(),
	}
}

// Close stops the background sweep.
func (c *TieredCache) Close() error {
	c.l1.close()
	return nil
}
