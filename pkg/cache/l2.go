package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/flagkit/pkg/flag"
)

// RedisTier stores JSON-encoded definitions in Redis. Every failure is
// degraded to a miss or a no-op with a debug log; the tier never propagates
// errors into evaluation.
type RedisTier struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    *slog.Logger
}

// RedisOption configures a RedisTier.
type RedisOption func(*RedisTier)

// WithRedisLogger sets the logger for degradation events.
func WithRedisLogger(log *slog.Logger) RedisOption {
	return func(t *RedisTier) {
		if log != nil {
			t.log = log
		}
	}
}

// NewRedisTier wraps a Redis client as an L2 tier. The prefix namespaces
// keys so one Redis can back several deployments.
func NewRedisTier(client redis.UniversalClient, prefix string, ttl time.Duration, opts ...RedisOption) *RedisTier {
	t := &RedisTier{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *RedisTier) key(id flag.ID) string {
	return t.prefix + string(id)
}

func (t *RedisTier) Get(ctx context.Context, id flag.ID) (*flag.Definition, bool) {
	raw, err := t.client.Get(ctx, t.key(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			t.log.DebugContext(ctx, "redis cache get failed", "flag_id", id, "error", err)
		}
		return nil, false
	}
	var def flag.Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		t.log.DebugContext(ctx, "redis cache entry corrupt", "flag_id", id, "error", err)
		return nil, false
	}
	return &def, true
}

func (t *RedisTier) GetMany(ctx context.Context, ids []flag.ID) map[flag.ID]*flag.Definition {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = t.key(id)
	}
	vals, err := t.client.MGet(ctx, keys...).Result()
	if err != nil {
		t.log.DebugContext(ctx, "redis cache mget failed", "count", len(ids), "error", err)
		return nil
	}
	found := make(map[flag.ID]*flag.Definition, len(ids))
	for i, val := range vals {
		raw, ok := val.(string)
		if !ok {
			continue
		}
		var def flag.Definition
		if err := json.Unmarshal([]byte(raw), &def); err != nil {
			t.log.DebugContext(ctx, "redis cache entry corrupt", "flag_id", ids[i], "error", err)
			continue
		}
		found[ids[i]] = &def
	}
	return found
}

func (t *RedisTier) Set(ctx context.Context, def *flag.Definition) {
	raw, err := json.Marshal(def)
	if err != nil {
		t.log.DebugContext(ctx, "redis cache encode failed", "flag_id", def.ID, "error", err)
		return
	}
	if err := t.client.Set(ctx, t.key(def.ID), raw, t.ttl).Err(); err != nil {
		t.log.DebugContext(ctx, "redis cache set failed", "flag_id", def.ID, "error", err)
	}
}

func (t *RedisTier) SetMany(ctx context.Context, defs []*flag.Definition) {
	if len(defs) == 0 {
		return
	}
	pipe := t.client.Pipeline()
	for _, def := range defs {
		if def == nil {
			continue
		}
		raw, err := json.Marshal(def)
		if err != nil {
			t.log.DebugContext(ctx, "redis cache encode failed", "flag_id", def.ID, "error", err)
			continue
		}
		pipe.Set(ctx, t.key(def.ID), raw, t.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		t.log.DebugContext(ctx, "redis cache pipeline failed", "count", len(defs), "error", err)
	}
}

func (t *RedisTier) Invalidate(ctx context.Context, ids ...flag.ID) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = t.key(id)
	}
	if err := t.client.Del(ctx, keys...).Err(); err != nil {
		t.log.DebugContext(ctx, "redis cache del failed", "count", len(ids), "error", err)
	}
}

// Clear removes every key under the tier's prefix using SCAN so it never
// blocks Redis the way KEYS would.
func (t *RedisTier) Clear(ctx context.Context) {
	iter := t.client.Scan(ctx, 0, t.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			if err := t.client.Del(ctx, keys...).Err(); err != nil {
				t.log.DebugContext(ctx, "redis cache clear failed", "error", err)
				return
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		t.log.DebugContext(ctx, "redis cache scan failed", "error", err)
		return
	}
	if len(keys) > 0 {
		if err := t.client.Del(ctx, keys...).Err(); err != nil {
			t.log.DebugContext(ctx, "redis cache clear failed", "error", err)
		}
	}
}

var _ Tier = (*RedisTier)(nil)
