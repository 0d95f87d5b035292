package engine

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/dmitrymomot/flagkit/pkg/bucket"
	"github.com/dmitrymomot/flagkit/pkg/evalctx"
	"github.com/dmitrymomot/flagkit/pkg/flag"
	"github.com/dmitrymomot/flagkit/pkg/storage"
	"github.com/dmitrymomot/flagkit/pkg/targeting"
)

// Cache is the definition cache consulted before durable storage.
// *cache.TieredCache satisfies it.
type Cache interface {
	Get(ctx context.Context, id flag.ID) (*flag.Definition, bool)
	GetMany(ctx context.Context, ids []flag.ID) map[flag.ID]*flag.Definition
	Set(ctx context.Context, def *flag.Definition)
	SetMany(ctx context.Context, defs []*flag.Definition)
}

// Engine evaluates flags. It is safe for concurrent use.
type Engine struct {
	store   storage.Store
	cache   Cache
	matcher *targeting.Matcher
	seed    []byte
	log     *slog.Logger
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache attaches a definition cache in front of the store.
func WithCache(c Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithLogger sets the evaluation logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithSeed sets the bucketing seed. All processes serving the same flags
// must share one seed or rollouts and experiments disagree across the fleet.
func WithSeed(seed []byte) Option {
	return func(e *Engine) { e.seed = seed }
}

// WithSegments registers named segments referenced by rule conditions.
func WithSegments(segments map[string]flag.Segment) Option {
	return func(e *Engine) {
		e.matcher = targeting.NewMatcher(targeting.WithSegments(segments), targeting.WithLogger(e.log))
	}
}

// New creates an evaluation engine backed by the given store.
func New(store storage.Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.matcher == nil {
		e.matcher = targeting.NewMatcher(targeting.WithLogger(e.log))
	}
	return e
}

// Evaluate resolves one flag. The returned error is non-nil only for
// storage faults; the Result is always populated so the caller can still
// choose to act on it.
func (e *Engine) Evaluate(ctx context.Context, id flag.ID, ectx *evalctx.Context) (*Result, error) {
	start := e.now()

	def, err := e.resolve(ctx, id)
	if err != nil {
		e.log.ErrorContext(ctx, "flag resolution failed", "flag_id", id, "error", err)
		return e.finish(&Result{FlagID: id, Value: flag.NullValue(), Reason: ReasonError}, start), err
	}
	if def == nil {
		return e.finish(&Result{FlagID: id, Value: flag.NullValue(), Reason: ReasonNotFound}, start), nil
	}
	return e.finish(e.evaluate(def, ectx), start), nil
}

// EvaluateAll resolves many flags with one shared context and a single bulk
// cache/storage round-trip. Partial results are returned alongside a storage
// error when the store fails mid-batch.
func (e *Engine) EvaluateAll(ctx context.Context, ids []flag.ID, ectx *evalctx.Context) (map[flag.ID]*Result, error) {
	start := e.now()
	results := make(map[flag.ID]*Result, len(ids))

	defs := make(map[flag.ID]*flag.Definition, len(ids))
	missing := ids
	if e.cache != nil {
		for id, def := range e.cache.GetMany(ctx, ids) {
			defs[id] = def
		}
		missing = missing[:0:0]
		for _, id := range ids {
			if _, ok := defs[id]; !ok {
				missing = append(missing, id)
			}
		}
	}

	var storeErr error
	if len(missing) > 0 {
		stored, err := e.store.GetMany(ctx, missing)
		if err != nil {
			storeErr = err
			e.log.ErrorContext(ctx, "bulk flag resolution failed", "count", len(missing), "error", err)
		} else {
			var fetched []*flag.Definition
			for id, sf := range stored {
				defs[id] = &sf.Definition
				fetched = append(fetched, &sf.Definition)
			}
			if e.cache != nil && len(fetched) > 0 {
				e.cache.SetMany(ctx, fetched)
			}
		}
	}

	for _, id := range ids {
		def, ok := defs[id]
		switch {
		case ok:
			results[id] = e.finish(e.evaluate(def, ectx), start)
		case storeErr != nil:
			results[id] = e.finish(&Result{FlagID: id, Value: flag.NullValue(), Reason: ReasonError}, start)
		default:
			results[id] = e.finish(&Result{FlagID: id, Value: flag.NullValue(), Reason: ReasonNotFound}, start)
		}
	}
	return results, storeErr
}

// resolve returns nil, nil when the flag simply does not exist.
func (e *Engine) resolve(ctx context.Context, id flag.ID) (*flag.Definition, error) {
	if e.cache != nil {
		if def, ok := e.cache.Get(ctx, id); ok {
			return def, nil
		}
	}
	sf, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if e.cache != nil {
		e.cache.Set(ctx, &sf.Definition)
	}
	return &sf.Definition, nil
}

func (e *Engine) evaluate(def *flag.Definition, ectx *evalctx.Context) *Result {
	res := &Result{FlagID: def.ID, Found: true}

	if def.Status.ShortCircuits() {
		res.Value = def.Default
		res.Reason = ReasonDisabled
		return res
	}

	if !def.EnabledIn(ectx.EnvironmentName()) {
		res.Value = def.Default
		res.Reason = ReasonDisabled
		return res
	}

	if ectx.User != nil && ectx.User.ID != "" {
		if v, ok := def.UserOverrides[ectx.User.ID]; ok {
			res.Value = v
			res.Reason = ReasonOverride
			return res
		}
	}

	for _, group := range ectx.Groups {
		if v, ok := def.GroupOverrides[group]; ok {
			res.Value = v
			res.Reason = ReasonGroupTargeted
			return res
		}
	}

	if len(def.Rules) > 0 {
		rules := slices.Clone(def.Rules)
		flag.SortRules(rules)
		for _, rule := range rules {
			if !rule.Enabled {
				continue
			}
			if e.matcher.MatchRule(rule, ectx) {
				res.Value = rule.Value
				res.Reason = ReasonRuleMatched
				res.MatchedRuleID = rule.ID
				return res
			}
		}
	}

	if exp := def.Experiment; exp != nil && len(exp.Variants) > 0 {
		if key := ectx.BucketKey(exp.BucketBy); key != "" {
			pct := bucket.ForRollout(string(def.ID), key, exp.Salt, e.seed)
			weights := make([]float64, len(exp.Variants))
			for i, v := range exp.Variants {
				weights[i] = v.Weight
			}
			if idx := bucket.VariantIndex(weights, pct); idx >= 0 {
				variant := exp.Variants[idx]
				res.Value = variant.Value
				res.Reason = ReasonExperiment
				res.InExperiment = true
				res.Variant = variant.Name
				return res
			}
		}
	}

	// Rollout only ever switches boolean flags on; other kinds keep their
	// default because there is no "on" value to produce.
	if r := def.Rollout; r != nil && def.Type == flag.KindBool {
		if key := ectx.BucketKey(r.BucketBy); key != "" {
			if bucket.InRollout(string(def.ID), key, r.Salt, e.seed, r.Percentage) {
				res.Value = flag.BoolValue(true)
				res.Reason = ReasonPercentageRollout
				return res
			}
		}
	}

	res.Value = def.Default
	res.Reason = ReasonDefault
	return res
}

func (e *Engine) finish(res *Result, start time.Time) *Result {
	res.EvaluatedAt = start
	res.Duration = e.now().Sub(start)
	return res
}

