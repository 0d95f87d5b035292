package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagkit/pkg/engine"
	"github.com/dmitrymomot/flagkit/pkg/evalctx"
	"github.com/dmitrymomot/flagkit/pkg/flag"
	"github.com/dmitrymomot/flagkit/pkg/storage"
)

func mustCreate(t *testing.T, store storage.Store, def *flag.Definition) {
	t.Helper()
	_, err := store.Create(context.Background(), def)
	require.NoError(t, err)
}

func betaRule() flag.Rule {
	return flag.Rule{
		ID:       "beta-users",
		Priority: 100,
		Enabled:  true,
		Conditions: []flag.Condition{
			{Property: "user.plan", Operator: flag.OpEquals, Values: []flag.Value{flag.StringValue("beta")}},
		},
		Value: flag.BoolValue(true),
	}
}

func TestEngine_Evaluate(t *testing.T) {
	t.Parallel()

	t.Run("rule match scenario", func(t *testing.T) {
		t.Parallel()

		store := storage.NewMemoryStore()
		def, err := flag.NewBuilder("beta-feature", flag.KindBool, flag.BoolValue(false)).
			WithRule(betaRule()).
			Build()
		require.NoError(t, err)
		mustCreate(t, store, def)

		eng := engine.New(store)

		res, err := eng.Evaluate(context.Background(), "beta-feature", &evalctx.Context{
			User: &evalctx.User{ID: "u1", Plan: "beta"},
		})
		require.NoError(t, err)
		require.True(t, res.Found)
		on, ok := res.Value.Bool()
		require.True(t, ok)
		assert.True(t, on)
		assert.Equal(t, engine.ReasonRuleMatched, res.Reason)
		assert.Equal(t, "beta-users", res.MatchedRuleID)

		res, err = eng.Evaluate(context.Background(), "beta-feature", &evalctx.Context{
			User: &evalctx.User{Plan: "free"},
		})
		require.NoError(t, err)
		on, _ = res.Value.Bool()
		assert.False(t, on)
		assert.Equal(t, engine.ReasonDefault, res.Reason)
	})

	t.Run("missing flag", func(t *testing.T) {
		t.Parallel()

		eng := engine.New(storage.NewMemoryStore())
		res, err := eng.Evaluate(context.Background(), "no-such-flag", &evalctx.Context{})
		require.NoError(t, err)
		assert.False(t, res.Found)
		assert.Equal(t, engine.ReasonNotFound, res.Reason)
		assert.Equal(t, flag.KindNull, res.Value.Kind())
		assert.False(t, res.EvaluatedAt.IsZero())
	})

	t.Run("disabled status short-circuits everything", func(t *testing.T) {
		t.Parallel()

		store := storage.NewMemoryStore()
		def, err := flag.NewBuilder("killed-feature", flag.KindBool, flag.BoolValue(false)).
			WithStatus(flag.StatusDisabled).
			WithRule(betaRule()).
			WithUserOverride("u1", flag.BoolValue(true)).
			Build()
		require.NoError(t, err)
		mustCreate(t, store, def)

		eng := engine.New(store)
		res, err := eng.Evaluate(context.Background(), "killed-feature", &evalctx.Context{
			User: &evalctx.User{ID: "u1", Plan: "beta"},
		})
		require.NoError(t, err)
		on, _ := res.Value.Bool()
		assert.False(t, on)
		assert.Equal(t, engine.ReasonDisabled, res.Reason)
	})

	t.Run("environment gate", func(t *testing.T) {
		t.Parallel()

		store := storage.NewMemoryStore()
		def, err := flag.NewBuilder("prod-only", flag.KindBool, flag.BoolValue(false)).
			WithEnvironment("production", true).
			WithUserOverride("u1", flag.BoolValue(true)).
			Build()
		require.NoError(t, err)
		mustCreate(t, store, def)

		eng := engine.New(store)

		res, err := eng.Evaluate(context.Background(), "prod-only", &evalctx.Context{
			User:        &evalctx.User{ID: "u1"},
			Environment: &evalctx.Environment{Name: "staging"},
		})
		require.NoError(t, err)
		assert.Equal(t, engine.ReasonDisabled, res.Reason)

		res, err = eng.Evaluate(context.Background(), "prod-only", &evalctx.Context{
			User:        &evalctx.User{ID: "u1"},
			Environment: &evalctx.Environment{Name: "production"},
		})
		require.NoError(t, err)
		assert.Equal(t, engine.ReasonOverride, res.Reason)
	})

	t.Run("user override beats rules", func(t *testing.T) {
		t.Parallel()

		store := storage.NewMemoryStore()
		def, err := flag.NewBuilder("beta-feature", flag.KindBool, flag.BoolValue(false)).
			WithRule(betaRule()).
			WithUserOverride("vip-user", flag.BoolValue(false)).
			Build()
		require.NoError(t, err)
		mustCreate(t, store, def)

		eng := engine.New(store)
		res, err := eng.Evaluate(context.Background(), "beta-feature", &evalctx.Context{
			User: &evalctx.User{ID: "vip-user", Plan: "beta"},
		})
		require.NoError(t, err)
		on, _ := res.Value.Bool()
		assert.False(t, on)
		assert.Equal(t, engine.ReasonOverride, res.Reason)
	})

	t.Run("group override follows context group order", func(t *testing.T) {
		t.Parallel()

		store := storage.NewMemoryStore()
		def, err := flag.NewBuilder("team-feature", flag.KindString, flag.StringValue("none")).
			WithGroupOverride("qa", flag.StringValue("qa-value")).
			WithGroupOverride("staff", flag.StringValue("staff-value")).
			Build()
		require.NoError(t, err)
		mustCreate(t, store, def)

		eng := engine.New(store)
		res, err := eng.Evaluate(context.Background(), "team-feature", &evalctx.Context{
			User:   &evalctx.User{ID: "u1"},
			Groups: []string{"staff", "qa"},
		})
		require.NoError(t, err)
		got, _ := res.Value.Str()
		assert.Equal(t, "staff-value", got)
		assert.Equal(t, engine.ReasonGroupTargeted, res.Reason)
	})

	t.Run("higher priority rule wins", func(t *testing.T) {
		t.Parallel()

		store := storage.NewMemoryStore()
		low := flag.Rule{
			ID: "everyone", Priority: 1, Enabled: true,
			Conditions: []flag.Condition{
				{Property: "user.plan", Operator: flag.OpExists},
			},
			Value: flag.StringValue("low"),
		}
		high := flag.Rule{
			ID: "beta", Priority: 50, Enabled: true,
			Conditions: []flag.Condition{
				{Property: "user.plan", Operator: flag.OpEquals, Values: []flag.Value{flag.StringValue("beta")}},
			},
			Value: flag.StringValue("high"),
		}
		disabled := flag.Rule{
			ID: "ignored", Priority: 1000, Enabled: false,
			Conditions: []flag.Condition{
				{Property: "user.plan", Operator: flag.OpExists},
			},
			Value: flag.StringValue("never"),
		}
		def, err := flag.NewBuilder("tiered", flag.KindString, flag.StringValue("default")).
			WithRule(low).WithRule(high).WithRule(disabled).
			Build()
		require.NoError(t, err)
		mustCreate(t, store, def)

		eng := engine.New(store)
		res, err := eng.Evaluate(context.Background(), "tiered", &evalctx.Context{
			User: &evalctx.User{ID: "u1", Plan: "beta"},
		})
		require.NoError(t, err)
		got, _ := res.Value.Str()
		assert.Equal(t, "high", got)
		assert.Equal(t, "beta", res.MatchedRuleID)
	})

	t.Run("storage fault surfaces typed error with usable result", func(t *testing.T) {
		t.Parallel()

		eng := engine.New(&faultyStore{})
		res, err := eng.Evaluate(context.Background(), "any-flag", &evalctx.Context{})
		require.Error(t, err)
		var serr *storage.StorageError
		assert.ErrorAs(t, err, &serr)
		assert.Equal(t, engine.ReasonError, res.Reason)
		assert.False(t, res.Found)
	})
}

func TestEngine_Rollout(t *testing.T) {
	t.Parallel()

	seed := []byte{42}

	t.Run("distribution over 1000 users", func(t *testing.T) {
		t.Parallel()

		store := storage.NewMemoryStore()
		def, err := flag.NewBuilder("gradual-rollout", flag.KindBool, flag.BoolValue(false)).
			WithRollout(50, "v1").
			Build()
		require.NoError(t, err)
		mustCreate(t, store, def)

		eng := engine.New(store, engine.WithSeed(seed))

		enabled := 0
		for i := range 1000 {
			res, err := eng.Evaluate(context.Background(), "gradual-rollout", &evalctx.Context{
				User: &evalctx.User{ID: fmt.Sprintf("user-%d", i)},
			})
			require.NoError(t, err)
			if on, _ := res.Value.Bool(); on {
				enabled++
				assert.Equal(t, engine.ReasonPercentageRollout, res.Reason)
			} else {
				assert.Equal(t, engine.ReasonDefault, res.Reason)
			}
		}
		assert.GreaterOrEqual(t, enabled, 400)
		assert.LessOrEqual(t, enabled, 600)
	})

	t.Run("sticky per user", func(t *testing.T) {
		t.Parallel()

		store := storage.NewMemoryStore()
		def, err := flag.NewBuilder("sticky-rollout", flag.KindBool, flag.BoolValue(false)).
			WithRollout(50, "").
			Build()
		require.NoError(t, err)
		mustCreate(t, store, def)

		eng := engine.New(store, engine.WithSeed(seed))
		ectx := &evalctx.Context{User: &evalctx.User{ID: "user-7"}}

		first, err := eng.Evaluate(context.Background(), "sticky-rollout", ectx)
		require.NoError(t, err)
		for range 10 {
			res, err := eng.Evaluate(context.Background(), "sticky-rollout", ectx)
			require.NoError(t, err)
			assert.Equal(t, first.Value, res.Value)
		}
	})

	t.Run("non-boolean flags keep their default", func(t *testing.T) {
		t.Parallel()

		store := storage.NewMemoryStore()
		def, err := flag.NewBuilder("string-rollout", flag.KindString, flag.StringValue("control")).
			WithRollout(100, "").
			Build()
		require.NoError(t, err)
		mustCreate(t, store, def)

		eng := engine.New(store, engine.WithSeed(seed))
		res, err := eng.Evaluate(context.Background(), "string-rollout", &evalctx.Context{
			User: &evalctx.User{ID: "u1"},
		})
		require.NoError(t, err)
		got, _ := res.Value.Str()
		assert.Equal(t, "control", got)
		assert.Equal(t, engine.ReasonDefault, res.Reason)
	})

	t.Run("no bucket key falls to default", func(t *testing.T) {
		t.Parallel()

		store := storage.NewMemoryStore()
		def, err := flag.NewBuilder("anon-rollout", flag.KindBool, flag.BoolValue(false)).
			WithRollout(100, "").
			Build()
		require.NoError(t, err)
		mustCreate(t, store, def)

		eng := engine.New(store, engine.WithSeed(seed))
		res, err := eng.Evaluate(context.Background(), "anon-rollout", &evalctx.Context{})
		require.NoError(t, err)
		assert.Equal(t, engine.ReasonDefault, res.Reason)
	})
}

func TestEngine_Experiment(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	def, err := flag.NewBuilder("checkout-test", flag.KindVariant, flag.VariantValue("control")).
		WithExperiment(flag.Experiment{
			Name: "checkout-cta",
			Variants: []flag.Variant{
				{Name: "control", Weight: 50, Value: flag.VariantValue("control")},
				{Name: "treatment", Weight: 50, Value: flag.VariantValue("treatment")},
			},
			Salt: "exp1",
		}).
		Build()
	require.NoError(t, err)
	mustCreate(t, store, def)

	eng := engine.New(store, engine.WithSeed([]byte{42}))

	t.Run("variant assignment is sticky", func(t *testing.T) {
		t.Parallel()

		ectx := &evalctx.Context{User: &evalctx.User{ID: "user-13"}}
		first, err := eng.Evaluate(context.Background(), "checkout-test", ectx)
		require.NoError(t, err)
		require.True(t, first.InExperiment)
		require.NotEmpty(t, first.Variant)
		assert.Equal(t, engine.ReasonExperiment, first.Reason)

		for range 10 {
			res, err := eng.Evaluate(context.Background(), "checkout-test", ectx)
			require.NoError(t, err)
			assert.Equal(t, first.Variant, res.Variant)
		}
	})

	t.Run("variants split roughly evenly", func(t *testing.T) {
		t.Parallel()

		counts := map[string]int{}
		for i := range 1000 {
			res, err := eng.Evaluate(context.Background(), "checkout-test", &evalctx.Context{
				User: &evalctx.User{ID: fmt.Sprintf("user-%d", i)},
			})
			require.NoError(t, err)
			counts[res.Variant]++
		}
		for variant, n := range counts {
			assert.GreaterOrEqual(t, n, 400, "variant %s", variant)
			assert.LessOrEqual(t, n, 600, "variant %s", variant)
		}
	})

	t.Run("anonymous id is the fallback bucket key", func(t *testing.T) {
		t.Parallel()

		res, err := eng.Evaluate(context.Background(), "checkout-test", &evalctx.Context{
			User: &evalctx.User{AnonymousID: "anon-99"},
		})
		require.NoError(t, err)
		assert.True(t, res.InExperiment)
	})
}

func TestEngine_EvaluateAll(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	a, err := flag.NewBuilder("flag-a", flag.KindBool, flag.BoolValue(true)).Build()
	require.NoError(t, err)
	mustCreate(t, store, a)
	b, err := flag.NewBuilder("flag-b", flag.KindString, flag.StringValue("b")).Build()
	require.NoError(t, err)
	mustCreate(t, store, b)

	eng := engine.New(store)

	results, err := eng.EvaluateAll(context.Background(),
		[]flag.ID{"flag-a", "flag-b", "flag-missing"}, &evalctx.Context{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	on, _ := results["flag-a"].Value.Bool()
	assert.True(t, on)
	assert.Equal(t, engine.ReasonDefault, results["flag-a"].Reason)
	assert.Equal(t, engine.ReasonNotFound, results["flag-missing"].Reason)
	assert.False(t, results["flag-missing"].Found)

	t.Run("bulk store fault marks uncached results", func(t *testing.T) {
		t.Parallel()

		faulty := engine.New(&faultyStore{})
		results, err := faulty.EvaluateAll(context.Background(), []flag.ID{"flag-a"}, &evalctx.Context{})
		require.Error(t, err)
		assert.Equal(t, engine.ReasonError, results["flag-a"].Reason)
	})
}

func TestEngine_UsesCache(t *testing.T) {
	t.Parallel()

	store := storage.NewMemoryStore()
	def, err := flag.NewBuilder("cached-flag", flag.KindBool, flag.BoolValue(true)).Build()
	require.NoError(t, err)
	mustCreate(t, store, def)

	counting := &countingStore{Store: store}
	c := newMapCache()
	eng := engine.New(counting, engine.WithCache(c))

	for range 5 {
		res, err := eng.Evaluate(context.Background(), "cached-flag", &evalctx.Context{})
		require.NoError(t, err)
		assert.True(t, res.Found)
	}
	assert.Equal(t, 1, counting.gets, "store consulted once, cache after")
}

// faultyStore fails every read with an infrastructure error.
type faultyStore struct {
	storage.Store
}

func (s *faultyStore) Get(context.Context, flag.ID) (*storage.StoredFlag, error) {
	return nil, &storage.StorageError{Op: "get", Err: errors.New("connection refused")}
}

func (s *faultyStore) GetMany(context.Context, []flag.ID) (map[flag.ID]*storage.StoredFlag, error) {
	return nil, &storage.StorageError{Op: "get_many", Err: errors.New("connection refused")}
}

// countingStore counts Get calls through to the wrapped store.
type countingStore struct {
	storage.Store
	gets int
}

func (s *countingStore) Get(ctx context.Context, id flag.ID) (*storage.StoredFlag, error) {
	s.gets++
	return s.Store.Get(ctx, id)
}

// mapCache is a minimal engine.Cache for wiring tests.
type mapCache struct {
	defs map[flag.ID]*flag.Definition
}

func newMapCache() *mapCache {
	return &mapCache{defs: make(map[flag.ID]*flag.Definition)}
}

func (c *mapCache) Get(_ context.Context, id flag.ID) (*flag.Definition, bool) {
	def, ok := c.defs[id]
	return def, ok
}

func (c *mapCache) GetMany(_ context.Context, ids []flag.ID) map[flag.ID]*flag.Definition {
	found := make(map[flag.ID]*flag.Definition)
	for _, id := range ids {
		if def, ok := c.defs[id]; ok {
			found[id] = def
		}
	}
	return found
}

func (c *mapCache) Set(_ context.Context, def *flag.Definition) {
	c.defs[def.ID] = def
}

func (c *mapCache) SetMany(ctx context.Context, defs []*flag.Definition) {
	for _, def := range defs {
		c.Set(ctx, def)
	}
}
