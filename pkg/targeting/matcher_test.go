package targeting_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/flagkit/pkg/evalctx"
	"github.com/dmitrymomot/flagkit/pkg/flag"
	"github.com/dmitrymomot/flagkit/pkg/targeting"
)

func userCtx(attrs map[string]any) *evalctx.Context {
	return &evalctx.Context{
		User: &evalctx.User{ID: "u1", Plan: "beta", Email: "u1@example.com", Attributes: attrs},
		Application: &evalctx.Application{Version: "2.3.1"},
	}
}

func cond(prop string, op flag.Operator, values ...flag.Value) flag.Condition {
	return flag.Condition{Property: prop, Operator: op, Values: values}
}

func rule(conds ...flag.Condition) flag.Rule {
	return flag.Rule{ID: "r", Priority: 1, Conditions: conds, Enabled: true, Value: flag.BoolValue(true)}
}

func TestOperators(t *testing.T) {
	t.Parallel()
	m := targeting.NewMatcher()
	ctx := userCtx(map[string]any{"age": 30, "score": 4.5})

	cases := []struct {
		name string
		cond flag.Condition
		want bool
	}{
		{"Equals", cond("user.plan", flag.OpEquals, flag.StringValue("beta")), true},
		{"EqualsMiss", cond("user.plan", flag.OpEquals, flag.StringValue("free")), false},
		{"NotEquals", cond("user.plan", flag.OpNotEquals, flag.StringValue("free")), true},
		{"EqualsNumericCrossKind", cond("user.age", flag.OpEquals, flag.NumberValue(30)), true},
		{"Contains", cond("user.email", flag.OpContains, flag.StringValue("@example")), true},
		{"NotContains", cond("user.email", flag.OpNotContains, flag.StringValue("@corp")), true},
		{"StartsWith", cond("user.email", flag.OpStartsWith, flag.StringValue("u1@")), true},
		{"EndsWith", cond("user.email", flag.OpEndsWith, flag.StringValue(".com")), true},
		{"Regex", cond("user.email", flag.OpRegex, flag.StringValue(`^u\d+@`)), true},
		{"RegexMiss", cond("user.email", flag.OpRegex, flag.StringValue(`^admin`)), false},
		{"GreaterThan", cond("user.age", flag.OpGreaterThan, flag.IntegerValue(18)), true},
		{"GreaterOrEqual", cond("user.age", flag.OpGreaterOrEqual, flag.IntegerValue(30)), true},
		{"LessThan", cond("user.score", flag.OpLessThan, flag.NumberValue(5)), true},
		{"LessOrEqualMiss", cond("user.age", flag.OpLessOrEqual, flag.IntegerValue(29)), false},
		{"InList", cond("user.plan", flag.OpIn, flag.ListValue("beta", "pro")), true},
		{"InScalars", cond("user.plan", flag.OpIn, flag.StringValue("pro"), flag.StringValue("beta")), true},
		{"NotIn", cond("user.plan", flag.OpNotIn, flag.ListValue("free", "pro")), true},
		{"SemverEquals", cond("application.version", flag.OpSemverEquals, flag.StringValue("2.3.1")), true},
		{"SemverGreater", cond("application.version", flag.OpSemverGreater, flag.StringValue("2.0.0")), true},
		{"SemverLess", cond("application.version", flag.OpSemverLess, flag.StringValue("3.0.0")), true},
		{"Exists", cond("user.email", flag.OpExists), true},
		{"NotExists", cond("user.missing", flag.OpNotExists), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, m.MatchRule(rule(tc.cond), ctx))
		})
	}
}

func TestFailClosedPolicy(t *testing.T) {
	t.Parallel()
	m := targeting.NewMatcher()
	ctx := userCtx(nil)

	t.Run("AbsentPropertyIsNonMatch", func(t *testing.T) {
		t.Parallel()
		assert.False(t, m.MatchRule(rule(cond("user.missing", flag.OpEquals, flag.StringValue("x"))), ctx))
	})

	t.Run("TypeMismatchIsNonMatch", func(t *testing.T) {
		t.Parallel()
		// user.plan is a string; numeric comparison fails closed.
		assert.False(t, m.MatchRule(rule(cond("user.plan", flag.OpGreaterThan, flag.IntegerValue(1))), ctx))
	})

	t.Run("NotExistsAssertsAbsence", func(t *testing.T) {
		t.Parallel()
		assert.True(t, m.MatchRule(rule(cond("user.missing", flag.OpNotExists)), ctx))
		assert.False(t, m.MatchRule(rule(cond("user.plan", flag.OpNotExists)), ctx))
	})

	t.Run("NegateInverts", func(t *testing.T) {
		t.Parallel()
		c := cond("user.plan", flag.OpEquals, flag.StringValue("beta"))
		c.Negate = true
		assert.False(t, m.MatchRule(rule(c), ctx))
	})

	t.Run("BadSemverIsNonMatch", func(t *testing.T) {
		t.Parallel()
		bad := &evalctx.Context{Application: &evalctx.Application{Version: "not-a-version"}}
		assert.False(t, m.MatchRule(rule(cond("application.version", flag.OpSemverEquals, flag.StringValue("1.0.0"))), bad))
	})
}

func TestRegexDegradation(t *testing.T) {
	t.Parallel()
	m := targeting.NewMatcher()
	ctx := userCtx(nil)

	// The broken regex degrades its own condition only; the rule as a whole
	// still evaluates and a sibling rule is unaffected.
	broken := rule(cond("user.email", flag.OpRegex, flag.StringValue("(unclosed")))
	assert.False(t, m.MatchRule(broken, ctx))
	// Cached failure path behaves the same on repeat.
	assert.False(t, m.MatchRule(broken, ctx))

	healthy := rule(cond("user.plan", flag.OpEquals, flag.StringValue("beta")))
	assert.True(t, m.MatchRule(healthy, ctx))
}

func TestDisabledRuleNeverMatches(t *testing.T) {
	t.Parallel()
	m := targeting.NewMatcher()
	r := rule(cond("user.plan", flag.OpEquals, flag.StringValue("beta")))
	r.Enabled = false
	assert.False(t, m.MatchRule(r, userCtx(nil)))
}

func TestGroupTargets(t *testing.T) {
	t.Parallel()
	m := targeting.NewMatcher()
	ctx := &evalctx.Context{
		User:   &evalctx.User{ID: "u1", Plan: "beta"},
		Groups: []string{"employees", "beta-testers"},
	}

	t.Run("AnyMatchesOnInclude", func(t *testing.T) {
		t.Parallel()
		gt := flag.GroupTarget{Include: []string{"beta-testers"}, MatchMode: flag.MatchAny}
		assert.True(t, m.MatchGroups(gt, ctx))
	})

	t.Run("ExcludeDefeatsIncludeUnderAll", func(t *testing.T) {
		t.Parallel()
		gt := flag.GroupTarget{
			Include:   []string{"beta-testers"},
			Exclude:   []string{"employees"},
			MatchMode: flag.MatchAll,
		}
		assert.False(t, m.MatchGroups(gt, ctx))
	})

	t.Run("ExcludeDefeatsEverywhere", func(t *testing.T) {
		t.Parallel()
		gt := flag.GroupTarget{
			Include:   []string{"beta-testers"},
			Exclude:   []string{"employees"},
			MatchMode: flag.MatchAny,
		}
		assert.False(t, m.MatchGroups(gt, ctx))
	})

	t.Run("AllRequiresEveryInclude", func(t *testing.T) {
		t.Parallel()
		gt := flag.GroupTarget{Include: []string{"beta-testers", "admins"}, MatchMode: flag.MatchAll}
		assert.False(t, m.MatchGroups(gt, ctx))

		gt.Include = []string{"beta-testers", "employees"}
		assert.True(t, m.MatchGroups(gt, ctx))
	})

	t.Run("AllCombinesRules", func(t *testing.T) {
		t.Parallel()
		gt := flag.GroupTarget{
			Include:   []string{"beta-testers"},
			Rules:     []flag.Rule{rule(cond("user.plan", flag.OpEquals, flag.StringValue("free")))},
			MatchMode: flag.MatchAll,
		}
		assert.False(t, m.MatchGroups(gt, ctx))
	})

	t.Run("PriorityIncludeWinsFirst", func(t *testing.T) {
		t.Parallel()
		gt := flag.GroupTarget{
			Include:   []string{"employees"},
			Rules:     []flag.Rule{rule(cond("user.plan", flag.OpEquals, flag.StringValue("free")))},
			MatchMode: flag.MatchPriority,
		}
		assert.True(t, m.MatchGroups(gt, ctx))
	})

	t.Run("EmptyTargetNeverMatches", func(t *testing.T) {
		t.Parallel()
		assert.False(t, m.MatchGroups(flag.GroupTarget{MatchMode: flag.MatchAll}, ctx))
		assert.False(t, m.MatchGroups(flag.GroupTarget{MatchMode: flag.MatchAny}, ctx))
	})
}

func TestSegments(t *testing.T) {
	t.Parallel()

	segments := map[string]flag.Segment{
		"beta-audience": {
			Name:    "beta-audience",
			Combine: flag.CombineOr,
			Rules: []flag.Rule{
				rule(cond("user.plan", flag.OpEquals, flag.StringValue("beta"))),
				rule(cond("user.plan", flag.OpEquals, flag.StringValue("pro"))),
			},
		},
		"employee-betas": {
			Name:    "employee-betas",
			Combine: flag.CombineAnd,
			Rules: []flag.Rule{
				rule(cond("user.plan", flag.OpEquals, flag.StringValue("beta"))),
			},
			Groups: &flag.GroupTarget{Include: []string{"employees"}},
		},
		"nested": {
			Name:    "nested",
			Combine: flag.CombineAnd,
			Rules: []flag.Rule{
				rule(cond("", flag.OpInSegment, flag.StringValue("beta-audience"))),
			},
		},
	}
	m := targeting.NewMatcher(targeting.WithSegments(segments))

	betaUser := &evalctx.Context{User: &evalctx.User{ID: "u1", Plan: "beta"}}
	employeeBeta := &evalctx.Context{User: &evalctx.User{ID: "u2", Plan: "beta"}, Groups: []string{"employees"}}
	freeUser := &evalctx.Context{User: &evalctx.User{ID: "u3", Plan: "free"}}

	t.Run("OrCombination", func(t *testing.T) {
		t.Parallel()
		assert.True(t, m.MatchSegment("beta-audience", betaUser))
		assert.False(t, m.MatchSegment("beta-audience", freeUser))
	})

	t.Run("AndWithGroups", func(t *testing.T) {
		t.Parallel()
		assert.True(t, m.MatchSegment("employee-betas", employeeBeta))
		assert.False(t, m.MatchSegment("employee-betas", betaUser))
	})

	t.Run("SegmentReferenceCondition", func(t *testing.T) {
		t.Parallel()
		assert.True(t, m.MatchSegment("nested", betaUser))
		assert.False(t, m.MatchSegment("nested", freeUser))
	})

	t.Run("UnknownSegmentFailsClosed", func(t *testing.T) {
		t.Parallel()
		assert.False(t, m.MatchSegment("missing", betaUser))
	})
}
