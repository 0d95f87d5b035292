package targeting

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/dmitrymomot/flagkit/pkg/evalctx"
	"github.com/dmitrymomot/flagkit/pkg/flag"
)

func (m *Matcher) matchCondition(c flag.Condition, ctx *evalctx.Context, depth int) bool {
	var result bool

	switch c.Operator {
	case flag.OpInSegment:
		if name, ok := c.Value().Str(); ok {
			result = m.matchSegment(name, ctx, depth+1)
		}
	case flag.OpExists:
		_, result = ctx.Resolve(c.Property)
	case flag.OpNotExists:
		_, found := ctx.Resolve(c.Property)
		result = !found
	default:
		actual, found := ctx.Resolve(c.Property)
		if found {
			result = m.compare(c, actual)
		}
		// Absent property fails closed: result stays false.
	}

	if c.Negate {
		return !result
	}
	return result
}

func (m *Matcher) compare(c flag.Condition, actual any) bool {
	switch c.Operator {
	case flag.OpEquals:
		return equalValue(actual, c.Value())
	case flag.OpNotEquals:
		return !equalValue(actual, c.Value())
	case flag.OpContains:
		return stringOp(actual, c.Value(), strings.Contains)
	case flag.OpNotContains:
		s, ok := asString(actual)
		want, ok2 := c.Value().Str()
		return ok && ok2 && !strings.Contains(s, want)
	case flag.OpStartsWith:
		return stringOp(actual, c.Value(), strings.HasPrefix)
	case flag.OpEndsWith:
		return stringOp(actual, c.Value(), strings.HasSuffix)
	case flag.OpRegex:
		return m.matchRegex(actual, c.Value())
	case flag.OpGreaterThan:
		return numericOp(actual, c.Value(), func(a, b float64) bool { return a > b })
	case flag.OpGreaterOrEqual:
		return numericOp(actual, c.Value(), func(a, b float64) bool { return a >= b })
	case flag.OpLessThan:
		return numericOp(actual, c.Value(), func(a, b float64) bool { return a < b })
	case flag.OpLessOrEqual:
		return numericOp(actual, c.Value(), func(a, b float64) bool { return a <= b })
	case flag.OpIn:
		return inList(actual, c)
	case flag.OpNotIn:
		return !inList(actual, c)
	case flag.OpSemverEquals:
		return semverOp(actual, c.Value(), func(cmp int) bool { return cmp == 0 })
	case flag.OpSemverGreater:
		return semverOp(actual, c.Value(), func(cmp int) bool { return cmp > 0 })
	case flag.OpSemverLess:
		return semverOp(actual, c.Value(), func(cmp int) bool { return cmp < 0 })
	}
	return false
}

// matchRegex compiles through the matcher's cache. A pattern that fails to
// compile is remembered and degrades this condition to non-match.
func (m *Matcher) matchRegex(actual any, pattern flag.Value) bool {
	s, ok := asString(actual)
	if !ok {
		return false
	}
	p, ok := pattern.Str()
	if !ok {
		return false
	}

	m.mu.RLock()
	re, compiled := m.regexes[p]
	_, failed := m.broken[p]
	m.mu.RUnlock()

	if failed {
		return false
	}
	if !compiled {
		var err error
		re, err = regexp.Compile(p)
		m.mu.Lock()
		if err != nil {
			m.broken[p] = struct{}{}
			m.mu.Unlock()
			m.log.Warn("regex condition degraded to non-match", "pattern", p, "error", err)
			return false
		}
		m.regexes[p] = re
		m.mu.Unlock()
	}

	return re.MatchString(s)
}

func equalValue(actual any, want flag.Value) bool {
	av, ok := flag.ValueOf(actual)
	if !ok {
		return false
	}
	// Numbers compare across integer/number kinds so a JSON-decoded 30.0
	// equals an authored integer 30.
	if af, aok := av.Float(); aok {
		if wf, wok := want.Float(); wok {
			return af == wf
		}
		return false
	}
	return av.Equal(want)
}

func stringOp(actual any, want flag.Value, op func(s, sub string) bool) bool {
	s, ok := asString(actual)
	if !ok {
		return false
	}
	w, ok := want.Str()
	if !ok {
		return false
	}
	return op(s, w)
}

func numericOp(actual any, want flag.Value, op func(a, b float64) bool) bool {
	a, ok := asFloat(actual)
	if !ok {
		return false
	}
	w, ok := want.Float()
	if !ok {
		return false
	}
	return op(a, w)
}

func semverOp(actual any, want flag.Value, op func(cmp int) bool) bool {
	s, ok := asString(actual)
	if !ok {
		return false
	}
	w, ok := want.Str()
	if !ok {
		return false
	}
	av, err := semver.NewVersion(s)
	if err != nil {
		return false
	}
	wv, err := semver.NewVersion(w)
	if err != nil {
		return false
	}
	return op(av.Compare(wv))
}

// inList checks membership of the actual value in the condition's values: a
// single list value, or each configured value taken individually.
func inList(actual any, c flag.Condition) bool {
	if list, ok := c.Value().List(); ok && len(c.Values) == 1 {
		s, sok := asString(actual)
		if !sok {
			return false
		}
		for _, item := range list {
			if item == s {
				return true
			}
		}
		return false
	}
	for _, v := range c.Values {
		if equalValue(actual, v) {
			return true
		}
	}
	return false
}

func asString(actual any) (string, bool) {
	s, ok := actual.(string)
	return s, ok
}

func asFloat(actual any) (float64, bool) {
	switch t := actual.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}
