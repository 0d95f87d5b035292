package targeting

import (
	"log/slog"
	"regexp"
	"sync"

	"github.com/dmitrymomot/flagkit/pkg/evalctx"
	"github.com/dmitrymomot/flagkit/pkg/flag"
)

// maxSegmentDepth bounds segment-to-segment references so a definition cycle
// cannot recurse forever.
const maxSegmentDepth = 10

// Matcher evaluates rules and segments against evaluation contexts.
type Matcher struct {
	log      *slog.Logger
	segments map[string]flag.Segment

	mu      sync.RWMutex
	regexes map[string]*regexp.Regexp // successfully compiled patterns
	broken  map[string]struct{}       // patterns that failed to compile
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithLogger sets the logger used for condition-local degradations.
func WithLogger(log *slog.Logger) Option {
	return func(m *Matcher) {
		if log != nil {
			m.log = log
		}
	}
}

// WithSegments registers named, reusable segments referenced by in_segment
// conditions.
func WithSegments(segments map[string]flag.Segment) Option {
	return func(m *Matcher) {
		m.segments = segments
	}
}

// NewMatcher creates a matcher. Without options it logs to slog.Default and
// knows no segments.
func NewMatcher(opts ...Option) *Matcher {
	m := &Matcher{
		log:     slog.Default(),
		regexes: make(map[string]*regexp.Regexp),
		broken:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MatchRule reports whether every condition of the rule matches the context.
// A disabled rule never matches.
func (m *Matcher) MatchRule(r flag.Rule, ctx *evalctx.Context) bool {
	if !r.Enabled {
		return false
	}
	for _, c := range r.Conditions {
		if !m.matchCondition(c, ctx, 0) {
			return false
		}
	}
	return true
}

// MatchSegment evaluates a named segment as an audience predicate. An
// unknown segment name is a non-match.
func (m *Matcher) MatchSegment(name string, ctx *evalctx.Context) bool {
	return m.matchSegment(name, ctx, 0)
}

func (m *Matcher) matchSegment(name string, ctx *evalctx.Context, depth int) bool {
	if depth >= maxSegmentDepth {
		m.log.Warn("segment reference depth exceeded", "segment", name)
		return false
	}
	seg, ok := m.segments[name]
	if !ok {
		return false
	}

	rulesMatch, hasRules := m.matchSegmentRules(seg, ctx, depth)
	groupsMatch := false
	if seg.Groups != nil {
		groupsMatch = m.matchGroups(*seg.Groups, ctx, depth)
	}

	switch {
	case seg.Groups == nil && !hasRules:
		return false // empty segment matches nothing
	case seg.Groups == nil:
		return rulesMatch
	case !hasRules:
		return groupsMatch
	case seg.Combine == flag.CombineOr:
		return rulesMatch || groupsMatch
	default:
		return rulesMatch && groupsMatch
	}
}

func (m *Matcher) matchSegmentRules(seg flag.Segment, ctx *evalctx.Context, depth int) (matched, hasRules bool) {
	if len(seg.Rules) == 0 {
		return false, false
	}
	if seg.Combine == flag.CombineOr {
		for _, r := range seg.Rules {
			if m.matchRuleAtDepth(r, ctx, depth) {
				return true, true
			}
		}
		return false, true
	}
	for _, r := range seg.Rules {
		if !m.matchRuleAtDepth(r, ctx, depth) {
			return false, true
		}
	}
	return true, true
}

func (m *Matcher) matchRuleAtDepth(r flag.Rule, ctx *evalctx.Context, depth int) bool {
	if !r.Enabled {
		return false
	}
	for _, c := range r.Conditions {
		if !m.matchCondition(c, ctx, depth) {
			return false
		}
	}
	return true
}

// MatchGroups evaluates a group target against the context's group
// membership and attributes.
func (m *Matcher) MatchGroups(gt flag.GroupTarget, ctx *evalctx.Context) bool {
	return m.matchGroups(gt, ctx, 0)
}

func (m *Matcher) matchGroups(gt flag.GroupTarget, ctx *evalctx.Context, depth int) bool {
	// An excluded group defeats everything else, in every match mode.
	for _, group := range gt.Exclude {
		if inGroups(ctx, group) {
			return false
		}
	}

	mode := gt.MatchMode
	if mode == "" {
		mode = flag.MatchAny
	}

	switch mode {
	case flag.MatchAll:
		for _, group := range gt.Include {
			if !inGroups(ctx, group) {
				return false
			}
		}
		for _, r := range gt.Rules {
			if !m.matchRuleAtDepth(r, ctx, depth) {
				return false
			}
		}
		return len(gt.Include) > 0 || len(gt.Rules) > 0

	case flag.MatchPriority:
		// Includes outrank rules; the first applicable criterion decides.
		for _, group := range gt.Include {
			if inGroups(ctx, group) {
				return true
			}
		}
		rules := make([]flag.Rule, len(gt.Rules))
		copy(rules, gt.Rules)
		flag.SortRules(rules)
		for _, r := range rules {
			if m.matchRuleAtDepth(r, ctx, depth) {
				return true
			}
		}
		return false

	default: // MatchAny
		for _, group := range gt.Include {
			if inGroups(ctx, group) {
				return true
			}
		}
		for _, r := range gt.Rules {
			if m.matchRuleAtDepth(r, ctx, depth) {
				return true
			}
		}
		return false
	}
}

func inGroups(ctx *evalctx.Context, group string) bool {
	if ctx == nil {
		return false
	}
	for _, g := range ctx.Groups {
		if g == group {
			return true
		}
	}
	return false
}
