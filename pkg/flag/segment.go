package flag

// MatchMode governs how group include/exclude sets combine with group rules.
type MatchMode string

const (
	// MatchAny enables the target when any included group or rule matches.
	MatchAny MatchMode = "any"
	// MatchAll requires every configured criterion to match; any excluded
	// group short-circuits to non-match regardless of includes.
	MatchAll MatchMode = "all"
	// MatchPriority walks includes, excludes and rules in that order and the
	// first applicable criterion decides.
	MatchPriority MatchMode = "priority"
)

// Valid reports whether m is a known match mode.
func (m MatchMode) Valid() bool {
	switch m {
	case MatchAny, MatchAll, MatchPriority:
		return true
	}
	return false
}

// GroupTarget layers explicit group include/exclude sets with attribute
// rules. The zero MatchMode is treated as MatchAny.
type GroupTarget struct {
	Include   []string  `json:"include,omitempty"`
	Exclude   []string  `json:"exclude,omitempty"`
	Rules     []Rule    `json:"rules,omitempty"`
	MatchMode MatchMode `json:"match_mode,omitempty"`
}

// SegmentCombine selects AND/OR combination of a segment's rules.
type SegmentCombine string

const (
	CombineAnd SegmentCombine = "and"
	CombineOr  SegmentCombine = "or"
)

// Segment is a named, reusable rule set usable both as a group rule and as a
// generic audience predicate (via OpInSegment conditions).
type Segment struct {
	Name    string         `json:"name"`
	Combine SegmentCombine `json:"combine"`
	Rules   []Rule         `json:"rules,omitempty"`
	Groups  *GroupTarget   `json:"groups,omitempty"`
}
