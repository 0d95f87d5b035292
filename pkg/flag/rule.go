package flag

import "sort"

// Operator compares a resolved context property against condition values.
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpContains       Operator = "contains"
	OpNotContains    Operator = "not_contains"
	OpStartsWith     Operator = "starts_with"
	OpEndsWith       Operator = "ends_with"
	OpRegex          Operator = "regex"
	OpGreaterThan    Operator = "greater_than"
	OpGreaterOrEqual Operator = "greater_or_equal"
	OpLessThan       Operator = "less_than"
	OpLessOrEqual    Operator = "less_or_equal"
	OpIn             Operator = "in"
	OpNotIn          Operator = "not_in"
	OpSemverEquals   Operator = "semver_equals"
	OpSemverGreater  Operator = "semver_greater"
	OpSemverLess     Operator = "semver_less"
	OpExists         Operator = "exists"
	OpNotExists      Operator = "not_exists"
	OpInSegment      Operator = "in_segment"
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpNotContains, OpStartsWith, OpEndsWith,
		OpRegex, OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual,
		OpIn, OpNotIn, OpSemverEquals, OpSemverGreater, OpSemverLess,
		OpExists, OpNotExists, OpInSegment:
		return true
	}
	return false
}

// NeedsValue reports whether the operator requires at least one comparison value.
func (op Operator) NeedsValue() bool {
	switch op {
	case OpExists, OpNotExists:
		return false
	}
	return true
}

// Condition is a single comparison inside a rule. All conditions of a rule
// are ANDed; Negate inverts the individual comparison result.
type Condition struct {
	Property string   `json:"property"`
	Operator Operator `json:"operator"`
	Values   []Value  `json:"values,omitempty"`
	Negate   bool     `json:"negate,omitempty"`
}

// Value returns the first comparison value, or null when none is configured.
func (c Condition) Value() Value {
	if len(c.Values) == 0 {
		return NullValue()
	}
	return c.Values[0]
}

// Rule assigns a result value to contexts matching all of its conditions.
type Rule struct {
	ID         string      `json:"id"`
	Priority   int         `json:"priority"`
	Conditions []Condition `json:"conditions"`
	Value      Value       `json:"value"`
	Enabled    bool        `json:"enabled"`
}

// SortRules orders rules descending by priority, stable on ties so the
// original insertion order decides between equal priorities.
func SortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority > rules[j].Priority
	})
}
