// Package targeting evaluates rules, conditions, group targets and segments
// against an evaluation context.
//
// Matching is fail-closed: when the actual property is absent or its type is
// incompatible with the operator, the condition is false. The one exception
// is the explicit not-exists operator, which is how absence is positively
// asserted. A regex that fails to compile degrades only the offending
// condition to non-match; it never aborts the rule or the evaluation.
//
// A Matcher is safe for concurrent use; compiled regular expressions are
// cached across evaluations.
package targeting
