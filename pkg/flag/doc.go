// Package flag defines the data model of the serving runtime: flag
// definitions, typed values, lifecycle status, targeting rules, rollouts and
// experiments.
//
// A Definition is the aggregate root. It is immutable from the evaluation
// path's point of view: definitions are produced either by unmarshalling a
// stored document or by the validated Builder, and both paths run Validate
// before a definition is ever handed to an evaluator. Nothing in this package
// performs evaluation; see pkg/targeting and pkg/engine for that.
//
// # Values
//
// Value is a closed tagged union covering every type a flag can resolve to
// and every type a condition can compare against: bool, string, number,
// integer, string list, JSON object, variant reference and null. The closed
// set lets condition/value compatibility be checked at authoring time instead
// of at evaluation time.
//
//	v := flag.BoolValue(true)
//	v.IsTruthy() // true
//
// # Status lifecycle
//
// Status is a small state machine. Disabled and Archived short-circuit
// evaluation to the default value; Deprecated keeps evaluating normally until
// it is archived. Transition enforces the allowed edges:
//
//	next, err := flag.StatusActive.Transition(flag.StatusDeprecated)
//
// # Building definitions
//
// The Builder only yields a definition after validation succeeds, so a
// partially-valid intermediate can never leak into the evaluation path:
//
//	def, err := flag.NewBuilder("beta-feature", flag.KindBool, flag.BoolValue(false)).
//		WithRule(flag.Rule{
//			ID:       "beta-users",
//			Priority: 100,
//			Enabled:  true,
//			Conditions: []flag.Condition{
//				{Property: "user.plan", Operator: flag.OpEquals, Values: []flag.Value{flag.StringValue("beta")}},
//			},
//			Value: flag.BoolValue(true),
//		}).
//		Build()
package flag
