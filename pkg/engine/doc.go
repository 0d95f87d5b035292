// Package engine evaluates feature flags against an evaluation context.
//
// Evaluation is total: every call produces a Result carrying a value, a
// reason code, timing and experiment membership, even when the flag is
// missing or storage is down. Precedence, from strongest to weakest:
// flag status short-circuit, environment gate, exact user override, first
// matching group override, targeting rules by priority, experiment variant
// assignment, percentage rollout, and finally the flag's default value.
//
// Definitions resolve through the tiered cache first and fall back to the
// durable store on miss; infrastructure faults surface as a typed error next
// to a best-effort Result so the caller chooses fail-open or fail-closed.
//
// Usage:
//
//	eng := engine.New(store, engine.WithCache(c), engine.WithSeed(seed))
//	res, err := eng.Evaluate(ctx, "beta-feature", ectx)
//	if err != nil {
//		// storage fault, res still carries a usable default
//	}
//	if on, _ := res.Value.Bool(); on { ... }
package engine
