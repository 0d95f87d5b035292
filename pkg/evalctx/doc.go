// Package evalctx models the structured evaluation context: the namespaced
// identity and attribute bag a flag is evaluated against for one request.
//
// Properties are addressed by dotted paths ("user.plan", "device.os",
// "custom.foo"). The first segment selects a namespace; a single unqualified
// segment defaults to the user namespace for backward compatibility.
// Resolution is total: an unknown namespace or a missing field yields
// absence, never an error.
//
// Bucket keys resolve identities for deterministic hashing. "user_id" falls
// back to the anonymous id so anonymous traffic still buckets consistently;
// absence of a bucket key makes rollout and experiment steps no-ops rather
// than failures.
package evalctx
