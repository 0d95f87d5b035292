// Package audit records who changed which flag, when, and what the
// definition looked like before and after.
//
// Recording is fire-and-forget: Record enqueues onto a bounded buffer and
// returns immediately, a background worker drains the buffer into the
// configured sink, and when the buffer is full the entry is counted as
// dropped rather than blocking a flag mutation. Audit must never be the
// reason a change fails.
//
// Usage:
//
//	rec := audit.NewRecorder(audit.NewSlogSink(log))
//	defer rec.Close(ctx)
//
//	rec.Record(ctx, audit.Entry{
//		Action: audit.ActionUpdated,
//		FlagID: def.ID,
//		Actor:  "dmytro@acme.dev",
//		Before: prev,
//		After:  next,
//	})
package audit
