// Package engine drains the pending request queue against the backend.
//
// # ARCHITECTURE
//
// The Engine owns a serial execution lock: every transmission, whether a
// single request or a full drain, runs as one task on that lock, so two
// drains can never interleave. A drain walks the queue head-first, composes
// a batch of consecutive batchable requests, resolves temporary identifiers
// through the identity map, transmits the batch concurrently, then applies
// each outcome through the response handler registered for the request.
//
// # INVARIANTS
//
//   - At most one execution task runs at any time; concurrent drain calls
//     coalesce onto the drain already waiting.
//   - Temporary identifiers are re-resolved on every attempt, so a request
//     enqueued before its dependency was acknowledged still transmits the
//     permanent identifier once it is known.
//   - A retryable failure stops the drain with the failed request still at
//     the head of the queue; a terminal failure consumes the request after
//     its error handler has run.
//   - Every handler in a batch runs, even when a sibling request failed.
package engine
