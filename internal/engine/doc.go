// Package engine is the reference executor for a catalog of dataflows.
//
// The engine keeps one consolidated trace per source, evaluates views over
// source snapshots on demand, and streams view changes to tail sinks. It
// implements peek.Materializer, so a peek.Server can answer peeks against
// it.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Source input is applied by one goroutine. This ensures:
// - A batch of updates is admitted or rejected as a whole
// - Watermarks of one source never regress
// - Tail deliveries happen in timestamp order, exactly once
//
// Event Processing Flow:
// 1. Feed() enqueues updates or a watermark for a source
// 2. Engine.Run() dequeues events one at a time
// 3. Updates are checked against the source watermark, then merged into its trace
// 4. A watermark advance wakes WaitUntil callers and delivers tail batches
//
// Readers (ViewState, WaitUntil, Materialize) take a read lock and may run
// on any goroutine.
//
// Evaluation is naive: every read recomputes the view from the source
// traces as of the requested timestamp. The engine is designed for
// correctness and determinism, not throughput.
package engine
