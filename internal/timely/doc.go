// Package timely provides the temporal primitives of the dataflow layer:
// logical timestamps, signed diffs, updates, watermarks, and frontiers.
//
// ARCHITECTURE:
//
// A source emits Updates interleaved with Watermarks. After announcing
// watermark t a source must not emit an Update with timestamp < t, nor a
// later watermark < t. WatermarkTracker enforces both halves of that
// contract and reports violations as ProtocolError values.
//
// A Frontier is an antichain of timestamps. Output of a view at time t is
// final once every input frontier is beyond t, i.e. every element of every
// input frontier is > t. Frontier comparisons are pure reads; nothing in
// this package blocks.
//
// CRITICAL PATTERNS:
//
// Distinct numeric roles:
// Timestamp and Diff are distinct named types. Converting between them, or
// to a plain count, must be explicit.
//
// Logical time only:
// Timestamps come from a logical Clock or from a source, NEVER from the
// wall clock.
package timely
