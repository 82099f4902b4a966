// Package tail provides the delivery channel held by a tail sink.
//
// A Channel carries batches of updates from exactly one producer (the
// engine) to exactly one consumer. It is bounded: Send blocks while the
// buffer is full, until the consumer catches up or the caller's context
// ends. The producer decides what to do when a consumer stalls; the
// reference engine closes the channel with ErrTailOverrun.
//
// Channels are process-local. A Registry maps each channel's id to the
// channel so that a tail sink can be encoded and decoded within the same
// process.
package tail
