// Package peek implements one-shot, timestamp-scoped queries against a
// view.
//
// A peek moves through four states:
//
//	Requested -> TimestampResolved -> Materializing -> Finished
//
// and finishes with exactly one Response: the finished rows, or Canceled.
// Cancellation races with completion; a Slot lets the first of the two
// win and ignores the other. A peek that fails (for example because the
// view is unknown) finishes with an error and no Response.
//
// The engine that produces rows is reached through the Materializer
// interface. Server runs each peek in its own goroutine and observes
// cancellation between stages.
package peek
