// Package dataflow defines the named artifacts a catalog registers:
// sources that ingest rows, views that derive them, and sinks that
// export them.
//
// Dataflow is a sealed interface over Source, Sink, and View. Only Source
// and View have a row shape of their own; they also implement Shaped, so
// asking a Sink for its shape does not compile. Code holding a plain
// Dataflow uses DescOf, which returns ErrNoShape for a Sink.
//
// Every dataflow encodes as tagged JSON:
//
//	{"view": {"name": "report", "raw_sql": "...", "expr": {...}, "desc": {...}, "as_of": [5]}}
//
// Tail sinks hold a process-local channel; their encoding carries the
// channel id and decoding resolves it through a tail.Registry.
package dataflow
