// Package catalog keeps the set of registered dataflows and the
// dependency graph between them.
//
// A dataflow can only be registered once everything it uses is present,
// so a registry is always a DAG. RegisterAll accepts a batch in any order
// and rejects batches whose dependencies form a cycle. BuildOrder lists
// dataflows with every dependency before its dependents, breaking ties
// by name so the order is deterministic.
//
// Registry is safe for concurrent use. Reads share a lock and do not
// block each other.
package catalog
