// Package expr provides the expression trees a View is defined by.
//
// RelationExpr and ScalarExpr are the contract between the planner (which
// builds them) and the execution engine (which interprets them). This
// package defines their shape, their tagged JSON encoding, and the
// analyses the dataflow layer needs: which named relations an expression
// reads, how many columns it produces, and how a scalar evaluates against
// a single row.
//
// SEALED INTERFACES:
//
// RelationExpr and ScalarExpr are sealed using the marker method pattern.
// Only types in this package implement them, so type switches over them
// are exhaustive:
//
//	switch e := rel.(type) {
//	case Get:
//	    // named relation
//	case Let:
//	    // binds e.Name within e.Body
//	...
//	}
//
// Nodes are values. Children are held as interface values, so trees are
// immutable once built and may be shared.
//
// WIRE SHAPE:
//
// Each node encodes as a single-key object whose key is the node's
// snake_case tag:
//
//	{"project": {"input": {"get": {"name": "orders", "typ": {...}}}, "outputs": [1, 2]}}
//
// Join equivalences encode column references as two-element arrays
// [input, column].
package expr
