package compiler

import (
	"bytes"
	"encoding/json"

	"cuelang.org/go/cue"

	"github.com/saifalharthi/materialize/internal/dataflow"
	"github.com/saifalharthi/materialize/internal/expr"
	"github.com/saifalharthi/materialize/internal/timely"
)

// CompileView parses a CUE value into a View, e.g.:
//
//	view: big: {
//		sql: "SELECT id FROM orders WHERE id > 100"
//		desc: [{name: "id", type: "int64"}]
//		expr: project: {
//			input: filter: {
//				input: get: name: "orders"
//				predicates: [{call_binary: {"func": "gt", left: column: 0, right: literal: int64: 100}}]
//			}
//			outputs: [0]
//		}
//		as_of: [5]
//	}
//
// expr is the tagged expression encoding written as CUE. A get node that
// omits typ takes the type of the named relation in rels.
func CompileView(v cue.Value, rels Relations) (dataflow.View, error) {
	if err := v.Err(); err != nil {
		return dataflow.View{}, formatCUEError(err)
	}
	name := labelOf(v)

	desc, ok, err := lookupDesc(v)
	if err != nil {
		return dataflow.View{}, err
	}
	if !ok {
		return dataflow.View{}, compileErrorf("desc", v.Pos(), "desc is required")
	}

	rawSQL, _, err := lookupString(v, "sql", false)
	if err != nil {
		return dataflow.View{}, err
	}

	exprVal := v.LookupPath(cue.ParsePath("expr"))
	if !exprVal.Exists() {
		return dataflow.View{}, compileErrorf("expr", v.Pos(), "expr is required")
	}
	e, err := compileExpr(exprVal, rels)
	if err != nil {
		return dataflow.View{}, err
	}

	view := dataflow.NewView(name, rawSQL, e, desc)

	asOfVal := v.LookupPath(cue.ParsePath("as_of"))
	if asOfVal.Exists() {
		f, err := compileFrontier(asOfVal)
		if err != nil {
			return dataflow.View{}, err
		}
		view = view.WithAsOf(&f)
	}

	if err := dataflow.Validate(view); err != nil {
		return dataflow.View{}, compileErrorf("view", v.Pos(), "%v", err)
	}
	return view, nil
}

func compileExpr(v cue.Value, rels Relations) (expr.RelationExpr, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, compileErrorf("expr", v.Pos(), "%v", err)
	}
	fillGetTypes(tree, rels)

	data, err = json.Marshal(tree)
	if err != nil {
		return nil, compileErrorf("expr", v.Pos(), "%v", err)
	}
	e, err := expr.UnmarshalRelation(data)
	if err != nil {
		return nil, compileErrorf("expr", v.Pos(), "%v", err)
	}
	return e, nil
}

// fillGetTypes sets the typ of every untyped get node whose name is in rels.
func fillGetTypes(node any, rels Relations) {
	switch n := node.(type) {
	case map[string]any:
		if body, ok := n["get"].(map[string]any); ok && len(n) == 1 {
			if _, typed := body["typ"]; !typed {
				if name, ok := body["name"].(string); ok {
					if desc, ok := rels[name]; ok {
						body["typ"] = desc.Typ()
					}
				}
			}
			return
		}
		for _, child := range n {
			fillGetTypes(child, rels)
		}
	case []any:
		for _, child := range n {
			fillGetTypes(child, rels)
		}
	}
}

func compileFrontier(v cue.Value) (timely.Frontier, error) {
	iter, err := v.List()
	if err != nil {
		return timely.Frontier{}, compileErrorf("as_of", v.Pos(), "as_of must be a list of timestamps")
	}
	var elems []timely.Timestamp
	for iter.Next() {
		t, err := iter.Value().Uint64()
		if err != nil {
			return timely.Frontier{}, compileErrorf("as_of", iter.Value().Pos(), "timestamp: %v", err)
		}
		elems = append(elems, timely.Timestamp(t))
	}
	return timely.NewFrontier(elems...), nil
}
