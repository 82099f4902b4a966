package expr

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/saifalharthi/materialize/internal/repr"
)

// Relation tags, one per RelationExpr type.
const (
	tagConstant  = "constant"
	tagGet       = "get"
	tagLet       = "let"
	tagProject   = "project"
	tagMap       = "map"
	tagFilter    = "filter"
	tagJoin      = "join"
	tagReduce    = "reduce"
	tagDistinct  = "distinct"
	tagNegate    = "negate"
	tagThreshold = "threshold"
	tagUnion     = "union"
)

// Scalar tags, one per ScalarExpr type.
const (
	tagColumn     = "column"
	tagLiteral    = "literal"
	tagCallUnary  = "call_unary"
	tagCallBinary = "call_binary"
	tagIf         = "if"
)

// tagged wraps body as {tag: body}.
func tagged(tag string, body any) ([]byte, error) {
	inner, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tag, err)
	}
	return json.Marshal(map[string]json.RawMessage{tag: inner})
}

// untag splits {tag: body} into its parts.
func untag(data []byte) (string, json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return "", nil, fmt.Errorf("expected tagged object: %w", err)
	}
	if len(m) != 1 {
		return "", nil, fmt.Errorf("tagged object must have exactly one key, got %d", len(m))
	}
	for tag, body := range m {
		return tag, body, nil
	}
	panic("unreachable")
}

// MarshalJSON implements json.Marshaler for Constant.
func (c Constant) MarshalJSON() ([]byte, error) {
	return tagged(tagConstant, struct {
		Rows []repr.Row        `json:"rows"`
		Typ  repr.RelationType `json:"typ"`
	}{c.Rows, c.Typ})
}

// MarshalJSON implements json.Marshaler for Get.
func (g Get) MarshalJSON() ([]byte, error) {
	return tagged(tagGet, struct {
		Name string            `json:"name"`
		Typ  repr.RelationType `json:"typ"`
	}{g.Name, g.Typ})
}

// MarshalJSON implements json.Marshaler for Let.
func (l Let) MarshalJSON() ([]byte, error) {
	return tagged(tagLet, struct {
		Name  string       `json:"name"`
		Value RelationExpr `json:"value"`
		Body  RelationExpr `json:"body"`
	}{l.Name, l.Value, l.Body})
}

// MarshalJSON implements json.Marshaler for Project.
func (p Project) MarshalJSON() ([]byte, error) {
	return tagged(tagProject, struct {
		Input   RelationExpr `json:"input"`
		Outputs []int        `json:"outputs"`
	}{p.Input, p.Outputs})
}

// MarshalJSON implements json.Marshaler for Map.
func (m Map) MarshalJSON() ([]byte, error) {
	return tagged(tagMap, struct {
		Input   RelationExpr `json:"input"`
		Scalars []ScalarExpr `json:"scalars"`
	}{m.Input, m.Scalars})
}

// MarshalJSON implements json.Marshaler for Filter.
func (f Filter) MarshalJSON() ([]byte, error) {
	return tagged(tagFilter, struct {
		Input      RelationExpr `json:"input"`
		Predicates []ScalarExpr `json:"predicates"`
	}{f.Input, f.Predicates})
}

// MarshalJSON encodes a column reference as [input, column].
func (c ColumnRef) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{c.Input, c.Column})
}

// UnmarshalJSON implements json.Unmarshaler for ColumnRef.
func (c *ColumnRef) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("column ref: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("column ref must be [input, column], got %d elements", len(pair))
	}
	c.Input, c.Column = pair[0], pair[1]
	return nil
}

// MarshalJSON implements json.Marshaler for Join.
func (j Join) MarshalJSON() ([]byte, error) {
	return tagged(tagJoin, struct {
		Inputs    []RelationExpr `json:"inputs"`
		Variables [][]ColumnRef  `json:"variables"`
	}{j.Inputs, j.Variables})
}

type aggregateJSON struct {
	Func     AggregateFunc   `json:"func"`
	Expr     json.RawMessage `json:"expr"`
	Distinct bool            `json:"distinct"`
}

// MarshalJSON implements json.Marshaler for AggregateExpr.
func (a AggregateExpr) MarshalJSON() ([]byte, error) {
	e, err := MarshalScalar(a.Expr)
	if err != nil {
		return nil, err
	}
	return json.Marshal(aggregateJSON{Func: a.Func, Expr: e, Distinct: a.Distinct})
}

// MarshalJSON implements json.Marshaler for Reduce.
func (r Reduce) MarshalJSON() ([]byte, error) {
	return tagged(tagReduce, struct {
		Input      RelationExpr    `json:"input"`
		GroupKey   []int           `json:"group_key"`
		Aggregates []AggregateExpr `json:"aggregates"`
	}{r.Input, r.GroupKey, r.Aggregates})
}

// MarshalJSON implements json.Marshaler for Distinct.
func (d Distinct) MarshalJSON() ([]byte, error) {
	return tagged(tagDistinct, struct {
		Input RelationExpr `json:"input"`
	}{d.Input})
}

// MarshalJSON implements json.Marshaler for Negate.
func (n Negate) MarshalJSON() ([]byte, error) {
	return tagged(tagNegate, struct {
		Input RelationExpr `json:"input"`
	}{n.Input})
}

// MarshalJSON implements json.Marshaler for Threshold.
func (t Threshold) MarshalJSON() ([]byte, error) {
	return tagged(tagThreshold, struct {
		Input RelationExpr `json:"input"`
	}{t.Input})
}

// MarshalJSON implements json.Marshaler for Union.
func (u Union) MarshalJSON() ([]byte, error) {
	return tagged(tagUnion, struct {
		Left  RelationExpr `json:"left"`
		Right RelationExpr `json:"right"`
	}{u.Left, u.Right})
}

// MarshalJSON implements json.Marshaler for Column.
func (c Column) MarshalJSON() ([]byte, error) {
	return tagged(tagColumn, c.Index)
}

// MarshalJSON implements json.Marshaler for Literal.
func (l Literal) MarshalJSON() ([]byte, error) {
	if l.Datum == nil {
		return nil, fmt.Errorf("literal without datum")
	}
	d, err := repr.MarshalDatum(l.Datum)
	if err != nil {
		return nil, err
	}
	return tagged(tagLiteral, json.RawMessage(d))
}

// MarshalJSON implements json.Marshaler for CallUnary.
func (c CallUnary) MarshalJSON() ([]byte, error) {
	return tagged(tagCallUnary, struct {
		Func UnaryFunc  `json:"func"`
		Expr ScalarExpr `json:"expr"`
	}{c.Func, c.Expr})
}

// MarshalJSON implements json.Marshaler for CallBinary.
func (c CallBinary) MarshalJSON() ([]byte, error) {
	return tagged(tagCallBinary, struct {
		Func  BinaryFunc `json:"func"`
		Left  ScalarExpr `json:"left"`
		Right ScalarExpr `json:"right"`
	}{c.Func, c.Left, c.Right})
}

// MarshalJSON implements json.Marshaler for If.
func (i If) MarshalJSON() ([]byte, error) {
	return tagged(tagIf, struct {
		Cond ScalarExpr `json:"cond"`
		Then ScalarExpr `json:"then"`
		Else ScalarExpr `json:"else"`
	}{i.Cond, i.Then, i.Else})
}

// MarshalRelation encodes a relation expression in its tagged form.
func MarshalRelation(e RelationExpr) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("cannot marshal nil relation expression")
	}
	return json.Marshal(e)
}

// MarshalScalar encodes a scalar expression in its tagged form.
func MarshalScalar(s ScalarExpr) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("cannot marshal nil scalar expression")
	}
	return json.Marshal(s)
}

// UnmarshalRelation decodes a tagged relation expression.
func UnmarshalRelation(data []byte) (RelationExpr, error) {
	tag, body, err := untag(data)
	if err != nil {
		return nil, fmt.Errorf("relation: %w", err)
	}

	switch tag {
	case tagConstant:
		var raw struct {
			Rows []repr.Row        `json:"rows"`
			Typ  repr.RelationType `json:"typ"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("constant: %w", err)
		}
		return Constant{Rows: raw.Rows, Typ: raw.Typ}, nil

	case tagGet:
		var raw struct {
			Name string            `json:"name"`
			Typ  repr.RelationType `json:"typ"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("get: %w", err)
		}
		return Get{Name: raw.Name, Typ: raw.Typ}, nil

	case tagLet:
		var raw struct {
			Name  string          `json:"name"`
			Value json.RawMessage `json:"value"`
			Body  json.RawMessage `json:"body"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("let: %w", err)
		}
		value, err := UnmarshalRelation(raw.Value)
		if err != nil {
			return nil, fmt.Errorf("let %q value: %w", raw.Name, err)
		}
		letBody, err := UnmarshalRelation(raw.Body)
		if err != nil {
			return nil, fmt.Errorf("let %q body: %w", raw.Name, err)
		}
		return Let{Name: raw.Name, Value: value, Body: letBody}, nil

	case tagProject:
		var raw struct {
			Input   json.RawMessage `json:"input"`
			Outputs []int           `json:"outputs"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("project: %w", err)
		}
		input, err := UnmarshalRelation(raw.Input)
		if err != nil {
			return nil, fmt.Errorf("project input: %w", err)
		}
		return Project{Input: input, Outputs: raw.Outputs}, nil

	case tagMap:
		var raw struct {
			Input   json.RawMessage   `json:"input"`
			Scalars []json.RawMessage `json:"scalars"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("map: %w", err)
		}
		input, err := UnmarshalRelation(raw.Input)
		if err != nil {
			return nil, fmt.Errorf("map input: %w", err)
		}
		scalars, err := unmarshalScalars(raw.Scalars)
		if err != nil {
			return nil, fmt.Errorf("map scalars: %w", err)
		}
		return Map{Input: input, Scalars: scalars}, nil

	case tagFilter:
		var raw struct {
			Input      json.RawMessage   `json:"input"`
			Predicates []json.RawMessage `json:"predicates"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		input, err := UnmarshalRelation(raw.Input)
		if err != nil {
			return nil, fmt.Errorf("filter input: %w", err)
		}
		preds, err := unmarshalScalars(raw.Predicates)
		if err != nil {
			return nil, fmt.Errorf("filter predicates: %w", err)
		}
		return Filter{Input: input, Predicates: preds}, nil

	case tagJoin:
		var raw struct {
			Inputs    []json.RawMessage `json:"inputs"`
			Variables [][]ColumnRef     `json:"variables"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("join: %w", err)
		}
		var inputs []RelationExpr
		if raw.Inputs != nil {
			inputs = make([]RelationExpr, len(raw.Inputs))
		}
		for i, in := range raw.Inputs {
			e, err := UnmarshalRelation(in)
			if err != nil {
				return nil, fmt.Errorf("join input %d: %w", i, err)
			}
			inputs[i] = e
		}
		return Join{Inputs: inputs, Variables: raw.Variables}, nil

	case tagReduce:
		var raw struct {
			Input      json.RawMessage `json:"input"`
			GroupKey   []int           `json:"group_key"`
			Aggregates []aggregateJSON `json:"aggregates"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("reduce: %w", err)
		}
		input, err := UnmarshalRelation(raw.Input)
		if err != nil {
			return nil, fmt.Errorf("reduce input: %w", err)
		}
		var aggs []AggregateExpr
		if raw.Aggregates != nil {
			aggs = make([]AggregateExpr, len(raw.Aggregates))
		}
		for i, a := range raw.Aggregates {
			e, err := UnmarshalScalar(a.Expr)
			if err != nil {
				return nil, fmt.Errorf("reduce aggregate %d: %w", i, err)
			}
			aggs[i] = AggregateExpr{Func: a.Func, Expr: e, Distinct: a.Distinct}
		}
		return Reduce{Input: input, GroupKey: raw.GroupKey, Aggregates: aggs}, nil

	case tagDistinct, tagNegate, tagThreshold:
		var raw struct {
			Input json.RawMessage `json:"input"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("%s: %w", tag, err)
		}
		input, err := UnmarshalRelation(raw.Input)
		if err != nil {
			return nil, fmt.Errorf("%s input: %w", tag, err)
		}
		switch tag {
		case tagDistinct:
			return Distinct{Input: input}, nil
		case tagNegate:
			return Negate{Input: input}, nil
		default:
			return Threshold{Input: input}, nil
		}

	case tagUnion:
		var raw struct {
			Left  json.RawMessage `json:"left"`
			Right json.RawMessage `json:"right"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("union: %w", err)
		}
		left, err := UnmarshalRelation(raw.Left)
		if err != nil {
			return nil, fmt.Errorf("union left: %w", err)
		}
		right, err := UnmarshalRelation(raw.Right)
		if err != nil {
			return nil, fmt.Errorf("union right: %w", err)
		}
		return Union{Left: left, Right: right}, nil

	default:
		return nil, fmt.Errorf("unknown relation tag %q", tag)
	}
}

// UnmarshalScalar decodes a tagged scalar expression.
func UnmarshalScalar(data []byte) (ScalarExpr, error) {
	tag, body, err := untag(data)
	if err != nil {
		return nil, fmt.Errorf("scalar: %w", err)
	}

	switch tag {
	case tagColumn:
		var idx int
		if err := json.Unmarshal(body, &idx); err != nil {
			return nil, fmt.Errorf("column: %w", err)
		}
		return Column{Index: idx}, nil

	case tagLiteral:
		d, err := repr.UnmarshalDatum(body)
		if err != nil {
			return nil, fmt.Errorf("literal: %w", err)
		}
		return Literal{Datum: d}, nil

	case tagCallUnary:
		var raw struct {
			Func UnaryFunc       `json:"func"`
			Expr json.RawMessage `json:"expr"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("call_unary: %w", err)
		}
		e, err := UnmarshalScalar(raw.Expr)
		if err != nil {
			return nil, fmt.Errorf("call_unary %s: %w", raw.Func, err)
		}
		return CallUnary{Func: raw.Func, Expr: e}, nil

	case tagCallBinary:
		var raw struct {
			Func  BinaryFunc      `json:"func"`
			Left  json.RawMessage `json:"left"`
			Right json.RawMessage `json:"right"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("call_binary: %w", err)
		}
		l, err := UnmarshalScalar(raw.Left)
		if err != nil {
			return nil, fmt.Errorf("call_binary %s left: %w", raw.Func, err)
		}
		r, err := UnmarshalScalar(raw.Right)
		if err != nil {
			return nil, fmt.Errorf("call_binary %s right: %w", raw.Func, err)
		}
		return CallBinary{Func: raw.Func, Left: l, Right: r}, nil

	case tagIf:
		var raw struct {
			Cond json.RawMessage `json:"cond"`
			Then json.RawMessage `json:"then"`
			Else json.RawMessage `json:"else"`
		}
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("if: %w", err)
		}
		parts := make([]ScalarExpr, 3)
		for i, p := range []json.RawMessage{raw.Cond, raw.Then, raw.Else} {
			e, err := UnmarshalScalar(p)
			if err != nil {
				return nil, fmt.Errorf("if: %w", err)
			}
			parts[i] = e
		}
		return If{Cond: parts[0], Then: parts[1], Else: parts[2]}, nil

	default:
		return nil, fmt.Errorf("unknown scalar tag %q", tag)
	}
}

// UnmarshalScalars decodes a JSON array of tagged scalar expressions.
// JSON null decodes to a nil slice.
func UnmarshalScalars(data []byte) ([]ScalarExpr, error) {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("scalars: %w", err)
	}
	return unmarshalScalars(raw)
}

func unmarshalScalars(raw []json.RawMessage) ([]ScalarExpr, error) {
	if raw == nil {
		return nil, nil
	}
	out := make([]ScalarExpr, len(raw))
	for i, r := range raw {
		s, err := UnmarshalScalar(r)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}
