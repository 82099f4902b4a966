package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saifalharthi/materialize/internal/repr"
)

func get(name string, arity int) Get {
	cols := make([]repr.ColumnType, arity)
	for i := range cols {
		cols[i] = repr.NewColumnType(repr.ScalarInt64)
	}
	return Get{Name: name, Typ: repr.NewRelationType(cols...)}
}

func TestUnboundUses_DeduplicatesAndSorts(t *testing.T) {
	e := NewUnion(
		Join{Inputs: []RelationExpr{get("orders", 2), NewDistinct(NewUnion(get("b", 2), get("a", 2)))}},
		NewProject(NewFilter(get("orders", 4), Eq(Col(0), Col(1))), 0, 1, 2, 3),
	)

	assert.Equal(t, []string{"a", "b", "orders"}, UnboundUses(e))
}

func TestUnboundUses_LetBindingExcluded(t *testing.T) {
	e := Let{
		Name:  "tmp",
		Value: get("base", 1),
		Body:  NewUnion(get("tmp", 1), get("other", 1)),
	}

	assert.Equal(t, []string{"base", "other"}, UnboundUses(e))
}

func TestUnboundUses_LetValueSeesOuterScope(t *testing.T) {
	// The value of a Let cannot see its own binding.
	e := Let{Name: "x", Value: get("x", 1), Body: get("x", 1)}

	assert.Equal(t, []string{"x"}, UnboundUses(e))
}

func TestUnboundUses_Constant(t *testing.T) {
	e := Constant{Rows: []repr.Row{repr.NewRow(repr.Int64(1))}, Typ: repr.NewRelationType(repr.NewColumnType(repr.ScalarInt64))}

	assert.Empty(t, UnboundUses(e))
}

func TestArity(t *testing.T) {
	tests := []struct {
		name string
		expr RelationExpr
		want int
	}{
		{"get", get("a", 3), 3},
		{"project", NewProject(get("a", 3), 2, 0), 2},
		{"map", Map{Input: get("a", 1), Scalars: []ScalarExpr{Col(0), Col(1)}}, 3},
		{"join", Join{Inputs: []RelationExpr{get("a", 2), get("b", 3)}, Variables: [][]ColumnRef{{{0, 0}, {1, 2}}}}, 5},
		{"reduce", Reduce{Input: get("a", 3), GroupKey: []int{0}, Aggregates: []AggregateExpr{{Func: AggSum, Expr: Col(2)}}}, 2},
		{"let", Let{Name: "t", Value: get("a", 4), Body: NewDistinct(get("t", 0))}, 4},
		{"negate", Negate{Input: Threshold{Input: get("a", 2)}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Arity(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArity_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr RelationExpr
		code ErrorCode
	}{
		{"project out of range", NewProject(get("a", 2), 2), ErrCodeColumnOutOfRange},
		{"filter out of range", NewFilter(get("a", 1), Eq(Col(0), Col(3))), ErrCodeColumnOutOfRange},
		{"join input out of range", Join{Inputs: []RelationExpr{get("a", 1)}, Variables: [][]ColumnRef{{{1, 0}}}}, ErrCodeColumnOutOfRange},
		{"union arity", NewUnion(get("a", 1), get("b", 2)), ErrCodeArityMismatch},
		{"unknown aggregate", Reduce{Input: get("a", 1), Aggregates: []AggregateExpr{{Func: "median", Expr: Col(0)}}}, ErrCodeUnknownFunc},
		{"nil child", Distinct{}, ErrCodeMalformed},
		{"constant row arity", Constant{Rows: []repr.Row{repr.NewRow(repr.Int64(1), repr.Int64(2))}, Typ: repr.NewRelationType(repr.NewColumnType(repr.ScalarInt64))}, ErrCodeArityMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Arity(tt.expr)
			var exprErr *Error
			require.ErrorAs(t, err, &exprErr)
			assert.Equal(t, tt.code, exprErr.Code)
		})
	}
}

func TestChildren(t *testing.T) {
	a, b := get("a", 1), get("b", 1)

	assert.Nil(t, Children(a))
	assert.Equal(t, []RelationExpr{a, b}, Children(NewUnion(a, b)))
	assert.Equal(t, []RelationExpr{a}, Children(NewDistinct(a)))
}
