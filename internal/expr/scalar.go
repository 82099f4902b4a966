package expr

import "github.com/saifalharthi/materialize/internal/repr"

// ScalarExpr is an expression producing one datum per input row.
//
// This is a sealed interface - only types in this package implement it.
type ScalarExpr interface {
	scalarExpr() // Marker method - seals interface to this package
}

// Column references an input column by index.
type Column struct {
	Index int
}

func (Column) scalarExpr() {}

// Literal is a constant datum.
type Literal struct {
	Datum repr.Datum
}

func (Literal) scalarExpr() {}

// UnaryFunc names a one-argument scalar function.
type UnaryFunc string

const (
	FuncNot    UnaryFunc = "not"
	FuncIsNull UnaryFunc = "is_null"
	FuncNeg    UnaryFunc = "neg"
)

// CallUnary applies Func to Expr.
type CallUnary struct {
	Func UnaryFunc
	Expr ScalarExpr
}

func (CallUnary) scalarExpr() {}

// BinaryFunc names a two-argument scalar function.
type BinaryFunc string

const (
	FuncEq    BinaryFunc = "eq"
	FuncNotEq BinaryFunc = "not_eq"
	FuncLt    BinaryFunc = "lt"
	FuncLte   BinaryFunc = "lte"
	FuncGt    BinaryFunc = "gt"
	FuncGte   BinaryFunc = "gte"
	FuncAnd   BinaryFunc = "and"
	FuncOr    BinaryFunc = "or"
	FuncAdd   BinaryFunc = "add"
	FuncSub   BinaryFunc = "sub"
	FuncMul   BinaryFunc = "mul"
)

// CallBinary applies Func to Left and Right.
type CallBinary struct {
	Func  BinaryFunc
	Left  ScalarExpr
	Right ScalarExpr
}

func (CallBinary) scalarExpr() {}

// If evaluates Then when Cond is true and Else otherwise (including null).
type If struct {
	Cond ScalarExpr
	Then ScalarExpr
	Else ScalarExpr
}

func (If) scalarExpr() {}

// Col is shorthand for Column{Index: i}.
func Col(i int) Column {
	return Column{Index: i}
}

// Lit is shorthand for Literal{Datum: d}.
func Lit(d repr.Datum) Literal {
	return Literal{Datum: d}
}

// Eq builds an equality comparison.
func Eq(l, r ScalarExpr) CallBinary {
	return CallBinary{Func: FuncEq, Left: l, Right: r}
}

// ColumnOrder is one sort key: a column and its direction.
type ColumnOrder struct {
	Column int  `json:"column"`
	Desc   bool `json:"desc"`
}

// Asc sorts column ascending.
func Asc(column int) ColumnOrder {
	return ColumnOrder{Column: column}
}

// Desc sorts column descending.
func Desc(column int) ColumnOrder {
	return ColumnOrder{Column: column, Desc: true}
}
