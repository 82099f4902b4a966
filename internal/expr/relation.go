package expr

import "github.com/saifalharthi/materialize/internal/repr"

// RelationExpr is an expression producing a multiset of rows.
//
// This is a sealed interface - only types in this package implement it.
//
// Relation types:
//   - Constant: literal rows
//   - Get: a named relation resolved outside the expression
//   - Let: binds a name to Value for use inside Body
//   - Project, Map, Filter: per-row column operations
//   - Join: n-way equi-join over column equivalence classes
//   - Reduce: grouping with aggregates
//   - Distinct, Negate, Threshold: multiplicity operations
//   - Union: multiset sum of two inputs
type RelationExpr interface {
	relationExpr() // Marker method - seals interface to this package
}

// Constant is a literal collection of rows, each with multiplicity one.
type Constant struct {
	Rows []repr.Row
	Typ  repr.RelationType
}

func (Constant) relationExpr() {}

// Get reads a named relation: a source, a view, or a Let binding.
type Get struct {
	Name string
	Typ  repr.RelationType
}

func (Get) relationExpr() {}

// Let binds Name to Value; Gets of Name inside Body refer to Value rather
// than to an external relation.
type Let struct {
	Name  string
	Value RelationExpr
	Body  RelationExpr
}

func (Let) relationExpr() {}

// Project keeps the listed input columns in order. Outputs may repeat or
// reorder columns.
type Project struct {
	Input   RelationExpr
	Outputs []int
}

func (Project) relationExpr() {}

// Map appends one column per scalar, evaluated against the input row.
// Later scalars may reference columns appended by earlier ones.
type Map struct {
	Input   RelationExpr
	Scalars []ScalarExpr
}

func (Map) relationExpr() {}

// Filter keeps rows for which every predicate evaluates to true.
type Filter struct {
	Input      RelationExpr
	Predicates []ScalarExpr
}

func (Filter) relationExpr() {}

// ColumnRef names a column of one join input.
type ColumnRef struct {
	Input  int
	Column int
}

// Join is the cross product of Inputs restricted so that, within each
// equivalence class of Variables, every referenced column is equal. The
// output is the concatenation of the input columns.
type Join struct {
	Inputs    []RelationExpr
	Variables [][]ColumnRef
}

func (Join) relationExpr() {}

// AggregateFunc names an aggregate.
type AggregateFunc string

const (
	AggCount AggregateFunc = "count"
	AggSum   AggregateFunc = "sum"
	AggMin   AggregateFunc = "min"
	AggMax   AggregateFunc = "max"
)

// ValidAggregateFuncs defines allowed aggregate functions.
var ValidAggregateFuncs = map[AggregateFunc]bool{
	AggCount: true,
	AggSum:   true,
	AggMin:   true,
	AggMax:   true,
}

// AggregateExpr applies Func to Expr over each group.
type AggregateExpr struct {
	Func     AggregateFunc
	Expr     ScalarExpr
	Distinct bool
}

// Reduce groups rows by GroupKey columns and emits one row per group: the
// key columns followed by one column per aggregate.
type Reduce struct {
	Input      RelationExpr
	GroupKey   []int
	Aggregates []AggregateExpr
}

func (Reduce) relationExpr() {}

// Distinct collapses every present row to multiplicity one.
type Distinct struct {
	Input RelationExpr
}

func (Distinct) relationExpr() {}

// Negate flips the sign of every multiplicity.
type Negate struct {
	Input RelationExpr
}

func (Negate) relationExpr() {}

// Threshold drops rows with non-positive multiplicity.
type Threshold struct {
	Input RelationExpr
}

func (Threshold) relationExpr() {}

// Union is the multiset sum of two relations of equal arity.
type Union struct {
	Left  RelationExpr
	Right RelationExpr
}

func (Union) relationExpr() {}

// NewDistinct wraps input in a Distinct.
func NewDistinct(input RelationExpr) Distinct {
	return Distinct{Input: input}
}

// NewProject wraps input in a Project.
func NewProject(input RelationExpr, outputs ...int) Project {
	return Project{Input: input, Outputs: outputs}
}

// NewFilter wraps input in a Filter.
func NewFilter(input RelationExpr, predicates ...ScalarExpr) Filter {
	return Filter{Input: input, Predicates: predicates}
}

// NewUnion builds the union of two relations.
func NewUnion(left, right RelationExpr) Union {
	return Union{Left: left, Right: right}
}
