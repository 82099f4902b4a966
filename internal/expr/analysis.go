package expr

import (
	"slices"
)

// UnboundUses returns the names of every relation the expression reads
// that is not bound by an enclosing Let. Names are deduplicated and
// sorted; nesting depth and repetition do not matter.
func UnboundUses(e RelationExpr) []string {
	seen := make(map[string]bool)
	collectUnbound(e, nil, seen)

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// collectUnbound walks e with the set of names bound by enclosing Lets.
// bound is treated as immutable; Let extends a copy.
func collectUnbound(e RelationExpr, bound []string, out map[string]bool) {
	switch n := e.(type) {
	case Get:
		if !slices.Contains(bound, n.Name) {
			out[n.Name] = true
		}
	case Let:
		// Value is evaluated outside the binding it introduces.
		collectUnbound(n.Value, bound, out)
		inner := append(slices.Clone(bound), n.Name)
		collectUnbound(n.Body, inner, out)
	default:
		for _, child := range Children(e) {
			collectUnbound(child, bound, out)
		}
	}
}

// Children returns the direct relation inputs of e, in order.
func Children(e RelationExpr) []RelationExpr {
	switch n := e.(type) {
	case Constant, Get:
		return nil
	case Let:
		return []RelationExpr{n.Value, n.Body}
	case Project:
		return []RelationExpr{n.Input}
	case Map:
		return []RelationExpr{n.Input}
	case Filter:
		return []RelationExpr{n.Input}
	case Join:
		return slices.Clone(n.Inputs)
	case Reduce:
		return []RelationExpr{n.Input}
	case Distinct:
		return []RelationExpr{n.Input}
	case Negate:
		return []RelationExpr{n.Input}
	case Threshold:
		return []RelationExpr{n.Input}
	case Union:
		return []RelationExpr{n.Left, n.Right}
	default:
		return nil
	}
}

// Arity computes the number of columns e produces, validating column
// references along the way. Let-bound names take the arity of their value.
func Arity(e RelationExpr) (int, error) {
	return arity(e, map[string]int{})
}

func arity(e RelationExpr, lets map[string]int) (int, error) {
	switch n := e.(type) {
	case nil:
		return 0, newError(ErrCodeMalformed, "nil relation expression")
	case Constant:
		for i, r := range n.Rows {
			if len(r) != n.Typ.Arity() {
				return 0, newError(ErrCodeArityMismatch, "constant row %d has arity %d, type has %d", i, len(r), n.Typ.Arity())
			}
		}
		return n.Typ.Arity(), nil
	case Get:
		if a, ok := lets[n.Name]; ok {
			return a, nil
		}
		return n.Typ.Arity(), nil
	case Let:
		va, err := arity(n.Value, lets)
		if err != nil {
			return 0, err
		}
		inner := make(map[string]int, len(lets)+1)
		for k, v := range lets {
			inner[k] = v
		}
		inner[n.Name] = va
		return arity(n.Body, inner)
	case Project:
		in, err := arity(n.Input, lets)
		if err != nil {
			return 0, err
		}
		for _, c := range n.Outputs {
			if c < 0 || c >= in {
				return 0, newError(ErrCodeColumnOutOfRange, "project column %d of input with arity %d", c, in)
			}
		}
		return len(n.Outputs), nil
	case Map:
		in, err := arity(n.Input, lets)
		if err != nil {
			return 0, err
		}
		for i, s := range n.Scalars {
			if err := checkScalar(s, in+i); err != nil {
				return 0, err
			}
		}
		return in + len(n.Scalars), nil
	case Filter:
		in, err := arity(n.Input, lets)
		if err != nil {
			return 0, err
		}
		for _, p := range n.Predicates {
			if err := checkScalar(p, in); err != nil {
				return 0, err
			}
		}
		return in, nil
	case Join:
		arities := make([]int, len(n.Inputs))
		total := 0
		for i, input := range n.Inputs {
			a, err := arity(input, lets)
			if err != nil {
				return 0, err
			}
			arities[i] = a
			total += a
		}
		for _, class := range n.Variables {
			for _, ref := range class {
				if ref.Input < 0 || ref.Input >= len(arities) {
					return 0, newError(ErrCodeColumnOutOfRange, "join input %d of %d", ref.Input, len(arities))
				}
				if ref.Column < 0 || ref.Column >= arities[ref.Input] {
					return 0, newError(ErrCodeColumnOutOfRange, "join column %d of input %d with arity %d", ref.Column, ref.Input, arities[ref.Input])
				}
			}
		}
		return total, nil
	case Reduce:
		in, err := arity(n.Input, lets)
		if err != nil {
			return 0, err
		}
		for _, k := range n.GroupKey {
			if k < 0 || k >= in {
				return 0, newError(ErrCodeColumnOutOfRange, "group key column %d of input with arity %d", k, in)
			}
		}
		for _, agg := range n.Aggregates {
			if !ValidAggregateFuncs[agg.Func] {
				return 0, newError(ErrCodeUnknownFunc, "aggregate %q", agg.Func)
			}
			if err := checkScalar(agg.Expr, in); err != nil {
				return 0, err
			}
		}
		return len(n.GroupKey) + len(n.Aggregates), nil
	case Distinct:
		return arity(n.Input, lets)
	case Negate:
		return arity(n.Input, lets)
	case Threshold:
		return arity(n.Input, lets)
	case Union:
		l, err := arity(n.Left, lets)
		if err != nil {
			return 0, err
		}
		r, err := arity(n.Right, lets)
		if err != nil {
			return 0, err
		}
		if l != r {
			return 0, newError(ErrCodeArityMismatch, "union of arity %d and %d", l, r)
		}
		return l, nil
	default:
		return 0, newError(ErrCodeMalformed, "unknown relation expression %T", e)
	}
}

// checkScalar verifies every column reference in s is below arity.
func checkScalar(s ScalarExpr, arity int) error {
	switch n := s.(type) {
	case nil:
		return newError(ErrCodeMalformed, "nil scalar expression")
	case Column:
		if n.Index < 0 || n.Index >= arity {
			return newError(ErrCodeColumnOutOfRange, "column %d of input with arity %d", n.Index, arity)
		}
	case Literal:
		if n.Datum == nil {
			return newError(ErrCodeMalformed, "literal without datum")
		}
	case CallUnary:
		return checkScalar(n.Expr, arity)
	case CallBinary:
		if err := checkScalar(n.Left, arity); err != nil {
			return err
		}
		return checkScalar(n.Right, arity)
	case If:
		for _, c := range []ScalarExpr{n.Cond, n.Then, n.Else} {
			if err := checkScalar(c, arity); err != nil {
				return err
			}
		}
	default:
		return newError(ErrCodeMalformed, "unknown scalar expression %T", s)
	}
	return nil
}

// CheckScalar verifies every column reference in s is below arity.
func CheckScalar(s ScalarExpr, arity int) error {
	return checkScalar(s, arity)
}
