package expr

import (
	"math"

	"github.com/saifalharthi/materialize/internal/repr"
)

// Eval evaluates a scalar expression against one row.
//
// Null semantics follow SQL: comparisons and arithmetic with a null
// operand produce null; and/or use three-valued logic.
func Eval(s ScalarExpr, row repr.Row) (repr.Datum, error) {
	switch e := s.(type) {
	case Column:
		if e.Index < 0 || e.Index >= len(row) {
			return nil, newError(ErrCodeColumnOutOfRange, "column %d of row with arity %d", e.Index, len(row))
		}
		return row[e.Index], nil
	case Literal:
		if e.Datum == nil {
			return nil, newError(ErrCodeMalformed, "literal without datum")
		}
		return e.Datum, nil
	case CallUnary:
		v, err := Eval(e.Expr, row)
		if err != nil {
			return nil, err
		}
		return evalUnary(e.Func, v)
	case CallBinary:
		// and/or must see both operands to apply three-valued logic
		l, err := Eval(e.Left, row)
		if err != nil {
			return nil, err
		}
		r, err := Eval(e.Right, row)
		if err != nil {
			return nil, err
		}
		return evalBinary(e.Func, l, r)
	case If:
		c, err := Eval(e.Cond, row)
		if err != nil {
			return nil, err
		}
		if c == repr.True {
			return Eval(e.Then, row)
		}
		return Eval(e.Else, row)
	case nil:
		return nil, newError(ErrCodeMalformed, "nil scalar expression")
	default:
		return nil, newError(ErrCodeMalformed, "unknown scalar expression %T", s)
	}
}

// EvalPredicate evaluates s as a filter predicate: only true keeps the row.
func EvalPredicate(s ScalarExpr, row repr.Row) (bool, error) {
	d, err := Eval(s, row)
	if err != nil {
		return false, err
	}
	switch d.(type) {
	case repr.Bool, repr.Null:
		return d == repr.True, nil
	default:
		return false, newError(ErrCodeTypeMismatch, "predicate produced %s, expected bool", repr.Format(d))
	}
}

func evalUnary(f UnaryFunc, v repr.Datum) (repr.Datum, error) {
	switch f {
	case FuncIsNull:
		return repr.Bool(repr.IsNull(v)), nil
	case FuncNot:
		switch b := v.(type) {
		case repr.Null:
			return b, nil
		case repr.Bool:
			return !b, nil
		}
		return nil, newError(ErrCodeTypeMismatch, "not(%s)", repr.Format(v))
	case FuncNeg:
		switch n := v.(type) {
		case repr.Null:
			return n, nil
		case repr.Int64:
			if n == math.MinInt64 {
				return nil, newError(ErrCodeOverflow, "neg(%d)", int64(n))
			}
			return -n, nil
		}
		return nil, newError(ErrCodeTypeMismatch, "neg(%s)", repr.Format(v))
	default:
		return nil, newError(ErrCodeUnknownFunc, "unary function %q", f)
	}
}

func evalBinary(f BinaryFunc, l, r repr.Datum) (repr.Datum, error) {
	switch f {
	case FuncAnd:
		return evalAnd(l, r)
	case FuncOr:
		return evalOr(l, r)
	}

	if repr.IsNull(l) || repr.IsNull(r) {
		return repr.Null{}, nil
	}

	switch f {
	case FuncEq, FuncNotEq, FuncLt, FuncLte, FuncGt, FuncGte:
		c := repr.Compare(l, r)
		switch f {
		case FuncEq:
			return repr.Bool(c == 0), nil
		case FuncNotEq:
			return repr.Bool(c != 0), nil
		case FuncLt:
			return repr.Bool(c < 0), nil
		case FuncLte:
			return repr.Bool(c <= 0), nil
		case FuncGt:
			return repr.Bool(c > 0), nil
		default:
			return repr.Bool(c >= 0), nil
		}
	case FuncAdd, FuncSub, FuncMul:
		a, aok := l.(repr.Int64)
		b, bok := r.(repr.Int64)
		if !aok || !bok {
			return nil, newError(ErrCodeTypeMismatch, "%s(%s, %s)", f, repr.Format(l), repr.Format(r))
		}
		return checkedArith(f, a, b)
	default:
		return nil, newError(ErrCodeUnknownFunc, "binary function %q", f)
	}
}

func checkedArith(f BinaryFunc, a, b repr.Int64) (repr.Datum, error) {
	var out repr.Int64
	switch f {
	case FuncAdd:
		out = a + b
		if (b > 0 && out < a) || (b < 0 && out > a) {
			return nil, newError(ErrCodeOverflow, "%d + %d", int64(a), int64(b))
		}
	case FuncSub:
		out = a - b
		if (b < 0 && out < a) || (b > 0 && out > a) {
			return nil, newError(ErrCodeOverflow, "%d - %d", int64(a), int64(b))
		}
	default:
		if a != 0 && b != 0 {
			out = a * b
			if out/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
				return nil, newError(ErrCodeOverflow, "%d * %d", int64(a), int64(b))
			}
		}
	}
	return out, nil
}

func asBool(d repr.Datum, f BinaryFunc) (repr.Bool, bool, error) {
	switch v := d.(type) {
	case repr.Null:
		return false, true, nil
	case repr.Bool:
		return v, false, nil
	}
	return false, false, newError(ErrCodeTypeMismatch, "%s operand %s", f, repr.Format(d))
}

func evalAnd(l, r repr.Datum) (repr.Datum, error) {
	lb, lnull, err := asBool(l, FuncAnd)
	if err != nil {
		return nil, err
	}
	rb, rnull, err := asBool(r, FuncAnd)
	if err != nil {
		return nil, err
	}
	switch {
	case (!lnull && !bool(lb)) || (!rnull && !bool(rb)):
		return repr.False, nil
	case lnull || rnull:
		return repr.Null{}, nil
	default:
		return repr.True, nil
	}
}

func evalOr(l, r repr.Datum) (repr.Datum, error) {
	lb, lnull, err := asBool(l, FuncOr)
	if err != nil {
		return nil, err
	}
	rb, rnull, err := asBool(r, FuncOr)
	if err != nil {
		return nil, err
	}
	switch {
	case (!lnull && bool(lb)) || (!rnull && bool(rb)):
		return repr.True, nil
	case lnull || rnull:
		return repr.Null{}, nil
	default:
		return repr.False, nil
	}
}
