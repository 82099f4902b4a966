// Package finishing applies the post-processing of a peek to a
// materialized row set: filter, order, paginate, project.
package finishing

import (
	"errors"
	"fmt"
	"slices"

	"github.com/saifalharthi/materialize/internal/expr"
	"github.com/saifalharthi/materialize/internal/repr"
)

// RowSetFinishing describes how to reduce a materialized row set to a
// result. Steps run in a fixed order: Filter, OrderBy, Offset and Limit,
// then Project.
type RowSetFinishing struct {
	// Filter keeps rows for which every predicate is true.
	Filter []expr.ScalarExpr
	// OrderBy lists sort keys, most significant first.
	OrderBy []expr.ColumnOrder
	// Limit caps the number of rows kept; nil means unbounded.
	Limit *int
	// Offset skips rows before Limit applies.
	Offset int
	// Project lists output columns in order. Columns may repeat. A nil
	// Project keeps every column; an empty non-nil one such as []int{}
	// projects to zero columns. The JSON codec keeps the distinction:
	// nil is "project":null and empty is "project":[].
	Project []int
}

// IsTrivial reports whether the ordering and pagination steps can be
// skipped: no limit, no ordering, and no offset. Filter and Project are
// not considered, so a trivial finishing may still change the rows.
func (f RowSetFinishing) IsTrivial() bool {
	return f.Limit == nil && len(f.OrderBy) == 0 && f.Offset == 0
}

// ColumnError reports a finishing that references a column outside the
// rows it is applied to.
type ColumnError struct {
	// Clause is "order_by" or "project".
	Clause string
	Column int
	Arity  int
}

// Error implements the error interface.
func (e *ColumnError) Error() string {
	return fmt.Sprintf("%s references column %d of rows with arity %d", e.Clause, e.Column, e.Arity)
}

// IsColumnError returns true if err is a *ColumnError.
// Uses errors.As to handle wrapped errors.
func IsColumnError(err error) bool {
	var ce *ColumnError
	return errors.As(err, &ce)
}

// Validate checks that every column the finishing references is below
// arity and that offset and limit are non-negative.
func (f RowSetFinishing) Validate(arity int) error {
	for _, o := range f.OrderBy {
		if o.Column < 0 || o.Column >= arity {
			return &ColumnError{Clause: "order_by", Column: o.Column, Arity: arity}
		}
	}
	for _, c := range f.Project {
		if c < 0 || c >= arity {
			return &ColumnError{Clause: "project", Column: c, Arity: arity}
		}
	}
	for i, p := range f.Filter {
		if err := expr.CheckScalar(p, arity); err != nil {
			return fmt.Errorf("filter %d: %w", i, err)
		}
	}
	if f.Offset < 0 {
		return fmt.Errorf("negative offset %d", f.Offset)
	}
	if f.Limit != nil && *f.Limit < 0 {
		return fmt.Errorf("negative limit %d", *f.Limit)
	}
	return nil
}

// CompareColumns compares two rows by the given sort keys. The first key
// on which the rows differ decides; a descending key swaps its operands.
// Rows equal on every key compare equal.
func CompareColumns(order []expr.ColumnOrder, left, right repr.Row) int {
	for _, o := range order {
		var c int
		if o.Desc {
			c = repr.Compare(right[o.Column], left[o.Column])
		} else {
			c = repr.Compare(left[o.Column], right[o.Column])
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// Finish applies the finishing to rows of the given arity and returns the
// result. The input slice is not modified. Rows that are equal on every
// sort key keep their input order.
func (f RowSetFinishing) Finish(rows []repr.Row, arity int) ([]repr.Row, error) {
	if err := f.Validate(arity); err != nil {
		return nil, err
	}
	for i, r := range rows {
		if len(r) != arity {
			return nil, fmt.Errorf("row %d has arity %d, expected %d", i, len(r), arity)
		}
	}

	kept := make([]repr.Row, 0, len(rows))
	for _, r := range rows {
		keep := true
		for _, p := range f.Filter {
			ok, err := expr.EvalPredicate(p, r)
			if err != nil {
				return nil, fmt.Errorf("filter: %w", err)
			}
			if !ok {
				keep = false
				break
			}
		}
		if keep {
			kept = append(kept, r)
		}
	}

	if len(f.OrderBy) > 0 {
		slices.SortStableFunc(kept, func(a, b repr.Row) int {
			return CompareColumns(f.OrderBy, a, b)
		})
	}

	kept = kept[min(f.Offset, len(kept)):]
	if f.Limit != nil && *f.Limit < len(kept) {
		kept = kept[:*f.Limit]
	}

	if f.Project == nil {
		return kept, nil
	}
	out := make([]repr.Row, len(kept))
	for i, r := range kept {
		p := make(repr.Row, len(f.Project))
		for j, c := range f.Project {
			p[j] = r[c]
		}
		out[i] = p
	}
	return out, nil
}
