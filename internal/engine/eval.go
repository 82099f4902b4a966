package engine

import (
	"math"
	"slices"

	"github.com/saifalharthi/materialize/internal/dataflow"
	"github.com/saifalharthi/materialize/internal/expr"
	"github.com/saifalharthi/materialize/internal/repr"
	"github.com/saifalharthi/materialize/internal/timely"
)

// evaluator computes relation contents as of one timestamp. Results of
// named relations are memoized for the lifetime of the evaluator.
//
// Intermediate collections may carry negative counts (Negate feeds
// Union); Reduce and Distinct reject them.
type evaluator struct {
	engine   *Engine
	at       timely.Timestamp
	memo     map[string][]timely.RowCount
	visiting map[string]bool
}

func (e *Engine) newEvaluator(t timely.Timestamp) *evaluator {
	return &evaluator{
		engine:   e,
		at:       t,
		memo:     make(map[string][]timely.RowCount),
		visiting: make(map[string]bool),
	}
}

// relation returns the contents of a source or view. Callers hold e.mu.
func (ev *evaluator) relation(name string) ([]timely.RowCount, error) {
	if rows, ok := ev.memo[name]; ok {
		return rows, nil
	}
	d, ok := ev.engine.catalog.Get(name)
	if !ok {
		return nil, evalError(name, "unknown relation")
	}

	var out []timely.RowCount
	switch d := d.(type) {
	case dataflow.Source:
		if tr, ok := ev.engine.sources[name]; ok {
			out = timely.Accumulate(tr.at(ev.at), ev.at)
		}
	case dataflow.View:
		if ev.visiting[name] {
			return nil, evalError(name, "view reads itself")
		}
		ev.visiting[name] = true
		rows, err := ev.eval(name, d.Expr(), nil)
		delete(ev.visiting, name)
		if err != nil {
			return nil, err
		}
		out = rows
	default:
		return nil, evalError(name, "%s is not readable", d.Kind())
	}
	if out == nil {
		out = []timely.RowCount{}
	}
	ev.memo[name] = out
	return out, nil
}

// eval evaluates e for the view named view. lets holds the enclosing
// Let bindings.
func (ev *evaluator) eval(view string, e expr.RelationExpr, lets map[string][]timely.RowCount) ([]timely.RowCount, error) {
	switch n := e.(type) {
	case expr.Constant:
		out := make([]timely.RowCount, 0, len(n.Rows))
		for _, r := range n.Rows {
			out = append(out, timely.RowCount{Row: r, Count: 1})
		}
		return consolidate(out), nil

	case expr.Get:
		if rows, ok := lets[n.Name]; ok {
			return rows, nil
		}
		return ev.relation(n.Name)

	case expr.Let:
		value, err := ev.eval(view, n.Value, lets)
		if err != nil {
			return nil, err
		}
		inner := make(map[string][]timely.RowCount, len(lets)+1)
		for k, v := range lets {
			inner[k] = v
		}
		inner[n.Name] = value
		return ev.eval(view, n.Body, inner)

	case expr.Project:
		in, err := ev.eval(view, n.Input, lets)
		if err != nil {
			return nil, err
		}
		out := make([]timely.RowCount, 0, len(in))
		for _, rc := range in {
			row := make(repr.Row, len(n.Outputs))
			for i, c := range n.Outputs {
				if c < 0 || c >= len(rc.Row) {
					return nil, evalError(view, "project column %d of row with arity %d", c, len(rc.Row))
				}
				row[i] = rc.Row[c]
			}
			out = append(out, timely.RowCount{Row: row, Count: rc.Count})
		}
		return consolidate(out), nil

	case expr.Map:
		in, err := ev.eval(view, n.Input, lets)
		if err != nil {
			return nil, err
		}
		out := make([]timely.RowCount, 0, len(in))
		for _, rc := range in {
			row := rc.Row.Clone()
			for _, s := range n.Scalars {
				d, err := expr.Eval(s, row)
				if err != nil {
					return nil, wrapEval(view, err)
				}
				row = append(row, d)
			}
			out = append(out, timely.RowCount{Row: row, Count: rc.Count})
		}
		return out, nil

	case expr.Filter:
		in, err := ev.eval(view, n.Input, lets)
		if err != nil {
			return nil, err
		}
		out := make([]timely.RowCount, 0, len(in))
	rows:
		for _, rc := range in {
			for _, p := range n.Predicates {
				ok, err := expr.EvalPredicate(p, rc.Row)
				if err != nil {
					return nil, wrapEval(view, err)
				}
				if !ok {
					continue rows
				}
			}
			out = append(out, rc)
		}
		return out, nil

	case expr.Join:
		return ev.join(view, n, lets)

	case expr.Reduce:
		in, err := ev.eval(view, n.Input, lets)
		if err != nil {
			return nil, err
		}
		return reduce(view, n, in)

	case expr.Distinct:
		in, err := ev.eval(view, n.Input, lets)
		if err != nil {
			return nil, err
		}
		out := make([]timely.RowCount, 0, len(in))
		for _, rc := range in {
			if rc.Count < 0 {
				return nil, negative(view, rc)
			}
			out = append(out, timely.RowCount{Row: rc.Row, Count: 1})
		}
		return out, nil

	case expr.Negate:
		in, err := ev.eval(view, n.Input, lets)
		if err != nil {
			return nil, err
		}
		out := make([]timely.RowCount, 0, len(in))
		for _, rc := range in {
			out = append(out, timely.RowCount{Row: rc.Row, Count: rc.Count.Neg()})
		}
		return out, nil

	case expr.Threshold:
		in, err := ev.eval(view, n.Input, lets)
		if err != nil {
			return nil, err
		}
		return slices.DeleteFunc(slices.Clone(in), func(rc timely.RowCount) bool {
			return rc.Count <= 0
		}), nil

	case expr.Union:
		l, err := ev.eval(view, n.Left, lets)
		if err != nil {
			return nil, err
		}
		r, err := ev.eval(view, n.Right, lets)
		if err != nil {
			return nil, err
		}
		return consolidate(append(slices.Clone(l), r...)), nil

	case nil:
		return nil, evalError(view, "nil relation expression")

	default:
		return nil, evalError(view, "unknown relation expression %T", e)
	}
}

// join forms the cross product of the inputs and keeps the combinations
// whose equivalence-class columns are equal and non-null.
func (ev *evaluator) join(view string, j expr.Join, lets map[string][]timely.RowCount) ([]timely.RowCount, error) {
	inputs := make([][]timely.RowCount, len(j.Inputs))
	offsets := make([]int, len(j.Inputs))
	for i, in := range j.Inputs {
		rows, err := ev.eval(view, in, lets)
		if err != nil {
			return nil, err
		}
		inputs[i] = rows
	}

	product := []timely.RowCount{{Row: repr.Row{}, Count: 1}}
	for i, rows := range inputs {
		offsets[i] = 0
		if len(product) > 0 {
			offsets[i] = len(product[0].Row)
		}
		next := make([]timely.RowCount, 0, len(product)*len(rows))
		for _, left := range product {
			for _, right := range rows {
				row := append(left.Row.Clone(), right.Row...)
				next = append(next, timely.RowCount{Row: row, Count: left.Count * right.Count})
			}
		}
		product = next
	}

	out := product[:0]
	for _, rc := range product {
		if joinMatches(rc.Row, offsets, j.Variables) {
			out = append(out, rc)
		}
	}
	return consolidate(out), nil
}

func joinMatches(row repr.Row, offsets []int, classes [][]expr.ColumnRef) bool {
	for _, class := range classes {
		var first repr.Datum
		for i, ref := range class {
			d := row[offsets[ref.Input]+ref.Column]
			if repr.IsNull(d) {
				return false
			}
			if i == 0 {
				first = d
				continue
			}
			if !repr.Equal(first, d) {
				return false
			}
		}
	}
	return true
}

type group struct {
	key  repr.Row
	rows []timely.RowCount
}

// reduce emits one row per group: the key columns followed by the
// aggregates. Empty input produces no rows, even without a group key.
func reduce(view string, r expr.Reduce, in []timely.RowCount) ([]timely.RowCount, error) {
	var groups []*group
	index := make(map[string]*group)
	for _, rc := range in {
		if rc.Count < 0 {
			return nil, negative(view, rc)
		}
		key := make(repr.Row, len(r.GroupKey))
		for i, c := range r.GroupKey {
			key[i] = rc.Row[c]
		}
		g, ok := index[key.String()]
		if !ok {
			g = &group{key: key}
			index[key.String()] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, rc)
	}

	out := make([]timely.RowCount, 0, len(groups))
	for _, g := range groups {
		row := g.key.Clone()
		for _, agg := range r.Aggregates {
			d, err := aggregate(view, agg, g.rows)
			if err != nil {
				return nil, err
			}
			row = append(row, d)
		}
		out = append(out, timely.RowCount{Row: row, Count: 1})
	}
	return consolidate(out), nil
}

// aggregate folds agg over one group. Null inputs are ignored; sum, min
// and max of no values are null.
func aggregate(view string, agg expr.AggregateExpr, rows []timely.RowCount) (repr.Datum, error) {
	type value struct {
		d     repr.Datum
		count timely.Diff
	}
	var values []value
	for _, rc := range rows {
		d, err := expr.Eval(agg.Expr, rc.Row)
		if err != nil {
			return nil, wrapEval(view, err)
		}
		if repr.IsNull(d) {
			continue
		}
		values = append(values, value{d: d, count: rc.Count})
	}
	if agg.Distinct {
		slices.SortFunc(values, func(a, b value) int { return repr.Compare(a.d, b.d) })
		values = slices.CompactFunc(values, func(a, b value) bool { return repr.Equal(a.d, b.d) })
		for i := range values {
			values[i].count = 1
		}
	}

	switch agg.Func {
	case expr.AggCount:
		var n int64
		for _, v := range values {
			n += int64(v.count)
		}
		return repr.Int64(n), nil

	case expr.AggSum:
		if len(values) == 0 {
			return repr.Null{}, nil
		}
		var sum int64
		for _, v := range values {
			i, ok := v.d.(repr.Int64)
			if !ok {
				return nil, evalError(view, "sum of %s", repr.Format(v.d))
			}
			term, ok := mulChecked(int64(i), int64(v.count))
			if !ok {
				return nil, evalError(view, "sum overflows")
			}
			if sum, ok = addChecked(sum, term); !ok {
				return nil, evalError(view, "sum overflows")
			}
		}
		return repr.Int64(sum), nil

	case expr.AggMin, expr.AggMax:
		if len(values) == 0 {
			return repr.Null{}, nil
		}
		best := values[0].d
		for _, v := range values[1:] {
			c := repr.Compare(v.d, best)
			if (agg.Func == expr.AggMin && c < 0) || (agg.Func == expr.AggMax && c > 0) {
				best = v.d
			}
		}
		return best, nil

	default:
		return nil, evalError(view, "unknown aggregate %q", agg.Func)
	}
}

func addChecked(a, b int64) (int64, bool) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, false
	}
	return s, true
}

func mulChecked(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	return p, true
}

// consolidate merges equal rows and drops rows whose counts cancel.
func consolidate(in []timely.RowCount) []timely.RowCount {
	updates := make([]timely.Update, len(in))
	for i, rc := range in {
		updates[i] = timely.Update{Row: rc.Row, Diff: rc.Count}
	}
	merged := timely.Consolidate(updates)
	out := make([]timely.RowCount, len(merged))
	for i, u := range merged {
		out[i] = timely.RowCount{Row: u.Row, Count: u.Diff}
	}
	return out
}

// difference returns the updates at t that turn before into after.
func difference(before, after []timely.RowCount, t timely.Timestamp) []timely.Update {
	updates := make([]timely.Update, 0, len(before)+len(after))
	for _, rc := range after {
		updates = append(updates, timely.NewUpdate(rc.Row, t, rc.Count))
	}
	for _, rc := range before {
		updates = append(updates, timely.NewUpdate(rc.Row, t, rc.Count.Neg()))
	}
	return timely.Consolidate(updates)
}

func wrapEval(view string, err error) *RuntimeError {
	return &RuntimeError{Code: ErrCodeEval, Name: view, Err: err}
}

func negative(view string, rc timely.RowCount) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeNegativeMultiplicity,
		Name:    view,
		Message: "row " + rc.Row.String() + " has negative multiplicity",
	}
}
