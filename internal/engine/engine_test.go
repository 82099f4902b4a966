package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saifalharthi/materialize/internal/catalog"
	"github.com/saifalharthi/materialize/internal/dataflow"
	"github.com/saifalharthi/materialize/internal/expr"
	"github.com/saifalharthi/materialize/internal/peek"
	"github.com/saifalharthi/materialize/internal/repr"
	"github.com/saifalharthi/materialize/internal/tail"
	"github.com/saifalharthi/materialize/internal/timely"
)

func ordersDesc() repr.RelationDesc {
	return repr.EmptyDesc().
		AddColumn("id", repr.ScalarInt64).
		AddColumn("amount", repr.ScalarInt64)
}

func namesDesc() repr.RelationDesc {
	return repr.EmptyDesc().
		AddColumn("id", repr.ScalarInt64).
		AddColumn("name", repr.ScalarString)
}

func getOrders() expr.Get {
	return expr.Get{Name: "orders", Typ: ordersDesc().Typ()}
}

func row(vals ...any) repr.Row {
	r := make(repr.Row, len(vals))
	for i, v := range vals {
		switch v := v.(type) {
		case int:
			r[i] = repr.Int64(v)
		case string:
			r[i] = repr.String(v)
		case nil:
			r[i] = repr.Null{}
		}
	}
	return r
}

func insert(ts timely.Timestamp, r repr.Row) timely.Update {
	return timely.NewUpdate(r, ts, 1)
}

func retract(ts timely.Timestamp, r repr.Row) timely.Update {
	return timely.NewUpdate(r, ts, -1)
}

// testCatalog registers the orders and customers sources plus optional views.
func testCatalog(t *testing.T, views ...dataflow.View) *catalog.Registry {
	t.Helper()
	reg := catalog.NewRegistry()
	ds := []dataflow.Dataflow{
		dataflow.NewSource("orders", dataflow.NewLocalSource(), ordersDesc()),
		dataflow.NewSource("customers", dataflow.NewLocalSource(), namesDesc()),
	}
	for _, v := range views {
		ds = append(ds, v)
	}
	require.NoError(t, reg.RegisterAll(ds))
	return reg
}

func bigOrders() dataflow.View {
	e := expr.NewFilter(getOrders(), expr.CallBinary{Func: expr.FuncGt, Left: expr.Col(1), Right: expr.Lit(repr.Int64(10))})
	return dataflow.NewView("big_orders", "SELECT * FROM orders WHERE amount > 10", e, ordersDesc())
}

type errorLog struct {
	mu   sync.Mutex
	errs []error
}

func (l *errorLog) record(_ Event, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *errorLog) all() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errs...)
}

// startEngine runs an engine until the test ends.
func startEngine(t *testing.T, reg *catalog.Registry, opts ...Option) (*Engine, *errorLog) {
	t.Helper()
	log := &errorLog{}
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithErrorHandler(log.record),
	}, opts...)
	e := New(reg, opts...)

	go func() { _ = e.Run(context.Background()) }()
	t.Cleanup(func() {
		e.Stop()
		<-e.Done()
	})
	return e, log
}

func feed(t *testing.T, e *Engine, source string, inputs ...timely.Input) {
	t.Helper()
	for _, in := range inputs {
		require.True(t, e.Feed(source, in))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Flush(ctx))
}

func materialize(t *testing.T, e *Engine, view string, ts timely.Timestamp) []repr.Row {
	t.Helper()
	rows, err := e.Materialize(context.Background(), view, ts)
	require.NoError(t, err)
	return rows
}

func TestMaterialize_Filter(t *testing.T) {
	e, _ := startEngine(t, testCatalog(t, bigOrders()))

	feed(t, e, "orders",
		timely.UpdatesInput(insert(1, row(1, 5)), insert(1, row(2, 50))),
		timely.UpdatesInput(insert(2, row(3, 20))),
	)

	assert.Empty(t, materialize(t, e, "big_orders", 0))
	assert.ElementsMatch(t, []repr.Row{row(2, 50)}, materialize(t, e, "big_orders", 1))
	assert.ElementsMatch(t, []repr.Row{row(2, 50), row(3, 20)}, materialize(t, e, "big_orders", 2))
}

func TestMaterialize_Retraction(t *testing.T) {
	e, _ := startEngine(t, testCatalog(t, bigOrders()))

	feed(t, e, "orders", timely.UpdatesInput(insert(1, row(2, 50)), retract(3, row(2, 50))))

	assert.Len(t, materialize(t, e, "big_orders", 2), 1)
	assert.Empty(t, materialize(t, e, "big_orders", 3))
}

func TestMaterialize_Multiplicity(t *testing.T) {
	e, _ := startEngine(t, testCatalog(t, bigOrders()))

	feed(t, e, "orders", timely.UpdatesInput(insert(1, row(2, 50)), insert(1, row(2, 50))))

	assert.Equal(t, []repr.Row{row(2, 50), row(2, 50)}, materialize(t, e, "big_orders", 1))
}

func TestMaterialize_Errors(t *testing.T) {
	e, _ := startEngine(t, testCatalog(t, bigOrders()))

	_, err := e.Materialize(context.Background(), "missing", 0)
	assert.True(t, catalog.IsNotFound(err))

	_, err = e.Materialize(context.Background(), "orders", 0)
	assert.True(t, catalog.HasCode(err, catalog.ErrCodeNotView))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Materialize(ctx, "big_orders", 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMaterialize_BeforeAsOf(t *testing.T) {
	asOf := timely.NewFrontier(5)
	v := bigOrders().WithAsOf(&asOf)
	e, _ := startEngine(t, testCatalog(t, v))

	_, err := e.Materialize(context.Background(), "big_orders", 4)
	assert.True(t, IsBeforeAsOf(err))

	_, err = e.Materialize(context.Background(), "big_orders", 5)
	assert.NoError(t, err)
}

func TestInput_LateUpdateRejectsWholeBatch(t *testing.T) {
	e, log := startEngine(t, testCatalog(t, bigOrders()))

	feed(t, e, "orders",
		timely.WatermarkInput(5),
		timely.UpdatesInput(insert(6, row(1, 50)), insert(4, row(2, 50))),
	)

	errs := log.all()
	require.Len(t, errs, 1)
	assert.True(t, IsProtocolError(errs[0]))
	assert.True(t, timely.IsLateUpdate(errs[0]))
	assert.Empty(t, materialize(t, e, "big_orders", 10), "no update of the batch admitted")
}

func TestInput_MixedInputRejected(t *testing.T) {
	e, log := startEngine(t, testCatalog(t, bigOrders()))

	w := timely.Timestamp(3)
	feed(t, e, "orders", timely.Input{Updates: []timely.Update{insert(1, row(2, 50))}, Watermark: &w})

	errs := log.all()
	require.Len(t, errs, 1)
	assert.True(t, IsProtocolError(errs[0]))
	assert.Empty(t, materialize(t, e, "big_orders", 10), "updates not admitted")

	got, err := e.Watermark("orders")
	require.NoError(t, err)
	assert.Equal(t, timely.Timestamp(0), got, "watermark not advanced")
}

func TestInput_WatermarkRegression(t *testing.T) {
	e, log := startEngine(t, testCatalog(t))

	feed(t, e, "orders", timely.WatermarkInput(5), timely.WatermarkInput(5), timely.WatermarkInput(3))

	errs := log.all()
	require.Len(t, errs, 1)
	assert.True(t, timely.IsWatermarkRegression(errs[0]))

	w, err := e.Watermark("orders")
	require.NoError(t, err)
	assert.Equal(t, timely.Timestamp(5), w)
}

func TestInput_UnknownSource(t *testing.T) {
	e, log := startEngine(t, testCatalog(t, bigOrders()))

	feed(t, e, "big_orders", timely.WatermarkInput(1))
	feed(t, e, "nope", timely.WatermarkInput(1))

	errs := log.all()
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.True(t, IsUnknownSource(err))
	}

	_, err := e.Watermark("nope")
	assert.True(t, IsUnknownSource(err))
}

func TestInput_LateRegisteredSource(t *testing.T) {
	reg := testCatalog(t)
	e, log := startEngine(t, reg)

	require.NoError(t, reg.Register(dataflow.NewSource("late", dataflow.NewLocalSource(), ordersDesc())))
	feed(t, e, "late", timely.WatermarkInput(2))

	assert.Empty(t, log.all())
	w, err := e.Watermark("late")
	require.NoError(t, err)
	assert.Equal(t, timely.Timestamp(2), w)
}

func TestViewState(t *testing.T) {
	joined := dataflow.NewView("joined", "",
		expr.Join{
			Inputs:    []expr.RelationExpr{getOrders(), expr.Get{Name: "customers", Typ: namesDesc().Typ()}},
			Variables: [][]expr.ColumnRef{{{Input: 0, Column: 0}, {Input: 1, Column: 0}}},
		},
		ordersDesc().AddColumn("cid", repr.ScalarInt64).AddColumn("name", repr.ScalarString),
	)
	e, _ := startEngine(t, testCatalog(t, joined))

	feed(t, e, "orders", timely.WatermarkInput(7))
	feed(t, e, "customers", timely.WatermarkInput(4))

	state, err := e.ViewState(context.Background(), "joined")
	require.NoError(t, err)
	assert.Equal(t, map[string]timely.Timestamp{"orders": 7, "customers": 4}, state.SourceWatermarks)
	assert.True(t, state.Frontier.Equal(timely.NewFrontier(4)))
	assert.Equal(t, 4, state.Arity)

	ready, ok := state.ReadyAt()
	require.True(t, ok)
	assert.Equal(t, timely.Timestamp(3), ready)
}

func TestViewState_ConstantView(t *testing.T) {
	c := dataflow.NewView("one", "", expr.Constant{Rows: []repr.Row{row(1)}, Typ: repr.EmptyDesc().AddColumn("x", repr.ScalarInt64).Typ()},
		repr.EmptyDesc().AddColumn("x", repr.ScalarInt64))
	e, _ := startEngine(t, testCatalog(t, c))

	state, err := e.ViewState(context.Background(), "one")
	require.NoError(t, err)
	assert.True(t, state.Frontier.IsEmpty())
	assert.Empty(t, state.SourceWatermarks)
	require.NoError(t, e.WaitUntil(context.Background(), "one", 1000))
}

func TestWaitUntil(t *testing.T) {
	e, _ := startEngine(t, testCatalog(t, bigOrders()))

	done := make(chan error, 1)
	go func() {
		done <- e.WaitUntil(context.Background(), "big_orders", 3)
	}()

	feed(t, e, "orders", timely.WatermarkInput(3))
	select {
	case err := <-done:
		t.Fatalf("returned before frontier passed 3: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	feed(t, e, "orders", timely.WatermarkInput(4))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("WaitUntil did not return")
	}
}

func TestWaitUntil_Canceled(t *testing.T) {
	e, _ := startEngine(t, testCatalog(t, bigOrders()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := e.WaitUntil(ctx, "big_orders", 3)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitUntil_Stopped(t *testing.T) {
	e := New(testCatalog(t, bigOrders()), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	go func() { _ = e.Run(context.Background()) }()

	done := make(chan error, 1)
	go func() {
		done <- e.WaitUntil(context.Background(), "big_orders", 3)
	}()
	e.Stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(5 * time.Second):
		t.Fatal("WaitUntil did not return after Stop")
	}
	assert.ErrorIs(t, e.Flush(context.Background()), ErrStopped)
}

func TestEvaluate_Operators(t *testing.T) {
	idCol := repr.EmptyDesc().AddColumn("id", repr.ScalarInt64)
	tests := []struct {
		name string
		expr expr.RelationExpr
		desc repr.RelationDesc
		want []repr.Row
		// atZero is the content before the first update; only constants
		// contribute there
		atZero []repr.Row
	}{
		{
			name: "project",
			expr: expr.NewProject(getOrders(), 1, 0),
			desc: repr.EmptyDesc().AddColumn("amount", repr.ScalarInt64).AddColumn("id", repr.ScalarInt64),
			want: []repr.Row{row(5, 1), row(50, 2), row(20, 3), row(20, 3)},
		},
		{
			name: "map",
			expr: expr.Map{Input: getOrders(), Scalars: []expr.ScalarExpr{
				expr.CallBinary{Func: expr.FuncMul, Left: expr.Col(1), Right: expr.Lit(repr.Int64(2))},
				expr.CallBinary{Func: expr.FuncAdd, Left: expr.Col(2), Right: expr.Lit(repr.Int64(1))},
			}},
			desc: ordersDesc().AddColumn("double", repr.ScalarInt64).AddColumn("plus", repr.ScalarInt64),
			want: []repr.Row{row(1, 5, 10, 11), row(2, 50, 100, 101), row(3, 20, 40, 41), row(3, 20, 40, 41)},
		},
		{
			name: "distinct",
			expr: expr.NewDistinct(expr.NewProject(getOrders(), 0)),
			desc: idCol,
			want: []repr.Row{row(1), row(2), row(3)},
		},
		{
			name: "union",
			expr: expr.NewUnion(expr.NewProject(getOrders(), 0), expr.Constant{Rows: []repr.Row{row(9)}, Typ: idCol.Typ()}),
			desc: idCol,
			want:   []repr.Row{row(1), row(2), row(3), row(3), row(9)},
			atZero: []repr.Row{row(9)},
		},
		{
			name: "except all via negate and threshold",
			expr: expr.Threshold{Input: expr.NewUnion(
				expr.NewProject(getOrders(), 0),
				expr.Negate{Input: expr.Constant{Rows: []repr.Row{row(3), row(2), row(7)}, Typ: idCol.Typ()}},
			)},
			desc: idCol,
			want: []repr.Row{row(1), row(3)},
		},
		{
			name: "let",
			expr: expr.Let{
				Name:  "ids",
				Value: expr.NewProject(getOrders(), 0),
				Body:  expr.NewUnion(expr.Get{Name: "ids", Typ: idCol.Typ()}, expr.Get{Name: "ids", Typ: idCol.Typ()}),
			},
			desc: idCol,
			want: []repr.Row{row(1), row(1), row(2), row(2), row(3), row(3), row(3), row(3)},
		},
		{
			name: "reduce",
			expr: expr.Reduce{
				Input:    getOrders(),
				GroupKey: []int{0},
				Aggregates: []expr.AggregateExpr{
					{Func: expr.AggCount, Expr: expr.Col(1)},
					{Func: expr.AggSum, Expr: expr.Col(1)},
					{Func: expr.AggCount, Expr: expr.Col(1), Distinct: true},
					{Func: expr.AggMax, Expr: expr.Col(1)},
				},
			},
			desc: idCol.AddColumn("n", repr.ScalarInt64).AddColumn("total", repr.ScalarInt64).
				AddColumn("distinct_n", repr.ScalarInt64).AddColumn("max", repr.ScalarInt64),
			want: []repr.Row{row(1, 1, 5, 1, 5), row(2, 1, 50, 1, 50), row(3, 2, 40, 1, 20)},
		},
		{
			name: "global reduce",
			expr: expr.Reduce{
				Input:      getOrders(),
				Aggregates: []expr.AggregateExpr{{Func: expr.AggMin, Expr: expr.Col(1)}},
			},
			desc: repr.EmptyDesc().AddColumn("min", repr.ScalarInt64),
			want: []repr.Row{row(5)},
		},
		{
			name: "join",
			expr: expr.NewProject(expr.Join{
				Inputs:    []expr.RelationExpr{getOrders(), expr.Get{Name: "customers", Typ: namesDesc().Typ()}},
				Variables: [][]expr.ColumnRef{{{Input: 0, Column: 0}, {Input: 1, Column: 0}}},
			}, 0, 3),
			desc: repr.EmptyDesc().AddColumn("id", repr.ScalarInt64).AddColumn("name", repr.ScalarString),
			want: []repr.Row{row(1, "ann"), row(3, "cy"), row(3, "cy")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := startEngine(t, testCatalog(t, dataflow.NewView("v", "", tt.expr, tt.desc)))
			feed(t, e, "orders", timely.UpdatesInput(
				insert(1, row(1, 5)), insert(1, row(2, 50)), insert(1, row(3, 20)), insert(1, row(3, 20)),
			))
			feed(t, e, "customers", timely.UpdatesInput(insert(1, row(1, "ann")), insert(1, row(3, "cy"))))

			assert.ElementsMatch(t, tt.want, materialize(t, e, "v", 1))
			assert.ElementsMatch(t, tt.atZero, materialize(t, e, "v", 0), "contents before the first update")
		})
	}
}

func TestEvaluate_JoinSkipsNulls(t *testing.T) {
	nullable := repr.EmptyDesc().AddColumnType("id", repr.NewColumnType(repr.ScalarInt64).AsNullable())
	c := expr.Constant{Rows: []repr.Row{row(nil), row(1)}, Typ: nullable.Typ()}
	v := dataflow.NewView("self", "", expr.Join{
		Inputs:    []expr.RelationExpr{c, c},
		Variables: [][]expr.ColumnRef{{{Input: 0, Column: 0}, {Input: 1, Column: 0}}},
	}, nullable.AddColumnType("id2", repr.NewColumnType(repr.ScalarInt64).AsNullable()))
	e, _ := startEngine(t, testCatalog(t, v))

	assert.Equal(t, []repr.Row{row(1, 1)}, materialize(t, e, "self", 0))
}

func TestEvaluate_NegativeMultiplicity(t *testing.T) {
	v := dataflow.NewView("neg", "", expr.Negate{Input: getOrders()}, ordersDesc())
	e, _ := startEngine(t, testCatalog(t, v))

	feed(t, e, "orders", timely.UpdatesInput(insert(1, row(1, 5))))

	_, err := e.Materialize(context.Background(), "neg", 1)
	assert.True(t, IsNegativeMultiplicity(err))
}

func TestEvaluate_ScalarError(t *testing.T) {
	overflow := expr.Map{Input: getOrders(), Scalars: []expr.ScalarExpr{
		expr.CallBinary{Func: expr.FuncMul, Left: expr.Col(1), Right: expr.Lit(repr.Int64(1 << 62))},
	}}
	v := dataflow.NewView("boom", "", overflow, ordersDesc().AddColumn("x", repr.ScalarInt64))
	e, _ := startEngine(t, testCatalog(t, v))

	feed(t, e, "orders", timely.UpdatesInput(insert(1, row(1, 5))))

	_, err := e.Materialize(context.Background(), "boom", 1)
	assert.True(t, IsEvalError(err))
	assert.Equal(t, "boom", err.(*RuntimeError).Name)
}

func recvBatch(t *testing.T, ch *tail.Channel) tail.Batch {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	b, err := ch.Recv(ctx)
	require.NoError(t, err)
	return b
}

func TestTail_DeliversFinalChanges(t *testing.T) {
	e, _ := startEngine(t, testCatalog(t, bigOrders()))

	ch, err := e.OpenTail("watch", "big_orders", 0)
	require.NoError(t, err)
	_, ok := e.Catalog().Get("watch")
	assert.True(t, ok, "tail sink registered")

	feed(t, e, "orders",
		timely.UpdatesInput(insert(1, row(1, 50)), insert(1, row(2, 5))),
		timely.UpdatesInput(retract(2, row(1, 50)), insert(2, row(3, 30))),
		timely.UpdatesInput(insert(4, row(4, 40))),
		timely.WatermarkInput(3),
	)

	assert.Equal(t, tail.Batch{
		insert(1, row(1, 50)),
		retract(2, row(1, 50)),
		insert(2, row(3, 30)),
	}, recvBatch(t, ch))

	feed(t, e, "orders", timely.WatermarkInput(5))
	assert.Equal(t, tail.Batch{insert(4, row(4, 40))}, recvBatch(t, ch))
}

func TestTail_Since(t *testing.T) {
	e, _ := startEngine(t, testCatalog(t, bigOrders()))

	feed(t, e, "orders",
		timely.UpdatesInput(insert(1, row(1, 50)), insert(3, row(2, 60))),
		timely.WatermarkInput(2),
	)

	ch, err := e.OpenTail("watch", "big_orders", 2)
	require.NoError(t, err)
	feed(t, e, "orders", timely.WatermarkInput(4))

	assert.Equal(t, tail.Batch{insert(3, row(2, 60))}, recvBatch(t, ch))
}

func TestTail_CatchesUpOnOpen(t *testing.T) {
	e, _ := startEngine(t, testCatalog(t, bigOrders()))

	feed(t, e, "orders",
		timely.UpdatesInput(insert(0, row(1, 50))),
		timely.WatermarkInput(2),
	)
	ch, err := e.OpenTail("watch", "big_orders", 0)
	require.NoError(t, err)

	assert.Equal(t, tail.Batch{insert(0, row(1, 50))}, recvBatch(t, ch))
}

func TestTail_Overrun(t *testing.T) {
	e, _ := startEngine(t, testCatalog(t, bigOrders()),
		WithTailBuffer(1), WithTailSendTimeout(10*time.Millisecond))

	ch, err := e.OpenTail("watch", "big_orders", 0)
	require.NoError(t, err)

	feed(t, e, "orders", timely.UpdatesInput(insert(1, row(1, 50))), timely.WatermarkInput(2))
	feed(t, e, "orders", timely.UpdatesInput(insert(2, row(2, 50))), timely.WatermarkInput(3))

	assert.Len(t, recvBatch(t, ch), 1)
	_, err = ch.Recv(context.Background())
	assert.ErrorIs(t, err, tail.ErrTailOverrun)

	_, ok := e.Catalog().Get("watch")
	assert.False(t, ok, "overrun tail removed from catalog")
}

func TestTail_Close(t *testing.T) {
	e, _ := startEngine(t, testCatalog(t, bigOrders()))

	ch, err := e.OpenTail("watch", "big_orders", 0)
	require.NoError(t, err)
	require.NoError(t, e.CloseTail("watch"))

	_, err = ch.Recv(context.Background())
	assert.ErrorIs(t, err, tail.ErrClosed)
	_, ok := e.Tails().Lookup(ch.ID())
	assert.False(t, ok)

	assert.Error(t, e.CloseTail("watch"))

	_, err = e.OpenTail("watch", "big_orders", 0)
	assert.NoError(t, err, "name reusable after close")
}

func TestTail_Errors(t *testing.T) {
	e, _ := startEngine(t, testCatalog(t, bigOrders()))

	_, err := e.OpenTail("watch", "nope", 0)
	assert.Error(t, err)

	_, err = e.OpenTail("orders", "big_orders", 0)
	assert.True(t, catalog.IsDuplicate(err))
	assert.Empty(t, e.Tails().IDs(), "failed open leaves no channel")
}

func TestPeekServer(t *testing.T) {
	e, _ := startEngine(t, testCatalog(t, bigOrders()))
	srv := peek.NewServer(e, peek.WithWaitPolicy(peek.WaitUntilReady))

	feed(t, e, "orders", timely.UpdatesInput(insert(1, row(1, 50)), insert(4, row(2, 60))))

	h := srv.Submit(context.Background(), peek.Request{View: "big_orders", When: peek.AtTimestamp{T: 4}})
	feed(t, e, "orders", timely.WatermarkInput(5))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := h.Wait(ctx)
	require.NoError(t, err)
	rows, err := peek.RowsOf(resp)
	require.NoError(t, err)
	assert.ElementsMatch(t, []repr.Row{row(1, 50), row(2, 60)}, rows)

	ts, ok := h.Timestamp()
	require.True(t, ok)
	assert.Equal(t, timely.Timestamp(4), ts)
	srv.Wait()
}

func TestPeekServer_Immediately(t *testing.T) {
	e, _ := startEngine(t, testCatalog(t, bigOrders()))
	srv := peek.NewServer(e)

	feed(t, e, "orders",
		timely.UpdatesInput(insert(1, row(1, 50)), insert(4, row(2, 60))),
		timely.WatermarkInput(3),
	)

	h := srv.Submit(context.Background(), peek.Request{View: "big_orders", When: peek.Immediately{}})
	resp, err := h.Wait(context.Background())
	require.NoError(t, err)
	rows, err := peek.RowsOf(resp)
	require.NoError(t, err)
	assert.Equal(t, []repr.Row{row(1, 50)}, rows, "reads at watermark-1")
}

func TestRuntimeError_Format(t *testing.T) {
	err := &RuntimeError{Code: ErrCodeEval, Name: "v", Message: "bad", Err: errors.New("cause")}
	assert.Equal(t, "EVAL: bad: cause (name=v)", err.Error())
	assert.Equal(t, "UNKNOWN_SOURCE: x", (&RuntimeError{Code: ErrCodeUnknownSource, Message: "x"}).Error())
	assert.True(t, IsEvalError(err))
	assert.False(t, IsProtocolError(err))
}
