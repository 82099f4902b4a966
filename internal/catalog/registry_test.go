package catalog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saifalharthi/materialize/internal/dataflow"
	"github.com/saifalharthi/materialize/internal/expr"
	"github.com/saifalharthi/materialize/internal/repr"
	"github.com/saifalharthi/materialize/internal/timely"
)

func desc() repr.RelationDesc {
	return repr.EmptyDesc().AddColumn("id", repr.ScalarInt64)
}

func source(name string) dataflow.Source {
	return dataflow.NewSource(name, dataflow.NewLocalSource(), desc())
}

func get(name string) expr.Get {
	return expr.Get{Name: name, Typ: desc().Typ()}
}

func view(name string, uses ...string) dataflow.View {
	var e expr.RelationExpr = get(uses[0])
	for _, u := range uses[1:] {
		e = expr.NewUnion(e, get(u))
	}
	return dataflow.NewView(name, "", e, desc())
}

func sink(name, from string) dataflow.Sink {
	return dataflow.NewSink(name, from, desc(), dataflow.KafkaSinkConnector{Addr: "broker:9092", Topic: name})
}

func TestRegister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(source("orders")))
	require.NoError(t, r.Register(view("big", "orders")))
	require.NoError(t, r.Register(sink("out", "big")))

	d, ok := r.Get("big")
	require.True(t, ok)
	assert.Equal(t, dataflow.KindView, d.Kind())
	assert.Equal(t, []string{"big", "orders", "out"}, r.Names())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"big"}, r.Dependents("orders"))
}

func TestRegister_Errors(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(source("orders")))
	require.NoError(t, r.Register(sink("out", "orders")))

	assert.True(t, IsDuplicate(r.Register(source("orders"))))
	assert.True(t, IsUnknownDependency(r.Register(view("v", "orders", "missing"))))
	assert.True(t, IsUnknownDependency(r.Register(view("v", "out"))), "sinks cannot be read")
	assert.True(t, HasCode(r.Register(source("")), ErrCodeInvalid))

	wide := dataflow.NewSink("wide", "orders", desc().AddColumn("extra", repr.ScalarString), dataflow.KafkaSinkConnector{Addr: "b:1", Topic: "t"})
	assert.True(t, HasCode(r.Register(wide), ErrCodeShapeMismatch))

	assert.Equal(t, 2, r.Len(), "rejected registrations change nothing")
}

func TestRegisterAll_AnyOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(source("a")))

	err := r.RegisterAll([]dataflow.Dataflow{
		sink("out", "v2"),
		view("v2", "v1", "b"),
		view("v1", "a"),
		source("b"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "v1", "v2", "out"}, r.BuildOrder())
}

func TestRegisterAll_Atomic(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterAll([]dataflow.Dataflow{source("a"), view("v", "a", "missing")})
	assert.True(t, IsUnknownDependency(err))
	assert.Equal(t, 0, r.Len())

	err = r.RegisterAll([]dataflow.Dataflow{source("a"), source("a")})
	assert.True(t, IsDuplicate(err))
}

func TestRegisterAll_Cycle(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterAll([]dataflow.Dataflow{source("s"), view("x", "y", "s"), view("y", "x")})
	require.Error(t, err)
	assert.True(t, IsCycle(err))
	assert.Equal(t, 0, r.Len())
}

func TestBuildOrder_Deterministic(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(source("z")))
	require.NoError(t, r.Register(source("m")))
	require.NoError(t, r.Register(view("a", "z")))
	require.NoError(t, r.Register(view("b", "m", "a")))

	for i := 0; i < 5; i++ {
		assert.Equal(t, []string{"m", "z", "a", "b"}, r.BuildOrder())
	}
}

func TestSources(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterAll([]dataflow.Dataflow{
		source("orders"), source("c2018"), source("c2019"), source("unused"),
		view("customers", "c2018", "c2019"),
		view("report", "orders", "customers"),
		sink("out", "report"),
	}))

	got, err := r.Sources("out")
	require.NoError(t, err)
	assert.Equal(t, []string{"c2018", "c2019", "orders"}, got)

	got, err = r.Sources("orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, got)

	_, err = r.Sources("nope")
	assert.True(t, IsNotFound(err))
}

func TestRemove(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(source("orders")))
	require.NoError(t, r.Register(view("v", "orders")))

	assert.True(t, HasCode(r.Remove("orders"), ErrCodeHasDependents))
	require.NoError(t, r.Remove("v"))
	assert.Empty(t, r.Dependents("orders"))
	require.NoError(t, r.Remove("orders"))
	assert.True(t, IsNotFound(r.Remove("orders")))
}

func TestTightenAsOf(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(source("orders")))
	require.NoError(t, r.Register(view("v", "orders")))

	v, err := r.TightenAsOf("v", timely.NewFrontier(4))
	require.NoError(t, err)
	assert.Equal(t, timely.NewFrontier(4), *v.AsOf())

	_, err = r.TightenAsOf("v", timely.NewFrontier(2))
	assert.True(t, dataflow.IsAsOfLoosened(err))
	stored, err := r.View("v")
	require.NoError(t, err)
	assert.Equal(t, timely.NewFrontier(4), *stored.AsOf())

	_, err = r.TightenAsOf("orders", timely.NewFrontier(1))
	assert.True(t, HasCode(err, ErrCodeNotView))
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(source("orders")))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = r.Get("orders")
				_ = r.BuildOrder()
			}
		}()
	}
	require.NoError(t, r.Register(view("v", "orders")))
	wg.Wait()
	assert.Equal(t, 2, r.Len())
}
