package store

import (
	"path/filepath"
	"testing"

	"github.com/saifalharthi/materialize/internal/dataflow"
	"github.com/saifalharthi/materialize/internal/expr"
	"github.com/saifalharthi/materialize/internal/repr"
)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testDesc() repr.RelationDesc {
	return repr.EmptyDesc().
		AddColumn("id", repr.ScalarInt64).
		AddColumn("name", repr.ScalarString)
}

func testSource(name string) dataflow.Source {
	return dataflow.NewSource(name, dataflow.NewLocalSource(), testDesc())
}

func testView(name, from string) dataflow.View {
	e := expr.Filter{
		Input:      expr.Get{Name: from, Typ: testDesc().Typ()},
		Predicates: []expr.ScalarExpr{expr.Eq(expr.Col(0), expr.Lit(repr.Int64(1)))},
	}
	return dataflow.NewView(name, "SELECT * FROM "+from+" WHERE id = 1", e, testDesc())
}

func testSink(name, from string) dataflow.Sink {
	return dataflow.NewSink(name, from, testDesc(), dataflow.KafkaSinkConnector{
		Addr:     "broker.local:9092",
		Topic:    name,
		SchemaID: 3,
	})
}

// encoded returns the tagged JSON of d for comparisons.
func encoded(t *testing.T, d dataflow.Dataflow) string {
	t.Helper()
	data, err := dataflow.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal(%s) failed: %v", d.Name(), err)
	}
	return string(data)
}
