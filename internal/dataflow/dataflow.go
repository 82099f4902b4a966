package dataflow

import (
	"github.com/saifalharthi/materialize/internal/expr"
	"github.com/saifalharthi/materialize/internal/repr"
	"github.com/saifalharthi/materialize/internal/timely"
)

// Kind names a dataflow variant. It is also the outer tag of the encoding.
type Kind string

const (
	KindSource Kind = "source"
	KindSink   Kind = "sink"
	KindView   Kind = "view"
)

// Dataflow is a named artifact registered in a catalog.
//
// This is a sealed interface - only types in this package implement it.
type Dataflow interface {
	// Name returns the unique name used to resolve dependencies.
	Name() string

	// Uses returns the names of the dataflows this one reads, deduplicated
	// and sorted.
	Uses() []string

	// Kind returns the variant.
	Kind() Kind

	dataflow() // Marker method - seals interface to this package
}

// Shaped is a dataflow with a row shape of its own: a Source or a View.
type Shaped interface {
	Dataflow

	// Desc returns the named columns of the rows the dataflow produces.
	Desc() repr.RelationDesc

	// Typ returns the relation type of the rows the dataflow produces.
	Typ() repr.RelationType
}

// DescOf returns the row shape of d, or ErrNoShape for a Sink.
func DescOf(d Dataflow) (repr.RelationDesc, error) {
	if s, ok := d.(Shaped); ok {
		return s.Desc(), nil
	}
	return repr.RelationDesc{}, ErrNoShape
}

// Source ingests rows from outside the system.
type Source struct {
	name      string
	connector SourceConnector
	desc      repr.RelationDesc
}

// NewSource creates a source.
func NewSource(name string, connector SourceConnector, desc repr.RelationDesc) Source {
	return Source{name: name, connector: connector, desc: desc}
}

func (s Source) Name() string               { return s.name }
func (s Source) Kind() Kind                 { return KindSource }
func (s Source) Desc() repr.RelationDesc    { return s.desc }
func (s Source) Typ() repr.RelationType     { return s.desc.Typ() }
func (s Source) Connector() SourceConnector { return s.connector }
func (Source) dataflow()                    {}

// Uses returns an empty set: sources have no upstream.
func (s Source) Uses() []string { return []string{} }

// Sink exports the rows of one upstream dataflow.
type Sink struct {
	name      string
	from      string
	fromDesc  repr.RelationDesc
	connector SinkConnector
}

// NewSink creates a sink reading from the named upstream, whose shape is
// carried alongside for convenience.
func NewSink(name, from string, fromDesc repr.RelationDesc, connector SinkConnector) Sink {
	return Sink{name: name, from: from, fromDesc: fromDesc, connector: connector}
}

func (s Sink) Name() string             { return s.name }
func (s Sink) Kind() Kind               { return KindSink }
func (s Sink) Connector() SinkConnector { return s.connector }
func (Sink) dataflow()                  {}

// From returns the name of the upstream dataflow.
func (s Sink) From() string { return s.from }

// FromDesc returns the shape of the upstream's rows. It is not the
// sink's own shape; a sink has none.
func (s Sink) FromDesc() repr.RelationDesc { return s.fromDesc }

// Uses returns the single upstream name.
func (s Sink) Uses() []string { return []string{s.from} }

// View is a relation derived from other dataflows by an expression.
type View struct {
	name   string
	rawSQL string
	expr   expr.RelationExpr
	desc   repr.RelationDesc
	asOf   *timely.Frontier
}

// NewView creates a view without an as-of.
func NewView(name, rawSQL string, e expr.RelationExpr, desc repr.RelationDesc) View {
	return View{name: name, rawSQL: rawSQL, expr: e, desc: desc}
}

func (v View) Name() string            { return v.name }
func (v View) Kind() Kind              { return KindView }
func (v View) Desc() repr.RelationDesc { return v.desc }
func (v View) Typ() repr.RelationType  { return v.desc.Typ() }
func (v View) Expr() expr.RelationExpr { return v.expr }
func (View) dataflow()                 {}

// RawSQL returns the declarative definition the view was planned from,
// kept for auditing.
func (v View) RawSQL() string { return v.rawSQL }

// AsOf returns a copy of the view's as-of, or nil if none is stated.
func (v View) AsOf() *timely.Frontier {
	if v.asOf == nil {
		return nil
	}
	f := *v.asOf
	return &f
}

// Uses returns every relation name the expression reads that is not
// bound inside it.
func (v View) Uses() []string {
	if v.expr == nil {
		return []string{}
	}
	return expr.UnboundUses(v.expr)
}

// TightenAsOf returns a copy of the view with its as-of set to f. An
// unset as-of accepts any frontier; otherwise f must dominate the current
// as-of, and a loosening is rejected with ErrCodeAsOfLoosened.
func (v View) TightenAsOf(f timely.Frontier) (View, error) {
	next, err := timely.Tighten(v.asOf, f)
	if err != nil {
		return v, &Error{Code: ErrCodeAsOfLoosened, Name: v.name, Err: err}
	}
	v.asOf = &next
	return v, nil
}

// WithAsOf returns a copy of the view with its as-of replaced, without
// checking direction. It is meant for constructing views, not for
// advancing registered ones.
func (v View) WithAsOf(f *timely.Frontier) View {
	if f == nil {
		v.asOf = nil
		return v
	}
	c := *f
	v.asOf = &c
	return v
}
