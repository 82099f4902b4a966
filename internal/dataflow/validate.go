package dataflow

import (
	"slices"

	"github.com/saifalharthi/materialize/internal/expr"
	"github.com/saifalharthi/materialize/internal/repr"
)

// Validate checks a dataflow in isolation: its name, its connector, and
// for a view that the expression produces rows of the declared arity.
// Dependencies on other dataflows are checked by the catalog.
func Validate(d Dataflow) error {
	if d == nil {
		return invalid("", "nil dataflow")
	}
	if d.Name() == "" {
		return invalid("", "empty name")
	}

	switch df := d.(type) {
	case Source:
		if err := validateDesc(df.name, df.desc); err != nil {
			return err
		}
		if err := validateSourceConnector(df.connector); err != nil {
			return &Error{Code: ErrCodeInvalid, Name: df.name, Err: err}
		}

	case Sink:
		if df.from == "" {
			return invalid(df.name, "sink has no upstream")
		}
		if df.from == df.name {
			return invalid(df.name, "sink reads from itself")
		}
		if df.fromDesc.Arity() == 0 {
			return invalid(df.name, "upstream %q has an empty shape", df.from)
		}
		if err := validateDesc(df.name, df.fromDesc); err != nil {
			return err
		}
		if err := validateSinkConnector(df.connector); err != nil {
			return &Error{Code: ErrCodeInvalid, Name: df.name, Err: err}
		}

	case View:
		if df.expr == nil {
			return invalid(df.name, "view has no expression")
		}
		if err := validateDesc(df.name, df.desc); err != nil {
			return err
		}
		arity, err := expr.Arity(df.expr)
		if err != nil {
			return &Error{Code: ErrCodeInvalid, Name: df.name, Err: err}
		}
		if arity != df.desc.Arity() {
			return invalid(df.name, "expression has arity %d, desc has %d", arity, df.desc.Arity())
		}
		if slices.Contains(df.Uses(), df.name) {
			return invalid(df.name, "view reads itself")
		}
	}
	return nil
}

func validateDesc(name string, desc repr.RelationDesc) error {
	if len(desc.Names) != desc.Arity() {
		return invalid(name, "desc has %d names for %d columns", len(desc.Names), desc.Arity())
	}
	for i, ct := range desc.Type.ColumnTypes {
		if !repr.ValidScalarTypes[ct.ScalarType] {
			return invalid(name, "column %d has unknown scalar type %q", i, ct.ScalarType)
		}
	}
	return nil
}
