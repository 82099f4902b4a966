package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/saifalharthi/materialize/internal/repr"
)

// Relations maps dataflow names to their row shapes, for resolving a
// sink's upstream shape and untyped get nodes in view expressions.
type Relations map[string]repr.RelationDesc

// parseDesc parses a column list:
//
//	desc: [
//		{name: "id", type: "int64"},
//		{name: "email", type: "string", nullable: true},
//	]
func parseDesc(v cue.Value) (repr.RelationDesc, error) {
	iter, err := v.List()
	if err != nil {
		return repr.RelationDesc{}, compileErrorf("desc", v.Pos(), "desc must be a list of columns")
	}

	desc := repr.EmptyDesc()
	seen := make(map[string]bool)
	for i := 0; iter.Next(); i++ {
		col := iter.Value()
		field := fmt.Sprintf("desc[%d]", i)

		name, _, err := lookupString(col, "name", true)
		if err != nil {
			return repr.RelationDesc{}, err
		}
		if seen[name] {
			return repr.RelationDesc{}, compileErrorf(field, col.Pos(), "duplicate column %q", name)
		}
		seen[name] = true

		typeName, _, err := lookupString(col, "type", true)
		if err != nil {
			return repr.RelationDesc{}, err
		}
		scalar := repr.ScalarType(typeName)
		if !repr.ValidScalarTypes[scalar] {
			return repr.RelationDesc{}, compileErrorf("type", col.Pos(), "unsupported column type %q", typeName)
		}

		nullable, err := lookupBool(col, "nullable")
		if err != nil {
			return repr.RelationDesc{}, err
		}
		ct := repr.NewColumnType(scalar)
		if nullable {
			ct = ct.AsNullable()
		}
		desc = desc.AddColumnType(name, ct)
	}
	return desc, nil
}

// lookupDesc parses the desc field of v if present.
func lookupDesc(v cue.Value) (repr.RelationDesc, bool, error) {
	dv := v.LookupPath(cue.ParsePath("desc"))
	if !dv.Exists() {
		return repr.RelationDesc{}, false, nil
	}
	desc, err := parseDesc(dv)
	if err != nil {
		return repr.RelationDesc{}, false, err
	}
	return desc, true, nil
}
