package compiler

import (
	"cuelang.org/go/cue"
)

// labelOf returns the last path selector of v, which names the dataflow.
func labelOf(v cue.Value) string {
	labels := v.Path().Selectors()
	if len(labels) == 0 {
		return ""
	}
	return labels[len(labels)-1].String()
}

// lookupString returns the string at field. A missing optional field
// returns ("", false, nil); a missing required field is a CompileError.
func lookupString(v cue.Value, field string, required bool) (string, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		if required {
			return "", false, compileErrorf(field, v.Pos(), "%s is required", field)
		}
		return "", false, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", false, formatCUEError(err)
	}
	return s, true, nil
}

// lookupInt returns the integer at field, which must exist.
func lookupInt(v cue.Value, field string) (int64, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, compileErrorf(field, v.Pos(), "%s is required", field)
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return n, nil
}

// lookupBool returns the boolean at field, or false if it is absent.
func lookupBool(v cue.Value, field string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}
