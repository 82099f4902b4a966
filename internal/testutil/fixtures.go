package testutil

import (
	"fmt"
	"strings"

	"github.com/saifalharthi/materialize/internal/repr"
	"github.com/saifalharthi/materialize/internal/timely"
)

// RowOf converts plain Go values into a row: integers become Int64,
// strings String, booleans Bool and nil Null. This is the shape YAML
// and JSON decoders produce.
func RowOf(vals ...any) (repr.Row, error) {
	row := make(repr.Row, len(vals))
	for i, v := range vals {
		d, err := datumOf(v)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		row[i] = d
	}
	return row, nil
}

// Row is RowOf for literals known to be valid. It panics on an
// unsupported value.
func Row(vals ...any) repr.Row {
	row, err := RowOf(vals...)
	if err != nil {
		panic(err)
	}
	return row
}

func datumOf(v any) (repr.Datum, error) {
	switch v := v.(type) {
	case nil:
		return repr.Null{}, nil
	case bool:
		return repr.Bool(v), nil
	case int:
		return repr.Int64(v), nil
	case int64:
		return repr.Int64(v), nil
	case uint64:
		if v > 1<<63-1 {
			return nil, fmt.Errorf("%d overflows int64", v)
		}
		return repr.Int64(v), nil
	case string:
		return repr.String(v), nil
	case repr.Datum:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}

// Desc builds a relation description from "name:type" specs. A trailing
// "?" on the type makes the column nullable, e.g. "customer:string?".
func Desc(cols ...string) repr.RelationDesc {
	d := repr.EmptyDesc()
	for _, col := range cols {
		name, typ, ok := strings.Cut(col, ":")
		if !ok {
			panic(fmt.Sprintf("testutil: column %q is not name:type", col))
		}
		nullable := strings.HasSuffix(typ, "?")
		ct := repr.NewColumnType(repr.ScalarType(strings.TrimSuffix(typ, "?")))
		if nullable {
			ct = ct.AsNullable()
		}
		d = d.AddColumnType(name, ct)
	}
	return d
}

// Insert is an update adding one copy of row at ts.
func Insert(ts timely.Timestamp, vals ...any) timely.Update {
	return timely.NewUpdate(Row(vals...), ts, 1)
}

// Retract is an update removing one copy of row at ts.
func Retract(ts timely.Timestamp, vals ...any) timely.Update {
	return timely.NewUpdate(Row(vals...), ts, -1)
}
