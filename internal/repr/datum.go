package repr

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"strings"
)

// Datum is a sealed interface representing a single column value.
// Only Null, Bool, Int64, and String implement this.
type Datum interface {
	datum() // Sealed - only these types implement it

	// rank orders datums of different kinds. Kinds sort as
	// Null < Bool < Int64 < String.
	rank() int
}

// Null is the SQL null datum.
type Null struct{}

func (Null) datum()    {}
func (Null) rank() int { return 0 }

// Bool is a boolean datum.
type Bool bool

func (Bool) datum()    {}
func (Bool) rank() int { return 1 }

// Int64 is a signed integer datum.
type Int64 int64

func (Int64) datum()    {}
func (Int64) rank() int { return 2 }

// String is a text datum.
type String string

func (String) datum()    {}
func (String) rank() int { return 3 }

// True and False are the two Bool datums.
const (
	True  = Bool(true)
	False = Bool(false)
)

// Compare defines the total order over datums.
// Datums of different kinds order by kind; datums of the same kind order
// by value (false < true, numeric order, byte-wise string order).
func Compare(a, b Datum) int {
	if c := cmp.Compare(a.rank(), b.rank()); c != 0 {
		return c
	}
	switch av := a.(type) {
	case Null:
		return 0
	case Bool:
		bv := b.(Bool)
		switch {
		case av == bv:
			return 0
		case !bool(av):
			return -1
		default:
			return 1
		}
	case Int64:
		return cmp.Compare(av, b.(Int64))
	case String:
		return strings.Compare(string(av), string(b.(String)))
	default:
		panic(fmt.Sprintf("repr: unknown datum type %T", a))
	}
}

// Equal reports whether two datums are identical under Compare.
func Equal(a, b Datum) bool {
	return Compare(a, b) == 0
}

// IsNull reports whether d is the null datum.
func IsNull(d Datum) bool {
	_, ok := d.(Null)
	return ok
}

// Format renders a datum for diagnostics.
func Format(d Datum) string {
	switch v := d.(type) {
	case Null:
		return "null"
	case Bool:
		if v {
			return "true"
		}
		return "false"
	case Int64:
		return fmt.Sprintf("%d", int64(v))
	case String:
		return fmt.Sprintf("%q", string(v))
	default:
		return fmt.Sprintf("<%T>", d)
	}
}

// Row is an ordered list of datums.
type Row []Datum

// NewRow creates a row from datums.
func NewRow(datums ...Datum) Row {
	return Row(datums)
}

// Arity returns the number of columns in the row.
func (r Row) Arity() int {
	return len(r)
}

// Clone returns a copy of the row that shares no backing array.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// CompareRows orders rows lexicographically by datum, shorter rows first
// when one is a prefix of the other.
func CompareRows(a, b Row) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

// String formats the row for diagnostics, e.g. (1, "a").
func (r Row) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, d := range r {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Format(d))
	}
	b.WriteByte(')')
	return b.String()
}

// MarshalJSON encodes a row as an array of tagged datums:
//
//	[{"int64":1},{"string":"a"},"null"]
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, d := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := MarshalDatum(d)
		if err != nil {
			return nil, fmt.Errorf("row[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler for Row.
func (r *Row) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = make(Row, len(raw))
	for i, v := range raw {
		d, err := UnmarshalDatum(v)
		if err != nil {
			return fmt.Errorf("row[%d]: %w", i, err)
		}
		(*r)[i] = d
	}
	return nil
}

// MarshalDatum encodes a datum in its tagged form. Null encodes as the
// bare string "null" so that it cannot be confused with an absent value.
func MarshalDatum(d Datum) ([]byte, error) {
	switch v := d.(type) {
	case Null:
		return []byte(`"null"`), nil
	case Bool:
		return json.Marshal(map[string]bool{"bool": bool(v)})
	case Int64:
		return json.Marshal(map[string]int64{"int64": int64(v)})
	case String:
		return json.Marshal(map[string]string{"string": string(v)})
	default:
		return nil, fmt.Errorf("unknown datum type: %T", d)
	}
}

// UnmarshalDatum decodes a tagged datum produced by MarshalDatum.
func UnmarshalDatum(data []byte) (Datum, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty datum")
	}
	if data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return nil, err
		}
		if tag != "null" {
			return nil, fmt.Errorf("unknown datum tag %q", tag)
		}
		return Null{}, nil
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return nil, fmt.Errorf("datum must be a tagged object: %w", err)
	}
	if len(tagged) != 1 {
		return nil, fmt.Errorf("datum must have exactly one tag, got %d", len(tagged))
	}
	for tag, raw := range tagged {
		switch tag {
		case "bool":
			var b bool
			if err := json.Unmarshal(raw, &b); err != nil {
				return nil, fmt.Errorf("bool datum: %w", err)
			}
			return Bool(b), nil
		case "int64":
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			var n json.Number
			if err := dec.Decode(&n); err != nil {
				return nil, fmt.Errorf("int64 datum: %w", err)
			}
			i, err := n.Int64()
			if err != nil {
				return nil, fmt.Errorf("int64 datum out of range or fractional: %s", n)
			}
			return Int64(i), nil
		case "string":
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, fmt.Errorf("string datum: %w", err)
			}
			return String(s), nil
		default:
			return nil, fmt.Errorf("unknown datum tag %q", tag)
		}
	}
	panic("unreachable")
}
