package repr

import "fmt"

// ScalarType names the type of a column's datums.
type ScalarType string

const (
	ScalarBool   ScalarType = "bool"
	ScalarInt64  ScalarType = "int64"
	ScalarString ScalarType = "string"
	// ScalarNull is the type of a column that only ever holds null.
	ScalarNull ScalarType = "null"
)

// ValidScalarTypes defines allowed scalar types.
var ValidScalarTypes = map[ScalarType]bool{
	ScalarBool:   true,
	ScalarInt64:  true,
	ScalarString: true,
	ScalarNull:   true,
}

// Admits reports whether d is a legal datum for the scalar type.
// Null datums are checked separately against ColumnType.Nullable.
func (s ScalarType) Admits(d Datum) bool {
	switch d.(type) {
	case Null:
		return true
	case Bool:
		return s == ScalarBool
	case Int64:
		return s == ScalarInt64
	case String:
		return s == ScalarString
	default:
		return false
	}
}

// ColumnType is the type of a single column.
type ColumnType struct {
	ScalarType ScalarType `json:"scalar_type"`
	Nullable   bool       `json:"nullable"`
}

// NewColumnType creates a non-nullable column of the given scalar type.
func NewColumnType(s ScalarType) ColumnType {
	return ColumnType{ScalarType: s}
}

// AsNullable returns a copy of the column type that admits null.
func (c ColumnType) AsNullable() ColumnType {
	c.Nullable = true
	return c
}

// RelationType is the type of the rows of a relation.
type RelationType struct {
	ColumnTypes []ColumnType `json:"column_types"`
	// Keys lists sets of columns known to be unique. Optional.
	Keys [][]int `json:"keys,omitempty"`
}

// NewRelationType creates a relation type over the given columns.
func NewRelationType(cols ...ColumnType) RelationType {
	return RelationType{ColumnTypes: cols}
}

// Arity returns the number of columns.
func (t RelationType) Arity() int {
	return len(t.ColumnTypes)
}

// Check verifies a row conforms to the relation type.
func (t RelationType) Check(row Row) error {
	if len(row) != len(t.ColumnTypes) {
		return fmt.Errorf("row has arity %d, expected %d", len(row), len(t.ColumnTypes))
	}
	for i, d := range row {
		ct := t.ColumnTypes[i]
		if IsNull(d) && !ct.Nullable && ct.ScalarType != ScalarNull {
			return fmt.Errorf("column %d: null in non-nullable %s column", i, ct.ScalarType)
		}
		if !ct.ScalarType.Admits(d) {
			return fmt.Errorf("column %d: %s is not a %s", i, Format(d), ct.ScalarType)
		}
	}
	return nil
}

// RelationDesc pairs a relation type with column names.
// Names may be empty strings for anonymous columns.
type RelationDesc struct {
	Type  RelationType `json:"typ"`
	Names []string     `json:"names"`
}

// EmptyDesc returns a description with no columns.
func EmptyDesc() RelationDesc {
	return RelationDesc{Type: RelationType{ColumnTypes: []ColumnType{}}, Names: []string{}}
}

// NewRelationDesc creates a description from a type and matching names.
// Panics if the lengths differ - this is a construction-time programming error.
func NewRelationDesc(typ RelationType, names []string) RelationDesc {
	if len(names) != typ.Arity() {
		panic(fmt.Sprintf("repr: %d names for %d columns", len(names), typ.Arity()))
	}
	return RelationDesc{Type: typ, Names: names}
}

// AddColumn returns a copy of the description with a non-nullable column
// appended.
func (d RelationDesc) AddColumn(name string, s ScalarType) RelationDesc {
	return d.AddColumnType(name, NewColumnType(s))
}

// AddColumnType returns a copy of the description with the column appended.
func (d RelationDesc) AddColumnType(name string, ct ColumnType) RelationDesc {
	cols := make([]ColumnType, 0, len(d.Type.ColumnTypes)+1)
	cols = append(cols, d.Type.ColumnTypes...)
	names := make([]string, 0, len(d.Names)+1)
	names = append(names, d.Names...)
	return RelationDesc{
		Type:  RelationType{ColumnTypes: append(cols, ct), Keys: d.Type.Keys},
		Names: append(names, name),
	}
}

// Typ returns the relation type.
func (d RelationDesc) Typ() RelationType {
	return d.Type
}

// Arity returns the number of columns.
func (d RelationDesc) Arity() int {
	return d.Type.Arity()
}

// ColumnIndex returns the index of the first column with the given name.
func (d RelationDesc) ColumnIndex(name string) (int, bool) {
	for i, n := range d.Names {
		if n == name {
			return i, true
		}
	}
	return 0, false
}
