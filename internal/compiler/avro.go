package compiler

import (
	"encoding/json"
	"fmt"

	"github.com/linkedin/goavro/v2"

	"github.com/saifalharthi/materialize/internal/repr"
)

// avroField is a record field in Avro parsing canonical form.
type avroField struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

type avroRecord struct {
	Type   string      `json:"type"`
	Fields []avroField `json:"fields"`
}

// avroDesc validates raw as an Avro schema and derives the row shape of
// a record schema: one column per field, in declaration order.
func avroDesc(raw string) (repr.RelationDesc, error) {
	codec, err := goavro.NewCodec(raw)
	if err != nil {
		return repr.RelationDesc{}, fmt.Errorf("invalid avro schema: %w", err)
	}

	var rec avroRecord
	if err := json.Unmarshal([]byte(codec.CanonicalSchema()), &rec); err != nil || rec.Type != "record" {
		return repr.RelationDesc{}, fmt.Errorf("avro schema must be a record")
	}

	desc := repr.EmptyDesc()
	for _, f := range rec.Fields {
		ct, err := avroColumnType(f.Type)
		if err != nil {
			return repr.RelationDesc{}, fmt.Errorf("field %q: %w", f.Name, err)
		}
		desc = desc.AddColumnType(f.Name, ct)
	}
	return desc, nil
}

// avroColumnType maps an Avro field type to a column type. A union of
// null and one other type is a nullable column of that type.
func avroColumnType(raw json.RawMessage) (repr.ColumnType, error) {
	var union []json.RawMessage
	if err := json.Unmarshal(raw, &union); err == nil {
		var inner json.RawMessage
		nullable := false
		for _, branch := range union {
			if string(branch) == `"null"` {
				nullable = true
				continue
			}
			if inner != nil {
				return repr.ColumnType{}, fmt.Errorf("unions of more than one non-null type are not supported")
			}
			inner = branch
		}
		if inner == nil {
			return repr.NewColumnType(repr.ScalarNull).AsNullable(), nil
		}
		ct, err := avroColumnType(inner)
		if err != nil {
			return repr.ColumnType{}, err
		}
		if nullable {
			ct = ct.AsNullable()
		}
		return ct, nil
	}

	var primitive string
	if err := json.Unmarshal(raw, &primitive); err != nil {
		return repr.ColumnType{}, fmt.Errorf("unsupported avro type %s", raw)
	}
	switch primitive {
	case "boolean":
		return repr.NewColumnType(repr.ScalarBool), nil
	case "int", "long":
		return repr.NewColumnType(repr.ScalarInt64), nil
	case "string":
		return repr.NewColumnType(repr.ScalarString), nil
	case "null":
		return repr.NewColumnType(repr.ScalarNull).AsNullable(), nil
	default:
		return repr.ColumnType{}, fmt.Errorf("unsupported avro type %q", primitive)
	}
}

// sameShape reports whether two descs have equal names and column types.
func sameShape(a, b repr.RelationDesc) bool {
	if a.Arity() != b.Arity() {
		return false
	}
	for i := range a.Names {
		if a.Names[i] != b.Names[i] || a.Type.ColumnTypes[i] != b.Type.ColumnTypes[i] {
			return false
		}
	}
	return true
}
