package repr

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelationDesc_AddColumn(t *testing.T) {
	base := EmptyDesc()
	desc := base.AddColumn("name", ScalarString).AddColumn("quantity", ScalarInt64)

	assert.Equal(t, 0, base.Arity(), "AddColumn must not mutate the receiver")
	assert.Equal(t, 2, desc.Arity())
	assert.Equal(t, []string{"name", "quantity"}, desc.Names)
	assert.Equal(t, ScalarInt64, desc.Typ().ColumnTypes[1].ScalarType)

	idx, ok := desc.ColumnIndex("quantity")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	_, ok = desc.ColumnIndex("missing")
	assert.False(t, ok)
}

func TestNewRelationDesc_MismatchPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewRelationDesc(NewRelationType(NewColumnType(ScalarInt64)), []string{"a", "b"})
	})
}

func TestRelationType_Check(t *testing.T) {
	typ := NewRelationType(
		NewColumnType(ScalarInt64),
		NewColumnType(ScalarString).AsNullable(),
	)

	assert.NoError(t, typ.Check(NewRow(Int64(1), String("a"))))
	assert.NoError(t, typ.Check(NewRow(Int64(1), Null{})))
	assert.Error(t, typ.Check(NewRow(Int64(1))), "arity mismatch")
	assert.Error(t, typ.Check(NewRow(Null{}, String("a"))), "null in non-nullable column")
	assert.Error(t, typ.Check(NewRow(String("x"), String("a"))), "wrong scalar type")
}

func TestRelationDesc_JSONRoundtrip(t *testing.T) {
	desc := EmptyDesc().
		AddColumn("name", ScalarString).
		AddColumnType("quantity", NewColumnType(ScalarInt64).AsNullable())

	data, err := json.Marshal(desc)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"typ": {"column_types": [
			{"scalar_type": "string", "nullable": false},
			{"scalar_type": "int64", "nullable": true}
		]},
		"names": ["name", "quantity"]
	}`, string(data))

	var decoded RelationDesc
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, desc, decoded)
}
