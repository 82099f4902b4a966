package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saifalharthi/materialize/internal/repr"
	"github.com/saifalharthi/materialize/internal/timely"
)

func TestRowOf(t *testing.T) {
	row, err := RowOf(1, int64(2), uint64(3), "a", true, nil, repr.String("b"))
	require.NoError(t, err)
	assert.Equal(t, repr.Row{
		repr.Int64(1), repr.Int64(2), repr.Int64(3), repr.String("a"), repr.True, repr.Null{}, repr.String("b"),
	}, row)
}

func TestRowOf_Errors(t *testing.T) {
	_, err := RowOf(1.5)
	assert.ErrorContains(t, err, "column 0")

	_, err = RowOf(uint64(1 << 63))
	assert.ErrorContains(t, err, "overflows")

	assert.Panics(t, func() { Row([]int{1}) })
}

func TestDesc(t *testing.T) {
	d := Desc("id:int64", "customer:string?")

	assert.Equal(t, []string{"id", "customer"}, d.Names)
	assert.Equal(t, repr.ScalarInt64, d.Type.ColumnTypes[0].ScalarType)
	assert.False(t, d.Type.ColumnTypes[0].Nullable)
	assert.Equal(t, repr.ScalarString, d.Type.ColumnTypes[1].ScalarType)
	assert.True(t, d.Type.ColumnTypes[1].Nullable)

	assert.Panics(t, func() { Desc("id") })
}

func TestInsertRetract(t *testing.T) {
	assert.Equal(t, timely.NewUpdate(Row(1, "a"), 3, 1), Insert(3, 1, "a"))
	assert.Equal(t, timely.NewUpdate(Row(1, "a"), 3, -1), Retract(3, 1, "a"))
}
