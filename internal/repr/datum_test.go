package repr

import (
	"encoding/json"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatumSealed(t *testing.T) {
	var _ Datum = Null{}
	var _ Datum = Bool(true)
	var _ Datum = Int64(42)
	var _ Datum = String("test")
}

func TestCompare_SameKind(t *testing.T) {
	tests := []struct {
		name string
		a, b Datum
		want int
	}{
		{"null equal", Null{}, Null{}, 0},
		{"false < true", False, True, -1},
		{"true > false", True, False, 1},
		{"bool equal", True, True, 0},
		{"int less", Int64(-3), Int64(2), -1},
		{"int greater", Int64(10), Int64(2), 1},
		{"int equal", Int64(7), Int64(7), 0},
		{"string less", String("a"), String("b"), -1},
		{"string prefix", String("ab"), String("abc"), -1},
		{"string equal", String("x"), String("x"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
		})
	}
}

func TestCompare_AcrossKinds(t *testing.T) {
	ordered := []Datum{Null{}, False, True, Int64(-1), Int64(100), String(""), String("z")}
	for i := range ordered {
		for j := range ordered {
			got := Compare(ordered[i], ordered[j])
			switch {
			case i < j:
				assert.Equal(t, -1, got, "%v vs %v", ordered[i], ordered[j])
			case i > j:
				assert.Equal(t, 1, got, "%v vs %v", ordered[i], ordered[j])
			default:
				assert.Equal(t, 0, got)
			}
		}
	}
}

func TestCompareRows(t *testing.T) {
	a := NewRow(Int64(1), String("a"))
	b := NewRow(Int64(1), String("b"))
	assert.Equal(t, -1, CompareRows(a, b))
	assert.Equal(t, 1, CompareRows(b, a))
	assert.Equal(t, 0, CompareRows(a, a.Clone()))
	assert.Equal(t, -1, CompareRows(NewRow(Int64(1)), a), "prefix sorts first")
}

func TestRowClone_Independent(t *testing.T) {
	r := NewRow(Int64(1), Int64(2))
	c := r.Clone()
	c[0] = Int64(99)
	assert.Equal(t, Int64(1), r[0])
}

func TestRowString(t *testing.T) {
	r := NewRow(Int64(1), String("a"), Null{}, True)
	assert.Equal(t, `(1, "a", null, true)`, r.String())
}

func TestRowJSON_Roundtrip(t *testing.T) {
	r := NewRow(Int64(-9223372036854775808), String("héllo"), Null{}, False)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `[{"int64":-9223372036854775808},{"string":"héllo"},"null",{"bool":false}]`, string(data))

	var decoded Row
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, r, decoded)
}

func TestUnmarshalDatum_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"float", `{"int64":1.5}`},
		{"unknown tag", `{"float":1}`},
		{"two tags", `{"int64":1,"string":"a"}`},
		{"bare number", `1`},
		{"bare string", `"hello"`},
		{"empty", ``},
		{"wrong payload", `{"bool":"yes"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalDatum([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestRowSort_UsesTotalOrder(t *testing.T) {
	rows := []Row{
		NewRow(String("b")),
		NewRow(Int64(3)),
		NewRow(Null{}),
		NewRow(String("a")),
	}
	slices.SortFunc(rows, CompareRows)
	assert.Equal(t, []Row{
		NewRow(Null{}),
		NewRow(Int64(3)),
		NewRow(String("a")),
		NewRow(String("b")),
	}, rows)
}
