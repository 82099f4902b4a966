package repr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_Basic(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"string", `"hello"`, `"hello"`},
		{"int", `42`, `42`},
		{"negative", `-100`, `-100`},
		{"max uint64", `18446744073709551615`, `18446744073709551615`},
		{"bool", `true`, `true`},
		{"null", `null`, `null`},
		{"empty array", `[ ]`, `[]`},
		{"empty object", `{ }`, `{}`},
		{"whitespace stripped", `{ "a" : [ 1 , 2 ] }`, `{"a":[1,2]}`},
		{"sorted keys", `{"zebra":1,"alpha":2,"beta":3}`, `{"alpha":2,"beta":3,"zebra":1}`},
		{"nested sorted", `{"z":{"b":1,"a":2},"a":3}`, `{"a":3,"z":{"a":2,"b":1}}`},
		{"no html escape", `"<a&b>"`, `"<a&b>"`},
		{"control escaped", `"a\u0001b"`, `"a\u0001b"`},
		{"newline short form", `"a\nb"`, `"a\nb"`},
		{"line separator literal", `"a\u2028b"`, "\"a\u2028b\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}
}

func TestCanonicalize_RejectsFloats(t *testing.T) {
	for _, input := range []string{`1.5`, `1e3`, `{"a":[2.0]}`} {
		_, err := Canonicalize([]byte(input))
		assert.Error(t, err, input)
	}
}

func TestCanonicalize_NFC(t *testing.T) {
	// "é" as e + combining acute (NFD) must canonicalize to the precomposed form.
	got, err := Canonicalize([]byte("\"e\u0301\""))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestCompareKeysRFC8785(t *testing.T) {
	assert.Equal(t, -1, compareKeysRFC8785("A", "a"))
	assert.Equal(t, -1, compareKeysRFC8785("a", "aa"))
	assert.Equal(t, 0, compareKeysRFC8785("x", "x"))
	// U+FF61 sorts before U+1F600 in UTF-8 but after it in UTF-16 (surrogates are 0xD8xx).
	assert.Equal(t, 1, compareKeysRFC8785("\uFF61", "\U0001F600"))
}
