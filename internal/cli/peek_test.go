package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saifalharthi/materialize/internal/expr"
)

const inputsFile = "testdata/inputs.yaml"

func TestPeek_Text(t *testing.T) {
	db := loadedDB(t)

	out, err := run(t, "peek", "--db", db, "--inputs", inputsFile, "--order-by", "0", "big_orders")
	require.NoError(t, err)
	assert.Equal(t, "big_orders @ 1 (2 rows)\n(1, 50)\n(3, 70)\n", out)
}

func TestPeek_Finishing(t *testing.T) {
	db := loadedDB(t)

	out, err := run(t, "peek", "--db", db, "--inputs", inputsFile,
		"--order-by", "1:desc", "--limit", "1", "big_orders")
	require.NoError(t, err)
	assert.Equal(t, "big_orders @ 1 (1 rows)\n(3, 70)\n", out)
}

func TestPeek_JSON(t *testing.T) {
	db := loadedDB(t)

	out, err := run(t, "--format", "json", "peek", "--db", db, "--inputs", inputsFile, "--when", "1", "big_orders")
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			View      string `json:"view"`
			Timestamp uint64 `json:"timestamp"`
			Response  struct {
				Rows []json.RawMessage `json:"rows"`
			} `json:"response"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "big_orders", resp.Data.View)
	assert.Equal(t, uint64(1), resp.Data.Timestamp)
	assert.Len(t, resp.Data.Response.Rows, 2)
}

func TestPeek_NotReady(t *testing.T) {
	db := loadedDB(t)

	out, err := run(t, "peek", "--db", db, "--inputs", inputsFile, "--when", "5", "big_orders")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E203]: peek big_orders failed")
}

func TestPeek_RejectedInput(t *testing.T) {
	db := loadedDB(t)

	out, err := run(t, "peek", "--db", db, "--inputs", "testdata/late_inputs.yaml", "big_orders")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [E202]: 1 input(s) rejected")
	assert.Contains(t, out, "LATE_UPDATE")
}

func TestPeek_InvalidFlags(t *testing.T) {
	db := loadedDB(t)

	tests := []struct {
		name string
		args []string
	}{
		{"when", []string{"--when", "soon"}},
		{"order-by column", []string{"--order-by", "x"}},
		{"order-by direction", []string{"--order-by", "0:sideways"}},
		{"offset", []string{"--offset", "-1"}},
		{"inputs", []string{"--inputs", "testdata/missing.yaml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"peek", "--db", db}, tt.args...)
			out, err := run(t, append(args, "big_orders")...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error [E202]")
		})
	}
}

func TestLoadInputs(t *testing.T) {
	inputs, err := LoadInputs(inputsFile)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	assert.Equal(t, "orders", inputs[0].Source)
	assert.Len(t, inputs[0].Updates, 3)
	require.NotNil(t, inputs[0].Watermark)
	assert.Equal(t, uint64(2), *inputs[0].Watermark)
}

func TestLoadInputs_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"missing source", "- watermark: 1\n", "source is required"},
		{"nothing to feed", "- source: orders\n", "updates or a watermark is required"},
		{"unknown field", "- source: orders\n  watermark: 1\n  partition: 2\n", "partition"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "inputs.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := LoadInputs(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParseFinishing(t *testing.T) {
	fin, err := parseFinishing(&PeekOptions{OrderBy: []string{"1:desc", "0"}, Limit: 5, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, []expr.ColumnOrder{expr.Desc(1), expr.Asc(0)}, fin.OrderBy)
	require.NotNil(t, fin.Limit)
	assert.Equal(t, 5, *fin.Limit)
	assert.Equal(t, 2, fin.Offset)

	fin, err = parseFinishing(&PeekOptions{Limit: -1})
	require.NoError(t, err)
	assert.Nil(t, fin.Limit)
	assert.Empty(t, fin.OrderBy)
}
