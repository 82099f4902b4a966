package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

func compileJSON(t *testing.T, dir string) CompilationResult {
	t.Helper()
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestCompile_BuildOrder(t *testing.T) {
	result := compileJSON(t, catalogDir)

	require.Len(t, result.Dataflows, 2)
	assert.Equal(t, "orders", result.Dataflows[0].Name)
	assert.Equal(t, "source", string(result.Dataflows[0].Kind))
	assert.Equal(t, "big_orders", result.Dataflows[1].Name)
	assert.Equal(t, "view", string(result.Dataflows[1].Kind))

	for _, d := range result.Dataflows {
		assert.Regexp(t, fingerprintPattern, d.Fingerprint, d.Name)
		assert.True(t, json.Valid(d.Definition), d.Name)
	}
}

func TestCompile_Deterministic(t *testing.T) {
	first := compileJSON(t, catalogDir)
	second := compileJSON(t, catalogDir)
	assert.Equal(t, first, second)
	assert.NotEqual(t, first.Dataflows[0].Fingerprint, first.Dataflows[1].Fingerprint)
}

func TestCompile_TextOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{catalogDir})
	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "source orders "), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "view big_orders "), lines[1])
}

func TestCompile_OutputFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "catalog.json")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"-o", out, catalogDir})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ Wrote 2 dataflows to")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var written CompilationResult
	require.NoError(t, json.Unmarshal(data, &written))
	printed := compileJSON(t, catalogDir)
	require.Len(t, written.Dataflows, len(printed.Dataflows))
	for i, d := range written.Dataflows {
		assert.Equal(t, printed.Dataflows[i].Name, d.Name)
		assert.Equal(t, printed.Dataflows[i].Fingerprint, d.Fingerprint)
	}
}

func TestCompile_InvalidCatalog(t *testing.T) {
	dir := writeCatalog(t, lostViewCUE)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "E110")
}
