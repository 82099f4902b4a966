package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saifalharthi/materialize/internal/timely"
)

func TestRunWithGolden_OrdersLifecycle(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "orders_lifecycle.yaml"))
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestMarshalSnapshot(t *testing.T) {
	ts := timely.Timestamp(3)
	result := NewResult()
	result.Trace = append(result.Trace, TraceEvent{Step: 1, Kind: "peek", Name: "v", Timestamp: &ts, Rows: []string{"(1)"}})

	data, err := MarshalSnapshot("snap", result)
	require.NoError(t, err)
	want := `{
  "scenario_name": "snap",
  "pass": true,
  "trace": [
    {
      "step": 1,
      "kind": "peek",
      "name": "v",
      "timestamp": 3,
      "rows": [
        "(1)"
      ]
    }
  ]
}
`
	assert.Equal(t, want, string(data))
}
