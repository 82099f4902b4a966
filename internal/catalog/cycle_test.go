package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saifalharthi/materialize/internal/dataflow"
)

func TestAnalyzeCycles_Empty(t *testing.T) {
	assert.Empty(t, AnalyzeCycles(nil))
}

func TestAnalyzeCycles_DAG(t *testing.T) {
	warnings := AnalyzeCycles([]dataflow.Dataflow{
		source("a"), view("b", "a"), view("c", "a", "b"), sink("d", "c"),
	})
	assert.Empty(t, warnings)
}

func TestAnalyzeCycles_TwoNodes(t *testing.T) {
	warnings := AnalyzeCycles([]dataflow.Dataflow{view("x", "y"), view("y", "x")})
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"x", "y", "x"}, warnings[0].Path)
	assert.Contains(t, warnings[0].Message, "x → y → x")
}

func TestAnalyzeCycles_SelfLoop(t *testing.T) {
	warnings := AnalyzeCycles([]dataflow.Dataflow{view("loop", "loop")})
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"loop", "loop"}, warnings[0].Path)
}

func TestAnalyzeCycles_MultipleOrdered(t *testing.T) {
	warnings := AnalyzeCycles([]dataflow.Dataflow{
		view("q", "r"), view("r", "q"),
		view("b", "c"), view("c", "b"),
		view("outside", "missing"),
	})
	require.Len(t, warnings, 2)
	assert.Equal(t, "b", warnings[0].Path[0])
	assert.Equal(t, "q", warnings[1].Path[0])
}
