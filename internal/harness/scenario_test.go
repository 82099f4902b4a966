package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalCUE = `
source: orders: {
	local: {}
	desc: [{name: "id", type: "int64"}, {name: "amount", type: "int64"}]
}
`

func TestParseScenario_Valid(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: feed_and_peek
description: "one feed, one peek"
cue: |
  source: orders: {local: {}, desc: [{name: "id", type: "int64"}]}
steps:
  - feed: orders
    updates:
      - {row: [1], time: 0}
      - {row: [2], time: 1, diff: 3}
    watermark: 2
  - peek: orders
    when: "1"
    order_by: [{column: 0, desc: true}]
    limit: 1
    expect:
      rows: [[2]]
assertions:
  - {type: watermark, source: orders, value: 2}
`))
	require.NoError(t, err)

	assert.Equal(t, "feed_and_peek", s.Name)
	require.Len(t, s.Steps, 2)
	feed := s.Steps[0]
	assert.Equal(t, "feed", stepKind(feed))
	require.Len(t, feed.Updates, 2)
	assert.Equal(t, int64(3), feed.Updates[1].Diff)
	require.NotNil(t, feed.Watermark)
	assert.Equal(t, uint64(2), *feed.Watermark)

	peekStep := s.Steps[1]
	assert.Equal(t, "peek", stepKind(peekStep))
	require.Len(t, peekStep.OrderBy, 1)
	assert.True(t, peekStep.OrderBy[0].Desc)
	require.NotNil(t, peekStep.Limit)
	assert.Equal(t, 1, *peekStep.Limit)
	assert.Equal(t, [][]any{{2}}, peekStep.Expect.Rows)

	require.Len(t, s.Assertions, 1)
	assert.Equal(t, AssertWatermark, s.Assertions[0].Type)
}

func TestParseScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "description: d\ncue: x\nsteps: [{feed: s, watermark: 1}]",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: n\ncue: x\nsteps: [{feed: s, watermark: 1}]",
			want: "description is required",
		},
		{
			name: "no catalog",
			yaml: "name: n\ndescription: d\nsteps: [{feed: s, watermark: 1}]",
			want: "exactly one of catalog and cue",
		},
		{
			name: "both catalogs",
			yaml: "name: n\ndescription: d\ncatalog: dir\ncue: x\nsteps: [{feed: s, watermark: 1}]",
			want: "exactly one of catalog and cue",
		},
		{
			name: "no steps",
			yaml: "name: n\ndescription: d\ncue: x\nsteps: []",
			want: "steps list is required",
		},
		{
			name: "two kinds in one step",
			yaml: "name: n\ndescription: d\ncue: x\nsteps: [{feed: s, peek: v}]",
			want: "steps[0]: exactly one of",
		},
		{
			name: "empty feed",
			yaml: "name: n\ndescription: d\ncue: x\nsteps: [{feed: s}]",
			want: "feed needs updates or a watermark",
		},
		{
			name: "peek inside parallel",
			yaml: "name: n\ndescription: d\ncue: x\nsteps: [{parallel: [{peek: v}]}]",
			want: "only feed steps run in parallel",
		},
		{
			name: "tail without from",
			yaml: "name: n\ndescription: d\ncue: x\nsteps: [{tail: t}]",
			want: "tail needs from",
		},
		{
			name: "unknown assertion",
			yaml: "name: n\ndescription: d\ncue: x\nsteps: [{feed: s, watermark: 1}]\nassertions: [{type: vibes}]",
			want: `unknown assertion type "vibes"`,
		},
		{
			name: "rows without view",
			yaml: "name: n\ndescription: d\ncue: x\nsteps: [{feed: s, watermark: 1}]\nassertions: [{type: rows}]",
			want: "view is required for rows",
		},
		{
			name: "unknown field",
			yaml: "name: n\ndescription: d\ncue: x\nsteps: [{feed: s, watermark: 1}]\nassertion: []",
			want: "failed to parse YAML",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_ResolvesCatalog(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "orders_lifecycle.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "catalogs", "orders"), s.Catalog)
}

func TestLoadScenario_MissingCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	data := "name: n\ndescription: d\ncatalog: nowhere\nsteps: [{feed: s, watermark: 1}]\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog not found")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}
