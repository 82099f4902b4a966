package timely

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFrontier_Antichain(t *testing.T) {
	f := NewFrontier(7, 3, 5, 3)
	assert.Equal(t, []Timestamp{3}, f.Elements())
	assert.False(t, f.IsEmpty())

	assert.True(t, NewFrontier().IsEmpty())
}

func TestFrontier_LessEqualAndBeyond(t *testing.T) {
	f := NewFrontier(5)

	assert.False(t, f.LessEqual(4))
	assert.True(t, f.LessEqual(5))
	assert.True(t, f.LessEqual(6))

	assert.True(t, f.Beyond(4), "frontier {5} is beyond 4")
	assert.False(t, f.Beyond(5), "frontier {5} is not beyond 5")
	assert.False(t, f.Beyond(6))
}

func TestFrontier_EmptyIsClosed(t *testing.T) {
	closed := NewFrontier()
	assert.True(t, closed.Beyond(MaxTimestamp))
	assert.True(t, closed.LessEqual(0))
	assert.True(t, closed.Dominates(NewFrontier(100)))
	assert.False(t, NewFrontier(100).Dominates(closed))
}

func TestFrontier_Meet(t *testing.T) {
	assert.Equal(t, NewFrontier(3), NewFrontier(3).Meet(NewFrontier(8)))
	assert.Equal(t, NewFrontier(3), NewFrontier(8).Meet(NewFrontier(3)))
	assert.Equal(t, NewFrontier(8), NewFrontier().Meet(NewFrontier(8)), "closed is the identity")
	assert.Equal(t, NewFrontier(2), MeetAll(NewFrontier(9), NewFrontier(2), NewFrontier(4)))
	assert.True(t, MeetAll().IsEmpty())
}

func TestFrontier_Dominates(t *testing.T) {
	assert.True(t, NewFrontier(5).Dominates(NewFrontier(3)))
	assert.True(t, NewFrontier(5).Dominates(NewFrontier(5)))
	assert.False(t, NewFrontier(3).Dominates(NewFrontier(5)))
}

func TestCanFinalize(t *testing.T) {
	inputs := []Frontier{NewFrontier(10), NewFrontier(6)}

	assert.True(t, CanFinalize(inputs, 5))
	assert.False(t, CanFinalize(inputs, 6), "one input has not passed 6")
	assert.False(t, CanFinalize(inputs, 9))
	assert.True(t, CanFinalize(nil, 1000), "no inputs means nothing can change")
}

func TestTighten(t *testing.T) {
	t.Run("unset accepts anything", func(t *testing.T) {
		got, err := Tighten(nil, NewFrontier(4))
		require.NoError(t, err)
		assert.Equal(t, NewFrontier(4), got)
	})

	t.Run("forward accepted", func(t *testing.T) {
		cur := NewFrontier(4)
		got, err := Tighten(&cur, NewFrontier(9))
		require.NoError(t, err)
		assert.Equal(t, NewFrontier(9), got)
	})

	t.Run("equal accepted", func(t *testing.T) {
		cur := NewFrontier(4)
		_, err := Tighten(&cur, NewFrontier(4))
		assert.NoError(t, err)
	})

	t.Run("backward rejected", func(t *testing.T) {
		cur := NewFrontier(9)
		_, err := Tighten(&cur, NewFrontier(4))
		require.Error(t, err)
		assert.True(t, IsFrontierLoosened(err))

		var pe *ProtocolError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, Timestamp(9), pe.Current)
		assert.Equal(t, Timestamp(4), pe.Got)
	})
}

func TestFrontier_JSON(t *testing.T) {
	data, err := json.Marshal(NewFrontier(42))
	require.NoError(t, err)
	assert.Equal(t, `[42]`, string(data))

	data, err = json.Marshal(NewFrontier())
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(data))

	var f Frontier
	require.NoError(t, json.Unmarshal([]byte(`[9, 4]`), &f))
	assert.Equal(t, NewFrontier(4), f)

	assert.Error(t, json.Unmarshal([]byte(`[-1]`), &f))
}

func TestFrontier_String(t *testing.T) {
	assert.Equal(t, "{5}", NewFrontier(5).String())
	assert.Equal(t, "{}", NewFrontier().String())
}
