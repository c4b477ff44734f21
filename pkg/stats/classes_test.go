package stats

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mripatches/pkg/errors"
)

func TestFinalizeWeights(t *testing.T) {
	acc := NewAccumulator()
	labels := []int{0, 0, 0, 0, 1, 1, 2, 0, 1, 0}
	for _, l := range labels {
		require.NoError(t, acc.Record(l))
	}

	s, err := acc.Finalize()
	require.NoError(t, err)

	assert.Equal(t, Class{Count: 6, Weight: 1}, s[0])
	assert.Equal(t, 3, s[1].Count)
	assert.InDelta(t, 0.5, s[1].Weight, 1e-12)
	assert.InDelta(t, 1.0/6, s[2].Weight, 1e-12)
	assert.Equal(t, len(labels), s.Total())
	assert.Equal(t, []int{0, 1, 2}, s.Labels())

	var top float64
	for _, c := range s {
		assert.Greater(t, c.Weight, 0.0)
		assert.LessOrEqual(t, c.Weight, 1.0)
		if c.Weight > top {
			top = c.Weight
		}
	}
	assert.Equal(t, 1.0, top)
}

// The most frequent class gets weight 1 even when it is not the first one
// recorded.
func TestFinalizeMostFrequentLast(t *testing.T) {
	acc := NewAccumulator()
	for _, l := range []int{1, 0, 0, 0} {
		require.NoError(t, acc.Record(l))
	}
	s, err := acc.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 1.0, s[0].Weight)
	assert.InDelta(t, 1.0/3, s[1].Weight, 1e-12)
}

func TestFinalizeOnce(t *testing.T) {
	acc := NewAccumulator()
	require.NoError(t, acc.Record(1))
	_, err := acc.Finalize()
	require.NoError(t, err)

	_, err = acc.Finalize()
	assert.True(t, errors.Is(err, errors.ErrFinalized))
	assert.True(t, errors.Is(acc.Record(1), errors.ErrFinalized))
	assert.True(t, errors.Is(acc.Merge(NewAccumulator()), errors.ErrFinalized))
}

func TestMerge(t *testing.T) {
	split := NewAccumulator()
	for _, volume := range [][]int{{0, 0, 1}, {1, 1}, {}} {
		v := NewAccumulator()
		for _, l := range volume {
			require.NoError(t, v.Record(l))
		}
		require.NoError(t, split.Merge(v))
	}
	assert.Equal(t, 2, split.Count(0))
	assert.Equal(t, 3, split.Count(1))

	s, err := split.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 5, s.Total())
}

func TestEmptyFinalize(t *testing.T) {
	s, err := NewAccumulator().Finalize()
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestStatisticsJSON(t *testing.T) {
	s := Statistics{0: {Count: 8, Weight: 1}, 1: {Count: 2, Weight: 0.25}}
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"0": [8, 1], "1": [2, 0.25]}`, string(data))

	var back Statistics
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, s, back)

	assert.Error(t, json.Unmarshal([]byte(`{"0": "eight"}`), &back))
}
