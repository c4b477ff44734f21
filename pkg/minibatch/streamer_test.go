package minibatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mripatches/pkg/errors"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestStreamerBatchCounts(t *testing.T) {
	tests := []struct {
		n, size   int
		batches   int
		lastBatch int
	}{
		{10, 3, 4, 1},
		{9, 3, 3, 3},
		{1, 5, 1, 1},
		{5, 1, 5, 1},
		{0, 4, 0, 0},
		{500, 500, 1, 500},
	}

	for _, tt := range tests {
		s, err := New[int](FromSlice(seq(tt.n)), tt.size)
		require.NoError(t, err)

		var got []int
		var sizes []int
		for s.Next() {
			b := s.Batch()
			require.NotEmpty(t, b, "empty batch yielded for n=%d size=%d", tt.n, tt.size)
			sizes = append(sizes, len(b))
			got = append(got, b...)
		}
		require.NoError(t, s.Err())

		assert.Len(t, sizes, tt.batches, "n=%d size=%d", tt.n, tt.size)
		assert.Equal(t, tt.batches, s.Batches())
		assert.Equal(t, tt.n, s.Records())
		if tt.batches > 0 {
			assert.Equal(t, tt.lastBatch, sizes[len(sizes)-1])
		}
		if tt.n > 0 {
			assert.Equal(t, seq(tt.n), got, "concatenated batches must reproduce the source")
		}
		assert.False(t, s.Next(), "exhausted streamer must stay exhausted")
		assert.Nil(t, s.Batch())
	}
}

func TestStreamerRejectsBadSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := New[int](FromSlice(seq(3)), size)
		var rangeErr *errors.RangeError
		assert.True(t, errors.As(err, &rangeErr), "size %d: got %v", size, err)
	}
}

type failingSource struct {
	n, failAt int
}

func (f *failingSource) Next() bool {
	if f.n == f.failAt {
		return false
	}
	f.n++
	return true
}

func (f *failingSource) Record() int { return f.n }

func (f *failingSource) Err() error {
	if f.n == f.failAt {
		return errors.New("volume unreadable")
	}
	return nil
}

func TestStreamerPropagatesSourceError(t *testing.T) {
	s, err := New[int](&failingSource{failAt: 5}, 2)
	require.NoError(t, err)

	var batches int
	for s.Next() {
		batches++
	}
	assert.Equal(t, 2, batches, "complete batches before the failure are delivered")
	assert.ErrorContains(t, s.Err(), "volume unreadable")

	s, err = New[int](&failingSource{failAt: 1}, 4)
	require.NoError(t, err)
	assert.EqualError(t, s.Each(func([]int) error { return nil }), "volume unreadable")
}

func TestEachStopsOnCallbackError(t *testing.T) {
	s, err := New[int](FromSlice(seq(10)), 2)
	require.NoError(t, err)

	calls := 0
	err = s.Each(func(b []int) error {
		calls++
		if calls == 2 {
			return errors.New("stop")
		}
		return nil
	})
	assert.EqualError(t, err, "stop")
	assert.Equal(t, 2, calls)
}

type closingSource struct {
	*SliceSource[int]
	closed *int
}

func (c closingSource) Close() error {
	*c.closed++
	return nil
}

func TestChain(t *testing.T) {
	parts := [][]int{{0, 1, 2}, {}, {3}, {4, 5}}
	opened := 0
	closed := 0
	chain := NewChain[int](len(parts), func(i int) (Source[int], error) {
		opened++
		return closingSource{FromSlice(parts[i]), &closed}, nil
	})

	s, err := New[int](chain, 4)
	require.NoError(t, err)

	var sizes []int
	var got []int
	require.NoError(t, s.Each(func(b []int) error {
		sizes = append(sizes, len(b))
		got = append(got, b...)
		return nil
	}))

	assert.Equal(t, []int{4, 2}, sizes, "batches span source boundaries")
	assert.Equal(t, seq(6), got)
	assert.Equal(t, 4, opened)
	assert.Equal(t, 4, closed)
}

func TestChainOpenError(t *testing.T) {
	chain := NewChain[int](3, func(i int) (Source[int], error) {
		if i == 1 {
			return nil, errors.New("cannot open volume 1")
		}
		return FromSlice([]int{i}), nil
	})

	var got []int
	for chain.Next() {
		got = append(got, chain.Record())
	}
	assert.Equal(t, []int{0}, got)
	assert.EqualError(t, chain.Err(), "cannot open volume 1")
	assert.NoError(t, chain.Close())
}
