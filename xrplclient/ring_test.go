package xrplclient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingDropsOldestAtCapacity(t *testing.T) {
	require := require.New(t)

	r := newRing[int](3)
	require.Equal(0, r.len())
	_, ok := r.last()
	require.False(ok)

	r.push(1)
	r.push(2)
	r.push(3)
	require.Equal([]int{1, 2, 3}, r.items())

	r.push(4)
	require.Equal(3, r.len())
	require.Equal([]int{2, 3, 4}, r.items())

	last, ok := r.last()
	require.True(ok)
	require.Equal(4, last)
}

func TestRingZeroCapacity(t *testing.T) {
	r := newRing[int](0)
	r.push(1)
	require.Equal(t, 0, r.len())
}
