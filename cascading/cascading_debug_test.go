//go:build debug_blockalloc

package cascading_test

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCascadingForeignBlockPanics(t *testing.T) {
	c := heapCascade(t, alignedBacking(t), 0)
	other := heapCascade(t, alignedBacking(t), 0)

	c.Allocate(64)
	foreign := other.Allocate(64)

	require.Panics(t, func() { c.Deallocate(foreign) })
	require.Panics(t, func() { c.DeallocateAligned(foreign) })
	require.Panics(t, func() { c.Reallocate(&foreign, 128) })
}

func TestCascadingDoubleFreePanics(t *testing.T) {
	c := heapCascade(t, alignedBacking(t), 0)

	blk := c.Allocate(100)
	c.Deallocate(blk)
	require.Panics(t, func() { c.Deallocate(blk) })
	require.NoError(t, c.Validate())
}
