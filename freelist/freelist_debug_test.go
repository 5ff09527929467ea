//go:build debug_blockalloc

package freelist_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/blockalloc/freelist"
	"github.com/vkngwrapper/arsenal/blockalloc/primitive"
)

func TestFreelistDoubleFreePanics(t *testing.T) {
	f := newFreelist(t, primitive.NewMallocator(), freelist.CreateOptions{
		MaxAllocSize: 32,
		BatchSize:    4,
		ThreadSafe:   true,
	})

	blk := f.Allocate(20)
	f.Deallocate(blk)
	require.Panics(t, func() { f.Deallocate(blk) })
	require.Panics(t, func() { f.DeallocateAligned(blk) })
	require.NoError(t, f.Validate())

	// The block went back on the list once, so two allocations must not share it
	first := f.Allocate(20)
	second := f.Allocate(20)
	require.NotEqual(t, first.Ptr, second.Ptr)
}

func TestFreelistForeignBlockPanics(t *testing.T) {
	options := freelist.CreateOptions{MaxAllocSize: 32, BatchSize: 4}
	f := newFreelist(t, primitive.NewMallocator(), options)
	other := newFreelist(t, primitive.NewMallocator(), options)

	f.Allocate(20)
	foreign := other.Allocate(20)

	require.Panics(t, func() { f.Deallocate(foreign) })
	require.Panics(t, func() { f.Reallocate(&foreign, 24) })
	require.Equal(t, 2, f.FreeCount())
	require.NoError(t, f.Validate())
}
