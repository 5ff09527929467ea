package heap_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/blockalloc"
	"github.com/vkngwrapper/arsenal/blockalloc/heap"
	"github.com/vkngwrapper/arsenal/blockalloc/primitive"
)

func newStatic(t *testing.T, blockSize, blockCount int) *heap.Static {
	backing, err := primitive.NewAlignedMallocator(0)
	require.NoError(t, err)

	s, err := heap.NewStatic(backing, heap.StaticOptions{
		BlockSize:  blockSize,
		BlockCount: blockCount,
	})
	require.NoError(t, err)
	return s
}

func TestStaticBumpAllocation(t *testing.T) {
	s := newStatic(t, 16, 8)

	first := s.Allocate(20)
	second := s.Allocate(1)
	require.True(t, first.IsValid())
	require.True(t, second.IsValid())
	require.Equal(t, first.Addr()+32, second.Addr())
	require.Equal(t, 5, s.FreeBlockCount())

	require.False(t, s.Allocate(6*16).IsValid())
	require.True(t, s.Owns(first))
	require.True(t, s.Owns(second))
	require.NoError(t, s.Validate())

	require.False(t, blockalloc.Supports(s, blockalloc.CanDeallocate))
}

func TestStaticAllocateAll(t *testing.T) {
	s := newStatic(t, 16, 8)

	s.Allocate(40)
	rest := s.AllocateAll()
	require.True(t, rest.IsValid())
	require.Equal(t, 5*16, rest.Size)
	require.Equal(t, 0, s.FreeBlockCount())
	require.False(t, s.AllocateAll().IsValid())

	s.DeallocateAll()
	require.Equal(t, 8, s.FreeBlockCount())

	all := s.AllocateAll()
	require.Equal(t, 128, all.Size)
	require.NoError(t, s.Destroy())
}

func TestStaticReallocateLastAllocation(t *testing.T) {
	s := newStatic(t, 16, 8)

	first := s.Allocate(16)
	last := s.Allocate(16)

	// Only the most recent allocation can grow past its blocks
	require.False(t, s.Reallocate(&first, 32))
	require.True(t, s.Reallocate(&last, 64))
	require.Equal(t, 3, s.FreeBlockCount())

	// Shrinking the most recent allocation returns its tail
	require.True(t, s.Reallocate(&last, 16))
	require.Equal(t, 6, s.FreeBlockCount())

	// Any block may shrink within its own blocks
	require.True(t, s.Reallocate(&first, 8))
	require.Equal(t, 8, first.Size)
	require.NoError(t, s.Validate())
}

func TestStaticAllocateAligned(t *testing.T) {
	s := newStatic(t, 16, 64)

	s.Allocate(1)
	blk := s.AllocateAligned(16, 128)
	require.True(t, blk.IsValid())
	require.True(t, blockalloc.IsAligned(blk.Ptr, 128))

	next := s.Allocate(1)
	require.Equal(t, blk.End(), next.Addr())
}
