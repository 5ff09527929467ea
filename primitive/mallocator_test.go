package primitive_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/blockalloc"
	"github.com/vkngwrapper/arsenal/blockalloc/primitive"
)

func TestMallocatorAllocate(t *testing.T) {
	m := primitive.NewMallocator()

	blk := m.Allocate(13)
	require.True(t, blk.IsValid())
	require.Equal(t, 13, blk.Size)
	require.True(t, blockalloc.IsAligned(blk.Ptr, m.Alignment()))

	copy(blk.Bytes(), "hello, world!")
	require.Equal(t, "hello, world!", string(blk.Bytes()))

	m.Deallocate(blk)
	require.Equal(t, blockalloc.Statistics{}, blockalloc.CollectStatistics(m))
}

func TestMallocatorRejectsOutOfBounds(t *testing.T) {
	m := primitive.NewMallocator()

	require.False(t, m.Allocate(0).IsValid())
	require.False(t, m.Allocate(-4).IsValid())
	require.False(t, m.Allocate(m.MaxAllocSize()+1).IsValid())
}

func TestMallocatorReallocate(t *testing.T) {
	m := primitive.NewMallocator()

	blk := m.Allocate(5)
	copy(blk.Bytes(), "abcde")
	original := blk.Ptr

	// Same word count resizes in place
	require.True(t, m.Reallocate(&blk, 8))
	require.Equal(t, original, blk.Ptr)
	require.Equal(t, 8, blk.Size)

	require.True(t, m.Reallocate(&blk, 100))
	require.Equal(t, 100, blk.Size)
	require.Equal(t, "abcde", string(blk.Bytes()[:5]))

	stats := blockalloc.CollectStatistics(m)
	require.Equal(t, 1, stats.AllocationCount)
	require.Equal(t, 100, stats.AllocationBytes)

	require.True(t, m.Reallocate(&blk, 0))
	require.False(t, blk.IsValid())
	require.Equal(t, blockalloc.Statistics{}, blockalloc.CollectStatistics(m))
}
