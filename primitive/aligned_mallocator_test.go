package primitive_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/blockalloc"
	"github.com/vkngwrapper/arsenal/blockalloc/primitive"
)

func TestNewAlignedMallocator(t *testing.T) {
	m, err := primitive.NewAlignedMallocator(0)
	require.NoError(t, err)
	require.Equal(t, primitive.DefaultAlignment, m.Alignment())

	_, err = primitive.NewAlignedMallocator(48)
	require.True(t, errors.Is(err, blockalloc.ErrInvalidOptions))
}

func TestAlignedMallocatorAlignment(t *testing.T) {
	m, err := primitive.NewAlignedMallocator(128)
	require.NoError(t, err)

	for _, size := range []int{1, 7, 128, 1000} {
		blk := m.Allocate(size)
		require.True(t, blk.IsValid())
		require.Equal(t, size, blk.Size)
		require.True(t, blockalloc.IsAligned(blk.Ptr, 128))
		m.Deallocate(blk)
	}

	for _, alignment := range []uint{1, 8, 64, 4096, blockalloc.MaxAlignment} {
		blk := m.AllocateAligned(40, alignment)
		require.True(t, blk.IsValid())
		require.True(t, blockalloc.IsAligned(blk.Ptr, alignment))
		m.DeallocateAligned(blk)
	}

	require.False(t, m.AllocateAligned(40, 3).IsValid())
	require.Equal(t, blockalloc.Statistics{}, blockalloc.CollectStatistics(m))
}

func TestAlignedMallocatorReallocateAligned(t *testing.T) {
	m, err := primitive.NewAlignedMallocator(0)
	require.NoError(t, err)

	blk := m.AllocateAligned(64, 256)
	copy(blk.Bytes(), "aligned contents")
	original := blk.Ptr

	require.True(t, m.ReallocateAligned(&blk, 32, 256))
	require.Equal(t, original, blk.Ptr)

	require.True(t, m.ReallocateAligned(&blk, 512, 1024))
	require.True(t, blockalloc.IsAligned(blk.Ptr, 1024))
	require.Equal(t, 512, blk.Size)
	require.Equal(t, "aligned contents", string(blk.Bytes()[:16]))
}
