package forcealign_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/blockalloc"
	"github.com/vkngwrapper/arsenal/blockalloc/forcealign"
	"github.com/vkngwrapper/arsenal/blockalloc/heap"
	"github.com/vkngwrapper/arsenal/blockalloc/primitive"
)

func TestForceAlignInvalidAlignment(t *testing.T) {
	m := primitive.NewMallocator()

	_, err := forcealign.New(m, 3)
	require.True(t, errors.Is(err, blockalloc.PowerOfTwoError))

	_, err = forcealign.New(m, blockalloc.MaxAlignment*2)
	require.True(t, errors.Is(err, blockalloc.ErrInvalidOptions))
}

func TestForceAlignPadded(t *testing.T) {
	m := primitive.NewMallocator()
	f, err := forcealign.New(m, 64)
	require.NoError(t, err)
	require.False(t, f.Native())
	require.Equal(t, uint(64), f.Alignment())

	var blks []blockalloc.Blk
	for size := 1; size < 300; size += 37 {
		blk := f.Allocate(size)
		require.True(t, blk.IsValid())
		require.Equal(t, size, blk.Size)
		require.True(t, blockalloc.IsAligned(blk.Ptr, 64))
		for i := range blk.Bytes() {
			blk.Bytes()[i] = byte(size)
		}
		blks = append(blks, blk)
	}

	for _, blk := range blks {
		for _, b := range blk.Bytes() {
			require.Equal(t, byte(blk.Size), b)
		}
		f.Deallocate(blk)
	}

	require.Equal(t, blockalloc.Statistics{}, blockalloc.CollectStatistics(m))
}

func TestForceAlignPaddedLargerAlignment(t *testing.T) {
	m := primitive.NewMallocator()
	f, err := forcealign.New(m, 16)
	require.NoError(t, err)

	blk := f.AllocateAligned(40, 1024)
	require.True(t, blockalloc.IsAligned(blk.Ptr, 1024))

	blk2 := f.AllocateAligned(40, 4)
	require.True(t, blockalloc.IsAligned(blk2.Ptr, 16))

	f.DeallocateAligned(blk)
	f.Deallocate(blk2)
	require.Equal(t, 0, blockalloc.CollectStatistics(m).AllocationCount)
}

func TestForceAlignPaddedResize(t *testing.T) {
	m := primitive.NewMallocator()
	f, err := forcealign.New(m, 64)
	require.NoError(t, err)

	blk := f.Allocate(100)
	for i := range blk.Bytes() {
		blk.Bytes()[i] = byte(i)
	}
	original := blk.Ptr

	require.True(t, f.Reallocate(&blk, 50))
	require.Equal(t, original, blk.Ptr)
	require.Equal(t, 50, blk.Size)

	// The bytes given up by the shrink are still part of the backing block
	require.True(t, f.Reallocate(&blk, 100))
	require.Equal(t, original, blk.Ptr)

	require.True(t, f.Reallocate(&blk, 1000))
	require.True(t, blockalloc.IsAligned(blk.Ptr, 64))
	require.Equal(t, 1000, blk.Size)
	for i := 0; i < 50; i++ {
		require.Equal(t, byte(i), blk.Bytes()[i])
	}

	require.True(t, f.Reallocate(&blk, 0))
	require.False(t, blk.IsValid())
	require.Equal(t, blockalloc.Statistics{}, blockalloc.CollectStatistics(m))
}

func TestForceAlignPaddedBounds(t *testing.T) {
	m := primitive.NewMallocator()
	f, err := forcealign.New(m, 64)
	require.NoError(t, err)

	require.Equal(t, m.MaxAllocSize()-63-8, f.MaxAllocSize())
	require.False(t, f.Allocate(f.MaxAllocSize()+1).IsValid())
	require.False(t, f.Allocate(0).IsValid())
}

func TestForceAlignNative(t *testing.T) {
	backing, err := primitive.NewAlignedMallocator(0)
	require.NoError(t, err)

	f, err := forcealign.New(backing, 128)
	require.NoError(t, err)
	require.True(t, f.Native())
	require.Equal(t, backing.MaxAllocSize(), f.MaxAllocSize())

	blk := f.Allocate(10)
	require.True(t, blockalloc.IsAligned(blk.Ptr, 128))
	require.Equal(t, 10, blk.Size)

	large := f.AllocateAligned(10, 4096)
	require.True(t, blockalloc.IsAligned(large.Ptr, 4096))

	require.True(t, f.Reallocate(&blk, 500))
	require.True(t, blockalloc.IsAligned(blk.Ptr, 128))

	f.Deallocate(blk)
	f.DeallocateAligned(large)
	require.Equal(t, 0, blockalloc.CollectStatistics(backing).AllocationCount)
}

func TestForceAlignAllocateAll(t *testing.T) {
	static, err := heap.NewStatic(primitive.NewMallocator(), heap.StaticOptions{
		BlockSize:  16,
		BlockCount: 8,
	})
	require.NoError(t, err)

	f, err := forcealign.New(static, 64)
	require.NoError(t, err)
	require.True(t, blockalloc.Supports(f, blockalloc.CanAllocateAll))
	require.False(t, blockalloc.Supports(f, blockalloc.CanDeallocate))

	blk := f.AllocateAll()
	require.True(t, blk.IsValid())
	require.True(t, blockalloc.IsAligned(blk.Ptr, 64))
	require.True(t, f.Owns(blk))
	require.Equal(t, 0, static.FreeBlockCount())

	f.DeallocateAll()
	require.Equal(t, 8, static.FreeBlockCount())
}

func TestForceAlignAllocateAllTooSmall(t *testing.T) {
	static, err := heap.NewStatic(primitive.NewMallocator(), heap.StaticOptions{
		BlockSize:  8,
		BlockCount: 1,
	})
	require.NoError(t, err)

	f, err := forcealign.New(static, 64)
	require.NoError(t, err)

	require.False(t, f.AllocateAll().IsValid())
}

func TestForceAlignNoDeallocate(t *testing.T) {
	static, err := heap.NewStatic(primitive.NewMallocator(), heap.StaticOptions{
		BlockSize:  8,
		BlockCount: 64,
	})
	require.NoError(t, err)

	f, err := forcealign.New(static, 64)
	require.NoError(t, err)

	blk := f.Allocate(32)
	require.True(t, blk.IsValid())
	require.False(t, f.Reallocate(&blk, 256))
	require.Equal(t, 32, blk.Size)
}

func TestForceAlignDetailedStatistics(t *testing.T) {
	backing, err := primitive.NewAlignedMallocator(0)
	require.NoError(t, err)

	h, err := heap.New(backing, heap.CreateOptions{
		BlockSize:  64,
		BlockCount: 16,
		Bitmap:     heap.BitmapExternal,
	})
	require.NoError(t, err)

	f, err := forcealign.New(h, 128)
	require.NoError(t, err)
	require.True(t, f.AllocateAligned(64, 256).IsValid())

	stats := blockalloc.CollectDetailedStatistics(f)
	require.Equal(t, blockalloc.CollectDetailedStatistics(h), stats)
	require.Equal(t, 1, stats.AllocationCount)
	require.Equal(t, 64, stats.AllocationSizeMax)
}
