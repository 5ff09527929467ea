package heap_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/blockalloc"
	"github.com/vkngwrapper/arsenal/blockalloc/heap"
	"github.com/vkngwrapper/arsenal/blockalloc/primitive"
	"golang.org/x/exp/slog"
)

func newHeap(t *testing.T, blockSize, blockCount int, placement heap.BitmapPlacement) *heap.Heap {
	backing, err := primitive.NewAlignedMallocator(0)
	require.NoError(t, err)

	h, err := heap.New(backing, heap.CreateOptions{
		BlockSize:  blockSize,
		BlockCount: blockCount,
		Bitmap:     placement,
	})
	require.NoError(t, err)
	return h
}

func TestHeapScenario(t *testing.T) {
	h := newHeap(t, 64, 8, heap.BitmapExternal)
	require.Equal(t, 512, h.MaxAllocSize())

	first := h.Allocate(100)
	require.True(t, first.IsValid())
	require.Equal(t, 100, first.Size)
	require.Equal(t, 2, h.UsedBlockCount())
	require.Equal(t, 6, h.FreeBlockCount())

	require.False(t, h.Allocate(450).IsValid())

	h.Deallocate(first)
	require.Equal(t, 0, h.UsedBlockCount())

	second := h.Allocate(300)
	require.True(t, second.IsValid())
	require.Equal(t, 5, h.UsedBlockCount())
	require.NoError(t, h.Validate())

	h.Deallocate(second)
	require.NoError(t, h.Destroy())
}

func TestHeapInternalBitmapReservesBlocks(t *testing.T) {
	h := newHeap(t, 8, 128, heap.BitmapInternal)

	// 128 bits need two words, which take two 8-byte blocks
	require.Equal(t, 2, h.ReservedBlockCount())
	require.Equal(t, 126*8, h.MaxAllocSize())
	require.Equal(t, 128*8, h.Capacity())

	blk := h.Allocate(h.MaxAllocSize())
	require.True(t, blk.IsValid())
	require.Equal(t, 0, h.FreeBlockCount())
	require.False(t, h.Allocate(1).IsValid())
	require.NoError(t, h.Validate())

	h.DeallocateAll()
	require.Equal(t, 126, h.FreeBlockCount())
	require.NoError(t, h.Validate())
	require.NoError(t, h.Destroy())
}

func TestHeapInvalidOptions(t *testing.T) {
	backing := primitive.NewMallocator()

	_, err := heap.New(backing, heap.CreateOptions{BlockSize: 48, BlockCount: 4})
	require.True(t, errors.Is(err, blockalloc.PowerOfTwoError))

	_, err = heap.New(backing, heap.CreateOptions{BlockSize: 4, BlockCount: 4})
	require.True(t, errors.Is(err, blockalloc.ErrInvalidOptions))

	_, err = heap.New(backing, heap.CreateOptions{BlockSize: 8, BlockCount: 0})
	require.True(t, errors.Is(err, blockalloc.ErrInvalidOptions))

	// The bitmap would take the only block
	_, err = heap.New(backing, heap.CreateOptions{BlockSize: 8, BlockCount: 1})
	require.True(t, errors.Is(err, blockalloc.ErrInvalidOptions))

	_, err = heap.New(backing, heap.CreateOptions{BlockSize: 8, BlockCount: 4, Bitmap: heap.BitmapPlacement(7)})
	require.True(t, errors.Is(err, blockalloc.ErrInvalidOptions))
}

func TestHeapRoundTripLeavesAccounting(t *testing.T) {
	h := newHeap(t, 32, 64, heap.BitmapInternal)

	warm := h.Allocate(1)
	before := h.FreeBlockCount()

	for _, size := range []int{1, 31, 32, 33, 500, h.MaxAllocSize() - 32} {
		blk := h.Allocate(size)
		require.True(t, blk.IsValid(), "size %d", size)
		h.Deallocate(blk)
		require.Equal(t, before, h.FreeBlockCount())
	}

	h.Deallocate(warm)
	require.NoError(t, h.Validate())
}

func TestHeapNonOverlap(t *testing.T) {
	h := newHeap(t, 16, 256, heap.BitmapExternal)

	var blocks []blockalloc.Blk
	for size := 1; ; size += 13 {
		blk := h.Allocate(size)
		if !blk.IsValid() {
			break
		}
		for _, other := range blocks {
			require.False(t, blk.Overlaps(other))
		}
		blocks = append(blocks, blk)
	}

	require.Greater(t, len(blocks), 5)
	require.NoError(t, h.Validate())
}

func TestHeapAllocateAligned(t *testing.T) {
	h := newHeap(t, 16, 256, heap.BitmapExternal)

	// Knock the first block out so aligned requests must skip ahead
	h.Allocate(1)

	for _, alignment := range []uint{16, 64, 256, 1024} {
		blk := h.AllocateAligned(40, alignment)
		require.True(t, blk.IsValid(), "alignment %d", alignment)
		require.True(t, blockalloc.IsAligned(blk.Ptr, alignment))
		require.True(t, h.Owns(blk))
	}

	require.False(t, h.AllocateAligned(40, 3).IsValid())
	require.NoError(t, h.Validate())
}

func TestHeapOwnershipExclusive(t *testing.T) {
	a := newHeap(t, 64, 8, heap.BitmapInternal)
	b := newHeap(t, 64, 8, heap.BitmapInternal)

	blk := a.Allocate(64)
	require.True(t, a.Owns(blk))
	require.False(t, b.Owns(blk))

	b.Allocate(1)
	require.False(t, b.Owns(blk))

	// The reserved bitmap block is never owned as client memory
	require.False(t, a.Owns(blockalloc.Blk{Ptr: blk.Ptr, Size: 1}.Sub(-64, 8)))
}

func TestHeapReallocate(t *testing.T) {
	h := newHeap(t, 16, 16, heap.BitmapExternal)

	blk := h.Allocate(10)
	copy(blk.Bytes(), "0123456789")
	original := blk.Ptr

	// Same block count
	require.True(t, h.Reallocate(&blk, 16))
	require.Equal(t, original, blk.Ptr)

	// Grow into free blocks that follow
	require.True(t, h.Reallocate(&blk, 40))
	require.Equal(t, original, blk.Ptr)
	require.Equal(t, 3, h.UsedBlockCount())

	// Shrink frees the tail
	require.True(t, h.Reallocate(&blk, 17))
	require.Equal(t, 2, h.UsedBlockCount())

	// Block a grow in place, forcing a move
	blocker := h.Allocate(16)
	require.True(t, h.Reallocate(&blk, 64))
	require.NotEqual(t, original, blk.Ptr)
	require.Equal(t, "0123456789", string(blk.Bytes()[:10]))
	require.Equal(t, 5, h.UsedBlockCount())

	require.False(t, h.Reallocate(&blk, h.MaxAllocSize()+1))

	require.True(t, h.Reallocate(&blk, 0))
	require.False(t, blk.IsValid())
	h.Deallocate(blocker)
	require.Equal(t, 0, h.UsedBlockCount())
	require.NoError(t, h.Validate())
}

func TestHeapStatistics(t *testing.T) {
	h := newHeap(t, 64, 8, heap.BitmapExternal)
	require.Equal(t, blockalloc.Statistics{}, blockalloc.CollectStatistics(h))

	h.Allocate(100)
	h.Allocate(10)

	require.Equal(t, blockalloc.Statistics{
		BlockCount:      1,
		BlockBytes:      512,
		AllocationCount: 2,
		AllocationBytes: 110,
	}, blockalloc.CollectStatistics(h))

	var detailed blockalloc.DetailedStatistics
	detailed.Clear()
	h.AddDetailedStatistics(&detailed)
	require.Equal(t, 1, detailed.AllocationCount)
	require.Equal(t, 192, detailed.AllocationSizeMax)
	require.Equal(t, 1, detailed.UnusedRangeCount)
	require.Equal(t, 320, detailed.UnusedRangeSizeMax)
}

func TestHeapJSON(t *testing.T) {
	h := newHeap(t, 64, 8, heap.BitmapExternal)
	h.Allocate(1)

	var doc struct {
		Allocator struct {
			Type       string
			Bitmap     string
			FreeBlocks int
			Backing    map[string]any
		}
	}
	require.NoError(t, json.Unmarshal([]byte(blockalloc.BuildStatsString(h)), &doc))
	require.Equal(t, "Heap", doc.Allocator.Type)
	require.Equal(t, "BitmapExternal", doc.Allocator.Bitmap)
	require.Equal(t, 7, doc.Allocator.FreeBlocks)
	require.Contains(t, doc.Allocator.Backing["Capabilities"], "AllocateAligned")
}

func TestHeapDestroyReportsLeaks(t *testing.T) {
	var logs bytes.Buffer
	backing := primitive.NewMallocator()
	h, err := heap.New(backing, heap.CreateOptions{
		BlockSize:  64,
		BlockCount: 8,
		Bitmap:     heap.BitmapExternal,
		Logger:     slog.New(slog.NewTextHandler(&logs)),
	})
	require.NoError(t, err)

	blk := h.Allocate(64)
	h.Allocate(64)
	h.Allocate(200)
	h.Deallocate(blk)

	err = h.Destroy()
	require.Error(t, err)
	require.Contains(t, err.Error(), "2 allocations")
	require.Equal(t, 1, bytes.Count(logs.Bytes(), []byte("[UNRELEASED MEMORY]")))

	h.DeallocateAll()
	require.NoError(t, h.Destroy())
	require.Equal(t, blockalloc.Statistics{}, blockalloc.CollectStatistics(backing))
}

func TestHeapAsStorageIsLazy(t *testing.T) {
	backing := primitive.NewMallocator()
	_, err := heap.New(backing, heap.CreateOptions{BlockSize: 64, BlockCount: 8})
	require.NoError(t, err)

	require.Equal(t, blockalloc.Statistics{}, blockalloc.CollectStatistics(backing))
}
