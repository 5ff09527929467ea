package heap

import (
	"context"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/arsenal/blockalloc"
	"golang.org/x/exp/slog"
)

// Heap is a fixed pool of BlockCount blocks of BlockSize bytes. Allocations take the first run
// of free blocks long enough to hold them, and a bitmap records which blocks are in use.
// Blocks report the size that was requested, not the block-rounded size.
//
// Storage is obtained from the backing allocator on the first allocation, not at construction.
// Heap is not safe for concurrent use.
type Heap struct {
	storage

	placement       BitmapPlacement
	bitmapAllocator blockalloc.Allocator
	bitmapBlk       blockalloc.Blk
	bitmap          Bitmap
	reservedBlocks  int

	usedBlocks      int
	allocationCount int
	allocationBytes int
}

var _ blockalloc.AlignedAllocator = &Heap{}
var _ blockalloc.Reallocator = &Heap{}
var _ blockalloc.AlignedDeallocator = &Heap{}
var _ blockalloc.BulkDeallocator = &Heap{}
var _ blockalloc.Owner = &Heap{}
var _ blockalloc.Destroyer = &Heap{}

func (h *Heap) Alignment() uint   { return h.alignment }
func (h *Heap) MinAllocSize() int { return 1 }
func (h *Heap) MaxAllocSize() int { return (h.blockCount - h.reservedBlocks) * h.blockSize }

func (h *Heap) BlockSize() int  { return h.blockSize }
func (h *Heap) BlockCount() int { return h.blockCount }

// ReservedBlockCount is the number of blocks holding the heap's own bitmap
func (h *Heap) ReservedBlockCount() int { return h.reservedBlocks }

// UsedBlockCount is the number of blocks currently handed out to clients
func (h *Heap) UsedBlockCount() int { return h.usedBlocks }

// FreeBlockCount is the number of blocks available to clients
func (h *Heap) FreeBlockCount() int {
	return h.blockCount - h.reservedBlocks - h.usedBlocks
}

func (h *Heap) acquire() bool {
	if h.blk.IsValid() {
		return true
	}

	if !h.storage.acquire("Heap") {
		return false
	}

	switch h.placement {
	case BitmapInternal:
		h.bitmap = BitmapOver(h.blk.Ptr, h.blockCount)
		h.bitmap.SetRange(0, h.reservedBlocks)
	case BitmapExternal:
		h.bitmapBlk = blockalloc.AllocateAligned(h.bitmapAllocator, BitmapWords(h.blockCount)*8, 8)
		if !h.bitmapBlk.IsValid() {
			h.logger.Debug("Heap::acquire failed to obtain bitmap storage", slog.Int("BlockCount", h.blockCount))
			h.storage.release()
			return false
		}
		h.bitmap = BitmapOver(h.bitmapBlk.Ptr, h.blockCount)
	}

	return true
}

func (h *Heap) commit(start, blockCount, size int) blockalloc.Blk {
	h.bitmap.SetRange(start, blockCount)
	h.usedBlocks += blockCount
	h.allocationCount++
	h.allocationBytes += size
	blockalloc.DebugValidate(h)

	return blockalloc.Blk{Ptr: h.blockPtr(start), Size: size}
}

func (h *Heap) Allocate(size int) blockalloc.Blk {
	if !blockalloc.InBounds(h, size) || !h.acquire() {
		return blockalloc.EmptyBlk
	}

	blockCount := h.blocksFor(size)
	start := h.bitmap.FindClearRun(blockCount)
	if start < 0 {
		return blockalloc.EmptyBlk
	}

	return h.commit(start, blockCount, size)
}

// AllocateAligned allocates at the heap's own alignment or, when alignment is larger, searches
// only the block boundaries that land on a multiple of alignment
func (h *Heap) AllocateAligned(size int, alignment uint) blockalloc.Blk {
	if !blockalloc.ValidAlignment(alignment) || !blockalloc.InBounds(h, size) {
		return blockalloc.EmptyBlk
	}

	if alignment <= h.alignment {
		return h.Allocate(size)
	}

	if !h.acquire() {
		return blockalloc.EmptyBlk
	}

	first, step, ok := h.alignedStart(alignment)
	if !ok {
		return blockalloc.EmptyBlk
	}

	blockCount := h.blocksFor(size)
	for start := first; start+blockCount <= h.blockCount; start += step {
		if h.bitmap.IsRangeClear(start, blockCount) {
			return h.commit(start, blockCount, size)
		}
	}

	return blockalloc.EmptyBlk
}

// Reallocate resizes blk in place when the block count is unchanged, when it shrinks, or when
// the blocks following it are free. Otherwise it moves the block within the heap.
func (h *Heap) Reallocate(blk *blockalloc.Blk, newSize int) bool {
	if !blk.IsValid() || newSize == 0 {
		return blockalloc.ReallocateWithCopy(h, blk, newSize)
	}

	if !blockalloc.InBounds(h, newSize) {
		return false
	}

	blockalloc.DebugAssertOwned(h, *blk)

	start := h.blockIndex(blk.Ptr)
	oldBlocks := h.blocksFor(blk.Size)
	newBlocks := h.blocksFor(newSize)

	switch {
	case newBlocks == oldBlocks:
	case newBlocks < oldBlocks:
		h.bitmap.ClearRange(start+newBlocks, oldBlocks-newBlocks)
		h.usedBlocks -= oldBlocks - newBlocks
	case h.bitmap.IsRangeClear(start+oldBlocks, newBlocks-oldBlocks):
		h.bitmap.SetRange(start+oldBlocks, newBlocks-oldBlocks)
		h.usedBlocks += newBlocks - oldBlocks
	default:
		return blockalloc.ReallocateWithCopy(h, blk, newSize)
	}

	h.allocationBytes += newSize - blk.Size
	blk.Size = newSize
	blockalloc.DebugValidate(h)
	return true
}

func (h *Heap) Deallocate(blk blockalloc.Blk) {
	if !blk.IsValid() {
		return
	}

	blockalloc.DebugAssertOwned(h, blk)
	if !h.Owns(blk) {
		return
	}

	start := h.blockIndex(blk.Ptr)
	blockCount := h.blocksFor(blk.Size)
	if blockalloc.DebugEnabled {
		blockalloc.DebugAssert(h.bitmap.IsRangeSet(start, blockCount), "Heap received a block at %#x covering blocks %d-%d that are already free", blk.Addr(), start, start+blockCount-1)
	}

	h.bitmap.ClearRange(start, blockCount)
	h.usedBlocks -= blockCount
	h.allocationCount--
	h.allocationBytes -= blk.Size
	blockalloc.DebugValidate(h)
}

func (h *Heap) DeallocateAligned(blk blockalloc.Blk) {
	h.Deallocate(blk)
}

// DeallocateAll frees every block except those holding the heap's own bitmap
func (h *Heap) DeallocateAll() {
	if !h.blk.IsValid() {
		return
	}

	h.bitmap.ClearAll()
	h.bitmap.SetRange(0, h.reservedBlocks)
	h.usedBlocks = 0
	h.allocationCount = 0
	h.allocationBytes = 0
	blockalloc.DebugValidate(h)
}

// Owns returns true if blk lies within the client-visible part of the heap's storage
func (h *Heap) Owns(blk blockalloc.Blk) bool {
	if !h.blk.IsValid() || !blk.IsValid() {
		return false
	}

	clientStart := h.blk.Addr() + uintptr(h.reservedBlocks*h.blockSize)
	return blk.Addr() >= clientStart && blk.End() <= h.blk.End()
}

// Destroy returns the heap's storage to the backing allocator. If blocks are still in use, they
// are logged, the storage is kept, and an error is returned.
func (h *Heap) Destroy() error {
	if !h.blk.IsValid() {
		return nil
	}

	if h.usedBlocks > 0 {
		h.bitmap.VisitRuns(func(start, count int, used bool) {
			if !used || start < h.reservedBlocks {
				return
			}
			h.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed heap blocks",
				slog.Int("offset", start*h.blockSize),
				slog.Int("size", count*h.blockSize),
				slog.Int("blocks", count),
			)
		})

		return errors.Errorf("%d allocations were not freed before the destruction of this heap", h.allocationCount)
	}

	if h.bitmapBlk.IsValid() {
		blockalloc.DeallocateAligned(h.bitmapAllocator, h.bitmapBlk)
		h.bitmapBlk = blockalloc.EmptyBlk
	}
	h.bitmap = Bitmap{}
	h.storage.release()
	return nil
}

// Validate checks that the bitmap agrees with the heap's accounting
func (h *Heap) Validate() error {
	if !h.blk.IsValid() {
		if h.usedBlocks != 0 || h.allocationCount != 0 {
			return errors.New("heap has allocations but no storage")
		}
		return nil
	}

	if h.bitmap.Len() != h.blockCount {
		return errors.Errorf("bitmap tracks %d blocks, but the heap has %d", h.bitmap.Len(), h.blockCount)
	}

	for i := 0; i < h.reservedBlocks; i++ {
		if !h.bitmap.IsSet(i) {
			return errors.Errorf("block %d holds the heap bitmap but is marked free", i)
		}
	}

	setBits := h.bitmap.CountSet()
	if setBits != h.usedBlocks+h.reservedBlocks {
		return errors.Errorf("bitmap has %d used blocks, but the heap accounts for %d used and %d reserved", setBits, h.usedBlocks, h.reservedBlocks)
	}

	if h.allocationBytes > h.usedBlocks*h.blockSize {
		return errors.Errorf("heap accounts for %d allocated bytes in only %d blocks", h.allocationBytes, h.usedBlocks)
	}

	if (h.allocationCount == 0) != (h.usedBlocks == 0) {
		return errors.Errorf("heap has %d allocations but %d used blocks", h.allocationCount, h.usedBlocks)
	}

	return nil
}

func (h *Heap) AddStatistics(stats *blockalloc.Statistics) {
	if !h.blk.IsValid() {
		return
	}

	stats.BlockCount++
	stats.BlockBytes += h.capacity()
	stats.AllocationCount += h.allocationCount
	stats.AllocationBytes += h.allocationBytes
}

// AddDetailedStatistics records each run of used blocks as an allocation and each run of free
// blocks as an unused range. Adjacent allocations are reported as a single run.
func (h *Heap) AddDetailedStatistics(stats *blockalloc.DetailedStatistics) {
	if !h.blk.IsValid() {
		return
	}

	stats.BlockCount++
	stats.BlockBytes += h.capacity()
	h.bitmap.VisitRuns(func(start, count int, used bool) {
		if start < h.reservedBlocks {
			start, count = h.reservedBlocks, count-(h.reservedBlocks-start)
			if count <= 0 {
				return
			}
		}

		if used {
			stats.AddAllocation(count * h.blockSize)
		} else {
			stats.AddUnusedRange(count * h.blockSize)
		}
	})
}

func (h *Heap) WriteJSON(json *jwriter.ObjectState) {
	json.Name("Type").String("Heap")
	json.Name("Bitmap").String(h.placement.String())
	json.Name("BlockSize").Int(h.blockSize)
	json.Name("BlockCount").Int(h.blockCount)
	json.Name("ReservedBlocks").Int(h.reservedBlocks)
	json.Name("FreeBlocks").Int(h.FreeBlockCount())

	var stats blockalloc.Statistics
	h.AddStatistics(&stats)
	blockalloc.WriteStatisticsJSON(json, &stats)

	blockalloc.WriteAllocatorJSON(json, "Backing", h.backing)
}
