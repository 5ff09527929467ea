package heap

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/arsenal/blockalloc"
)

// Static is a heap without free tracking: allocations bump a block cursor forward and memory is
// only reclaimed in bulk, by DeallocateAll. It cannot release single blocks, so it does not
// implement blockalloc.Deallocator.
//
// Storage is obtained from the backing allocator on the first allocation, not at construction.
// Static is not safe for concurrent use.
type Static struct {
	storage

	nextBlock       int
	lastStart       int
	allocationCount int
	allocationBytes int
}

var _ blockalloc.AlignedAllocator = &Static{}
var _ blockalloc.AllAllocator = &Static{}
var _ blockalloc.Reallocator = &Static{}
var _ blockalloc.BulkDeallocator = &Static{}
var _ blockalloc.Owner = &Static{}

func (s *Static) Alignment() uint   { return s.alignment }
func (s *Static) MinAllocSize() int { return 1 }
func (s *Static) MaxAllocSize() int { return s.capacity() }

func (s *Static) BlockSize() int  { return s.blockSize }
func (s *Static) BlockCount() int { return s.blockCount }

// FreeBlockCount is the number of blocks after the cursor
func (s *Static) FreeBlockCount() int { return s.blockCount - s.nextBlock }

func (s *Static) commit(start, blockCount, size int) blockalloc.Blk {
	s.lastStart = start
	s.nextBlock = start + blockCount
	s.allocationCount++
	s.allocationBytes += size
	blockalloc.DebugValidate(s)

	return blockalloc.Blk{Ptr: s.blockPtr(start), Size: size}
}

func (s *Static) Allocate(size int) blockalloc.Blk {
	if !blockalloc.InBounds(s, size) || !s.acquire("Static") {
		return blockalloc.EmptyBlk
	}

	blockCount := s.blocksFor(size)
	if s.nextBlock+blockCount > s.blockCount {
		return blockalloc.EmptyBlk
	}

	return s.commit(s.nextBlock, blockCount, size)
}

// AllocateAligned moves the cursor forward to the next block boundary that is a multiple of
// alignment. The skipped blocks are lost until DeallocateAll.
func (s *Static) AllocateAligned(size int, alignment uint) blockalloc.Blk {
	if !blockalloc.ValidAlignment(alignment) || !blockalloc.InBounds(s, size) {
		return blockalloc.EmptyBlk
	}

	if alignment <= s.alignment {
		return s.Allocate(size)
	}

	if !s.acquire("Static") {
		return blockalloc.EmptyBlk
	}

	first, step, ok := s.alignedStart(alignment)
	if !ok {
		return blockalloc.EmptyBlk
	}

	start := first
	if s.nextBlock > first {
		start = first + (s.nextBlock-first+step-1)/step*step
	}

	blockCount := s.blocksFor(size)
	if start+blockCount > s.blockCount {
		return blockalloc.EmptyBlk
	}

	return s.commit(start, blockCount, size)
}

// AllocateAll hands out every block after the cursor as a single block
func (s *Static) AllocateAll() blockalloc.Blk {
	if !s.acquire("Static") || s.nextBlock >= s.blockCount {
		return blockalloc.EmptyBlk
	}

	blockCount := s.blockCount - s.nextBlock
	return s.commit(s.nextBlock, blockCount, blockCount*s.blockSize)
}

// Reallocate resizes blk in place. Any block may shrink or grow within the blocks it already
// covers; only the most recent allocation can grow past them.
func (s *Static) Reallocate(blk *blockalloc.Blk, newSize int) bool {
	if !blk.IsValid() {
		if newSize == 0 {
			return true
		}
		newBlk := s.Allocate(newSize)
		if !newBlk.IsValid() {
			return false
		}
		*blk = newBlk
		return true
	}

	if !blockalloc.InBounds(s, newSize) {
		return false
	}

	blockalloc.DebugAssertOwned(s, *blk)

	start := s.blockIndex(blk.Ptr)
	oldBlocks := s.blocksFor(blk.Size)
	newBlocks := s.blocksFor(newSize)

	if newBlocks > oldBlocks {
		if start != s.lastStart || start+newBlocks > s.blockCount {
			return false
		}
		s.nextBlock = start + newBlocks
	} else if start == s.lastStart && s.nextBlock == start+oldBlocks {
		s.nextBlock = start + newBlocks
	}

	s.allocationBytes += newSize - blk.Size
	blk.Size = newSize
	blockalloc.DebugValidate(s)
	return true
}

// DeallocateAll resets the cursor, releasing every block at once
func (s *Static) DeallocateAll() {
	s.nextBlock = 0
	s.lastStart = 0
	s.allocationCount = 0
	s.allocationBytes = 0
}

// Owns returns true if blk lies within the blocks handed out since the last DeallocateAll
func (s *Static) Owns(blk blockalloc.Blk) bool {
	if !s.blk.IsValid() || !blk.IsValid() {
		return false
	}

	return blk.Addr() >= s.blk.Addr() && blk.End() <= s.blk.Addr()+uintptr(s.nextBlock*s.blockSize)
}

// Destroy returns the heap's storage to the backing allocator, implicitly releasing every block
func (s *Static) Destroy() error {
	s.DeallocateAll()
	s.storage.release()
	return nil
}

func (s *Static) Validate() error {
	if s.nextBlock < 0 || s.nextBlock > s.blockCount {
		return errors.Errorf("cursor at block %d is outside of the heap's %d blocks", s.nextBlock, s.blockCount)
	}

	if s.allocationBytes > s.nextBlock*s.blockSize {
		return errors.Errorf("heap accounts for %d allocated bytes in only %d blocks", s.allocationBytes, s.nextBlock)
	}

	return nil
}

func (s *Static) AddStatistics(stats *blockalloc.Statistics) {
	if !s.blk.IsValid() {
		return
	}

	stats.BlockCount++
	stats.BlockBytes += s.capacity()
	stats.AllocationCount += s.allocationCount
	stats.AllocationBytes += s.allocationBytes
}

func (s *Static) WriteJSON(json *jwriter.ObjectState) {
	json.Name("Type").String("Static")
	json.Name("BlockSize").Int(s.blockSize)
	json.Name("BlockCount").Int(s.blockCount)
	json.Name("FreeBlocks").Int(s.FreeBlockCount())

	var stats blockalloc.Statistics
	s.AddStatistics(&stats)
	blockalloc.WriteStatisticsJSON(json, &stats)

	blockalloc.WriteAllocatorJSON(json, "Backing", s.backing)
}
