package freelist

import (
	"context"
	"unsafe"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/arsenal/blockalloc"
	"github.com/vkngwrapper/arsenal/blockalloc/internal/utils"
	"golang.org/x/exp/slog"
)

// Freelist is a pool of fixed-size blocks. It obtains chunks of BatchSize*MaxAllocSize bytes from
// its backing allocator, carves them into blocks, and recycles freed blocks through an intrusive
// singly-linked list threaded through the free blocks themselves.
//
// Every block handed out holds exactly MaxAllocSize bytes, whatever size was requested; callers
// that need the requested size must track it themselves (affix.SizePrefix does this). Chunks are
// only released in bulk, by DeallocateAll or Destroy.
type Freelist struct {
	backing blockalloc.Allocator
	logger  *slog.Logger
	mutex   *utils.OptionalMutex

	minAllocSize   int
	maxAllocSize   int
	batchSize      int
	infoBlocks     int
	chunkAlignment uint
	alignedChunks  bool

	chunks          []blockalloc.Blk
	head            link
	freeCount       int
	allocationCount int
}

var _ blockalloc.AlignedAllocator = &Freelist{}
var _ blockalloc.Reallocator = &Freelist{}
var _ blockalloc.AlignedDeallocator = &Freelist{}
var _ blockalloc.BulkDeallocator = &Freelist{}
var _ blockalloc.Owner = &Freelist{}
var _ blockalloc.Destroyer = &Freelist{}

func (f *Freelist) Alignment() uint   { return f.chunkAlignment }
func (f *Freelist) MinAllocSize() int { return f.minAllocSize }
func (f *Freelist) MaxAllocSize() int { return f.maxAllocSize }

// ChunkInfoBlocks is the number of blocks at the start of each chunk that hold the chunk header
func (f *Freelist) ChunkInfoBlocks() int { return f.infoBlocks }

// BlocksPerChunk is the number of blocks each chunk makes available to clients
func (f *Freelist) BlocksPerChunk() int { return f.batchSize - f.infoBlocks }

// ThreadSafe returns true if every operation is guarded by a mutex
func (f *Freelist) ThreadSafe() bool { return f.mutex.Enabled() }

// FreeCount is the number of blocks currently on the free list
func (f *Freelist) FreeCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.freeCount
}

// ChunkCount is the number of chunks obtained from the backing allocator
func (f *Freelist) ChunkCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return len(f.chunks)
}

func (f *Freelist) chunkSize() int {
	return f.batchSize * f.maxAllocSize
}

func (f *Freelist) blockPtr(l link) unsafe.Pointer {
	chunk, block := l.indices()
	return unsafe.Add(f.chunks[chunk].Ptr, block*f.maxAllocSize)
}

// locate finds the chunk and block that ptr lies within
func (f *Freelist) locate(ptr unsafe.Pointer) (link, bool) {
	addr := uintptr(ptr)
	for chunkIndex, chunk := range f.chunks {
		if !chunk.ContainsPtr(ptr) {
			continue
		}

		block := int(addr-chunk.Addr()) / f.maxAllocSize
		if block < f.infoBlocks || block >= f.batchSize {
			return noLink, false
		}
		return makeLink(chunkIndex, block), true
	}

	return noLink, false
}

func (f *Freelist) push(l link) {
	*(*link)(f.blockPtr(l)) = f.head
	f.head = l
	f.freeCount++
}

func (f *Freelist) pop() (unsafe.Pointer, bool) {
	if f.head == noLink {
		return nil, false
	}

	ptr := f.blockPtr(f.head)
	f.head = *(*link)(ptr)
	f.freeCount--
	return ptr, true
}

// onFreeList walks the free list looking for l. The walk is bounded by freeCount so a corrupt
// list cannot loop forever.
func (f *Freelist) onFreeList(l link) bool {
	steps := 0
	for current := f.head; current != noLink && steps <= f.freeCount; current = *(*link)(f.blockPtr(current)) {
		if current == l {
			return true
		}
		steps++
	}
	return false
}

// validator runs the freelist's checks through DebugValidate while the mutex is already held
type validator func() error

func (v validator) Validate() error { return v() }

func (f *Freelist) createChunk() bool {
	var chunk blockalloc.Blk
	if f.alignedChunks {
		chunk = f.backing.(blockalloc.AlignedAllocator).AllocateAligned(f.chunkSize(), f.chunkAlignment)
	} else {
		chunk = f.backing.Allocate(f.chunkSize())
	}

	if !chunk.IsValid() {
		f.logger.Debug("Freelist::createChunk failed to obtain a chunk", slog.Int("Size", f.chunkSize()))
		return false
	}

	chunkIndex := len(f.chunks)
	f.chunks = append(f.chunks, chunk)
	writeChunkHeader(chunk, chunkIndex, f.maxAllocSize, f.batchSize)

	// Push in reverse so the lowest block is handed out first
	for block := f.batchSize - 1; block >= f.infoBlocks; block-- {
		f.push(makeLink(chunkIndex, block))
	}

	f.logger.Debug("Freelist::createChunk", slog.Int("ChunkIndex", chunkIndex), slog.Int("BlockSize", f.maxAllocSize), slog.Int("Blocks", f.batchSize-f.infoBlocks))
	blockalloc.DebugValidate(validator(f.validate))
	return true
}

func (f *Freelist) allocate(size int) blockalloc.Blk {
	if !blockalloc.InBounds(f, size) {
		return blockalloc.EmptyBlk
	}

	ptr, ok := f.pop()
	if !ok {
		if !f.createChunk() {
			return blockalloc.EmptyBlk
		}

		ptr, ok = f.pop()
		if !ok {
			return blockalloc.EmptyBlk
		}
	}

	f.allocationCount++
	blockalloc.DebugValidate(validator(f.validate))
	return blockalloc.Blk{Ptr: ptr, Size: f.maxAllocSize}
}

func (f *Freelist) deallocate(blk blockalloc.Blk) {
	if !blk.IsValid() {
		return
	}

	l, ok := f.locate(blk.Ptr)
	blockalloc.DebugAssert(ok, "Freelist received a block at %#x it does not own", blk.Addr())
	if !ok {
		return
	}

	if blockalloc.DebugEnabled {
		blockalloc.DebugAssert(!f.onFreeList(l), "Freelist received a block at %#x that is already free", blk.Addr())
	}

	f.push(l)
	f.allocationCount--
	blockalloc.DebugValidate(validator(f.validate))
}

// Allocate returns a block of exactly MaxAllocSize bytes for any size within bounds, creating a
// new chunk if the free list is empty
func (f *Freelist) Allocate(size int) blockalloc.Blk {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.allocate(size)
}

// AllocateAligned takes a full block and aligns within it. The returned block runs from the
// aligned address to the end of the underlying block. If size does not fit after aligning, the
// block goes back on the free list.
func (f *Freelist) AllocateAligned(size int, alignment uint) blockalloc.Blk {
	if !blockalloc.ValidAlignment(alignment) {
		return blockalloc.EmptyBlk
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	blk := f.allocate(size)
	if !blk.IsValid() {
		return blockalloc.EmptyBlk
	}

	aligned, remaining, ok := blockalloc.AlignWithin(alignment, size, blk.Ptr, blk.Size)
	if !ok {
		f.deallocate(blk)
		return blockalloc.EmptyBlk
	}

	return blockalloc.Blk{Ptr: aligned, Size: remaining}
}

// Reallocate succeeds in place whenever newSize is within bounds and fits between the block's
// pointer and the end of its underlying block. The block reports all of that space.
func (f *Freelist) Reallocate(blk *blockalloc.Blk, newSize int) bool {
	if !blk.IsValid() || newSize == 0 {
		return blockalloc.ReallocateWithCopy(f, blk, newSize)
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	if !blockalloc.InBounds(f, newSize) {
		return false
	}

	l, ok := f.locate(blk.Ptr)
	blockalloc.DebugAssert(ok, "Freelist received a block at %#x it does not own", blk.Addr())
	if !ok {
		return false
	}

	capacity := f.maxAllocSize - int(uintptr(blk.Ptr)-uintptr(f.blockPtr(l)))
	if newSize > capacity {
		return false
	}

	blk.Size = capacity
	return true
}

// Deallocate pushes the block containing blk back on the free list
func (f *Freelist) Deallocate(blk blockalloc.Blk) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.deallocate(blk)
}

// DeallocateAligned pushes the block containing blk back on the free list. Alignment padding is
// undone by snapping the pointer back to the start of its block.
func (f *Freelist) DeallocateAligned(blk blockalloc.Blk) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.deallocate(blk)
}

func (f *Freelist) deallocateAll() {
	if blockalloc.Supports(f.backing, blockalloc.CanDeallocateAll) {
		f.backing.(blockalloc.BulkDeallocator).DeallocateAll()
	} else {
		for _, chunk := range f.chunks {
			if f.alignedChunks {
				blockalloc.DeallocateAligned(f.backing, chunk)
			} else {
				blockalloc.Deallocate(f.backing, chunk)
			}
		}
	}

	f.chunks = nil
	f.head = noLink
	f.freeCount = 0
	f.allocationCount = 0
	blockalloc.DebugValidate(validator(f.validate))
}

// DeallocateAll returns every chunk to the backing allocator, using the backing allocator's
// DeallocateAll when it has one, and empties the free list
func (f *Freelist) DeallocateAll() {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	f.deallocateAll()
}

// Owns returns true if blk lies within the client blocks of one of the freelist's chunks
func (f *Freelist) Owns(blk blockalloc.Blk) bool {
	if !blk.IsValid() {
		return false
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	_, ok := f.locate(blk.Ptr)
	return ok
}

// Destroy returns every chunk to the backing allocator. If blocks are still in use, the count is
// logged, the chunks are kept, and an error is returned.
func (f *Freelist) Destroy() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.allocationCount > 0 {
		f.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed freelist blocks",
			slog.Int("count", f.allocationCount),
			slog.Int("blockSize", f.maxAllocSize),
			slog.Int("chunks", len(f.chunks)),
		)
		return errors.Errorf("%d allocations were not freed before the destruction of this freelist", f.allocationCount)
	}

	f.deallocateAll()
	return nil
}

// Validate walks the free list and every chunk header, checking them against the freelist's
// accounting
func (f *Freelist) Validate() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	return f.validate()
}

func (f *Freelist) validate() error {
	for chunkIndex, chunk := range f.chunks {
		err := validateChunkHeader(chunk, chunkIndex, f.maxAllocSize, f.batchSize)
		if err != nil {
			return err
		}
	}

	total := len(f.chunks) * (f.batchSize - f.infoBlocks)
	var count int
	for l := f.head; l != noLink; l = *(*link)(f.blockPtr(l)) {
		chunk, block := l.indices()
		if chunk >= len(f.chunks) || block < f.infoBlocks || block >= f.batchSize {
			return errors.Errorf("free list entry %d points at chunk %d block %d, which does not exist", count, chunk, block)
		}

		count++
		if count > total {
			return errors.Errorf("free list has more entries than the %d blocks in its chunks", total)
		}
	}

	if count != f.freeCount {
		return errors.Errorf("free list has %d entries, but the freelist accounts for %d", count, f.freeCount)
	}

	if f.freeCount+f.allocationCount != total {
		return errors.Errorf("%d free and %d allocated blocks do not add up to the %d blocks in the freelist's chunks", f.freeCount, f.allocationCount, total)
	}

	return nil
}

func (f *Freelist) AddStatistics(stats *blockalloc.Statistics) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	stats.BlockCount += len(f.chunks)
	stats.BlockBytes += len(f.chunks) * f.chunkSize()
	stats.AllocationCount += f.allocationCount
	stats.AllocationBytes += f.allocationCount * f.maxAllocSize
}

func (f *Freelist) WriteJSON(json *jwriter.ObjectState) {
	f.mutex.Lock()
	json.Name("Type").String("Freelist")
	json.Name("BlockSize").Int(f.maxAllocSize)
	json.Name("BatchSize").Int(f.batchSize)
	json.Name("ThreadSafe").Bool(f.mutex.Enabled())
	json.Name("Chunks").Int(len(f.chunks))
	json.Name("FreeBlocks").Int(f.freeCount)
	f.mutex.Unlock()

	var stats blockalloc.Statistics
	f.AddStatistics(&stats)
	blockalloc.WriteStatisticsJSON(json, &stats)

	blockalloc.WriteAllocatorJSON(json, "Backing", f.backing)
}
