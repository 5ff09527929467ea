package primitive

import (
	"context"
	"os"
	"sync"
	"unsafe"

	"github.com/dolthub/swiss"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/arsenal/blockalloc"
	"github.com/vkngwrapper/arsenal/blockalloc/internal/utils"
	"golang.org/x/exp/slog"
)

type pageMapping struct {
	data []byte
	size int
}

// PageAllocator maps anonymous, private pages from the operating system for every block. Blocks
// are aligned to the page size. Live mappings are tracked by address, so the allocator can tell
// which blocks it owns. It is safe for concurrent use.
//
// On platforms without mmap, every request fails with an empty block.
type PageAllocator struct {
	logger   *slog.Logger
	pageSize int

	mutex           sync.Mutex
	mappings        *swiss.Map[uintptr, pageMapping]
	mappedBytes     int
	allocationBytes int
}

var _ blockalloc.AlignedAllocator = &PageAllocator{}
var _ blockalloc.Reallocator = &PageAllocator{}
var _ blockalloc.AlignedDeallocator = &PageAllocator{}
var _ blockalloc.Owner = &PageAllocator{}
var _ blockalloc.Destroyer = &PageAllocator{}

func NewPageAllocator(logger *slog.Logger) *PageAllocator {
	return &PageAllocator{
		logger:   utils.LoggerOrDefault(logger),
		pageSize: os.Getpagesize(),
		mappings: swiss.NewMap[uintptr, pageMapping](16),
	}
}

func (p *PageAllocator) Alignment() uint   { return uint(p.pageSize) }
func (p *PageAllocator) MinAllocSize() int { return 1 }
func (p *PageAllocator) MaxAllocSize() int { return maxAllocSize }

// PageSize returns the granularity that every mapping is rounded up to
func (p *PageAllocator) PageSize() int { return p.pageSize }

func (p *PageAllocator) Allocate(size int) blockalloc.Blk {
	if !blockalloc.InBounds(p, size) {
		return blockalloc.EmptyBlk
	}

	length := blockalloc.AlignUp(size, uint(p.pageSize))
	data, err := mapPages(length)
	if err != nil {
		p.logger.Debug("PageAllocator::Allocate failed to map pages", slog.Int("Size", length), slog.Any("error", err))
		return blockalloc.EmptyBlk
	}

	ptr := unsafe.Pointer(&data[0])

	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.mappings.Put(uintptr(ptr), pageMapping{data: data, size: size})
	p.mappedBytes += len(data)
	p.allocationBytes += size

	return blockalloc.Blk{Ptr: ptr, Size: size}
}

// AllocateAligned succeeds for any alignment up to the page size
func (p *PageAllocator) AllocateAligned(size int, alignment uint) blockalloc.Blk {
	if alignment == 0 || alignment&(alignment-1) != 0 || alignment > uint(p.pageSize) {
		return blockalloc.EmptyBlk
	}

	return p.Allocate(size)
}

// Reallocate resizes in place while the new size fits the pages already mapped, and copies
// otherwise
func (p *PageAllocator) Reallocate(blk *blockalloc.Blk, newSize int) bool {
	if blk.IsValid() && newSize > 0 {
		p.mutex.Lock()
		mapping, ok := p.mappings.Get(blk.Addr())
		if ok && newSize <= len(mapping.data) {
			p.allocationBytes += newSize - mapping.size
			mapping.size = newSize
			p.mappings.Put(blk.Addr(), mapping)
			p.mutex.Unlock()

			blk.Size = newSize
			return true
		}
		p.mutex.Unlock()
	}

	return blockalloc.ReallocateWithCopy(p, blk, newSize)
}

func (p *PageAllocator) Owns(blk blockalloc.Blk) bool {
	if !blk.IsValid() {
		return false
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	mapping, ok := p.mappings.Get(blk.Addr())
	return ok && blk.Size <= len(mapping.data)
}

func (p *PageAllocator) Deallocate(blk blockalloc.Blk) {
	if !blk.IsValid() {
		return
	}

	p.mutex.Lock()
	mapping, ok := p.mappings.Get(blk.Addr())
	if !ok {
		p.mutex.Unlock()
		blockalloc.DebugAssert(false, "PageAllocator received a block at %#x it did not map", blk.Addr())
		return
	}
	p.mappings.Delete(blk.Addr())
	p.mappedBytes -= len(mapping.data)
	p.allocationBytes -= mapping.size
	p.mutex.Unlock()

	err := unmapPages(mapping.data)
	if err != nil {
		p.logger.Error("PageAllocator::Deallocate failed to unmap pages", slog.Int("Size", len(mapping.data)), slog.Any("error", err))
	}
}

func (p *PageAllocator) DeallocateAligned(blk blockalloc.Blk) {
	p.Deallocate(blk)
}

func (p *PageAllocator) AddStatistics(stats *blockalloc.Statistics) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	count := p.mappings.Count()
	stats.BlockCount += count
	stats.BlockBytes += p.mappedBytes
	stats.AllocationCount += count
	stats.AllocationBytes += p.allocationBytes
}

// Destroy unmaps every page still mapped. Every mapping that was never deallocated is logged,
// and an error is returned if there were any.
func (p *PageAllocator) Destroy() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	leaked := p.mappings.Count()
	var unmapErr error
	p.mappings.Iter(func(addr uintptr, mapping pageMapping) bool {
		p.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed page mapping",
			slog.Any("address", addr),
			slog.Int("size", mapping.size),
			slog.Int("mappedSize", len(mapping.data)),
		)

		err := unmapPages(mapping.data)
		if err != nil && unmapErr == nil {
			unmapErr = err
		}
		return false
	})

	p.mappings = swiss.NewMap[uintptr, pageMapping](16)
	p.mappedBytes = 0
	p.allocationBytes = 0

	if unmapErr != nil {
		return unmapErr
	}
	if leaked > 0 {
		return errors.Errorf("%d page mappings were not freed before the destruction of this allocator", leaked)
	}
	return nil
}
