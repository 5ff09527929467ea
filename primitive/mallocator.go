package primitive

import (
	"unsafe"

	"github.com/vkngwrapper/arsenal/blockalloc"
)

const mallocAlignment uint = 8

// Mallocator allocates every block from the Go heap at 8-byte alignment. It is safe for
// concurrent use.
type Mallocator struct {
	allocationCounters
}

var _ blockalloc.Allocator = &Mallocator{}
var _ blockalloc.Reallocator = &Mallocator{}
var _ blockalloc.Deallocator = &Mallocator{}

func NewMallocator() *Mallocator {
	return &Mallocator{}
}

func (m *Mallocator) Alignment() uint   { return mallocAlignment }
func (m *Mallocator) MinAllocSize() int { return 1 }
func (m *Mallocator) MaxAllocSize() int { return maxAllocSize }

func (m *Mallocator) Allocate(size int) blockalloc.Blk {
	if !blockalloc.InBounds(m, size) {
		return blockalloc.EmptyBlk
	}

	words := make([]uint64, wordsFor(size))
	m.add(size)
	return blockalloc.Blk{Ptr: unsafe.Pointer(&words[0]), Size: size}
}

// Reallocate resizes in place when the new size fits the words already backing the block, and
// copies otherwise
func (m *Mallocator) Reallocate(blk *blockalloc.Blk, newSize int) bool {
	if blk.IsValid() && newSize > 0 && wordsFor(newSize) == wordsFor(blk.Size) {
		m.resize(blk.Size, newSize)
		blk.Size = newSize
		return true
	}

	return blockalloc.ReallocateWithCopy(m, blk, newSize)
}

func (m *Mallocator) Deallocate(blk blockalloc.Blk) {
	if !blk.IsValid() {
		return
	}
	m.remove(blk.Size)
}
