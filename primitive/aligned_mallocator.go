package primitive

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/blockalloc"
)

// DefaultAlignment is the alignment AlignedMallocator uses for Allocate when none is provided
const DefaultAlignment uint = 64

// AlignedMallocator allocates from the Go heap at any power-of-two alignment up to
// blockalloc.MaxAlignment by over-allocating and aligning within the result. It is safe for
// concurrent use.
type AlignedMallocator struct {
	allocationCounters
	alignment uint
}

var _ blockalloc.AlignedAllocator = &AlignedMallocator{}
var _ blockalloc.AlignedReallocator = &AlignedMallocator{}
var _ blockalloc.AlignedDeallocator = &AlignedMallocator{}

// NewAlignedMallocator creates an AlignedMallocator whose Allocate method honors alignment.
// An alignment of 0 selects DefaultAlignment.
func NewAlignedMallocator(alignment uint) (*AlignedMallocator, error) {
	if alignment == 0 {
		alignment = DefaultAlignment
	}

	if !blockalloc.ValidAlignment(alignment) {
		return nil, cerrors.Wrapf(blockalloc.ErrInvalidOptions, "alignment %d must be a power of two no larger than %d", alignment, blockalloc.MaxAlignment)
	}

	return &AlignedMallocator{alignment: alignment}, nil
}

func (m *AlignedMallocator) Alignment() uint   { return m.alignment }
func (m *AlignedMallocator) MinAllocSize() int { return 1 }
func (m *AlignedMallocator) MaxAllocSize() int { return maxAllocSize }

func (m *AlignedMallocator) Allocate(size int) blockalloc.Blk {
	return m.AllocateAligned(size, m.alignment)
}

func (m *AlignedMallocator) AllocateAligned(size int, alignment uint) blockalloc.Blk {
	if !blockalloc.InBounds(m, size) || !blockalloc.ValidAlignment(alignment) {
		return blockalloc.EmptyBlk
	}

	if alignment <= mallocAlignment {
		words := make([]uint64, wordsFor(size))
		m.add(size)
		return blockalloc.Blk{Ptr: unsafe.Pointer(&words[0]), Size: size}
	}

	space := size + int(alignment) - 1
	words := make([]uint64, wordsFor(space))
	ptr, _, ok := blockalloc.AlignWithin(alignment, size, unsafe.Pointer(&words[0]), len(words)*8)
	if !ok {
		return blockalloc.EmptyBlk
	}

	m.add(size)
	return blockalloc.Blk{Ptr: ptr, Size: size}
}

func (m *AlignedMallocator) Reallocate(blk *blockalloc.Blk, newSize int) bool {
	return m.ReallocateAligned(blk, newSize, m.alignment)
}

func (m *AlignedMallocator) ReallocateAligned(blk *blockalloc.Blk, newSize int, alignment uint) bool {
	if blk.IsValid() && newSize > 0 && newSize <= blk.Size && blockalloc.IsAligned(blk.Ptr, alignment) {
		m.resize(blk.Size, newSize)
		blk.Size = newSize
		return true
	}

	return blockalloc.ReallocateAlignedWithCopy(m, blk, newSize, alignment)
}

func (m *AlignedMallocator) Deallocate(blk blockalloc.Blk) {
	if !blk.IsValid() {
		return
	}
	m.remove(blk.Size)
}

func (m *AlignedMallocator) DeallocateAligned(blk blockalloc.Blk) {
	m.Deallocate(blk)
}
