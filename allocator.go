package blockalloc

// Allocator is the one capability every allocator in this module has: it can produce blocks
// at its natural alignment, and it advertises the bounds of the requests it accepts.
//
// Every other capability is optional and exposed through the smaller interfaces below. Use
// CapabilitiesOf or the dispatch helpers in this package rather than asserting them directly,
// since composite allocators implement every method but only support the ones their inner
// layers allow.
type Allocator interface {
	// Alignment is the alignment in bytes that every block returned from Allocate honors
	Alignment() uint
	// MinAllocSize is the smallest request, in bytes, that the allocator accepts
	MinAllocSize() int
	// MaxAllocSize is the largest request, in bytes, that the allocator accepts
	MaxAllocSize() int
	// Allocate returns a block of at least size bytes, or EmptyBlk on failure
	Allocate(size int) Blk
}

// AlignedAllocator can allocate blocks at an explicit power-of-two alignment
type AlignedAllocator interface {
	AllocateAligned(size int, alignment uint) Blk
}

// Reallocator can resize a block, in place or by moving it. On success the block is updated
// and true is returned. On failure the block is untouched and false is returned.
type Reallocator interface {
	Reallocate(blk *Blk, newSize int) bool
}

// AlignedReallocator is the aligned counterpart of Reallocator
type AlignedReallocator interface {
	ReallocateAligned(blk *Blk, newSize int, alignment uint) bool
}

// AllAllocator can hand out all of its remaining capacity as a single block
type AllAllocator interface {
	AllocateAll() Blk
}

// Deallocator can release a single block it produced with Allocate
type Deallocator interface {
	Deallocate(blk Blk)
}

// AlignedDeallocator can release a single block it produced with AllocateAligned
type AlignedDeallocator interface {
	DeallocateAligned(blk Blk)
}

// BulkDeallocator can release every block it has produced at once
type BulkDeallocator interface {
	DeallocateAll()
}

// Owner can report whether it is responsible for a block. Owns must be safe to call with any
// block at all.
type Owner interface {
	Owns(blk Blk) bool
}

// FullAllocator is satisfied by allocators that implement every operation
//
//go:generate mockgen -destination mocks/allocator.go -package mocks github.com/vkngwrapper/arsenal/blockalloc FullAllocator
type FullAllocator interface {
	Allocator
	AlignedAllocator
	Reallocator
	AlignedReallocator
	AllAllocator
	Deallocator
	AlignedDeallocator
	BulkDeallocator
	Owner
}

// Destroyer is implemented by allocators that hold memory from a backing allocator and can
// hand it all back. Destroy returns an error if blocks were still outstanding.
type Destroyer interface {
	Destroy() error
}
