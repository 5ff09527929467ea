package blockalloc

// InBounds returns true if size is a request the allocator accepts
func InBounds(allocator Allocator, size int) bool {
	return size > 0 && size >= allocator.MinAllocSize() && size <= allocator.MaxAllocSize()
}

// AllocateAligned allocates from allocator at the requested alignment. Allocators that support
// aligned allocation are called directly. Otherwise, the request succeeds through Allocate only
// if the allocator's natural alignment already satisfies it.
func AllocateAligned(allocator Allocator, size int, alignment uint) Blk {
	if !ValidAlignment(alignment) {
		return EmptyBlk
	}

	if Supports(allocator, CanAllocateAligned) {
		return allocator.(AlignedAllocator).AllocateAligned(size, alignment)
	}

	if alignment <= allocator.Alignment() {
		return allocator.Allocate(size)
	}

	return EmptyBlk
}

// Deallocate returns blk to allocator if the allocator supports releasing single blocks.
// It returns false if the allocator cannot release it.
func Deallocate(allocator Allocator, blk Blk) bool {
	if !blk.IsValid() {
		return true
	}

	if !Supports(allocator, CanDeallocate) {
		return false
	}

	allocator.(Deallocator).Deallocate(blk)
	return true
}

// DeallocateAligned returns a block produced by AllocateAligned to allocator. Allocators without
// a distinct aligned release are sent the block through Deallocate.
func DeallocateAligned(allocator Allocator, blk Blk) bool {
	if !blk.IsValid() {
		return true
	}

	if Supports(allocator, CanDeallocateAligned) {
		allocator.(AlignedDeallocator).DeallocateAligned(blk)
		return true
	}

	return Deallocate(allocator, blk)
}

// DeallocateAll releases every block allocator has produced, if it supports doing so
func DeallocateAll(allocator Allocator) bool {
	if !Supports(allocator, CanDeallocateAll) {
		return false
	}

	allocator.(BulkDeallocator).DeallocateAll()
	return true
}

// Owns reports whether allocator owns blk. Allocators that cannot answer report false.
func Owns(allocator Allocator, blk Blk) bool {
	if !Supports(allocator, CanOwn) {
		return false
	}

	return allocator.(Owner).Owns(blk)
}

// Reallocate resizes blk using allocator's native reallocation, falling back to
// ReallocateWithCopy when it has none
func Reallocate(allocator Allocator, blk *Blk, newSize int) bool {
	if Supports(allocator, CanReallocate) {
		return allocator.(Reallocator).Reallocate(blk, newSize)
	}

	return ReallocateWithCopy(allocator, blk, newSize)
}

// ReallocateAligned resizes an aligned blk using allocator's native aligned reallocation, falling
// back to ReallocateAlignedWithCopy when it has none
func ReallocateAligned(allocator Allocator, blk *Blk, newSize int, alignment uint) bool {
	if Supports(allocator, CanReallocateAligned) {
		return allocator.(AlignedReallocator).ReallocateAligned(blk, newSize, alignment)
	}

	return ReallocateAlignedWithCopy(allocator, blk, newSize, alignment)
}
