package blockalloc

// ReallocateWithCopy resizes blk by allocating a new block from allocator, copying the smaller of
// the two sizes into it, and releasing the old block. It needs allocator to support Deallocate.
//
// Reallocating to size 0 releases the block and leaves it empty. Reallocating an empty block
// behaves like Allocate. On failure blk is untouched.
func ReallocateWithCopy(allocator Allocator, blk *Blk, newSize int) bool {
	return reallocateWithCopy(allocator, blk, newSize, func(size int) Blk {
		return allocator.Allocate(size)
	}, func(old Blk) bool {
		return Deallocate(allocator, old)
	})
}

// ReallocateAlignedWithCopy is the aligned counterpart of ReallocateWithCopy
func ReallocateAlignedWithCopy(allocator Allocator, blk *Blk, newSize int, alignment uint) bool {
	return reallocateWithCopy(allocator, blk, newSize, func(size int) Blk {
		return AllocateAligned(allocator, size, alignment)
	}, func(old Blk) bool {
		return DeallocateAligned(allocator, old)
	})
}

// MoveBlk copies blk into a block obtained from allocate and releases the original with
// deallocate. It is the cross-allocator form of ReallocateWithCopy: allocate and deallocate may
// address different allocators.
func MoveBlk(blk *Blk, newSize int, allocate func(size int) Blk, deallocate func(old Blk)) bool {
	newBlk := allocate(newSize)
	if !newBlk.IsValid() {
		return false
	}

	CopyBlk(newBlk, *blk, blk.Size)
	deallocate(*blk)
	*blk = newBlk
	return true
}

func reallocateWithCopy(allocator Allocator, blk *Blk, newSize int, allocate func(size int) Blk, deallocate func(old Blk) bool) bool {
	if newSize == blk.Size && blk.IsValid() {
		return true
	}

	if newSize == 0 {
		if !blk.IsValid() {
			return true
		}
		if !Supports(allocator, CanDeallocate) {
			return false
		}

		deallocate(*blk)
		*blk = EmptyBlk
		return true
	}

	if !blk.IsValid() {
		newBlk := allocate(newSize)
		if !newBlk.IsValid() {
			return false
		}
		*blk = newBlk
		return true
	}

	if !Supports(allocator, CanDeallocate) {
		return false
	}

	return MoveBlk(blk, newSize, allocate, func(old Blk) {
		deallocate(old)
	})
}
