package blockalloc

import "unsafe"

// Blk is a contiguous region of memory: a pointer and the number of bytes available at that
// pointer. It is the value exchanged by every allocator in this module. A Blk with a nil Ptr
// represents "no allocation" and is what every allocator returns when it cannot satisfy a request.
//
// Memory described by a Blk is raw: it is not scanned by the garbage collector, so Go pointers
// must never be stored inside it.
type Blk struct {
	Ptr  unsafe.Pointer
	Size int
}

// EmptyBlk is the block returned by allocators on failure
var EmptyBlk = Blk{}

// IsValid returns true if the block points at memory
func (b Blk) IsValid() bool {
	return b.Ptr != nil
}

// Addr returns the address of the first byte of the block
func (b Blk) Addr() uintptr {
	return uintptr(b.Ptr)
}

// End returns the address one past the last byte of the block
func (b Blk) End() uintptr {
	return uintptr(b.Ptr) + uintptr(b.Size)
}

// Bytes returns a byte slice view over the block. The slice aliases the block's memory and is
// only valid until the block is deallocated.
func (b Blk) Bytes() []byte {
	if b.Ptr == nil || b.Size <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(b.Ptr), b.Size)
}

// Contains returns true if other lies entirely within b
func (b Blk) Contains(other Blk) bool {
	if !b.IsValid() || !other.IsValid() {
		return false
	}
	return other.Addr() >= b.Addr() && other.End() <= b.End()
}

// ContainsPtr returns true if ptr addresses a byte within b
func (b Blk) ContainsPtr(ptr unsafe.Pointer) bool {
	if !b.IsValid() || ptr == nil {
		return false
	}
	addr := uintptr(ptr)
	return addr >= b.Addr() && addr < b.End()
}

// Overlaps returns true if b and other share at least one byte
func (b Blk) Overlaps(other Blk) bool {
	if !b.IsValid() || !other.IsValid() || b.Size == 0 || other.Size == 0 {
		return false
	}
	return b.Addr() < other.End() && other.Addr() < b.End()
}

// Sub returns the block that starts offset bytes into b and is size bytes long. It does not check
// bounds.
func (b Blk) Sub(offset, size int) Blk {
	return Blk{Ptr: unsafe.Add(b.Ptr, offset), Size: size}
}

// CopyBlk copies the first n bytes of src into dst. n is clamped to the size of both blocks.
func CopyBlk(dst, src Blk, n int) int {
	if n > dst.Size {
		n = dst.Size
	}
	if n > src.Size {
		n = src.Size
	}
	if n <= 0 {
		return 0
	}
	return copy(dst.Sub(0, n).Bytes(), src.Sub(0, n).Bytes())
}
