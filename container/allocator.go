// Package container adapts a block allocator to the typed slices that Go containers are built
// on. It plays the role a standard-library allocator adapter plays for C++ containers.
package container

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/blockalloc"
	"github.com/vkngwrapper/arsenal/blockalloc/affix"
)

// Allocator hands out slices of T backed by blocks from a backing allocator. Each block carries
// an affix.SizePrefix, so slices can be released without their length. T must not contain Go
// pointers.
type Allocator[T any] struct {
	affix *affix.Affix[affix.SizePrefix, affix.None]

	elementSize  int
	elementAlign uint
}

// New creates an Allocator that obtains blocks from backing
func New[T any](backing blockalloc.Allocator) (*Allocator[T], error) {
	if !blockalloc.PointerFreeType[T]() {
		return nil, cerrors.Wrapf(blockalloc.ErrInvalidOptions, "element type %T contains pointers", *new(T))
	}

	var element T
	elementSize := int(unsafe.Sizeof(element))
	if elementSize == 0 {
		return nil, cerrors.Wrapf(blockalloc.ErrInvalidOptions, "element type %T takes up no space", element)
	}

	prefixed, err := affix.New[affix.SizePrefix, affix.None](backing)
	if err != nil {
		return nil, err
	}

	return &Allocator[T]{
		affix:        prefixed,
		elementSize:  elementSize,
		elementAlign: uint(unsafe.Alignof(element)),
	}, nil
}

// MaxSize is the largest number of elements a single allocation can hold
func (a *Allocator[T]) MaxSize() int {
	return a.affix.MaxAllocSize() / a.elementSize
}

// Blocks returns the block allocator that slices are carved from
func (a *Allocator[T]) Blocks() blockalloc.Allocator {
	return a.affix
}

func (a *Allocator[T]) allocate(size int) blockalloc.Blk {
	if a.elementAlign > a.affix.Alignment() {
		return blockalloc.AllocateAligned(a.affix, size, a.elementAlign)
	}
	return a.affix.Allocate(size)
}

func (a *Allocator[T]) slice(blk blockalloc.Blk, n int) []T {
	a.affix.Prefix(blk).Size = uint64(blk.Size)
	return unsafe.Slice((*T)(blk.Ptr), n)
}

// blk rebuilds the block under s from its prefix
func (a *Allocator[T]) blk(s []T) blockalloc.Blk {
	ptr := unsafe.Pointer(unsafe.SliceData(s))
	prefix := a.affix.Prefix(blockalloc.Blk{Ptr: ptr})
	return blockalloc.Blk{Ptr: ptr, Size: int(prefix.Size)}
}

func (a *Allocator[T]) sizeFor(n int) (int, error) {
	if n <= 0 || n > a.MaxSize() {
		return 0, cerrors.Wrapf(blockalloc.ErrOutOfMemory, "cannot allocate %d elements of %d bytes; the limit is %d", n, a.elementSize, a.MaxSize())
	}
	return n * a.elementSize, nil
}

// Allocate returns a slice of n elements. The elements are not zeroed. An error wrapping
// blockalloc.ErrOutOfMemory is returned if the backing allocator cannot provide the memory.
func (a *Allocator[T]) Allocate(n int) ([]T, error) {
	size, err := a.sizeFor(n)
	if err != nil {
		return nil, err
	}

	blk := a.allocate(size)
	if !blk.IsValid() {
		return nil, cerrors.Wrapf(blockalloc.ErrOutOfMemory, "failed to allocate %d elements of %d bytes", n, a.elementSize)
	}

	return a.slice(blk, n), nil
}

// Deallocate releases a slice returned by Allocate or Reallocate. n is accepted to match the
// shape of container allocator interfaces and is ignored; the size is read from the block's
// prefix.
func (a *Allocator[T]) Deallocate(s []T, n int) {
	if unsafe.SliceData(s) == nil {
		return
	}

	blk := a.blk(s)
	if a.elementAlign > a.affix.Alignment() {
		a.affix.DeallocateAligned(blk)
		return
	}
	a.affix.Deallocate(blk)
}

// Reallocate resizes a slice to n elements, keeping the contents of the first min(len(s), n)
// elements. Reallocating a nil slice allocates, and reallocating to 0 elements releases the slice
// and returns nil. On failure s is still valid.
func (a *Allocator[T]) Reallocate(s []T, n int) ([]T, error) {
	if unsafe.SliceData(s) == nil {
		if n == 0 {
			return nil, nil
		}
		return a.Allocate(n)
	}

	if n == 0 {
		a.Deallocate(s, len(s))
		return nil, nil
	}

	size, err := a.sizeFor(n)
	if err != nil {
		return s, err
	}

	blk := a.blk(s)
	var ok bool
	if a.elementAlign > a.affix.Alignment() {
		ok = a.affix.ReallocateAligned(&blk, size, a.elementAlign)
	} else {
		ok = a.affix.Reallocate(&blk, size)
	}

	if !ok {
		return s, cerrors.Wrapf(blockalloc.ErrOutOfMemory, "failed to reallocate %d elements of %d bytes", n, a.elementSize)
	}

	return a.slice(blk, n), nil
}
