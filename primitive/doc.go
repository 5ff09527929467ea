// Package primitive contains the leaf allocators of a composed allocator graph: the allocators
// that obtain memory from the Go heap or directly from the operating system rather than from
// another allocator.
//
// Mallocator and AlignedMallocator allocate from the Go heap. Their Deallocate methods only
// update accounting; memory is reclaimed by the garbage collector once no Blk refers to it.
// PageAllocator maps anonymous pages from the operating system and unmaps them on Deallocate.
package primitive
