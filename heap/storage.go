package heap

import (
	"math/bits"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/blockalloc"
	"golang.org/x/exp/slog"
)

// storage is the contiguous run of BlockCount blocks of BlockSize bytes that a heap carves
// allocations from. It is obtained lazily from the backing allocator.
type storage struct {
	backing blockalloc.Allocator
	logger  *slog.Logger

	blockSize  int
	blockShift int
	blockCount int
	alignment  uint
	aligned    bool

	blk blockalloc.Blk
}

func newStorage(backing blockalloc.Allocator, blockSize, blockCount int, logger *slog.Logger) (storage, error) {
	if backing == nil {
		return storage{}, cerrors.Wrap(blockalloc.ErrInvalidOptions, "a backing allocator is required")
	}

	err := blockalloc.CheckPow2(blockSize, "BlockSize")
	if err != nil {
		return storage{}, cerrors.Wrap(err, "heap block size")
	}

	if blockSize < 8 {
		return storage{}, cerrors.Wrapf(blockalloc.ErrInvalidOptions, "BlockSize %d must be at least 8", blockSize)
	}

	if blockCount < 1 {
		return storage{}, cerrors.Wrapf(blockalloc.ErrInvalidOptions, "BlockCount %d must be at least 1", blockCount)
	}

	capacity := blockSize * blockCount
	if capacity/blockSize != blockCount || capacity > backing.MaxAllocSize() || capacity < backing.MinAllocSize() {
		return storage{}, cerrors.Wrapf(blockalloc.ErrInvalidOptions, "heap capacity of %d blocks of %d bytes cannot be served by the backing allocator", blockCount, blockSize)
	}

	s := storage{
		backing:    backing,
		logger:     logger,
		blockSize:  blockSize,
		blockShift: bits.TrailingZeros(uint(blockSize)),
		blockCount: blockCount,
	}

	wanted := blockalloc.MinUint(uint(blockSize), blockalloc.MaxAlignment)
	if blockalloc.Supports(backing, blockalloc.CanAllocateAligned) {
		s.aligned = true
		s.alignment = wanted
	} else {
		s.alignment = blockalloc.MinUint(wanted, backing.Alignment())
	}

	return s, nil
}

func (s *storage) capacity() int {
	return s.blockSize * s.blockCount
}

// Capacity is the size in bytes of the storage obtained from the backing allocator
func (s *storage) Capacity() int {
	return s.capacity()
}

func (s *storage) acquire(owner string) bool {
	if s.blk.IsValid() {
		return true
	}

	var blk blockalloc.Blk
	if s.aligned {
		blk = s.backing.(blockalloc.AlignedAllocator).AllocateAligned(s.capacity(), s.alignment)
	} else {
		blk = s.backing.Allocate(s.capacity())
	}

	if !blk.IsValid() {
		s.logger.Debug(owner+"::acquire failed to obtain storage", slog.Int("Size", s.capacity()))
		return false
	}

	s.logger.Debug(owner+"::acquire", slog.Int("BlockSize", s.blockSize), slog.Int("BlockCount", s.blockCount))
	s.blk = blk
	return true
}

func (s *storage) release() {
	if !s.blk.IsValid() {
		return
	}

	if s.aligned {
		blockalloc.DeallocateAligned(s.backing, s.blk)
	} else {
		blockalloc.Deallocate(s.backing, s.blk)
	}
	s.blk = blockalloc.EmptyBlk
}

func (s *storage) blocksFor(size int) int {
	return (size + s.blockSize - 1) >> s.blockShift
}

func (s *storage) blockPtr(index int) unsafe.Pointer {
	return unsafe.Add(s.blk.Ptr, index<<s.blockShift)
}

func (s *storage) blockIndex(ptr unsafe.Pointer) int {
	return int(uintptr(ptr)-s.blk.Addr()) >> s.blockShift
}

// alignedStart returns the first block index whose address is a multiple of alignment and the
// stride between such blocks. ok is false if no block in the storage can meet the alignment.
func (s *storage) alignedStart(alignment uint) (first int, step int, ok bool) {
	base := s.blk.Addr()
	offset := int(blockalloc.AlignUp(base, alignment) - base)
	if offset%s.blockSize != 0 {
		return 0, 0, false
	}

	step = 1
	if int(alignment) > s.blockSize {
		step = int(alignment) / s.blockSize
	}

	return offset >> s.blockShift, step, true
}
