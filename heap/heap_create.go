package heap

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/blockalloc"
	"github.com/vkngwrapper/arsenal/blockalloc/internal/utils"
	"golang.org/x/exp/slog"
)

// BitmapPlacement chooses where a Heap keeps the bitmap that tracks its blocks
type BitmapPlacement uint32

const (
	// BitmapInternal stores the bitmap in the first blocks of the heap's own storage. Those blocks
	// are permanently marked used and are never handed out.
	BitmapInternal BitmapPlacement = iota
	// BitmapExternal stores the bitmap in a separate allocation from CreateOptions.BitmapAllocator,
	// leaving every block of the heap's storage available to clients.
	BitmapExternal
)

var bitmapPlacementMapping = map[BitmapPlacement]string{
	BitmapInternal: "BitmapInternal",
	BitmapExternal: "BitmapExternal",
}

func (p BitmapPlacement) String() string {
	return bitmapPlacementMapping[p]
}

// CreateOptions contains the settings used to create a Heap
type CreateOptions struct {
	// BlockSize is the size in bytes of each block. It must be a power of two and at least 8.
	BlockSize int
	// BlockCount is the number of blocks in the heap, including any reserved for the bitmap
	BlockCount int
	// Bitmap chooses where the heap's bitmap is stored
	Bitmap BitmapPlacement
	// BitmapAllocator is the allocator the bitmap is obtained from when Bitmap is BitmapExternal.
	// If it is nil, the backing allocator is used.
	BitmapAllocator blockalloc.Allocator
	// Logger receives debug output when storage is acquired and errors for unreleased memory
	// in Destroy. If it is nil, slog.Default() is used.
	Logger *slog.Logger
}

// New creates a Heap that obtains its storage from backing the first time it is asked to allocate
func New(backing blockalloc.Allocator, options CreateOptions) (*Heap, error) {
	logger := utils.LoggerOrDefault(options.Logger)

	s, err := newStorage(backing, options.BlockSize, options.BlockCount, logger)
	if err != nil {
		return nil, err
	}

	h := &Heap{
		storage:   s,
		placement: options.Bitmap,
	}

	switch options.Bitmap {
	case BitmapInternal:
		if s.alignment < 8 {
			return nil, cerrors.Wrapf(blockalloc.ErrInvalidOptions, "an internal bitmap needs storage aligned to 8 bytes, but the backing allocator only provides %d", s.alignment)
		}

		h.reservedBlocks = s.blocksFor(BitmapWords(options.BlockCount) * 8)
		if h.reservedBlocks >= options.BlockCount {
			return nil, cerrors.Wrapf(blockalloc.ErrInvalidOptions, "a heap of %d blocks has no room left after reserving %d blocks for its bitmap", options.BlockCount, h.reservedBlocks)
		}
	case BitmapExternal:
		h.bitmapAllocator = options.BitmapAllocator
		if h.bitmapAllocator == nil {
			h.bitmapAllocator = backing
		}
	default:
		return nil, cerrors.Wrapf(blockalloc.ErrInvalidOptions, "unknown bitmap placement: %d", options.Bitmap)
	}

	return h, nil
}

// StaticOptions contains the settings used to create a Static heap
type StaticOptions struct {
	// BlockSize is the size in bytes of each block. It must be a power of two and at least 8.
	BlockSize int
	// BlockCount is the number of blocks in the heap
	BlockCount int
	// Logger receives debug output when storage is acquired. If it is nil, slog.Default() is used.
	Logger *slog.Logger
}

// NewStatic creates a Static heap that obtains its storage from backing the first time it is
// asked to allocate
func NewStatic(backing blockalloc.Allocator, options StaticOptions) (*Static, error) {
	s, err := newStorage(backing, options.BlockSize, options.BlockCount, utils.LoggerOrDefault(options.Logger))
	if err != nil {
		return nil, err
	}

	return &Static{storage: s}, nil
}
