package freelist

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/blockalloc"
	"github.com/vkngwrapper/arsenal/blockalloc/internal/utils"
	"golang.org/x/exp/slog"
)

const (
	// linkSize is the number of bytes at the start of every free block used to link it to the
	// next free block
	linkSize = 8
	// defaultBatchSize is the number of blocks per chunk used when CreateOptions.BatchSize is 0
	defaultBatchSize = 64
)

// CreateOptions contains the settings used to create a Freelist
type CreateOptions struct {
	// MinAllocSize is the smallest request the freelist accepts. If it is 0, 1 is used.
	MinAllocSize int
	// MaxAllocSize is the largest request the freelist accepts, and the size of every block it
	// hands out. It must be a multiple of 8.
	MaxAllocSize int
	// BatchSize is the number of blocks carved from each chunk, including the blocks that hold
	// the chunk header. If it is 0, 64 is used.
	BatchSize int
	// ThreadSafe guards every operation with a mutex. When it is false, the freelist must only
	// be used from one goroutine at a time.
	ThreadSafe bool
	// Logger receives debug output when chunks are created and errors for unreleased memory in
	// Destroy. If it is nil, slog.Default() is used.
	Logger *slog.Logger
}

// New creates a Freelist that carves chunks from backing on demand
func New(backing blockalloc.Allocator, options CreateOptions) (*Freelist, error) {
	if backing == nil {
		return nil, cerrors.Wrap(blockalloc.ErrInvalidOptions, "a backing allocator is required")
	}

	minAllocSize := options.MinAllocSize
	if minAllocSize == 0 {
		minAllocSize = 1
	}

	batchSize := options.BatchSize
	if batchSize == 0 {
		batchSize = defaultBatchSize
	}

	maxAllocSize := options.MaxAllocSize
	if maxAllocSize < linkSize || maxAllocSize%linkSize != 0 {
		return nil, cerrors.Wrapf(blockalloc.ErrInvalidOptions, "MaxAllocSize %d must be a positive multiple of %d", maxAllocSize, linkSize)
	}

	if minAllocSize < 1 || minAllocSize > maxAllocSize {
		return nil, cerrors.Wrapf(blockalloc.ErrInvalidOptions, "MinAllocSize %d must be between 1 and MaxAllocSize %d", minAllocSize, maxAllocSize)
	}

	infoBlocks := (chunkHeaderSize + maxAllocSize - 1) / maxAllocSize
	if batchSize <= infoBlocks {
		return nil, cerrors.Wrapf(blockalloc.ErrInvalidOptions, "BatchSize %d leaves no blocks after the %d blocks of chunk header", batchSize, infoBlocks)
	}

	chunkSize := batchSize * maxAllocSize
	if chunkSize/batchSize != maxAllocSize || chunkSize > backing.MaxAllocSize() || chunkSize < backing.MinAllocSize() {
		return nil, cerrors.Wrapf(blockalloc.ErrInvalidOptions, "chunks of %d bytes cannot be served by the backing allocator", chunkSize)
	}

	f := &Freelist{
		backing:      backing,
		logger:       utils.LoggerOrDefault(options.Logger),
		mutex:        utils.NewOptionalMutex(options.ThreadSafe),
		minAllocSize: minAllocSize,
		maxAllocSize: maxAllocSize,
		batchSize:    batchSize,
		infoBlocks:   infoBlocks,
	}

	f.chunkAlignment = blockalloc.AlignmentOf(maxAllocSize)
	if blockalloc.Supports(backing, blockalloc.CanAllocateAligned) {
		f.alignedChunks = true
	} else {
		f.chunkAlignment = blockalloc.MinUint(f.chunkAlignment, backing.Alignment())
	}

	if f.chunkAlignment < linkSize {
		return nil, cerrors.Wrapf(blockalloc.ErrInvalidOptions, "freelist chunks must be aligned to %d bytes, but the backing allocator only provides %d", linkSize, f.chunkAlignment)
	}

	return f, nil
}
