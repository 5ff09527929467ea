package tracking

import (
	"context"
	"sync"

	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/pkg/errors"
	"github.com/vkngwrapper/arsenal/blockalloc"
	"github.com/vkngwrapper/arsenal/blockalloc/internal/utils"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// Tracker wraps an allocator and records every block it hands out until the block is released.
// It supports every operation its backing allocator supports, and can always report whether it
// owns a block. Tracker is safe for concurrent use if its backing allocator is.
type Tracker struct {
	backing blockalloc.Allocator
	logger  *slog.Logger

	mutex     sync.Mutex
	live      *swiss.Map[uintptr, blockalloc.Blk]
	liveBytes int

	capabilities blockalloc.Capabilities
}

var _ blockalloc.FullAllocator = &Tracker{}
var _ blockalloc.CapabilityReporter = &Tracker{}
var _ blockalloc.DetailedStatisticsReporter = &Tracker{}

// New creates a Tracker around backing. If logger is nil, slog.Default() is used.
func New(backing blockalloc.Allocator, logger *slog.Logger) *Tracker {
	return &Tracker{
		backing:      backing,
		logger:       utils.LoggerOrDefault(logger),
		live:         swiss.NewMap[uintptr, blockalloc.Blk](64),
		capabilities: blockalloc.CapabilitiesOf(backing) | blockalloc.CanOwn,
	}
}

func (t *Tracker) Capabilities() blockalloc.Capabilities {
	return t.capabilities
}

func (t *Tracker) Alignment() uint   { return t.backing.Alignment() }
func (t *Tracker) MinAllocSize() int { return t.backing.MinAllocSize() }
func (t *Tracker) MaxAllocSize() int { return t.backing.MaxAllocSize() }

func (t *Tracker) Backing() blockalloc.Allocator {
	return t.backing
}

// LiveCount is the number of blocks handed out and not yet released
func (t *Tracker) LiveCount() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.live.Count()
}

// LiveBytes is the total size of the blocks handed out and not yet released
func (t *Tracker) LiveBytes() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.liveBytes
}

// LiveBlocks returns every live block, ordered by address
func (t *Tracker) LiveBlocks() []blockalloc.Blk {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.liveBlocks()
}

func (t *Tracker) liveBlocks() []blockalloc.Blk {
	blocks := make([]blockalloc.Blk, 0, t.live.Count())
	t.live.Iter(func(addr uintptr, blk blockalloc.Blk) bool {
		blocks = append(blocks, blk)
		return false
	})

	slices.SortFunc(blocks, func(left, right blockalloc.Blk) bool {
		return left.Addr() < right.Addr()
	})
	return blocks
}

func (t *Tracker) record(blk blockalloc.Blk) blockalloc.Blk {
	if !blk.IsValid() {
		return blk
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.live.Put(blk.Addr(), blk)
	t.liveBytes += blk.Size
	return blk
}

func (t *Tracker) forget(blk blockalloc.Blk) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	live, ok := t.live.Get(blk.Addr())
	blockalloc.DebugAssert(ok, "Tracker received a block at %#x that is not live", blk.Addr())
	if !ok {
		return
	}

	t.live.Delete(blk.Addr())
	t.liveBytes -= live.Size
}

func (t *Tracker) Allocate(size int) blockalloc.Blk {
	return t.record(t.backing.Allocate(size))
}

func (t *Tracker) AllocateAligned(size int, alignment uint) blockalloc.Blk {
	if !t.capabilities.Has(blockalloc.CanAllocateAligned) {
		return blockalloc.EmptyBlk
	}
	return t.record(t.backing.(blockalloc.AlignedAllocator).AllocateAligned(size, alignment))
}

func (t *Tracker) AllocateAll() blockalloc.Blk {
	if !t.capabilities.Has(blockalloc.CanAllocateAll) {
		return blockalloc.EmptyBlk
	}
	return t.record(t.backing.(blockalloc.AllAllocator).AllocateAll())
}

func (t *Tracker) Deallocate(blk blockalloc.Blk) {
	if !blk.IsValid() || !t.capabilities.Has(blockalloc.CanDeallocate) {
		return
	}

	t.forget(blk)
	t.backing.(blockalloc.Deallocator).Deallocate(blk)
}

func (t *Tracker) DeallocateAligned(blk blockalloc.Blk) {
	if !blk.IsValid() || !t.capabilities.Has(blockalloc.CanDeallocateAligned) {
		return
	}

	t.forget(blk)
	t.backing.(blockalloc.AlignedDeallocator).DeallocateAligned(blk)
}

func (t *Tracker) DeallocateAll() {
	if !t.capabilities.Has(blockalloc.CanDeallocateAll) {
		return
	}

	t.backing.(blockalloc.BulkDeallocator).DeallocateAll()

	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.live = swiss.NewMap[uintptr, blockalloc.Blk](64)
	t.liveBytes = 0
}

func (t *Tracker) resize(blk *blockalloc.Blk, resize func() bool) bool {
	old := *blk
	if !resize() {
		return false
	}

	if old.IsValid() {
		t.forget(old)
	}
	t.record(*blk)
	return true
}

func (t *Tracker) Reallocate(blk *blockalloc.Blk, newSize int) bool {
	if !t.capabilities.Has(blockalloc.CanReallocate) {
		return false
	}

	return t.resize(blk, func() bool {
		return t.backing.(blockalloc.Reallocator).Reallocate(blk, newSize)
	})
}

func (t *Tracker) ReallocateAligned(blk *blockalloc.Blk, newSize int, alignment uint) bool {
	if !t.capabilities.Has(blockalloc.CanReallocateAligned) {
		return false
	}

	return t.resize(blk, func() bool {
		return t.backing.(blockalloc.AlignedReallocator).ReallocateAligned(blk, newSize, alignment)
	})
}

// Owns returns true if blk starts at a live block and is no larger than it
func (t *Tracker) Owns(blk blockalloc.Blk) bool {
	if !blk.IsValid() {
		return false
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	live, ok := t.live.Get(blk.Addr())
	return ok && blk.Size <= live.Size
}

// Report logs every live block at error level and returns an error if there are any
func (t *Tracker) Report() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	blocks := t.liveBlocks()
	for _, blk := range blocks {
		t.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed block",
			slog.Any("address", blk.Addr()),
			slog.Int("size", blk.Size),
		)
	}

	if len(blocks) > 0 {
		return errors.Errorf("%d blocks totalling %d bytes were not freed", len(blocks), t.liveBytes)
	}
	return nil
}

// Validate checks that live blocks do not overlap and agree with the tracker's byte count
func (t *Tracker) Validate() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	blocks := t.liveBlocks()
	var total int
	for i, blk := range blocks {
		total += blk.Size
		if i > 0 && blocks[i-1].Overlaps(blk) {
			return errors.Errorf("live block at %#x overlaps live block at %#x", blk.Addr(), blocks[i-1].Addr())
		}
	}

	if total != t.liveBytes {
		return errors.Errorf("live blocks hold %d bytes, but the tracker accounts for %d", total, t.liveBytes)
	}

	return nil
}

func (t *Tracker) AddStatistics(stats *blockalloc.Statistics) {
	backingStats := blockalloc.CollectStatistics(t.backing)
	stats.AddStatistics(&backingStats)
}

func (t *Tracker) AddDetailedStatistics(stats *blockalloc.DetailedStatistics) {
	backingStats := blockalloc.CollectDetailedStatistics(t.backing)
	stats.AddDetailedStatistics(&backingStats)
}

func (t *Tracker) WriteJSON(json *jwriter.ObjectState) {
	t.mutex.Lock()
	json.Name("Type").String("Tracker")
	json.Name("LiveCount").Int(t.live.Count())
	json.Name("LiveBytes").Int(t.liveBytes)
	t.mutex.Unlock()

	blockalloc.WriteAllocatorJSON(json, "Backing", t.backing)
}
