package segregator

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/arsenal/blockalloc"
)

// Segregator routes requests below a size threshold to one allocator and every other request to
// another. A request is never retried on the other side.
//
// Blocks are routed back to their side by size, so a block must keep the size it was allocated
// with (or resized to) while it is live. A block whose reported size crosses the threshold, such
// as an aligned block whose size was reduced by padding, is routed to the wrong side.
type Segregator struct {
	small     blockalloc.Allocator
	large     blockalloc.Allocator
	threshold int

	capabilities blockalloc.Capabilities
}

var _ blockalloc.FullAllocator = &Segregator{}
var _ blockalloc.CapabilityReporter = &Segregator{}
var _ blockalloc.DetailedStatisticsReporter = &Segregator{}

// New creates a Segregator that sends requests smaller than threshold to small and all others to
// large
func New(small, large blockalloc.Allocator, threshold int) (*Segregator, error) {
	if small == nil || large == nil {
		return nil, cerrors.Wrap(blockalloc.ErrInvalidOptions, "both a small and a large allocator are required")
	}

	if threshold < 1 {
		return nil, cerrors.Wrapf(blockalloc.ErrInvalidOptions, "threshold %d must be at least 1", threshold)
	}

	smallCaps := blockalloc.CapabilitiesOf(small)
	largeCaps := blockalloc.CapabilitiesOf(large)
	both := smallCaps & largeCaps

	caps := blockalloc.CanAllocate | blockalloc.CanOwn
	caps |= both & (blockalloc.CanAllocateAligned | blockalloc.CanDeallocate | blockalloc.CanDeallocateAligned | blockalloc.CanDeallocateAll)
	if both.Has(blockalloc.CanDeallocate) {
		caps |= blockalloc.CanReallocate
	}
	if both.Has(blockalloc.CanDeallocateAligned) {
		caps |= blockalloc.CanReallocateAligned
	}

	return &Segregator{
		small:        small,
		large:        large,
		threshold:    threshold,
		capabilities: caps,
	}, nil
}

func (s *Segregator) Capabilities() blockalloc.Capabilities {
	return s.capabilities
}

func (s *Segregator) Alignment() uint {
	return blockalloc.MinUint(s.small.Alignment(), s.large.Alignment())
}

func (s *Segregator) MinAllocSize() int { return s.small.MinAllocSize() }
func (s *Segregator) MaxAllocSize() int { return s.large.MaxAllocSize() }

// Threshold is the smallest request routed to the large allocator
func (s *Segregator) Threshold() int { return s.threshold }

func (s *Segregator) Small() blockalloc.Allocator { return s.small }
func (s *Segregator) Large() blockalloc.Allocator { return s.large }

func (s *Segregator) side(size int) blockalloc.Allocator {
	if size < s.threshold {
		return s.small
	}
	return s.large
}

func (s *Segregator) Allocate(size int) blockalloc.Blk {
	if size <= 0 {
		return blockalloc.EmptyBlk
	}

	return s.side(size).Allocate(size)
}

func (s *Segregator) AllocateAligned(size int, alignment uint) blockalloc.Blk {
	if size <= 0 || !s.capabilities.Has(blockalloc.CanAllocateAligned) {
		return blockalloc.EmptyBlk
	}

	return blockalloc.AllocateAligned(s.side(size), size, alignment)
}

// AllocateAll is not supported by segregators and always returns an empty block
func (s *Segregator) AllocateAll() blockalloc.Blk {
	return blockalloc.EmptyBlk
}

// Owns asks the side that blk's size routes to
func (s *Segregator) Owns(blk blockalloc.Blk) bool {
	if !blk.IsValid() {
		return false
	}

	return blockalloc.Owns(s.side(blk.Size), blk)
}

func (s *Segregator) Deallocate(blk blockalloc.Blk) {
	if !blk.IsValid() || !s.capabilities.Has(blockalloc.CanDeallocate) {
		return
	}

	s.side(blk.Size).(blockalloc.Deallocator).Deallocate(blk)
}

func (s *Segregator) DeallocateAligned(blk blockalloc.Blk) {
	if !blk.IsValid() || !s.capabilities.Has(blockalloc.CanDeallocateAligned) {
		return
	}

	s.side(blk.Size).(blockalloc.AlignedDeallocator).DeallocateAligned(blk)
}

func (s *Segregator) DeallocateAll() {
	blockalloc.DeallocateAll(s.small)
	blockalloc.DeallocateAll(s.large)
}

// Reallocate resizes blk within its side when the new size routes to the same side, and moves
// it to the other side otherwise
func (s *Segregator) Reallocate(blk *blockalloc.Blk, newSize int) bool {
	if !s.capabilities.Has(blockalloc.CanReallocate) {
		return false
	}

	if !blk.IsValid() || newSize == 0 {
		return blockalloc.ReallocateWithCopy(s, blk, newSize)
	}

	from := s.side(blk.Size)
	to := s.side(newSize)
	if from == to {
		return blockalloc.Reallocate(from, blk, newSize)
	}

	return blockalloc.MoveBlk(blk, newSize, to.Allocate, func(old blockalloc.Blk) {
		blockalloc.Deallocate(from, old)
	})
}

func (s *Segregator) ReallocateAligned(blk *blockalloc.Blk, newSize int, alignment uint) bool {
	if !s.capabilities.Has(blockalloc.CanReallocateAligned | blockalloc.CanAllocateAligned) {
		return false
	}

	if !blk.IsValid() || newSize == 0 {
		return blockalloc.ReallocateAlignedWithCopy(s, blk, newSize, alignment)
	}

	from := s.side(blk.Size)
	to := s.side(newSize)
	if from == to {
		return blockalloc.ReallocateAligned(from, blk, newSize, alignment)
	}

	return blockalloc.MoveBlk(blk, newSize, func(size int) blockalloc.Blk {
		return blockalloc.AllocateAligned(to, size, alignment)
	}, func(old blockalloc.Blk) {
		blockalloc.DeallocateAligned(from, old)
	})
}

func (s *Segregator) AddStatistics(stats *blockalloc.Statistics) {
	smallStats := blockalloc.CollectStatistics(s.small)
	largeStats := blockalloc.CollectStatistics(s.large)
	stats.AddStatistics(&smallStats)
	stats.AddStatistics(&largeStats)
}

func (s *Segregator) AddDetailedStatistics(stats *blockalloc.DetailedStatistics) {
	smallStats := blockalloc.CollectDetailedStatistics(s.small)
	largeStats := blockalloc.CollectDetailedStatistics(s.large)
	stats.AddDetailedStatistics(&smallStats)
	stats.AddDetailedStatistics(&largeStats)
}

func (s *Segregator) WriteJSON(json *jwriter.ObjectState) {
	json.Name("Type").String("Segregator")
	json.Name("Capabilities").String(s.capabilities.String())
	json.Name("Threshold").Int(s.threshold)

	var stats blockalloc.Statistics
	s.AddStatistics(&stats)
	blockalloc.WriteStatisticsJSON(json, &stats)

	blockalloc.WriteAllocatorJSON(json, "Small", s.small)
	blockalloc.WriteAllocatorJSON(json, "Large", s.large)
}
