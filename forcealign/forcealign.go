package forcealign

import (
	"encoding/binary"
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/arsenal/blockalloc"
)

// suffixSize is the size of the record written after the client bytes of a padded block: the
// padding before the client bytes and the slack after the record, as two little-endian uint32s
const suffixSize = 8

// ForceAlign makes every block from a backing allocator honor a minimum alignment. If the backing
// allocator can allocate aligned blocks, requests are forwarded to it. Otherwise each block is
// over-allocated, aligned within the backing block, and followed by a record of the padding so
// the backing block can be rebuilt on deallocation.
type ForceAlign struct {
	backing   blockalloc.Allocator
	alignment uint
	native    bool

	capabilities blockalloc.Capabilities
}

var _ blockalloc.FullAllocator = &ForceAlign{}
var _ blockalloc.CapabilityReporter = &ForceAlign{}
var _ blockalloc.DetailedStatisticsReporter = &ForceAlign{}

// New creates a ForceAlign that aligns every block from backing to alignment
func New(backing blockalloc.Allocator, alignment uint) (*ForceAlign, error) {
	if backing == nil {
		return nil, cerrors.Wrap(blockalloc.ErrInvalidOptions, "a backing allocator is required")
	}

	err := blockalloc.CheckPow2(alignment, "alignment")
	if err != nil {
		return nil, err
	}

	if alignment > blockalloc.MaxAlignment {
		return nil, cerrors.Wrapf(blockalloc.ErrInvalidOptions, "alignment %d is larger than the maximum of %d", alignment, blockalloc.MaxAlignment)
	}

	backingCaps := blockalloc.CapabilitiesOf(backing)
	f := &ForceAlign{
		backing:   backing,
		alignment: alignment,
		native:    backingCaps.Has(blockalloc.CanAllocateAligned),
	}

	caps := blockalloc.CanAllocate | blockalloc.CanAllocateAligned
	caps |= backingCaps & (blockalloc.CanAllocateAll | blockalloc.CanDeallocateAll | blockalloc.CanOwn)

	canDeallocate := backingCaps.Has(blockalloc.CanDeallocate)
	if f.native {
		canDeallocate = canDeallocate || backingCaps.Has(blockalloc.CanDeallocateAligned)
	}
	if canDeallocate {
		caps |= blockalloc.CanDeallocate | blockalloc.CanDeallocateAligned | blockalloc.CanReallocate | blockalloc.CanReallocateAligned
	}

	f.capabilities = caps
	return f, nil
}

func (f *ForceAlign) Capabilities() blockalloc.Capabilities {
	return f.capabilities
}

func (f *ForceAlign) Alignment() uint {
	if f.backing.Alignment() > f.alignment {
		return blockalloc.MinUint(f.backing.Alignment(), blockalloc.MaxAlignment)
	}
	return f.alignment
}

func (f *ForceAlign) MinAllocSize() int { return f.backing.MinAllocSize() }

func (f *ForceAlign) MaxAllocSize() int {
	if f.native {
		return f.backing.MaxAllocSize()
	}

	maxSize := f.backing.MaxAllocSize() - f.slack(f.alignment) - suffixSize
	if maxSize < 0 {
		return 0
	}
	return maxSize
}

// Native returns true if blocks are aligned by the backing allocator rather than by padding
func (f *ForceAlign) Native() bool {
	return f.native
}

func (f *ForceAlign) slack(alignment uint) int {
	if alignment <= f.backing.Alignment() {
		return 0
	}
	return int(alignment) - 1
}

func (f *ForceAlign) effectiveAlignment(alignment uint) uint {
	if alignment < f.alignment {
		return f.alignment
	}
	return alignment
}

func suffixBytes(blk blockalloc.Blk) []byte {
	return unsafe.Slice((*byte)(unsafe.Add(blk.Ptr, blk.Size)), suffixSize)
}

func writeSuffix(blk blockalloc.Blk, padding, trailing int) {
	suffix := suffixBytes(blk)
	binary.LittleEndian.PutUint32(suffix[:4], uint32(padding))
	binary.LittleEndian.PutUint32(suffix[4:], uint32(trailing))
}

func readSuffix(blk blockalloc.Blk) (padding, trailing int) {
	suffix := suffixBytes(blk)
	return int(binary.LittleEndian.Uint32(suffix[:4])), int(binary.LittleEndian.Uint32(suffix[4:]))
}

// backingBlk rebuilds the backing block a padded block was carved from
func backingBlk(blk blockalloc.Blk) blockalloc.Blk {
	padding, trailing := readSuffix(blk)
	return blockalloc.Blk{
		Ptr:  unsafe.Add(blk.Ptr, -padding),
		Size: padding + blk.Size + suffixSize + trailing,
	}
}

// place aligns a client block of size bytes within backing and records the suffix. ok is false if
// it does not fit.
func place(backing blockalloc.Blk, size int, alignment uint) (blockalloc.Blk, bool) {
	aligned, remaining, ok := blockalloc.AlignWithin(alignment, size+suffixSize, backing.Ptr, backing.Size)
	if !ok {
		return blockalloc.EmptyBlk, false
	}

	padding := int(uintptr(aligned) - backing.Addr())
	blk := blockalloc.Blk{Ptr: aligned, Size: size}
	writeSuffix(blk, padding, remaining-size-suffixSize)
	return blk, true
}

func (f *ForceAlign) allocatePadded(size int, alignment uint) blockalloc.Blk {
	total, ok := blockalloc.AddSize(size, f.slack(alignment)+suffixSize)
	if !ok || total > f.backing.MaxAllocSize() {
		return blockalloc.EmptyBlk
	}

	backing := f.backing.Allocate(total)
	if !backing.IsValid() {
		return blockalloc.EmptyBlk
	}

	blk, ok := place(backing, size, alignment)
	if !ok {
		blockalloc.Deallocate(f.backing, backing)
		return blockalloc.EmptyBlk
	}
	return blk
}

func (f *ForceAlign) Allocate(size int) blockalloc.Blk {
	return f.AllocateAligned(size, f.alignment)
}

// AllocateAligned allocates at the larger of alignment and the ForceAlign's own alignment
func (f *ForceAlign) AllocateAligned(size int, alignment uint) blockalloc.Blk {
	if !blockalloc.ValidAlignment(alignment) || !blockalloc.InBounds(f, size) {
		return blockalloc.EmptyBlk
	}

	alignment = f.effectiveAlignment(alignment)
	if f.native {
		return f.backing.(blockalloc.AlignedAllocator).AllocateAligned(size, alignment)
	}

	return f.allocatePadded(size, alignment)
}

// AllocateAll aligns within the backing allocator's AllocateAll block. If the aligned block and
// its suffix do not fit, the backing block is released when the backing allocator supports it,
// and an empty block is returned. Blocks from AllocateAll are always padded, and are released
// with DeallocateAll.
func (f *ForceAlign) AllocateAll() blockalloc.Blk {
	if !f.capabilities.Has(blockalloc.CanAllocateAll) {
		return blockalloc.EmptyBlk
	}

	backing := f.backing.(blockalloc.AllAllocator).AllocateAll()
	if !backing.IsValid() {
		return blockalloc.EmptyBlk
	}

	aligned, remaining, ok := blockalloc.AlignWithin(f.alignment, suffixSize+1, backing.Ptr, backing.Size)
	if !ok {
		blockalloc.Deallocate(f.backing, backing)
		return blockalloc.EmptyBlk
	}

	padding := int(uintptr(aligned) - backing.Addr())
	blk := blockalloc.Blk{Ptr: aligned, Size: remaining - suffixSize}
	writeSuffix(blk, padding, 0)
	return blk
}

func (f *ForceAlign) Deallocate(blk blockalloc.Blk) {
	if !blk.IsValid() || !f.capabilities.Has(blockalloc.CanDeallocate) {
		return
	}

	if f.native {
		blockalloc.DeallocateAligned(f.backing, blk)
		return
	}

	blockalloc.Deallocate(f.backing, backingBlk(blk))
}

func (f *ForceAlign) DeallocateAligned(blk blockalloc.Blk) {
	f.Deallocate(blk)
}

func (f *ForceAlign) DeallocateAll() {
	blockalloc.DeallocateAll(f.backing)
}

// Owns returns true if the backing allocator owns the memory under blk
func (f *ForceAlign) Owns(blk blockalloc.Blk) bool {
	if !blk.IsValid() || !f.capabilities.Has(blockalloc.CanOwn) {
		return false
	}

	return f.backing.(blockalloc.Owner).Owns(blk)
}

func (f *ForceAlign) Reallocate(blk *blockalloc.Blk, newSize int) bool {
	return f.ReallocateAligned(blk, newSize, f.alignment)
}

// ReallocateAligned resizes blk at the larger of alignment and the ForceAlign's own alignment.
// Padded blocks are resized in place while the new size fits in their backing block and the
// block is already suitably aligned.
func (f *ForceAlign) ReallocateAligned(blk *blockalloc.Blk, newSize int, alignment uint) bool {
	if !f.capabilities.Has(blockalloc.CanReallocate) || !blockalloc.ValidAlignment(alignment) {
		return false
	}

	alignment = f.effectiveAlignment(alignment)
	if !blk.IsValid() || newSize == 0 {
		return blockalloc.ReallocateAlignedWithCopy(f, blk, newSize, alignment)
	}

	if !blockalloc.InBounds(f, newSize) {
		return false
	}

	if f.native {
		if blockalloc.Supports(f.backing, blockalloc.CanReallocateAligned) {
			return f.backing.(blockalloc.AlignedReallocator).ReallocateAligned(blk, newSize, alignment)
		}
		return blockalloc.ReallocateAlignedWithCopy(f, blk, newSize, alignment)
	}

	if blockalloc.IsAligned(blk.Ptr, alignment) {
		padding, trailing := readSuffix(*blk)
		available := blk.Size + trailing
		if newSize <= available {
			blk.Size = newSize
			writeSuffix(*blk, padding, available-newSize)
			return true
		}
	}

	return blockalloc.ReallocateAlignedWithCopy(f, blk, newSize, alignment)
}

func (f *ForceAlign) AddStatistics(stats *blockalloc.Statistics) {
	backingStats := blockalloc.CollectStatistics(f.backing)
	stats.AddStatistics(&backingStats)
}

func (f *ForceAlign) AddDetailedStatistics(stats *blockalloc.DetailedStatistics) {
	backingStats := blockalloc.CollectDetailedStatistics(f.backing)
	stats.AddDetailedStatistics(&backingStats)
}

func (f *ForceAlign) WriteJSON(json *jwriter.ObjectState) {
	json.Name("Type").String("ForceAlign")
	json.Name("Capabilities").String(f.capabilities.String())
	json.Name("Alignment").Int(int(f.alignment))
	json.Name("Native").Bool(f.native)

	blockalloc.WriteAllocatorJSON(json, "Backing", f.backing)
}
