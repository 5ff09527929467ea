package affix

import (
	"encoding/binary"
	"unsafe"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/arsenal/blockalloc"
)

// mementoSize is the size of the record of the alignment a block was allocated at. It follows
// the client bytes, which may end at any address, so it is read and written bytewise.
const mementoSize = 2

// Affix wraps a backing allocator and surrounds every block with a P before the client bytes
// and an S after them:
//
//	[P][client bytes][alignment memento][padding to the alignment of S][S]
//
// The prefix sits directly before the client bytes and the suffix follows the memento at the
// next address aligned for S. Blocks returned by Affix report the size the client asked for.
type Affix[P any, S any] struct {
	backing blockalloc.Allocator

	prefixSize  int
	prefixAlign uint
	suffixSize  int
	suffixAlign uint
	alignment   uint

	capabilities blockalloc.Capabilities
}

var _ blockalloc.FullAllocator = &Affix[SizePrefix, None]{}
var _ blockalloc.CapabilityReporter = &Affix[SizePrefix, None]{}
var _ blockalloc.DetailedStatisticsReporter = &Affix[SizePrefix, None]{}

func (a *Affix[P, S]) Capabilities() blockalloc.Capabilities {
	return a.capabilities
}

func (a *Affix[P, S]) Alignment() uint   { return a.alignment }
func (a *Affix[P, S]) MinAllocSize() int { return 1 }

func (a *Affix[P, S]) MaxAllocSize() int {
	maxSize := a.backing.MaxAllocSize() - a.clientOffset(a.alignment) - a.trailerSize()
	if maxSize < 0 {
		return 0
	}
	return maxSize
}

// Backing returns the allocator Affix obtains its blocks from
func (a *Affix[P, S]) Backing() blockalloc.Allocator {
	return a.backing
}

func (a *Affix[P, S]) clientOffset(alignment uint) int {
	return blockalloc.AlignUp(a.prefixSize, alignment)
}

func (a *Affix[P, S]) trailerSize() int {
	if a.suffixSize == 0 {
		return mementoSize
	}
	return mementoSize + int(a.suffixAlign) - 1 + a.suffixSize
}

// backingSize is the size of the backing block needed to hold size client bytes at alignment
func (a *Affix[P, S]) backingSize(size int, alignment uint) (int, bool) {
	total, ok := blockalloc.AddSize(a.clientOffset(alignment), size)
	if !ok {
		return 0, false
	}

	total, ok = blockalloc.AddSize(total, a.trailerSize())
	if !ok || total > a.backing.MaxAllocSize() {
		return 0, false
	}

	if total < a.backing.MinAllocSize() {
		total = a.backing.MinAllocSize()
	}
	return total, true
}

func (a *Affix[P, S]) effectiveAlignment(alignment uint) uint {
	if alignment < a.prefixAlign {
		return a.prefixAlign
	}
	return alignment
}

func (a *Affix[P, S]) mementoBytes(blk blockalloc.Blk) []byte {
	return unsafe.Slice((*byte)(unsafe.Add(blk.Ptr, blk.Size)), mementoSize)
}

func (a *Affix[P, S]) writeMemento(blk blockalloc.Blk, alignment uint) {
	binary.LittleEndian.PutUint16(a.mementoBytes(blk), uint16(alignment))
}

func (a *Affix[P, S]) memento(blk blockalloc.Blk) uint {
	return uint(binary.LittleEndian.Uint16(a.mementoBytes(blk)))
}

// backingBlk rebuilds the backing block that blk was carved from
func (a *Affix[P, S]) backingBlk(blk blockalloc.Blk) blockalloc.Blk {
	alignment := a.memento(blk)
	total, _ := a.backingSize(blk.Size, alignment)
	return blockalloc.Blk{Ptr: unsafe.Add(blk.Ptr, -a.clientOffset(alignment)), Size: total}
}

// Prefix returns the prefix of a block allocated by a, or nil if P takes up no space
func (a *Affix[P, S]) Prefix(blk blockalloc.Blk) *P {
	if a.prefixSize == 0 || !blk.IsValid() {
		return nil
	}
	return (*P)(unsafe.Add(blk.Ptr, -a.prefixSize))
}

// PrefixAligned returns the prefix of a block allocated by AllocateAligned. The prefix sits
// directly before the client bytes at every alignment, so it is found the same way as Prefix.
func (a *Affix[P, S]) PrefixAligned(blk blockalloc.Blk, alignment uint) *P {
	return a.Prefix(blk)
}

// Suffix returns the suffix of a block allocated by a, or nil if S takes up no space. blk must
// have the size it was last allocated or reallocated with.
func (a *Affix[P, S]) Suffix(blk blockalloc.Blk) *S {
	if a.suffixSize == 0 || !blk.IsValid() {
		return nil
	}

	afterMemento := blk.Addr() + uintptr(blk.Size) + mementoSize
	offset := blockalloc.AlignUp(afterMemento, a.suffixAlign) - blk.Addr()
	return (*S)(unsafe.Add(blk.Ptr, int(offset)))
}

func (a *Affix[P, S]) construct(blk blockalloc.Blk) {
	if prefix := a.Prefix(blk); prefix != nil {
		var zero P
		*prefix = zero
		if constructor, ok := any(prefix).(Constructor); ok {
			constructor.Construct()
		}
	}

	if suffix := a.Suffix(blk); suffix != nil {
		var zero S
		*suffix = zero
		if constructor, ok := any(suffix).(Constructor); ok {
			constructor.Construct()
		}
	}
}

func (a *Affix[P, S]) destruct(blk blockalloc.Blk) {
	if prefix := a.Prefix(blk); prefix != nil {
		if destructor, ok := any(prefix).(Destructor); ok {
			destructor.Destruct()
		}
	}

	if suffix := a.Suffix(blk); suffix != nil {
		if destructor, ok := any(suffix).(Destructor); ok {
			destructor.Destruct()
		}
	}
}

// allocateRaw obtains a backing block for size client bytes and writes the memento, without
// touching the affixes
func (a *Affix[P, S]) allocateRaw(size int, alignment uint, aligned bool) blockalloc.Blk {
	total, ok := a.backingSize(size, alignment)
	if !ok {
		return blockalloc.EmptyBlk
	}

	var backingBlk blockalloc.Blk
	if aligned {
		backingBlk = blockalloc.AllocateAligned(a.backing, total, alignment)
	} else {
		backingBlk = a.backing.Allocate(total)
	}

	if !backingBlk.IsValid() {
		return blockalloc.EmptyBlk
	}

	blk := blockalloc.Blk{Ptr: unsafe.Add(backingBlk.Ptr, a.clientOffset(alignment)), Size: size}
	a.writeMemento(blk, alignment)
	return blk
}

func (a *Affix[P, S]) releaseRaw(blk blockalloc.Blk, aligned bool) {
	if aligned {
		blockalloc.DeallocateAligned(a.backing, a.backingBlk(blk))
	} else {
		blockalloc.Deallocate(a.backing, a.backingBlk(blk))
	}
}

func (a *Affix[P, S]) Allocate(size int) blockalloc.Blk {
	if !blockalloc.InBounds(a, size) {
		return blockalloc.EmptyBlk
	}

	blk := a.allocateRaw(size, a.alignment, false)
	if blk.IsValid() {
		a.construct(blk)
	}
	return blk
}

func (a *Affix[P, S]) AllocateAligned(size int, alignment uint) blockalloc.Blk {
	if !a.capabilities.Has(blockalloc.CanAllocateAligned) || !blockalloc.ValidAlignment(alignment) || size <= 0 {
		return blockalloc.EmptyBlk
	}

	blk := a.allocateRaw(size, a.effectiveAlignment(alignment), true)
	if blk.IsValid() {
		a.construct(blk)
	}
	return blk
}

// AllocateAll is not supported by Affix and always returns an empty block
func (a *Affix[P, S]) AllocateAll() blockalloc.Blk {
	return blockalloc.EmptyBlk
}

func (a *Affix[P, S]) Deallocate(blk blockalloc.Blk) {
	if !blk.IsValid() || !a.capabilities.Has(blockalloc.CanDeallocate) {
		return
	}

	a.destruct(blk)
	a.releaseRaw(blk, false)
}

func (a *Affix[P, S]) DeallocateAligned(blk blockalloc.Blk) {
	if !blk.IsValid() || !a.capabilities.Has(blockalloc.CanDeallocateAligned) {
		return
	}

	a.destruct(blk)
	a.releaseRaw(blk, true)
}

// DeallocateAll releases every block through the backing allocator. Destructors are not run.
func (a *Affix[P, S]) DeallocateAll() {
	blockalloc.DeallocateAll(a.backing)
}

// Owns returns true if the backing allocator owns the memory under blk
func (a *Affix[P, S]) Owns(blk blockalloc.Blk) bool {
	if !blk.IsValid() || !a.capabilities.Has(blockalloc.CanOwn) {
		return false
	}

	owner := a.backing.(blockalloc.Owner)
	if owner.Owns(blk) {
		return true
	}

	offset := a.clientOffset(a.alignment)
	return owner.Owns(blockalloc.Blk{Ptr: unsafe.Add(blk.Ptr, -offset), Size: offset + blk.Size})
}

// resize moves or resizes blk, carrying its prefix and suffix with it. The backing allocator's
// native reallocation is used when the alignment is unchanged; otherwise the block is copied
// into a new backing block.
func (a *Affix[P, S]) resize(blk *blockalloc.Blk, newSize int, alignment uint, aligned bool) bool {
	var savedSuffix S
	if suffix := a.Suffix(*blk); suffix != nil {
		savedSuffix = *suffix
	}

	oldAlignment := a.memento(*blk)
	if oldAlignment == alignment {
		backingBlk := a.backingBlk(*blk)
		newTotal, ok := a.backingSize(newSize, alignment)
		if !ok {
			return false
		}

		var resized bool
		if aligned && blockalloc.Supports(a.backing, blockalloc.CanReallocateAligned) {
			resized = a.backing.(blockalloc.AlignedReallocator).ReallocateAligned(&backingBlk, newTotal, alignment)
		} else if !aligned && blockalloc.Supports(a.backing, blockalloc.CanReallocate) {
			resized = a.backing.(blockalloc.Reallocator).Reallocate(&backingBlk, newTotal)
		}

		if resized {
			*blk = blockalloc.Blk{Ptr: unsafe.Add(backingBlk.Ptr, a.clientOffset(alignment)), Size: newSize}
			a.writeMemento(*blk, alignment)
			if suffix := a.Suffix(*blk); suffix != nil {
				*suffix = savedSuffix
			}
			return true
		}
	}

	if !blockalloc.Supports(a.backing, blockalloc.CanDeallocate) &&
		!(aligned && blockalloc.Supports(a.backing, blockalloc.CanDeallocateAligned)) {
		return false
	}

	newBlk := a.allocateRaw(newSize, alignment, aligned)
	if !newBlk.IsValid() {
		return false
	}

	if prefix := a.Prefix(*blk); prefix != nil {
		*a.Prefix(newBlk) = *prefix
	}
	blockalloc.CopyBlk(newBlk, *blk, blk.Size)
	if suffix := a.Suffix(newBlk); suffix != nil {
		*suffix = savedSuffix
	}

	a.releaseRaw(*blk, aligned)
	*blk = newBlk
	return true
}

// Reallocate resizes blk, keeping its prefix and suffix values
func (a *Affix[P, S]) Reallocate(blk *blockalloc.Blk, newSize int) bool {
	if !a.capabilities.Has(blockalloc.CanReallocate) {
		return false
	}

	if !blk.IsValid() || newSize == 0 {
		return blockalloc.ReallocateWithCopy(a, blk, newSize)
	}

	if !blockalloc.InBounds(a, newSize) {
		return false
	}

	if newSize == blk.Size {
		return true
	}

	return a.resize(blk, newSize, a.alignment, false)
}

// ReallocateAligned resizes a block allocated by AllocateAligned, keeping its prefix and suffix
// values. If alignment differs from the alignment the block was allocated with, the block is
// moved.
func (a *Affix[P, S]) ReallocateAligned(blk *blockalloc.Blk, newSize int, alignment uint) bool {
	if !a.capabilities.Has(blockalloc.CanReallocateAligned) || !blockalloc.ValidAlignment(alignment) {
		return false
	}

	if !blk.IsValid() || newSize == 0 {
		return blockalloc.ReallocateAlignedWithCopy(a, blk, newSize, alignment)
	}

	alignment = a.effectiveAlignment(alignment)
	if newSize == blk.Size && a.memento(*blk) == alignment {
		return true
	}

	return a.resize(blk, newSize, alignment, true)
}

func (a *Affix[P, S]) AddStatistics(stats *blockalloc.Statistics) {
	backingStats := blockalloc.CollectStatistics(a.backing)
	stats.AddStatistics(&backingStats)
}

func (a *Affix[P, S]) AddDetailedStatistics(stats *blockalloc.DetailedStatistics) {
	backingStats := blockalloc.CollectDetailedStatistics(a.backing)
	stats.AddDetailedStatistics(&backingStats)
}

func (a *Affix[P, S]) WriteJSON(json *jwriter.ObjectState) {
	json.Name("Type").String("Affix")
	json.Name("Capabilities").String(a.capabilities.String())
	json.Name("PrefixSize").Int(a.prefixSize)
	json.Name("SuffixSize").Int(a.suffixSize)

	blockalloc.WriteAllocatorJSON(json, "Backing", a.backing)
}
