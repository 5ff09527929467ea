package heap

import (
	"math"
	"math/bits"
	"unsafe"
)

const bitsPerWord = 64

// Bitmap tracks the used/free state of a fixed number of blocks, one bit per block. A set bit
// marks a used block. The words may live in a Go slice or in raw memory owned by an allocator.
type Bitmap struct {
	words    []uint64
	bitCount int
}

// BitmapWords returns the number of 64-bit words needed to track bitCount blocks
func BitmapWords(bitCount int) int {
	return (bitCount + bitsPerWord - 1) / bitsPerWord
}

// NewBitmap creates a cleared Bitmap backed by the Go heap
func NewBitmap(bitCount int) Bitmap {
	return Bitmap{
		words:    make([]uint64, BitmapWords(bitCount)),
		bitCount: bitCount,
	}
}

// BitmapOver creates a cleared Bitmap whose words live at ptr, which must be 8-byte aligned and
// address at least BitmapWords(bitCount)*8 bytes
func BitmapOver(ptr unsafe.Pointer, bitCount int) Bitmap {
	b := Bitmap{
		words:    unsafe.Slice((*uint64)(ptr), BitmapWords(bitCount)),
		bitCount: bitCount,
	}
	b.ClearAll()
	return b
}

// Len returns the number of blocks tracked
func (b *Bitmap) Len() int { return b.bitCount }

func (b *Bitmap) IsSet(index int) bool {
	return b.words[index/bitsPerWord]&(uint64(1)<<(index%bitsPerWord)) != 0
}

func (b *Bitmap) SetRange(start, count int) {
	b.applyRange(start, count, true)
}

func (b *Bitmap) ClearRange(start, count int) {
	b.applyRange(start, count, false)
}

func (b *Bitmap) ClearAll() {
	for i := range b.words {
		b.words[i] = 0
	}
}

func rangeMask(bit, count int) uint64 {
	if count == bitsPerWord {
		return math.MaxUint64
	}
	return ((uint64(1) << count) - 1) << bit
}

func (b *Bitmap) applyRange(start, count int, value bool) {
	for count > 0 {
		wordIndex, bit := start/bitsPerWord, start%bitsPerWord
		span := bitsPerWord - bit
		if span > count {
			span = count
		}

		mask := rangeMask(bit, span)
		if value {
			b.words[wordIndex] |= mask
		} else {
			b.words[wordIndex] &^= mask
		}

		start += span
		count -= span
	}
}

// IsRangeClear returns true if every block in [start, start+count) is free. Ranges that run past
// the end of the bitmap are never clear.
func (b *Bitmap) IsRangeClear(start, count int) bool {
	if start < 0 || count < 0 || start+count > b.bitCount {
		return false
	}

	for count > 0 {
		wordIndex, bit := start/bitsPerWord, start%bitsPerWord
		span := bitsPerWord - bit
		if span > count {
			span = count
		}

		if b.words[wordIndex]&rangeMask(bit, span) != 0 {
			return false
		}

		start += span
		count -= span
	}

	return true
}

// IsRangeSet returns true if every block in [start, start+count) is in use. Ranges that run past
// the end of the bitmap are never set.
func (b *Bitmap) IsRangeSet(start, count int) bool {
	if start < 0 || count < 0 || start+count > b.bitCount {
		return false
	}

	for count > 0 {
		wordIndex, bit := start/bitsPerWord, start%bitsPerWord
		span := bitsPerWord - bit
		if span > count {
			span = count
		}

		mask := rangeMask(bit, span)
		if b.words[wordIndex]&mask != mask {
			return false
		}

		start += span
		count -= span
	}

	return true
}

// FindClearRun returns the index of the first run of count free blocks, or -1 if there is none
func (b *Bitmap) FindClearRun(count int) int {
	if count <= 0 || count > b.bitCount {
		return -1
	}

	runStart, runLength := 0, 0
	for i := 0; i < b.bitCount; {
		wordIndex, bit := i/bitsPerWord, i%bitsPerWord
		word := b.words[wordIndex]

		// Whole-word fast paths
		if bit == 0 && i+bitsPerWord <= b.bitCount {
			if word == math.MaxUint64 {
				runLength = 0
				i += bitsPerWord
				continue
			}

			if word == 0 {
				if runLength == 0 {
					runStart = i
				}
				runLength += bitsPerWord
				if runLength >= count {
					return runStart
				}
				i += bitsPerWord
				continue
			}
		}

		if word&(uint64(1)<<bit) != 0 {
			runLength = 0
		} else {
			if runLength == 0 {
				runStart = i
			}
			runLength++
			if runLength >= count {
				return runStart
			}
		}
		i++
	}

	return -1
}

// CountSet returns the number of used blocks
func (b *Bitmap) CountSet() int {
	var count int
	for _, word := range b.words {
		count += bits.OnesCount64(word)
	}
	return count
}

// VisitRuns calls visit once for each maximal run of blocks in the same state, in order
func (b *Bitmap) VisitRuns(visit func(start, count int, used bool)) {
	if b.bitCount == 0 {
		return
	}

	runStart := 0
	runUsed := b.IsSet(0)
	for i := 1; i < b.bitCount; i++ {
		used := b.IsSet(i)
		if used != runUsed {
			visit(runStart, i-runStart, runUsed)
			runStart = i
			runUsed = used
		}
	}
	visit(runStart, b.bitCount-runStart, runUsed)
}
