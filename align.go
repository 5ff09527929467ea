package blockalloc

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

// MaxAlignment is the largest alignment accepted by the allocators in this module
const MaxAlignment uint = 1 << 15

// CheckPow2 returns PowerOfTwoError, annotated with name, if number is zero or not a power of two
func CheckPow2[T constraints.Integer](number T, name string) error {
	if number <= 0 || number&(number-1) != 0 {
		return cerrors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// ValidAlignment returns true if alignment is a non-zero power of two no larger than MaxAlignment
func ValidAlignment(alignment uint) bool {
	return alignment != 0 && alignment&(alignment-1) == 0 && alignment <= MaxAlignment
}

// AlignUp rounds value up to the next multiple of alignment, which must be a power of two
func AlignUp[T constraints.Integer](value T, alignment uint) T {
	return (value + T(alignment) - 1) &^ (T(alignment) - 1)
}

// AlignDown rounds value down to the previous multiple of alignment, which must be a power of two
func AlignDown[T constraints.Integer](value T, alignment uint) T {
	return value &^ (T(alignment) - 1)
}

// IsAligned returns true if ptr is a multiple of alignment
func IsAligned(ptr unsafe.Pointer, alignment uint) bool {
	return uintptr(ptr)&(uintptr(alignment)-1) == 0
}

// AlignmentOf returns the largest power of two, capped at MaxAlignment, that divides value
func AlignmentOf(value int) uint {
	if value <= 0 {
		return MaxAlignment
	}
	alignment := uint(value & -value)
	if alignment > MaxAlignment {
		return MaxAlignment
	}
	return alignment
}

// AlignWithin finds the first address at or after ptr that is a multiple of alignment and has
// size bytes available before the end of a buffer of space bytes starting at ptr. It returns the
// aligned pointer and the number of bytes remaining in the buffer from that pointer. If the
// request does not fit, ok is false.
func AlignWithin(alignment uint, size int, ptr unsafe.Pointer, space int) (aligned unsafe.Pointer, remaining int, ok bool) {
	if ptr == nil || size < 0 || space < 0 {
		return nil, 0, false
	}

	addr := uintptr(ptr)
	padding := int(AlignUp(addr, alignment) - addr)
	if padding > space || space-padding < size {
		return nil, 0, false
	}

	return unsafe.Add(ptr, padding), space - padding, true
}

// MinUint returns the smaller of two alignments
func MinUint(left, right uint) uint {
	if left < right {
		return left
	}
	return right
}

// AddSize adds two sizes, returning false if the result would overflow an int
func AddSize(left, right int) (int, bool) {
	if left < 0 || right < 0 || left > int(^uint(0)>>1)-right {
		return 0, false
	}
	return left + right, true
}
