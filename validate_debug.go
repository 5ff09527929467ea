//go:build debug_blockalloc

package blockalloc

import (
	cerrors "github.com/cockroachdb/errors"
)

// DebugEnabled is true when the module is built with the debug_blockalloc build tag
const DebugEnabled = true

// DebugAssert panics with an assertion failure built from format and args if cond is false.
// This method no-ops unless the debug_blockalloc build tag is present.
func DebugAssert(cond bool, format string, args ...any) {
	if !cond {
		panic(cerrors.AssertionFailedf(format, args...))
	}
}

// DebugAssertOwned panics if owner does not own blk. Allocators call it before releasing a
// block. This method no-ops unless the debug_blockalloc build tag is present.
func DebugAssertOwned(owner Owner, blk Blk) {
	if !owner.Owns(blk) {
		panic(cerrors.WithAssertionFailure(
			cerrors.Wrapf(ErrUnownedBlock, "block at %#x with size %d", blk.Addr(), blk.Size)))
	}
}

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_blockalloc build tag is present
func DebugValidate(validatable Validatable) {
	err := validatable.Validate()
	if err != nil {
		panic(err)
	}
}
