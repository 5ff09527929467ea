//go:build !debug_blockalloc

package blockalloc

// DebugEnabled is true when the module is built with the debug_blockalloc build tag
const DebugEnabled = false

// DebugAssert panics with an assertion failure built from format and args if cond is false.
// This method no-ops unless the debug_blockalloc build tag is present.
func DebugAssert(cond bool, format string, args ...any) {
}

// DebugAssertOwned panics if owner does not own blk. Allocators call it before releasing a
// block. This method no-ops unless the debug_blockalloc build tag is present.
func DebugAssertOwned(owner Owner, blk Blk) {
}

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_blockalloc build tag is present
func DebugValidate(validatable Validatable) {
}
