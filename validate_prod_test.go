//go:build !debug_blockalloc

package blockalloc_test

import (
	"testing"

	cerrors "github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/blockalloc"
)

type failingValidatable struct{}

func (failingValidatable) Validate() error { return cerrors.New("corrupt") }

type neverOwner struct{}

func (neverOwner) Owns(blk blockalloc.Blk) bool { return false }

func TestDebugChecksCompiledOut(t *testing.T) {
	require.False(t, blockalloc.DebugEnabled)

	require.NotPanics(t, func() {
		blockalloc.DebugAssert(false, "unused")
		blockalloc.DebugAssertOwned(neverOwner{}, blockalloc.EmptyBlk)
		blockalloc.DebugValidate(failingValidatable{})
	})
}
