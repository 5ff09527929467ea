package affix

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/blockalloc"
)

// None is used as the prefix or suffix type of an Affix that has no prefix or no suffix. It
// takes up no space.
type None struct{}

// SizePrefix records the size a client asked for, for backing allocators that hand out larger
// blocks than requested
type SizePrefix struct {
	Size uint64
}

// Constructor may be implemented by pointers to prefix and suffix types. Construct is called on
// the zeroed affix when a block is allocated.
type Constructor interface {
	Construct()
}

// Destructor may be implemented by pointers to prefix and suffix types. Destruct is called on the
// affix before a block is deallocated.
type Destructor interface {
	Destruct()
}

// New creates an Affix that places a P before and an S after every block it allocates from
// backing. P and S must not contain Go pointers.
func New[P any, S any](backing blockalloc.Allocator) (*Affix[P, S], error) {
	if backing == nil {
		return nil, cerrors.Wrap(blockalloc.ErrInvalidOptions, "a backing allocator is required")
	}

	if !blockalloc.PointerFreeType[P]() {
		return nil, cerrors.Wrapf(blockalloc.ErrInvalidOptions, "prefix type %T contains pointers", *new(P))
	}

	if !blockalloc.PointerFreeType[S]() {
		return nil, cerrors.Wrapf(blockalloc.ErrInvalidOptions, "suffix type %T contains pointers", *new(S))
	}

	var prefix P
	var suffix S

	a := &Affix[P, S]{
		backing:     backing,
		prefixSize:  int(unsafe.Sizeof(prefix)),
		prefixAlign: uint(unsafe.Alignof(prefix)),
		suffixSize:  int(unsafe.Sizeof(suffix)),
		suffixAlign: uint(unsafe.Alignof(suffix)),
		alignment:   blockalloc.MinUint(backing.Alignment(), blockalloc.MaxAlignment),
	}

	if a.prefixSize > 0 && a.alignment < a.prefixAlign {
		return nil, cerrors.Wrapf(blockalloc.ErrInvalidOptions, "prefix type %T needs %d byte alignment, but the backing allocator only provides %d", prefix, a.prefixAlign, a.alignment)
	}

	a.capabilities = capabilitiesFor(blockalloc.CapabilitiesOf(backing))
	return a, nil
}

func capabilitiesFor(backing blockalloc.Capabilities) blockalloc.Capabilities {
	caps := blockalloc.CanAllocate
	caps |= backing & (blockalloc.CanAllocateAligned | blockalloc.CanDeallocate | blockalloc.CanDeallocateAll | blockalloc.CanOwn)

	if backing&(blockalloc.CanDeallocate|blockalloc.CanReallocate) != 0 {
		caps |= blockalloc.CanReallocate
	}

	if backing&(blockalloc.CanDeallocate|blockalloc.CanDeallocateAligned) != 0 {
		caps |= blockalloc.CanDeallocateAligned
		if backing.Has(blockalloc.CanAllocateAligned) {
			caps |= blockalloc.CanReallocateAligned
		}
	}

	return caps
}
