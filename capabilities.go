package blockalloc

import "strings"

// Capabilities is a set of optional allocator operations
type Capabilities uint32

const (
	CanAllocate Capabilities = 1 << iota
	CanAllocateAligned
	CanReallocate
	CanReallocateAligned
	CanAllocateAll
	CanDeallocate
	CanDeallocateAligned
	CanDeallocateAll
	CanOwn

	capabilitiesEnd
)

var capabilitiesMapping = map[Capabilities]string{
	CanAllocate:          "Allocate",
	CanAllocateAligned:   "AllocateAligned",
	CanReallocate:        "Reallocate",
	CanReallocateAligned: "ReallocateAligned",
	CanAllocateAll:       "AllocateAll",
	CanDeallocate:        "Deallocate",
	CanDeallocateAligned: "DeallocateAligned",
	CanDeallocateAll:     "DeallocateAll",
	CanOwn:               "Owns",
}

func (c Capabilities) String() string {
	if c == 0 {
		return "None"
	}

	var names []string
	for flag := Capabilities(1); flag < capabilitiesEnd; flag <<= 1 {
		if c&flag != 0 {
			names = append(names, capabilitiesMapping[flag])
		}
	}

	return strings.Join(names, "|")
}

// Has returns true if every capability in other is present in c
func (c Capabilities) Has(other Capabilities) bool {
	return c&other == other
}

// CapabilityReporter is implemented by composite allocators. Composites implement the method
// set of every operation, but only support the operations their inner allocators make
// possible. Capabilities reports the supported set, which is fixed at construction.
type CapabilityReporter interface {
	Capabilities() Capabilities
}

// CapabilitiesOf returns the operations the provided allocator supports. Allocators that
// implement CapabilityReporter are trusted; all others are probed by interface assertion.
func CapabilitiesOf(allocator any) Capabilities {
	if allocator == nil {
		return 0
	}

	if reporter, ok := allocator.(CapabilityReporter); ok {
		return reporter.Capabilities()
	}

	var caps Capabilities
	if _, ok := allocator.(Allocator); ok {
		caps |= CanAllocate
	}
	if _, ok := allocator.(AlignedAllocator); ok {
		caps |= CanAllocateAligned
	}
	if _, ok := allocator.(Reallocator); ok {
		caps |= CanReallocate
	}
	if _, ok := allocator.(AlignedReallocator); ok {
		caps |= CanReallocateAligned
	}
	if _, ok := allocator.(AllAllocator); ok {
		caps |= CanAllocateAll
	}
	if _, ok := allocator.(Deallocator); ok {
		caps |= CanDeallocate
	}
	if _, ok := allocator.(AlignedDeallocator); ok {
		caps |= CanDeallocateAligned
	}
	if _, ok := allocator.(BulkDeallocator); ok {
		caps |= CanDeallocateAll
	}
	if _, ok := allocator.(Owner); ok {
		caps |= CanOwn
	}

	return caps
}

// Supports returns true if the allocator supports every capability in caps
func Supports(allocator any, caps Capabilities) bool {
	return CapabilitiesOf(allocator).Has(caps)
}
