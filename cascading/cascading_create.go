package cascading

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/blockalloc"
	"github.com/vkngwrapper/arsenal/blockalloc/internal/utils"
	"golang.org/x/exp/slog"
)

// CreateOptions contains the settings used to create a Cascading allocator
type CreateOptions[A blockalloc.Allocator] struct {
	// NewNode creates a node allocator. It is called once by New and again each time every
	// existing node has failed a request. Every node it returns must have the same bounds and
	// alignment.
	NewNode func() (A, error)
	// MaxNodes is the most nodes the cascade will hold at once. If it is 0, the cascade grows
	// without limit.
	MaxNodes int
	// Logger receives debug output when nodes are created. If it is nil, slog.Default() is used.
	Logger *slog.Logger
}

// New creates a Cascading allocator. The first node is created immediately, both to learn the
// bounds and capabilities every node will have and so the cascade is ready to allocate. Node
// allocators in this module obtain their storage lazily, so an unused first node holds no
// memory.
func New[A blockalloc.Allocator](options CreateOptions[A]) (*Cascading[A], error) {
	if options.NewNode == nil {
		return nil, cerrors.Wrap(blockalloc.ErrInvalidOptions, "NewNode is required")
	}

	if options.MaxNodes < 0 {
		return nil, cerrors.Wrapf(blockalloc.ErrInvalidOptions, "MaxNodes %d cannot be negative", options.MaxNodes)
	}

	c := &Cascading[A]{
		newNode:  options.NewNode,
		maxNodes: options.MaxNodes,
		logger:   utils.LoggerOrDefault(options.Logger),
	}

	first, err := c.newNode()
	if err != nil {
		return nil, cerrors.Wrap(err, "failed to create the first cascade node")
	}

	c.alignment = first.Alignment()
	c.minAllocSize = first.MinAllocSize()
	c.maxAllocSize = first.MaxAllocSize()
	c.capabilities = capabilitiesFor(blockalloc.CapabilitiesOf(first))
	c.push(first)

	return c, nil
}

func capabilitiesFor(node blockalloc.Capabilities) blockalloc.Capabilities {
	caps := blockalloc.CanAllocate | blockalloc.CanDeallocateAll
	caps |= node & blockalloc.CanAllocateAligned

	// Every single-block operation needs to find the node that owns the block
	if node.Has(blockalloc.CanOwn) {
		caps |= blockalloc.CanOwn
		caps |= node & (blockalloc.CanDeallocate | blockalloc.CanDeallocateAligned)
		if node.Has(blockalloc.CanDeallocate) {
			caps |= blockalloc.CanReallocate
		}
	}

	return caps
}
