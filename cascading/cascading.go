package cascading

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/arsenal/blockalloc"
	"golang.org/x/exp/slog"
)

type node[A blockalloc.Allocator] struct {
	allocator A
	next      *node[A]
}

// Cascading holds a chain of node allocators of the same type. Requests are offered to each node
// from newest to oldest; when every node fails, one new node is created and the request is
// retried on it. Nodes are only released in bulk, by DeallocateAll or Destroy.
//
// Cascading is not safe for concurrent use.
type Cascading[A blockalloc.Allocator] struct {
	newNode  func() (A, error)
	maxNodes int
	logger   *slog.Logger

	alignment    uint
	minAllocSize int
	maxAllocSize int
	capabilities blockalloc.Capabilities

	head      *node[A]
	nodeCount int
}

var _ blockalloc.FullAllocator = &Cascading[blockalloc.FullAllocator]{}
var _ blockalloc.CapabilityReporter = &Cascading[blockalloc.FullAllocator]{}
var _ blockalloc.Destroyer = &Cascading[blockalloc.FullAllocator]{}
var _ blockalloc.DetailedStatisticsReporter = &Cascading[blockalloc.FullAllocator]{}

func (c *Cascading[A]) Alignment() uint   { return c.alignment }
func (c *Cascading[A]) MinAllocSize() int { return c.minAllocSize }
func (c *Cascading[A]) MaxAllocSize() int { return c.maxAllocSize }

func (c *Cascading[A]) Capabilities() blockalloc.Capabilities {
	return c.capabilities
}

// AllocatorCount is the number of nodes in the cascade
func (c *Cascading[A]) AllocatorCount() int {
	return c.nodeCount
}

// Nodes calls visit with each node, newest first, until visit returns false
func (c *Cascading[A]) Nodes(visit func(node A) bool) {
	for n := c.head; n != nil; n = n.next {
		if !visit(n.allocator) {
			return
		}
	}
}

func (c *Cascading[A]) push(allocator A) {
	c.head = &node[A]{allocator: allocator, next: c.head}
	c.nodeCount++
}

func (c *Cascading[A]) createNode() (A, bool) {
	var zero A
	if c.maxNodes > 0 && c.nodeCount >= c.maxNodes {
		c.logger.Debug("Cascading::createNode refused: node limit reached", slog.Int("MaxNodes", c.maxNodes))
		return zero, false
	}

	allocator, err := c.newNode()
	if err != nil {
		c.logger.Debug("Cascading::createNode failed", slog.Any("error", err))
		return zero, false
	}

	c.push(allocator)
	c.logger.Debug("Cascading::createNode", slog.Int("NodeCount", c.nodeCount))
	blockalloc.DebugValidate(c)
	return allocator, true
}

func (c *Cascading[A]) allocate(allocate func(allocator A) blockalloc.Blk) blockalloc.Blk {
	for n := c.head; n != nil; n = n.next {
		blk := allocate(n.allocator)
		if blk.IsValid() {
			return blk
		}
	}

	allocator, ok := c.createNode()
	if !ok {
		return blockalloc.EmptyBlk
	}

	return allocate(allocator)
}

func (c *Cascading[A]) Allocate(size int) blockalloc.Blk {
	if !blockalloc.InBounds(c, size) {
		return blockalloc.EmptyBlk
	}

	return c.allocate(func(allocator A) blockalloc.Blk {
		return allocator.Allocate(size)
	})
}

func (c *Cascading[A]) AllocateAligned(size int, alignment uint) blockalloc.Blk {
	if !c.capabilities.Has(blockalloc.CanAllocateAligned) || !blockalloc.InBounds(c, size) {
		return blockalloc.EmptyBlk
	}

	return c.allocate(func(allocator A) blockalloc.Blk {
		return blockalloc.AllocateAligned(allocator, size, alignment)
	})
}

// AllocateAll is not supported by cascades and always returns an empty block
func (c *Cascading[A]) AllocateAll() blockalloc.Blk {
	return blockalloc.EmptyBlk
}

func (c *Cascading[A]) owner(blk blockalloc.Blk) (A, bool) {
	var zero A
	if !c.capabilities.Has(blockalloc.CanOwn) {
		return zero, false
	}

	for n := c.head; n != nil; n = n.next {
		if any(n.allocator).(blockalloc.Owner).Owns(blk) {
			return n.allocator, true
		}
	}

	return zero, false
}

// Owns returns true if any node owns blk
func (c *Cascading[A]) Owns(blk blockalloc.Blk) bool {
	if !blk.IsValid() {
		return false
	}

	_, ok := c.owner(blk)
	return ok
}

func (c *Cascading[A]) Deallocate(blk blockalloc.Blk) {
	if !blk.IsValid() {
		return
	}

	allocator, ok := c.owner(blk)
	blockalloc.DebugAssert(ok, "Cascading received a block at %#x that none of its %d nodes own", blk.Addr(), c.nodeCount)
	if !ok {
		return
	}

	blockalloc.Deallocate(allocator, blk)
	blockalloc.DebugValidate(c)
}

func (c *Cascading[A]) DeallocateAligned(blk blockalloc.Blk) {
	if !blk.IsValid() {
		return
	}

	allocator, ok := c.owner(blk)
	blockalloc.DebugAssert(ok, "Cascading received a block at %#x that none of its %d nodes own", blk.Addr(), c.nodeCount)
	if !ok {
		return
	}

	blockalloc.DeallocateAligned(allocator, blk)
	blockalloc.DebugValidate(c)
}

// Reallocate asks the owning node to resize blk. If the node cannot, the block is moved through
// the cascade, which may place it in another node or a new one.
func (c *Cascading[A]) Reallocate(blk *blockalloc.Blk, newSize int) bool {
	if !c.capabilities.Has(blockalloc.CanReallocate) {
		return false
	}

	if !blk.IsValid() || newSize == 0 {
		return blockalloc.ReallocateWithCopy(c, blk, newSize)
	}

	if !blockalloc.InBounds(c, newSize) {
		return false
	}

	allocator, ok := c.owner(*blk)
	blockalloc.DebugAssert(ok, "Cascading received a block at %#x that none of its %d nodes own", blk.Addr(), c.nodeCount)
	if !ok {
		return false
	}

	if blockalloc.Supports(allocator, blockalloc.CanReallocate) && any(allocator).(blockalloc.Reallocator).Reallocate(blk, newSize) {
		return true
	}

	return blockalloc.ReallocateWithCopy(c, blk, newSize)
}

// ReallocateAligned is not supported by cascades and always returns false
func (c *Cascading[A]) ReallocateAligned(blk *blockalloc.Blk, newSize int, alignment uint) bool {
	return false
}

// DeallocateAll releases every node, calling DeallocateAll and then Destroy on each node that
// supports them, and empties the cascade
func (c *Cascading[A]) DeallocateAll() {
	for n := c.head; n != nil; n = n.next {
		blockalloc.DeallocateAll(n.allocator)

		if destroyer, ok := any(n.allocator).(blockalloc.Destroyer); ok {
			err := destroyer.Destroy()
			if err != nil {
				c.logger.Error("Cascading::DeallocateAll failed to destroy a node", slog.Any("error", err))
			}
		}
	}

	c.head = nil
	c.nodeCount = 0
	blockalloc.DebugValidate(c)
}

// Destroy destroys every node that supports it and empties the cascade. Nodes that still hold
// allocations report them, and their errors are combined into the returned error.
func (c *Cascading[A]) Destroy() error {
	var err error
	for n := c.head; n != nil; n = n.next {
		if destroyer, ok := any(n.allocator).(blockalloc.Destroyer); ok {
			err = cerrors.CombineErrors(err, destroyer.Destroy())
		}
	}

	c.head = nil
	c.nodeCount = 0
	return err
}

func (c *Cascading[A]) Validate() error {
	var count int
	for n := c.head; n != nil; n = n.next {
		if validatable, ok := any(n.allocator).(blockalloc.Validatable); ok {
			err := validatable.Validate()
			if err != nil {
				return cerrors.Wrapf(err, "cascade node %d", count)
			}
		}
		count++
	}

	if count != c.nodeCount {
		return cerrors.Newf("cascade has %d nodes, but accounts for %d", count, c.nodeCount)
	}

	if c.maxNodes > 0 && count > c.maxNodes {
		return cerrors.Newf("cascade has %d nodes, more than its limit of %d", count, c.maxNodes)
	}

	return nil
}

func (c *Cascading[A]) AddStatistics(stats *blockalloc.Statistics) {
	for n := c.head; n != nil; n = n.next {
		nodeStats := blockalloc.CollectStatistics(n.allocator)
		stats.AddStatistics(&nodeStats)
	}
}

func (c *Cascading[A]) AddDetailedStatistics(stats *blockalloc.DetailedStatistics) {
	for n := c.head; n != nil; n = n.next {
		nodeStats := blockalloc.CollectDetailedStatistics(n.allocator)
		stats.AddDetailedStatistics(&nodeStats)
	}
}

func (c *Cascading[A]) WriteJSON(json *jwriter.ObjectState) {
	json.Name("Type").String("Cascading")
	json.Name("Capabilities").String(c.capabilities.String())
	json.Name("NodeCount").Int(c.nodeCount)

	var stats blockalloc.Statistics
	c.AddStatistics(&stats)
	blockalloc.WriteStatisticsJSON(json, &stats)

	nodes := json.Name("Nodes").Array()
	defer nodes.End()
	for n := c.head; n != nil; n = n.next {
		obj := nodes.Object()
		if reporter, ok := any(n.allocator).(blockalloc.JSONReporter); ok {
			reporter.WriteJSON(&obj)
		} else {
			obj.Name("Capabilities").String(blockalloc.CapabilitiesOf(n.allocator).String())
		}
		obj.End()
	}
}
