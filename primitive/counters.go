package primitive

import (
	"sync/atomic"

	"github.com/vkngwrapper/arsenal/blockalloc"
)

// maxAllocSize bounds primitive requests so that a runaway size is reported as an empty block
// instead of a runtime out-of-memory failure
const maxAllocSize int = 1<<31 - 1

type allocationCounters struct {
	allocationCount atomic.Int64
	allocationBytes atomic.Int64
}

func (c *allocationCounters) add(size int) {
	c.allocationCount.Add(1)
	c.allocationBytes.Add(int64(size))
}

func (c *allocationCounters) remove(size int) {
	c.allocationCount.Add(-1)
	c.allocationBytes.Add(-int64(size))
}

func (c *allocationCounters) resize(oldSize, newSize int) {
	c.allocationBytes.Add(int64(newSize - oldSize))
}

// AddStatistics sums this allocator's outstanding allocations into stats. Every allocation is
// its own block.
func (c *allocationCounters) AddStatistics(stats *blockalloc.Statistics) {
	count := int(c.allocationCount.Load())
	bytes := int(c.allocationBytes.Load())

	stats.BlockCount += count
	stats.BlockBytes += bytes
	stats.AllocationCount += count
	stats.AllocationBytes += bytes
}

// wordsFor returns the number of 8-byte words needed to hold size bytes
func wordsFor(size int) int {
	return (size + 7) / 8
}
