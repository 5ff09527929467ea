package cascading_test

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/blockalloc"
	"github.com/vkngwrapper/arsenal/blockalloc/cascading"
	"github.com/vkngwrapper/arsenal/blockalloc/heap"
	"github.com/vkngwrapper/arsenal/blockalloc/primitive"
)

func heapCascade(t *testing.T, backing blockalloc.Allocator, maxNodes int) *cascading.Cascading[*heap.Heap] {
	c, err := cascading.New(cascading.CreateOptions[*heap.Heap]{
		NewNode: func() (*heap.Heap, error) {
			return heap.New(backing, heap.CreateOptions{
				BlockSize:  64,
				BlockCount: 4,
				Bitmap:     heap.BitmapExternal,
			})
		},
		MaxNodes: maxNodes,
	})
	require.NoError(t, err)
	return c
}

func alignedBacking(t *testing.T) *primitive.AlignedMallocator {
	backing, err := primitive.NewAlignedMallocator(0)
	require.NoError(t, err)
	return backing
}

func TestCascadingGrowthBound(t *testing.T) {
	c := heapCascade(t, alignedBacking(t), 0)
	require.Equal(t, 1, c.AllocatorCount())
	require.Equal(t, 256, c.MaxAllocSize())

	// Each node holds two 100-byte allocations
	var blocks []blockalloc.Blk
	for i := 0; i < 5; i++ {
		blk := c.Allocate(100)
		require.True(t, blk.IsValid())
		blocks = append(blocks, blk)
		require.Equal(t, i/2+1, c.AllocatorCount())
	}

	for i, blk := range blocks {
		require.True(t, c.Owns(blk))
		for _, other := range blocks[i+1:] {
			require.False(t, blk.Overlaps(other))
		}
	}

	// Freed space is reused before any node is created
	c.Deallocate(blocks[0])
	require.True(t, c.Allocate(100).IsValid())
	require.Equal(t, 3, c.AllocatorCount())
	require.NoError(t, c.Validate())
}

func TestCascadingMaxNodes(t *testing.T) {
	c := heapCascade(t, alignedBacking(t), 2)

	for i := 0; i < 8; i++ {
		require.True(t, c.Allocate(64).IsValid())
	}
	require.Equal(t, 2, c.AllocatorCount())
	require.False(t, c.Allocate(64).IsValid())
	require.Equal(t, 2, c.AllocatorCount())
	require.False(t, c.Allocate(c.MaxAllocSize()+1).IsValid())
}

func TestCascadingNodeFactoryFailure(t *testing.T) {
	calls := 0
	c, err := cascading.New(cascading.CreateOptions[*heap.Static]{
		NewNode: func() (*heap.Static, error) {
			calls++
			if calls > 1 {
				return nil, errors.New("no more nodes")
			}
			return heap.NewStatic(primitive.NewMallocator(), heap.StaticOptions{BlockSize: 16, BlockCount: 1})
		},
	})
	require.NoError(t, err)

	require.True(t, c.Allocate(16).IsValid())
	require.False(t, c.Allocate(16).IsValid())
	require.Equal(t, 1, c.AllocatorCount())

	_, err = cascading.New(cascading.CreateOptions[*heap.Static]{
		NewNode: func() (*heap.Static, error) { return nil, errors.New("broken") },
	})
	require.Error(t, err)

	_, err = cascading.New(cascading.CreateOptions[*heap.Static]{})
	require.True(t, errors.Is(err, blockalloc.ErrInvalidOptions))
}

func TestCascadingCapabilities(t *testing.T) {
	heaps := heapCascade(t, alignedBacking(t), 0)
	require.True(t, blockalloc.Supports(heaps, blockalloc.CanAllocateAligned|blockalloc.CanDeallocate|blockalloc.CanReallocate|blockalloc.CanOwn))
	require.False(t, blockalloc.Supports(heaps, blockalloc.CanAllocateAll))

	mallocators, err := cascading.New(cascading.CreateOptions[*primitive.Mallocator]{
		NewNode: func() (*primitive.Mallocator, error) { return primitive.NewMallocator(), nil },
	})
	require.NoError(t, err)

	// Without Owns, the cascade cannot find the node to release a block to
	require.Equal(t, blockalloc.CanAllocate|blockalloc.CanDeallocateAll, blockalloc.CapabilitiesOf(mallocators))
	blk := mallocators.Allocate(8)
	require.False(t, mallocators.Owns(blk))
	require.False(t, mallocators.Reallocate(&blk, 16))
}

func TestCascadingReallocateMovesBetweenNodes(t *testing.T) {
	c := heapCascade(t, alignedBacking(t), 0)

	blk := c.Allocate(64)
	copy(blk.Bytes(), "cascading")
	c.Allocate(192)
	require.Equal(t, 1, c.AllocatorCount())

	// The first node is full, so growing moves the block to a new node
	require.True(t, c.Reallocate(&blk, 128))
	require.Equal(t, 2, c.AllocatorCount())
	require.Equal(t, "cascading", string(blk.Bytes()[:9]))
	require.True(t, c.Owns(blk))

	require.True(t, c.Reallocate(&blk, 0))
	require.False(t, blk.IsValid())
}

func TestCascadingOwnershipExclusive(t *testing.T) {
	backing := alignedBacking(t)
	a := heapCascade(t, backing, 0)
	b := heapCascade(t, backing, 0)

	blk := a.Allocate(10)
	b.Allocate(10)

	require.True(t, a.Owns(blk))
	require.False(t, b.Owns(blk))
}

func TestCascadingDeallocateAll(t *testing.T) {
	backing := alignedBacking(t)
	c := heapCascade(t, backing, 0)

	for i := 0; i < 10; i++ {
		c.Allocate(128)
	}
	require.Equal(t, 5, c.AllocatorCount())

	c.DeallocateAll()
	require.Equal(t, 0, c.AllocatorCount())
	require.Equal(t, blockalloc.Statistics{}, blockalloc.CollectStatistics(backing))

	require.True(t, c.Allocate(10).IsValid())
	require.Equal(t, 1, c.AllocatorCount())
}

func TestCascadingDestroy(t *testing.T) {
	c := heapCascade(t, alignedBacking(t), 0)

	c.Allocate(256)
	c.Allocate(256)

	err := c.Destroy()
	require.Error(t, err)
	require.Equal(t, 0, c.AllocatorCount())

	c = heapCascade(t, alignedBacking(t), 0)
	blk := c.Allocate(256)
	c.Deallocate(blk)
	require.NoError(t, c.Destroy())
}

func TestCascadingStatisticsAndJSON(t *testing.T) {
	c := heapCascade(t, alignedBacking(t), 0)
	c.Allocate(200)
	c.Allocate(200)

	require.Equal(t, blockalloc.Statistics{
		BlockCount:      2,
		BlockBytes:      512,
		AllocationCount: 2,
		AllocationBytes: 400,
	}, blockalloc.CollectStatistics(c))

	var doc struct {
		Allocator struct {
			Type      string
			NodeCount int
			Nodes     []map[string]any
		}
	}
	require.NoError(t, json.Unmarshal([]byte(blockalloc.BuildStatsString(c)), &doc))
	require.Equal(t, "Cascading", doc.Allocator.Type)
	require.Equal(t, 2, doc.Allocator.NodeCount)
	require.Len(t, doc.Allocator.Nodes, 2)
	require.Equal(t, "Heap", doc.Allocator.Nodes[0]["Type"])
}

func TestCascadingDetailedStatistics(t *testing.T) {
	c := heapCascade(t, alignedBacking(t), 0)

	c.Allocate(100)
	c.Allocate(200)
	require.Equal(t, 2, c.AllocatorCount())

	stats := blockalloc.CollectDetailedStatistics(c)
	require.Equal(t, 2, stats.BlockCount)
	require.Equal(t, 512, stats.BlockBytes)
	require.Equal(t, 2, stats.AllocationCount)
	require.Equal(t, 128, stats.AllocationSizeMin)
	require.Equal(t, 256, stats.AllocationSizeMax)
	require.Equal(t, 1, stats.UnusedRangeCount)
	require.Equal(t, 128, stats.UnusedRangeSizeMax)
}
