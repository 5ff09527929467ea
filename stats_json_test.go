package blockalloc_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/blockalloc"
	"github.com/vkngwrapper/arsenal/blockalloc/primitive"
)

func TestBuildStatsStringLeaf(t *testing.T) {
	mallocator := primitive.NewMallocator()
	blk := mallocator.Allocate(24)
	defer mallocator.Deallocate(blk)

	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(blockalloc.BuildStatsString(mallocator)), &doc))

	allocator := doc["Allocator"]
	require.Equal(t, "Allocate|Reallocate|Deallocate", allocator["Capabilities"])
	require.Equal(t, float64(8), allocator["Alignment"])
	require.Equal(t, float64(1), allocator["AllocationCount"])
	require.Equal(t, float64(24), allocator["AllocationBytes"])
}

func TestCollectStatistics(t *testing.T) {
	mallocator := primitive.NewMallocator()
	first := mallocator.Allocate(10)
	second := mallocator.Allocate(20)

	stats := blockalloc.CollectStatistics(mallocator)
	require.Equal(t, blockalloc.Statistics{
		BlockCount:      2,
		BlockBytes:      30,
		AllocationCount: 2,
		AllocationBytes: 30,
	}, stats)

	mallocator.Deallocate(first)
	mallocator.Deallocate(second)
	require.Equal(t, blockalloc.Statistics{}, blockalloc.CollectStatistics(mallocator))
	require.Equal(t, blockalloc.Statistics{}, blockalloc.CollectStatistics(struct{}{}))
}

func TestDetailedStatistics(t *testing.T) {
	var stats blockalloc.DetailedStatistics
	stats.Clear()
	stats.AddAllocation(16)
	stats.AddAllocation(48)
	stats.AddUnusedRange(8)

	var total blockalloc.DetailedStatistics
	total.Clear()
	total.AddDetailedStatistics(&stats)

	require.Equal(t, 2, total.AllocationCount)
	require.Equal(t, 64, total.AllocationBytes)
	require.Equal(t, 16, total.AllocationSizeMin)
	require.Equal(t, 48, total.AllocationSizeMax)
	require.Equal(t, 1, total.UnusedRangeCount)
	require.Equal(t, 8, total.UnusedRangeSizeMin)
}

func TestCollectDetailedStatisticsFallsBackToTotals(t *testing.T) {
	mallocator := primitive.NewMallocator()
	blk := mallocator.Allocate(10)
	defer mallocator.Deallocate(blk)

	stats := blockalloc.CollectDetailedStatistics(mallocator)
	require.Equal(t, 1, stats.AllocationCount)
	require.Equal(t, 10, stats.AllocationBytes)
	require.Equal(t, math.MaxInt, stats.AllocationSizeMin)
	require.Equal(t, 0, stats.AllocationSizeMax)

	empty := blockalloc.CollectDetailedStatistics(struct{}{})
	require.Equal(t, 0, empty.AllocationCount)
	require.Equal(t, math.MaxInt, empty.UnusedRangeSizeMin)
}
