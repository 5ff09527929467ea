package blockalloc

import "math"

// Statistics summarizes how much memory an allocator holds and how much of it is handed out.
// BlockCount and BlockBytes describe the memory the allocator obtained from its backing allocator
// (heap storage, freelist chunks, page mappings); AllocationCount and AllocationBytes describe the
// client blocks currently outstanding.
type Statistics struct {
	BlockCount      int
	AllocationCount int
	BlockBytes      int
	AllocationBytes int
}

func (s *Statistics) Clear() {
	s.BlockCount = 0
	s.AllocationCount = 0
	s.BlockBytes = 0
	s.AllocationBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.BlockCount += other.BlockCount
	s.AllocationCount += other.AllocationCount
	s.BlockBytes += other.BlockBytes
	s.AllocationBytes += other.AllocationBytes
}

// DetailedStatistics extends Statistics with the size extremes of allocations and of the unused
// ranges between them
type DetailedStatistics struct {
	Statistics
	UnusedRangeCount   int
	AllocationSizeMin  int
	AllocationSizeMax  int
	UnusedRangeSizeMin int
	UnusedRangeSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.UnusedRangeCount = 0
	s.AllocationSizeMin = math.MaxInt
	s.AllocationSizeMax = 0
	s.UnusedRangeSizeMin = math.MaxInt
	s.UnusedRangeSizeMax = 0
}

func (s *DetailedStatistics) AddUnusedRange(size int) {
	s.UnusedRangeCount++

	if size < s.UnusedRangeSizeMin {
		s.UnusedRangeSizeMin = size
	}

	if size > s.UnusedRangeSizeMax {
		s.UnusedRangeSizeMax = size
	}
}

func (s *DetailedStatistics) AddAllocation(size int) {
	s.AllocationCount++
	s.AllocationBytes += size

	if size < s.AllocationSizeMin {
		s.AllocationSizeMin = size
	}

	if size > s.AllocationSizeMax {
		s.AllocationSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.UnusedRangeCount += other.UnusedRangeCount

	if other.UnusedRangeSizeMin < s.UnusedRangeSizeMin {
		s.UnusedRangeSizeMin = other.UnusedRangeSizeMin
	}

	if other.UnusedRangeSizeMax > s.UnusedRangeSizeMax {
		s.UnusedRangeSizeMax = other.UnusedRangeSizeMax
	}

	if other.AllocationSizeMin < s.AllocationSizeMin {
		s.AllocationSizeMin = other.AllocationSizeMin
	}

	if other.AllocationSizeMax > s.AllocationSizeMax {
		s.AllocationSizeMax = other.AllocationSizeMax
	}
}

// StatisticsReporter is implemented by allocators that account for the memory they hold.
// Composite allocators sum the statistics of the allocators they own.
type StatisticsReporter interface {
	AddStatistics(stats *Statistics)
}

// DetailedStatisticsReporter is implemented by allocators that can describe every allocation
// and unused range they hold
type DetailedStatisticsReporter interface {
	AddDetailedStatistics(stats *DetailedStatistics)
}

// CollectStatistics returns the statistics of allocator, or zero statistics if it does not
// report any
func CollectStatistics(allocator any) Statistics {
	var stats Statistics
	if reporter, ok := allocator.(StatisticsReporter); ok {
		reporter.AddStatistics(&stats)
	}
	return stats
}

// CollectDetailedStatistics returns the detailed statistics of allocator. Allocators that only
// report plain statistics contribute their totals but no size extremes.
func CollectDetailedStatistics(allocator any) DetailedStatistics {
	var stats DetailedStatistics
	stats.Clear()

	if reporter, ok := allocator.(DetailedStatisticsReporter); ok {
		reporter.AddDetailedStatistics(&stats)
	} else if reporter, ok := allocator.(StatisticsReporter); ok {
		reporter.AddStatistics(&stats.Statistics)
	}
	return stats
}
