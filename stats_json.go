package blockalloc

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// JSONReporter is implemented by allocators that can describe themselves as a json object.
// Composite allocators nest the objects of the allocators they wrap.
type JSONReporter interface {
	WriteJSON(json *jwriter.ObjectState)
}

// WriteStatisticsJSON populates a json object with the fields of stats
func WriteStatisticsJSON(json *jwriter.ObjectState, stats *Statistics) {
	json.Name("BlockCount").Int(stats.BlockCount)
	json.Name("BlockBytes").Int(stats.BlockBytes)
	json.Name("AllocationCount").Int(stats.AllocationCount)
	json.Name("AllocationBytes").Int(stats.AllocationBytes)
}

// WriteAllocatorJSON writes allocator into the json object under name. Allocators that implement
// JSONReporter describe themselves; others are described by their capabilities and bounds.
func WriteAllocatorJSON(json *jwriter.ObjectState, name string, allocator Allocator) {
	obj := json.Name(name).Object()
	defer obj.End()

	if reporter, ok := allocator.(JSONReporter); ok {
		reporter.WriteJSON(&obj)
		return
	}

	obj.Name("Capabilities").String(CapabilitiesOf(allocator).String())
	obj.Name("Alignment").Int(int(allocator.Alignment()))

	if reporter, ok := allocator.(StatisticsReporter); ok {
		var stats Statistics
		reporter.AddStatistics(&stats)
		WriteStatisticsJSON(&obj, &stats)
	}
}

// BuildStatsString renders allocator, and every allocator it is composed from, as a json document
func BuildStatsString(allocator Allocator) string {
	writer := jwriter.NewWriter()

	obj := writer.Object()
	WriteAllocatorJSON(&obj, "Allocator", allocator)
	obj.End()

	return string(writer.Bytes())
}
