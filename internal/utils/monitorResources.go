package utils

import (
	"context"
	"runtime"
	"time"

	logs "github.com/danmuck/smplog"
)

// ResourceSample is one reading of the process's goroutines and heap.
type ResourceSample struct {
	Goroutines  int
	HeapAllocKB float64
	HeapObjects uint64
}

func SampleResources() ResourceSample {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return ResourceSample{
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocKB: float64(memStats.HeapAlloc) / 1024,
		HeapObjects: memStats.HeapObjects,
	}
}

// MonitorResources logs resource usage (goroutines and memory) periodically
// until ctx is done.
func MonitorResources(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s := SampleResources()
		logs.Infof("[Resource Monitor] Goroutines: %d | HeapAlloc: %.2f KB | HeapObjects: %d",
			s.Goroutines, s.HeapAllocKB, s.HeapObjects)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
