package events

import (
	"os"
	"runtime"

	"routeopt/internal/buildinfo"
)

// Metadata describes the process that solves problems.
type Metadata struct {
	Build      buildinfo.Info `json:"build"`
	Host       string         `json:"host"`
	NumCPU     int            `json:"numCpu"`
	Goroutines int            `json:"goroutines"`
	Memory     MemoryStats    `json:"memory"`
}

type MemoryStats struct {
	AllocBytes      uint64 `json:"allocBytes"`
	TotalAllocBytes uint64 `json:"totalAllocBytes"`
	SysBytes        uint64 `json:"sysBytes"`
	HeapInUseBytes  uint64 `json:"heapInUseBytes"`
	NumGC           uint32 `json:"numGc"`
}

func CollectMetadata() Metadata {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	host, _ := os.Hostname()
	return Metadata{
		Build:      buildinfo.Get(),
		Host:       host,
		NumCPU:     runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
		Memory: MemoryStats{
			AllocBytes:      ms.Alloc,
			TotalAllocBytes: ms.TotalAlloc,
			SysBytes:        ms.Sys,
			HeapInUseBytes:  ms.HeapInuse,
			NumGC:           ms.NumGC,
		},
	}
}

// NewMetadata is a metadata update event for the problem being handled.
func NewMetadata(source, problemID string) (Event, error) {
	return New(source, MetadataUpdate, problemID, CollectMetadata())
}
