package monitor

import (
	"runtime"
	"time"
)

// MemoryStats is one snapshot of process memory, in bytes.
type MemoryStats struct {
	HeapUsed  uint64    `json:"heapUsed"`
	HeapTotal uint64    `json:"heapTotal"`
	Sys       uint64    `json:"sys"`
	At        time.Time `json:"timestamp"`
}

// MemReader returns current process memory figures.
type MemReader func() MemoryStats

// RuntimeMemory reads the Go runtime's heap statistics.
func RuntimeMemory() MemoryStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return MemoryStats{
		HeapUsed:  ms.HeapAlloc,
		HeapTotal: ms.HeapSys,
		Sys:       ms.Sys,
		At:        time.Now().UTC(),
	}
}
