package app

import (
	"runtime"
	"runtime/debug"
	"time"

	"github.com/searchktools/poolserver/config"
)

// tuneRuntime applies the GC settings in cfg and returns a func restoring
// the previous ones
func tuneRuntime(cfg config.Config) (restore func()) {
	prevPercent, prevLimit := -2, int64(-1)

	if cfg.GCPercent > 0 {
		prevPercent = debug.SetGCPercent(cfg.GCPercent)
	}
	if cfg.MemoryLimit > 0 {
		prevLimit = debug.SetMemoryLimit(cfg.MemoryLimit)
	}

	return func() {
		if prevPercent != -2 {
			debug.SetGCPercent(prevPercent)
		}
		if prevLimit >= 0 {
			debug.SetMemoryLimit(prevLimit)
		}
	}
}

// GCStats holds garbage collection statistics
type GCStats struct {
	NumGC        uint32        `json:"num_gc"`
	PauseTotal   time.Duration `json:"pause_total_ns"`
	LastPause    time.Duration `json:"last_pause_ns"`
	HeapAlloc    uint64        `json:"heap_alloc"`
	Sys          uint64        `json:"sys"`
	NumGoroutine int           `json:"num_goroutine"`
}

// ReadGCStats returns current GC statistics
func ReadGCStats() GCStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := GCStats{
		NumGC:        ms.NumGC,
		PauseTotal:   time.Duration(ms.PauseTotalNs),
		HeapAlloc:    ms.HeapAlloc,
		Sys:          ms.Sys,
		NumGoroutine: runtime.NumGoroutine(),
	}
	if ms.NumGC > 0 {
		stats.LastPause = time.Duration(ms.PauseNs[(ms.NumGC+255)%256])
	}
	return stats
}
