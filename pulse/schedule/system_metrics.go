package schedule

import (
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemMetrics is the resource picture logged with each scheduler heartbeat
type SystemMetrics struct {
	InFlight      int     `json:"in_flight"`
	MaxConcurrent int     `json:"max_concurrent"`
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
}

const bytesPerGB = 1024 * 1024 * 1024

// GetSystemMetrics returns dispatch occupancy and host memory.
// Memory fields stay zero when the platform does not report them.
func (s *Scheduler) GetSystemMetrics() SystemMetrics {
	s.mu.Lock()
	metrics := SystemMetrics{
		InFlight:      s.inFlight,
		MaxConcurrent: s.cfg.MaxConcurrent,
	}
	s.mu.Unlock()

	if v, err := mem.VirtualMemory(); err == nil && v.Total > 0 {
		metrics.MemoryTotalGB = float64(v.Total) / bytesPerGB
		metrics.MemoryUsedGB = float64(v.Total-v.Available) / bytesPerGB
		metrics.MemoryPercent = metrics.MemoryUsedGB / metrics.MemoryTotalGB * 100
	}
	return metrics
}
