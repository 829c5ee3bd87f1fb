package domain

import "context"

// SystemStats is a point-in-time view of host resources. Percentages are
// 0 to 100.
type SystemStats struct {
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage float64 `json:"memory_usage"`
	MemoryTotal uint64  `json:"memory_total"`
	MemoryUsed  uint64  `json:"memory_used"`
	DiskUsage   float64 `json:"disk_usage"`
	DiskTotal   uint64  `json:"disk_total"`
	DiskUsed    uint64  `json:"disk_used"`
}

type StatsSampler interface {
	Sample(ctx context.Context) (*SystemStats, error)
}
