package system

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/semmidev/dbtoolkit/internal/domain"
)

// Sampler reads host CPU, memory and disk usage through gopsutil.
type Sampler struct {
	diskPath    string
	cpuInterval time.Duration
}

func NewSampler(diskPath string) *Sampler {
	if diskPath == "" {
		diskPath = "/"
	}
	return &Sampler{diskPath: diskPath, cpuInterval: 100 * time.Millisecond}
}

func (s *Sampler) Sample(ctx context.Context) (*domain.SystemStats, error) {
	percents, err := cpu.PercentWithContext(ctx, s.cpuInterval, false)
	if err != nil {
		return nil, fmt.Errorf("cpu usage: %w", err)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory usage: %w", err)
	}

	usage, err := disk.UsageWithContext(ctx, s.diskPath)
	if err != nil {
		return nil, fmt.Errorf("disk usage for %s: %w", s.diskPath, err)
	}

	stats := &domain.SystemStats{
		MemoryUsage: vm.UsedPercent,
		MemoryTotal: vm.Total,
		MemoryUsed:  vm.Used,
		DiskUsage:   usage.UsedPercent,
		DiskTotal:   usage.Total,
		DiskUsed:    usage.Used,
	}
	if len(percents) > 0 {
		stats.CPUUsage = percents[0]
	}
	return stats, nil
}
