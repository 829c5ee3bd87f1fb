package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/semmidev/dbtoolkit/internal/domain"
)

type MetricSample struct {
	Timestamp time.Time `json:"timestamp"`
	CPU       float64   `json:"cpu"`
	Memory    float64   `json:"memory"`
	Disk      float64   `json:"disk"`
}

// MetricsHistory keeps samples no older than window, at most capacity of
// them, in a ring buffer.
type MetricsHistory struct {
	mu      sync.RWMutex
	window  time.Duration
	samples []MetricSample
	start   int
	count   int
	now     func() time.Time
}

func NewMetricsHistory(window time.Duration, capacity int) *MetricsHistory {
	if capacity <= 0 {
		capacity = 3600
	}
	if window <= 0 {
		window = 3 * time.Hour
	}
	return &MetricsHistory{
		window:  window,
		samples: make([]MetricSample, capacity),
		now:     time.Now,
	}
}

func (h *MetricsHistory) Add(s MetricSample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == len(h.samples) {
		h.start = (h.start + 1) % len(h.samples)
		h.count--
	}
	h.samples[(h.start+h.count)%len(h.samples)] = s
	h.count++
	h.expire()
}

// expire drops samples that fell out of the window. Samples are appended in
// time order, so only the head needs checking.
func (h *MetricsHistory) expire() {
	cutoff := h.now().Add(-h.window)
	for h.count > 0 && !h.samples[h.start].Timestamp.After(cutoff) {
		h.samples[h.start] = MetricSample{}
		h.start = (h.start + 1) % len(h.samples)
		h.count--
	}
}

// Since returns the samples newer than d ago, oldest first.
func (h *MetricsHistory) Since(d time.Duration) []MetricSample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cutoff := h.now().Add(-d)
	out := make([]MetricSample, 0, h.count)
	for i := 0; i < h.count; i++ {
		s := h.samples[(h.start+i)%len(h.samples)]
		if s.Timestamp.After(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

func (h *MetricsHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Monitor samples host resources into a MetricsHistory.
type Monitor struct {
	sampler domain.StatsSampler
	history *MetricsHistory
	logger  Logger
}

func NewMonitor(sampler domain.StatsSampler, history *MetricsHistory, logger Logger) *Monitor {
	return &Monitor{sampler: sampler, history: history, logger: logger}
}

func (m *Monitor) Current(ctx context.Context) (*domain.SystemStats, error) {
	return m.sampler.Sample(ctx)
}

// Record takes one sample and appends it to the history.
func (m *Monitor) Record(ctx context.Context) error {
	stats, err := m.sampler.Sample(ctx)
	if err != nil {
		return err
	}
	m.history.Add(MetricSample{
		Timestamp: m.history.now(),
		CPU:       stats.CPUUsage,
		Memory:    stats.MemoryUsage,
		Disk:      stats.DiskUsage,
	})
	return nil
}

// History returns samples from the last hours hours, capped to the window.
func (m *Monitor) History(hours int) []MetricSample {
	d := time.Duration(hours) * time.Hour
	if hours <= 0 || d > m.history.window {
		d = m.history.window
	}
	return m.history.Since(d)
}
