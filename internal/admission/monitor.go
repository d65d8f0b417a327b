package admission

import (
	"runtime"
	"sync"
	"time"

	"github.com/ManuGH/querygate/internal/metrics"
)

const (
	defaultCPUWindow     = 30 * time.Second
	defaultCPUMinSamples = 1
	defaultCPUThreshold  = 1.5
)

// AdaptiveSettings reports whether a warehouse's capacity follows CPU
// pressure, and the load multiplier (per core) above which it shrinks.
type AdaptiveSettings interface {
	AdaptiveCapacity(warehouseID int64) (cpuThreshold float64, enabled bool)
}

// UsageMonitor is a usage-adaptive CapacityPolicy. It wraps a base policy and
// scales the base capacity down while the smoothed CPU load is above
// cores*cpuThreshold:
//
//	units = max(1, floor(base * cores*cpuThreshold / load))
//
// Unbounded warehouses stay unbounded. Without enough recent samples it
// fails closed and reports zero capacity for adaptive warehouses.
type UsageMonitor struct {
	base     CapacityPolicy
	settings AdaptiveSettings
	cores    float64
	clock    func() time.Time

	window     time.Duration
	minSamples int

	cpuMu      sync.Mutex
	cpuSamples []cpuSample
}

type cpuSample struct {
	at   time.Time
	load float64
}

// NewUsageMonitor wraps base with CPU-driven scaling for the warehouses that
// settings mark as adaptive.
func NewUsageMonitor(base CapacityPolicy, settings AdaptiveSettings) *UsageMonitor {
	if base == nil {
		base = Unbounded()
	}
	return &UsageMonitor{
		base:       base,
		settings:   settings,
		cores:      float64(runtime.NumCPU()),
		clock:      time.Now,
		window:     defaultCPUWindow,
		minSamples: defaultCPUMinSamples,
	}
}

// ObserveCPULoad records a 1-minute load average sample.
func (m *UsageMonitor) ObserveCPULoad(load float64) {
	m.observeCPULoadAt(load, m.clock())
}

func (m *UsageMonitor) observeCPULoadAt(load float64, at time.Time) {
	m.cpuMu.Lock()
	defer m.cpuMu.Unlock()
	m.cpuSamples = append(m.cpuSamples, cpuSample{at: at, load: load})
	m.pruneLocked(m.clock())
}

func (m *UsageMonitor) pruneLocked(now time.Time) {
	cutoff := now.Add(-m.window)
	i := 0
	for i < len(m.cpuSamples) && m.cpuSamples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		m.cpuSamples = append(m.cpuSamples[:0], m.cpuSamples[i:]...)
	}
}

// SmoothedLoad returns the mean load over the sampling window and whether
// enough samples were available.
func (m *UsageMonitor) SmoothedLoad() (float64, bool) {
	m.cpuMu.Lock()
	defer m.cpuMu.Unlock()
	m.pruneLocked(m.clock())
	if len(m.cpuSamples) < m.minSamples || len(m.cpuSamples) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range m.cpuSamples {
		sum += s.load
	}
	avg := sum / float64(len(m.cpuSamples))
	metrics.SetCPULoad(avg)
	return avg, true
}

// MaxUnits implements CapacityPolicy.
func (m *UsageMonitor) MaxUnits(warehouseID int64) (int, bool) {
	units, bounded := m.base.MaxUnits(warehouseID)
	if !bounded || m.settings == nil {
		return units, bounded
	}
	threshold, enabled := m.settings.AdaptiveCapacity(warehouseID)
	if !enabled {
		return units, bounded
	}
	if threshold <= 0 {
		threshold = defaultCPUThreshold
	}

	load, ok := m.SmoothedLoad()
	if !ok {
		return 0, true
	}
	limit := m.cores * threshold
	if load <= limit {
		return units, true
	}
	scaled := int(float64(units) * limit / load)
	return max(1, scaled), true
}
