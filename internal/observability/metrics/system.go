package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// SystemMetrics holds host and memory-arena gauges updated by the monitor.
// A nil *SystemMetrics records nothing.
type SystemMetrics struct {
	ArenaUsed     *prometheus.GaugeVec
	ArenaPeak     *prometheus.GaugeVec
	ArenaLimit    *prometheus.GaugeVec
	ArenaFailures *prometheus.GaugeVec
	MemoryUsed    prometheus.Gauge
	CPUUsage      prometheus.Gauge
	Goroutines    prometheus.Gauge
}

// NewSystemMetrics creates the system metrics and registers them with registry.
func NewSystemMetrics(registry *prometheus.Registry) (*SystemMetrics, error) {
	m := &SystemMetrics{
		ArenaUsed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "memory_arena_used_bytes",
			Help: "Bytes reserved from a memory arena",
		}, []string{"region"}),
		ArenaPeak: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "memory_arena_peak_bytes",
			Help: "Peak bytes reserved from a memory arena",
		}, []string{"region"}),
		ArenaLimit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "memory_arena_limit_bytes",
			Help: "Byte limit of a memory arena, 0 when unlimited",
		}, []string{"region"}),
		ArenaFailures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "memory_arena_failed_allocations",
			Help: "Allocations refused by a memory arena",
		}, []string{"region"}),
		MemoryUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "system_memory_used_percent",
			Help: "Host memory usage in percent",
		}),
		CPUUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "system_cpu_usage_percent",
			Help: "Host CPU usage in percent",
		}),
		Goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "process_goroutines_current",
			Help: "Number of goroutines in the process",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register system metrics: %w", err)
	}
	return m, nil
}

// UpdateArena records the usage of one arena.
func (m *SystemMetrics) UpdateArena(region string, used, peak, limit int64, failures uint64) {
	if m == nil {
		return
	}
	m.ArenaUsed.WithLabelValues(region).Set(float64(used))
	m.ArenaPeak.WithLabelValues(region).Set(float64(peak))
	m.ArenaLimit.WithLabelValues(region).Set(float64(limit))
	m.ArenaFailures.WithLabelValues(region).Set(float64(failures))
}

// UpdateHost records host resource usage.
func (m *SystemMetrics) UpdateHost(memPercent, cpuPercent float64, goroutines int) {
	if m == nil {
		return
	}
	m.MemoryUsed.Set(memPercent)
	m.CPUUsage.Set(cpuPercent)
	m.Goroutines.Set(float64(goroutines))
}

// Describe implements the prometheus.Collector interface.
func (m *SystemMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ArenaUsed.Describe(ch)
	m.ArenaPeak.Describe(ch)
	m.ArenaLimit.Describe(ch)
	m.ArenaFailures.Describe(ch)
	m.MemoryUsed.Describe(ch)
	m.CPUUsage.Describe(ch)
	m.Goroutines.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *SystemMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ArenaUsed.Collect(ch)
	m.ArenaPeak.Collect(ch)
	m.ArenaLimit.Collect(ch)
	m.ArenaFailures.Collect(ch)
	m.MemoryUsed.Collect(ch)
	m.CPUUsage.Collect(ch)
	m.Goroutines.Collect(ch)
}
