// Package monitor provides system resource monitoring with threshold-based notifications
package monitor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/logger"
	"github.com/tphakala/voicetrigger/internal/memory"
	"github.com/tphakala/voicetrigger/internal/notification"
	"github.com/tphakala/voicetrigger/internal/observability/metrics"
)

// ResourceType represents the type of system resource being monitored
type ResourceType string

const (
	ResourceCPU    ResourceType = "cpu"
	ResourceMemory ResourceType = "memory"
	ResourceDisk   ResourceType = "disk"
)

const (
	defaultInterval          = 60 * time.Second
	defaultHysteresisPercent = 5.0
)

// Alerter delivers threshold notifications.
type Alerter interface {
	Send(ctx context.Context, msg *notification.Notification) error
}

// Config holds the monitor thresholds. A zero threshold disables the check.
type Config struct {
	Interval       time.Duration
	MemoryCritical float64
	DiskCritical   float64
	DiskPath       string // directory whose filesystem is checked, usually the clip directory
}

// Snapshot is one sample of host and arena usage.
type Snapshot struct {
	Time          time.Time
	MemoryPercent float64
	CPUPercent    float64
	DiskPercent   float64 // 0 when no disk path is configured
	Goroutines    int
	Arenas        []memory.Stats
}

// AlertState tracks the current alert state for a resource
type AlertState struct {
	InCritical    bool
	LastValue     float64
	LastCheck     time.Time
	CriticalSince time.Time
}

// probes read host usage; tests replace them.
type probes struct {
	memory func() (float64, error)
	cpu    func() (float64, error)
	disk   func(path string) (float64, error)
}

func hostProbes() probes {
	return probes{
		memory: func() (float64, error) {
			vm, err := mem.VirtualMemory()
			if err != nil {
				return 0, err
			}
			return vm.UsedPercent, nil
		},
		cpu: func() (float64, error) {
			// non-blocking, measured since the previous call
			p, err := cpu.Percent(0, false)
			if err != nil {
				return 0, err
			}
			if len(p) == 0 {
				return 0, errors.Newf("no cpu usage reported").Component("monitor").Category(errors.CategoryResource).Build()
			}
			return p[0], nil
		},
		disk: func(path string) (float64, error) {
			u, err := disk.Usage(path)
			if err != nil {
				return 0, err
			}
			return u.UsedPercent, nil
		},
	}
}

// SystemMonitor samples host resources and memory arenas, exports them as
// gauges and sends a notification when a resource crosses its critical
// threshold and again when it recovers.
type SystemMonitor struct {
	cfg     Config
	arenas  []*memory.Arena
	metrics *metrics.SystemMetrics
	alerter Alerter
	probes  probes

	mu     sync.Mutex
	states map[ResourceType]*AlertState
	last   Snapshot
	log    logger.Logger
}

// NewSystemMonitor creates a monitor. metrics and alerter may be nil.
func NewSystemMonitor(cfg Config, sm *metrics.SystemMetrics, alerter Alerter, arenas ...*memory.Arena) *SystemMonitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	m := &SystemMonitor{
		cfg:     cfg,
		metrics: sm,
		alerter: alerter,
		probes:  hostProbes(),
		states:  make(map[ResourceType]*AlertState),
		log:     GetLogger(),
	}
	for _, a := range arenas {
		if a != nil {
			m.arenas = append(m.arenas, a)
		}
	}
	return m
}

// Run samples every interval until ctx is cancelled.
func (m *SystemMonitor) Run(ctx context.Context) error {
	m.log.Info("system monitor started",
		logger.Duration("interval", m.cfg.Interval),
		logger.Float64("memory_critical", m.cfg.MemoryCritical),
		logger.Float64("disk_critical", m.cfg.DiskCritical),
		logger.String("disk_path", m.cfg.DiskPath))

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			m.log.Info("system monitor stopped")
			return nil
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check takes one snapshot, updates the gauges and evaluates thresholds.
func (m *SystemMonitor) Check(ctx context.Context) Snapshot {
	snap := Snapshot{Time: time.Now(), Goroutines: runtime.NumGoroutine()}

	var err error
	if snap.MemoryPercent, err = m.probes.memory(); err != nil {
		m.log.Warn("failed to read memory usage", logger.Error(err))
	}
	if snap.CPUPercent, err = m.probes.cpu(); err != nil {
		m.log.Warn("failed to read cpu usage", logger.Error(err))
	}
	if m.cfg.DiskPath != "" {
		if snap.DiskPercent, err = m.probes.disk(m.cfg.DiskPath); err != nil {
			m.log.Warn("failed to read disk usage",
				logger.String("path", m.cfg.DiskPath),
				logger.Error(err))
		}
	}

	for _, a := range m.arenas {
		st := a.Stats()
		snap.Arenas = append(snap.Arenas, st)
		m.metrics.UpdateArena(string(st.Region), st.Used, st.Peak, st.Limit, st.Failures)
	}
	m.metrics.UpdateHost(snap.MemoryPercent, snap.CPUPercent, snap.Goroutines)

	m.log.Debug("system snapshot",
		logger.Float64("memory_percent", snap.MemoryPercent),
		logger.Float64("cpu_percent", snap.CPUPercent),
		logger.Float64("disk_percent", snap.DiskPercent),
		logger.Int("goroutines", snap.Goroutines))

	m.checkThreshold(ctx, ResourceMemory, snap.MemoryPercent, m.cfg.MemoryCritical, snap.Time)
	if m.cfg.DiskPath != "" {
		m.checkThreshold(ctx, ResourceDisk, snap.DiskPercent, m.cfg.DiskCritical, snap.Time)
	}

	m.mu.Lock()
	m.last = snap
	m.mu.Unlock()
	return snap
}

// checkThreshold raises an alert when current reaches critical and clears it
// once current falls below critical minus the hysteresis margin.
func (m *SystemMonitor) checkThreshold(ctx context.Context, resource ResourceType, current, critical float64, now time.Time) {
	if critical <= 0 {
		return
	}

	m.mu.Lock()
	state, ok := m.states[resource]
	if !ok {
		state = &AlertState{}
		m.states[resource] = state
	}
	state.LastValue = current
	state.LastCheck = now

	var msg *notification.Notification
	switch {
	case !state.InCritical && current >= critical:
		state.InCritical = true
		state.CriticalSince = now
		msg = &notification.Notification{
			Type:    notification.TypeSystem,
			Title:   fmt.Sprintf("High %s usage", resource),
			Message: fmt.Sprintf("%s usage is %.1f%%, critical threshold is %.1f%%", resource, current, critical),
		}
	case state.InCritical && current < critical-defaultHysteresisPercent:
		state.InCritical = false
		msg = &notification.Notification{
			Type:    notification.TypeSystem,
			Title:   fmt.Sprintf("%s usage recovered", resource),
			Message: fmt.Sprintf("%s usage is back to %.1f%% after %s", resource, current, now.Sub(state.CriticalSince).Round(time.Second)),
		}
	}
	m.mu.Unlock()

	if msg == nil {
		return
	}
	msg.Component = "monitor"
	msg.Timestamp = now
	msg.Metadata = map[string]any{"resource": string(resource), "value": current, "threshold": critical}

	m.log.Warn(msg.Title, logger.Float64("value", current), logger.Float64("threshold", critical))
	if m.alerter == nil {
		return
	}
	if err := m.alerter.Send(ctx, msg); err != nil {
		m.log.Warn("failed to send resource notification",
			logger.String("resource", string(resource)),
			logger.Error(err))
	}
}

// Last returns the most recent snapshot.
func (m *SystemMonitor) Last() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// ResourceStatus returns a copy of the alert state of each checked resource.
func (m *SystemMonitor) ResourceStatus() map[ResourceType]AlertState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[ResourceType]AlertState, len(m.states))
	for k, v := range m.states {
		out[k] = *v
	}
	return out
}
