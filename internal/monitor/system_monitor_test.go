package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/voicetrigger/internal/memory"
	"github.com/tphakala/voicetrigger/internal/notification"
	"github.com/tphakala/voicetrigger/internal/observability/metrics"
)

type recordingAlerter struct {
	mu   sync.Mutex
	sent []*notification.Notification
	err  error
}

func (r *recordingAlerter) Send(_ context.Context, msg *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

func (r *recordingAlerter) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Title)
	}
	return out
}

// fixedProbes returns probes reading from the given pointers.
func fixedProbes(memPct, diskPct *float64) probes {
	return probes{
		memory: func() (float64, error) { return *memPct, nil },
		cpu:    func() (float64, error) { return 12.5, nil },
		disk:   func(string) (float64, error) { return *diskPct, nil },
	}
}

func TestCheckUpdatesGauges(t *testing.T) {
	t.Parallel()

	sm, err := metrics.NewSystemMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	arena := memory.NewArena(memory.RegionInternal, 1024)
	_, err = memory.Alloc[int16](arena, 100)
	require.NoError(t, err)

	m := NewSystemMonitor(Config{}, sm, nil, arena, nil)
	memPct, diskPct := 42.0, 0.0
	m.probes = fixedProbes(&memPct, &diskPct)

	snap := m.Check(t.Context())
	assert.InDelta(t, 42.0, snap.MemoryPercent, 1e-9)
	assert.InDelta(t, 12.5, snap.CPUPercent, 1e-9)
	assert.Zero(t, snap.DiskPercent)
	require.Len(t, snap.Arenas, 1)
	assert.Equal(t, int64(200), snap.Arenas[0].Used)

	assert.InDelta(t, 42.0, testutil.ToFloat64(sm.MemoryUsed), 1e-9)
	assert.InDelta(t, 200.0, testutil.ToFloat64(sm.ArenaUsed.WithLabelValues("internal")), 1e-9)
	assert.InDelta(t, 1024.0, testutil.ToFloat64(sm.ArenaLimit.WithLabelValues("internal")), 1e-9)
	assert.Equal(t, snap.Time, m.Last().Time)
}

func TestMemoryAlertWithHysteresis(t *testing.T) {
	t.Parallel()

	alerter := &recordingAlerter{}
	m := NewSystemMonitor(Config{MemoryCritical: 90}, nil, alerter)
	memPct, diskPct := 50.0, 0.0
	m.probes = fixedProbes(&memPct, &diskPct)

	m.Check(t.Context())
	assert.Empty(t, alerter.titles())

	memPct = 91
	m.Check(t.Context())
	m.Check(t.Context())
	assert.Equal(t, []string{"High memory usage"}, alerter.titles(), "alert is sent once per episode")
	assert.True(t, m.ResourceStatus()[ResourceMemory].InCritical)

	// within the hysteresis margin
	memPct = 87
	m.Check(t.Context())
	assert.Len(t, alerter.titles(), 1)

	memPct = 80
	m.Check(t.Context())
	assert.Equal(t, []string{"High memory usage", "memory usage recovered"}, alerter.titles())
	assert.False(t, m.ResourceStatus()[ResourceMemory].InCritical)

	alerter.mu.Lock()
	first := alerter.sent[0]
	alerter.mu.Unlock()
	assert.Equal(t, notification.TypeSystem, first.Type)
	assert.Equal(t, "monitor", first.Component)
	assert.Equal(t, "memory", first.Metadata["resource"])
}

func TestDiskCheckedOnlyWithPath(t *testing.T) {
	t.Parallel()

	alerter := &recordingAlerter{}
	memPct, diskPct := 10.0, 99.0

	without := NewSystemMonitor(Config{DiskCritical: 95}, nil, alerter)
	without.probes = fixedProbes(&memPct, &diskPct)
	without.Check(t.Context())
	assert.Empty(t, alerter.titles())

	with := NewSystemMonitor(Config{DiskCritical: 95, DiskPath: t.TempDir()}, nil, alerter)
	with.probes = fixedProbes(&memPct, &diskPct)
	snap := with.Check(t.Context())
	assert.InDelta(t, 99.0, snap.DiskPercent, 1e-9)
	assert.Equal(t, []string{"High disk usage"}, alerter.titles())
}

func TestAlertSendFailureDoesNotBlockState(t *testing.T) {
	t.Parallel()

	alerter := &recordingAlerter{err: errors.New("offline")}
	m := NewSystemMonitor(Config{MemoryCritical: 90}, nil, alerter)
	memPct, diskPct := 95.0, 0.0
	m.probes = fixedProbes(&memPct, &diskPct)

	m.Check(t.Context())
	assert.True(t, m.ResourceStatus()[ResourceMemory].InCritical)
}

func TestProbeErrorsAreTolerated(t *testing.T) {
	t.Parallel()

	m := NewSystemMonitor(Config{MemoryCritical: 90, DiskPath: "/"}, nil, nil)
	m.probes = probes{
		memory: func() (float64, error) { return 0, errors.New("no meminfo") },
		cpu:    func() (float64, error) { return 0, errors.New("no stat") },
		disk:   func(string) (float64, error) { return 0, errors.New("no statfs") },
	}

	snap := m.Check(t.Context())
	assert.Zero(t, snap.MemoryPercent)
	assert.False(t, m.ResourceStatus()[ResourceMemory].InCritical)
}

func TestHostProbes(t *testing.T) {
	t.Parallel()

	p := hostProbes()
	mp, err := p.memory()
	require.NoError(t, err)
	assert.Greater(t, mp, 0.0)

	dp, err := p.disk(t.TempDir())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, dp, 0.0)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	m := NewSystemMonitor(Config{Interval: 10 * time.Millisecond}, nil, nil)
	memPct, diskPct := 1.0, 0.0
	m.probes = fixedProbes(&memPct, &diskPct)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return !m.Last().Time.IsZero() }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
