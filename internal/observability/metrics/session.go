package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionMetrics tracks listening sessions and the sinks they feed. A nil
// *SessionMetrics records nothing.
type SessionMetrics struct {
	Started      *prometheus.CounterVec
	Ended        *prometheus.CounterVec
	Duration     prometheus.Histogram
	Active       prometheus.Gauge
	SinkErrors   *prometheus.CounterVec
	StreamBytes  prometheus.Counter
	Notification *prometheus.CounterVec
}

// NewSessionMetrics creates the session metrics and registers them with registry.
func NewSessionMetrics(registry *prometheus.Registry) (*SessionMetrics, error) {
	m := &SessionMetrics{
		Started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_started_total",
			Help: "Listening sessions started, by trigger",
		}, []string{"trigger"}),
		Ended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_ended_total",
			Help: "Listening sessions ended, by reason",
		}, []string{"reason"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "session_duration_seconds",
			Help:    "Duration of streaming sessions in seconds",
			Buckets: sessionBuckets,
		}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "session_active",
			Help: "Whether a session is currently streaming",
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_sink_errors_total",
			Help: "Errors returned by session sinks",
		}, []string{"sink"}),
		StreamBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_bytes_sent_total",
			Help: "Audio bytes sent to the speech endpoint",
		}),
		Notification: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Notifications sent, by status",
		}, []string{"status"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register session metrics: %w", err)
	}
	return m, nil
}

func (m *SessionMetrics) RecordStart(trigger string) {
	if m == nil {
		return
	}
	m.Started.WithLabelValues(trigger).Inc()
	m.Active.Set(1)
}

func (m *SessionMetrics) RecordEnd(reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.Ended.WithLabelValues(reason).Inc()
	m.Duration.Observe(d.Seconds())
	m.Active.Set(0)
}

func (m *SessionMetrics) RecordSinkError(sink string) {
	if m != nil {
		m.SinkErrors.WithLabelValues(sink).Inc()
	}
}

func (m *SessionMetrics) AddStreamBytes(n int) {
	if m != nil {
		m.StreamBytes.Add(float64(n))
	}
}

func (m *SessionMetrics) RecordNotification(status string) {
	if m != nil {
		m.Notification.WithLabelValues(status).Inc()
	}
}

// Describe implements the prometheus.Collector interface.
func (m *SessionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Started.Describe(ch)
	m.Ended.Describe(ch)
	m.Duration.Describe(ch)
	m.Active.Describe(ch)
	m.SinkErrors.Describe(ch)
	m.StreamBytes.Describe(ch)
	m.Notification.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *SessionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Started.Collect(ch)
	m.Ended.Collect(ch)
	m.Duration.Collect(ch)
	m.Active.Collect(ch)
	m.SinkErrors.Collect(ch)
	m.StreamBytes.Collect(ch)
	m.Notification.Collect(ch)
}
