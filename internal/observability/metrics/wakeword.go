package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WakeWordMetrics contains the detector metrics. A nil *WakeWordMetrics is
// valid and records nothing.
type WakeWordMetrics struct {
	Inferences        prometheus.Counter
	InferenceErrors   prometheus.Counter
	Detections        prometheus.Counter
	FalsePositives    prometheus.Counter
	DroppedSignals    prometheus.Counter
	ThrottledCycles   prometheus.Counter
	InferenceDuration prometheus.Histogram
	LastConfidence    prometheus.Gauge
	Enabled           prometheus.Gauge
}

// NewWakeWordMetrics creates the detector metrics and registers them with registry.
func NewWakeWordMetrics(registry *prometheus.Registry) (*WakeWordMetrics, error) {
	m := &WakeWordMetrics{
		Inferences: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wakeword_inferences_total",
			Help: "Total number of classifier inferences",
		}),
		InferenceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wakeword_inference_errors_total",
			Help: "Total number of failed classifier inferences",
		}),
		Detections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wakeword_detections_total",
			Help: "Total number of confirmed wake word detections",
		}),
		FalsePositives: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wakeword_false_positives_total",
			Help: "Total number of detections reported as false positives",
		}),
		DroppedSignals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wakeword_dropped_signals_total",
			Help: "Feature-ready signals dropped because the signal queue was full",
		}),
		ThrottledCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wakeword_throttled_cycles_total",
			Help: "Feature-ready signals skipped by the minimum inference interval",
		}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wakeword_inference_duration_seconds",
			Help:    "Duration of classifier inferences in seconds",
			Buckets: inferenceBuckets,
		}),
		LastConfidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wakeword_last_confidence",
			Help: "Confidence of the most recent inference",
		}),
		Enabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wakeword_enabled",
			Help: "Whether wake word detection is running (1) or not (0)",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register wake word metrics: %w", err)
	}
	return m, nil
}

// RecordInference records a successful inference.
func (m *WakeWordMetrics) RecordInference(d time.Duration, confidence float32) {
	if m == nil {
		return
	}
	m.Inferences.Inc()
	m.InferenceDuration.Observe(d.Seconds())
	m.LastConfidence.Set(float64(confidence))
}

func (m *WakeWordMetrics) RecordInferenceError() {
	if m != nil {
		m.InferenceErrors.Inc()
	}
}

func (m *WakeWordMetrics) RecordDetection() {
	if m != nil {
		m.Detections.Inc()
	}
}

func (m *WakeWordMetrics) RecordFalsePositive() {
	if m != nil {
		m.FalsePositives.Inc()
	}
}

func (m *WakeWordMetrics) RecordDroppedSignal() {
	if m != nil {
		m.DroppedSignals.Inc()
	}
}

func (m *WakeWordMetrics) RecordThrottled() {
	if m != nil {
		m.ThrottledCycles.Inc()
	}
}

// SetEnabled updates the enabled gauge.
func (m *WakeWordMetrics) SetEnabled(enabled bool) {
	if m == nil {
		return
	}
	m.Enabled.Set(boolToFloat(enabled))
}

// Describe implements the prometheus.Collector interface.
func (m *WakeWordMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Inferences.Describe(ch)
	m.InferenceErrors.Describe(ch)
	m.Detections.Describe(ch)
	m.FalsePositives.Describe(ch)
	m.DroppedSignals.Describe(ch)
	m.ThrottledCycles.Describe(ch)
	m.InferenceDuration.Describe(ch)
	m.LastConfidence.Describe(ch)
	m.Enabled.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *WakeWordMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Inferences.Collect(ch)
	m.InferenceErrors.Collect(ch)
	m.Detections.Collect(ch)
	m.FalsePositives.Collect(ch)
	m.DroppedSignals.Collect(ch)
	m.ThrottledCycles.Collect(ch)
	m.InferenceDuration.Collect(ch)
	m.LastConfidence.Collect(ch)
	m.Enabled.Collect(ch)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
