package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// AudioMetrics contains the capture and audio manager metrics. A nil
// *AudioMetrics records nothing.
type AudioMetrics struct {
	FramesProcessed prometheus.Counter
	SamplesStreamed prometheus.Counter
	VoiceActive     prometheus.Gauge
	AudioLevel      prometheus.Gauge
	VADTransitions  *prometheus.CounterVec
	CaptureOverruns prometheus.Counter
	CaptureRestarts prometheus.Counter
	DroppedFrames   prometheus.Counter
}

// NewAudioMetrics creates the audio metrics and registers them with registry.
func NewAudioMetrics(registry *prometheus.Registry) (*AudioMetrics, error) {
	m := &AudioMetrics{
		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audio_frames_processed_total",
			Help: "Total number of capture frames processed",
		}),
		SamplesStreamed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audio_samples_streamed_total",
			Help: "Total number of samples delivered to session sinks",
		}),
		VoiceActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audio_voice_active",
			Help: "Current voice activity decision (1 voice, 0 silence)",
		}),
		AudioLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "audio_level_rms",
			Help: "RMS level of the most recent frame, normalized to [0, 1]",
		}),
		VADTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audio_vad_transitions_total",
			Help: "Voice activity transitions by new state",
		}, []string{"state"}),
		CaptureOverruns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audio_capture_overruns_total",
			Help: "Capture writes rejected because the handoff buffer was full",
		}),
		CaptureRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audio_capture_restarts_total",
			Help: "Capture device restarts after an unexpected stop",
		}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audio_dropped_frames_total",
			Help: "Frames dropped because the consumer fell behind the source",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register audio metrics: %w", err)
	}
	return m, nil
}

// RecordFrame records one processed frame and its RMS level.
func (m *AudioMetrics) RecordFrame(level float32) {
	if m == nil {
		return
	}
	m.FramesProcessed.Inc()
	m.AudioLevel.Set(float64(level))
}

// RecordVADTransition records a change of the voice activity decision.
func (m *AudioMetrics) RecordVADTransition(voice bool) {
	if m == nil {
		return
	}
	m.VoiceActive.Set(boolToFloat(voice))
	state := "silence"
	if voice {
		state = "voice"
	}
	m.VADTransitions.WithLabelValues(state).Inc()
}

func (m *AudioMetrics) AddSamplesStreamed(n int) {
	if m != nil {
		m.SamplesStreamed.Add(float64(n))
	}
}

func (m *AudioMetrics) RecordCaptureOverrun() {
	if m != nil {
		m.CaptureOverruns.Inc()
	}
}

func (m *AudioMetrics) RecordCaptureRestart() {
	if m != nil {
		m.CaptureRestarts.Inc()
	}
}

func (m *AudioMetrics) RecordDroppedFrame() {
	if m != nil {
		m.DroppedFrames.Inc()
	}
}

// Describe implements the prometheus.Collector interface.
func (m *AudioMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.FramesProcessed.Describe(ch)
	m.SamplesStreamed.Describe(ch)
	m.VoiceActive.Describe(ch)
	m.AudioLevel.Describe(ch)
	m.VADTransitions.Describe(ch)
	m.CaptureOverruns.Describe(ch)
	m.CaptureRestarts.Describe(ch)
	m.DroppedFrames.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *AudioMetrics) Collect(ch chan<- prometheus.Metric) {
	m.FramesProcessed.Collect(ch)
	m.SamplesStreamed.Collect(ch)
	m.VoiceActive.Collect(ch)
	m.AudioLevel.Collect(ch)
	m.VADTransitions.Collect(ch)
	m.CaptureOverruns.Collect(ch)
	m.CaptureRestarts.Collect(ch)
	m.DroppedFrames.Collect(ch)
}
