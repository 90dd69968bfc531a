package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWakeWordMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewWakeWordMetrics(registry)
	require.NoError(t, err)

	m.RecordInference(4*time.Millisecond, 0.42)
	m.RecordInference(6*time.Millisecond, 0.93)
	m.RecordDetection()
	m.RecordDroppedSignal()
	m.RecordThrottled()
	m.RecordThrottled()
	m.RecordInferenceError()
	m.RecordFalsePositive()
	m.SetEnabled(true)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Inferences), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Detections), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.DroppedSignals), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.ThrottledCycles), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.InferenceErrors), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.FalsePositives), 0)
	assert.InDelta(t, 0.93, testutil.ToFloat64(m.LastConfidence), 1e-6)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Enabled), 0)

	count, err := testutil.GatherAndCount(registry, "wakeword_inference_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewWakeWordMetrics(registry)
	require.NoError(t, err)
	_, err = NewWakeWordMetrics(registry)
	require.Error(t, err)
}

func TestNilMetricsAreNoOps(t *testing.T) {
	t.Parallel()

	var w *WakeWordMetrics
	var a *AudioMetrics
	var q *MQTTMetrics
	var s *SessionMetrics
	var sys *SystemMetrics

	assert.NotPanics(t, func() {
		w.RecordInference(time.Millisecond, 1)
		w.RecordDetection()
		w.SetEnabled(true)
		a.RecordFrame(0.5)
		a.RecordVADTransition(true)
		a.AddSamplesStreamed(10)
		q.UpdateConnectionStatus(true)
		q.ObservePublish(100, time.Millisecond)
		s.RecordStart("wakeword")
		s.RecordEnd(ReasonSilence, time.Second)
		sys.UpdateArena("internal", 1, 2, 3, 0)
		sys.UpdateHost(1, 2, 3)
	})
}

func TestAudioMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewAudioMetrics(registry)
	require.NoError(t, err)

	m.RecordFrame(0.25)
	m.RecordFrame(0.5)
	m.RecordVADTransition(true)
	m.RecordVADTransition(false)
	m.RecordVADTransition(true)
	m.AddSamplesStreamed(320)
	m.RecordCaptureOverrun()

	assert.InDelta(t, 2, testutil.ToFloat64(m.FramesProcessed), 0)
	assert.InDelta(t, 0.5, testutil.ToFloat64(m.AudioLevel), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.VoiceActive), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.VADTransitions.WithLabelValues("voice")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.VADTransitions.WithLabelValues("silence")), 0)
	assert.InDelta(t, 320, testutil.ToFloat64(m.SamplesStreamed), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CaptureOverruns), 0)
}

func TestMQTTMetricsExposition(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewMQTTMetrics(registry)
	require.NoError(t, err)

	m.UpdateConnectionStatus(true)
	m.IncrementMessagesDelivered()
	m.IncrementMessagesDelivered()

	expected := `
# HELP mqtt_messages_delivered_total Total number of MQTT messages successfully delivered
# TYPE mqtt_messages_delivered_total counter
mqtt_messages_delivered_total 2
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected), "mqtt_messages_delivered_total"))
	assert.InDelta(t, 1, testutil.ToFloat64(m.ConnectionStatus), 0)
}

func TestSessionAndSystemMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	s, err := NewSessionMetrics(registry)
	require.NoError(t, err)
	sys, err := NewSystemMetrics(registry)
	require.NoError(t, err)

	s.RecordStart("wakeword")
	assert.InDelta(t, 1, testutil.ToFloat64(s.Active), 0)
	s.RecordEnd(ReasonSilence, 2*time.Second)
	assert.InDelta(t, 0, testutil.ToFloat64(s.Active), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(s.Ended.WithLabelValues(ReasonSilence)), 0)
	s.AddStreamBytes(640)
	assert.InDelta(t, 640, testutil.ToFloat64(s.StreamBytes), 0)

	sys.UpdateArena("internal", 100, 150, 1000, 2)
	assert.InDelta(t, 100, testutil.ToFloat64(sys.ArenaUsed.WithLabelValues("internal")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(sys.ArenaFailures.WithLabelValues("internal")), 0)
}
