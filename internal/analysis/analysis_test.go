package analysis

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/voicetrigger/internal/audiocore/export"
	"github.com/tphakala/voicetrigger/internal/classifier"
	"github.com/tphakala/voicetrigger/internal/conf"
	"github.com/tphakala/voicetrigger/internal/errors"
)

func testSettings(path string) *conf.Settings {
	s := &conf.Settings{}
	s.Main.NodeID = "node-1"
	s.Audio.SampleRate = 16000
	s.Audio.FrameSize = 320
	s.VAD = conf.VADSettings{Sensitivity: 0.5, Threshold: 0.01, SilenceMs: 200, VoiceMs: 100}
	s.WakeWord = conf.WakeWordSettings{
		Enabled:             true,
		Threshold:           0.9,
		TriggerDurationMs:   450,
		BackBufferMs:        300,
		UseLargeMemory:      true,
		QueueSize:           16,
		InferenceIntervalMs: 30,
	}
	s.Session = conf.SessionSettings{SilenceTimeoutMs: 700, MaxStreamMs: 8000, CooldownMs: 400}
	s.Input.Path = path
	return s
}

func writeTone(t *testing.T, sampleRate int, seconds float64) string {
	t.Helper()
	n := int(float64(sampleRate) * seconds)
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(8000 * math.Sin(2*math.Pi*1000*float64(i)/float64(sampleRate)))
	}
	path := filepath.Join(t.TempDir(), "speech.wav")
	w, err := export.NewClipWriter(path, sampleRate)
	require.NoError(t, err)
	require.NoError(t, w.Write(samples))
	require.NoError(t, w.Close())
	return path
}

func TestFileConfirmsSustainedWakeWord(t *testing.T) {
	t.Parallel()

	path := writeTone(t, 16000, 3)
	clf := classifier.NewScripted(0.95)

	result, err := File(t.Context(), testSettings(path), FileOptions{Classifier: clf})
	require.NoError(t, err)

	assert.Equal(t, path, result.Path)
	assert.InDelta(t, 3.0, result.Duration.Seconds(), 0.03)
	require.NotEmpty(t, result.Detections)

	first := result.Detections[0]
	assert.NotEmpty(t, first.ID)
	assert.InDelta(t, 0.95, first.Confidence, 1e-6)
	assert.GreaterOrEqual(t, first.Offset, 450*time.Millisecond, "confidence must be held for the trigger duration")
	assert.LessOrEqual(t, first.Offset, result.Duration)
	assert.Equal(t, uint64(1), result.Sessions, "detections while streaming do not start new sessions")
	assert.Positive(t, clf.Calls())
}

func TestFileLowConfidenceHasNoDetections(t *testing.T) {
	t.Parallel()

	path := writeTone(t, 16000, 2)
	clf := classifier.NewScripted(0.3)

	result, err := File(t.Context(), testSettings(path), FileOptions{Classifier: clf})
	require.NoError(t, err)
	assert.Empty(t, result.Detections)
	assert.Zero(t, result.Sessions)
	assert.Positive(t, clf.Calls())
}

func TestFileRejectsBadInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.wav")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	tests := []struct {
		name     string
		path     string
		category errors.ErrorCategory
	}{
		{name: "no path", path: "", category: errors.CategoryValidation},
		{name: "missing", path: filepath.Join(dir, "missing.wav"), category: errors.CategoryFileIO},
		{name: "directory", path: dir, category: errors.CategoryValidation},
		{name: "empty", path: empty, category: errors.CategoryValidation},
		{name: "wrong rate", path: writeTone(t, 8000, 0.5), category: errors.CategoryValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := File(t.Context(), testSettings(tt.path), FileOptions{Classifier: classifier.NewScripted(0.5)})
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, tt.category), "got %v", err)
		})
	}
}

func TestZeroInputCheck(t *testing.T) {
	t.Parallel()

	confidence, suspicious, err := zeroInputCheck(classifier.NewScripted(0.02))
	require.NoError(t, err)
	assert.InDelta(t, 0.02, confidence, 1e-6)
	assert.False(t, suspicious)

	_, suspicious, err = zeroInputCheck(classifier.NewScripted(0.6))
	require.NoError(t, err)
	assert.True(t, suspicious)

	failing := classifier.NewScripted(0.1)
	failing.FailWith(errors.NewStd("interpreter failure"))
	_, _, err = zeroInputCheck(failing)
	require.Error(t, err)
}
