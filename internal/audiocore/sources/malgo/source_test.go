package malgo

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/voicetrigger/internal/audiocore"
	"github.com/tphakala/voicetrigger/internal/observability/metrics"
)

func pcmBytes(samples ...int16) []byte {
	return audiocore.EncodePCM16(nil, samples)
}

func newTestSource(t *testing.T, cfg Config) (*Source, *metrics.AudioMetrics) {
	t.Helper()
	am, err := metrics.NewAudioMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	s, err := New(cfg, am)
	require.NoError(t, err)
	return s, am
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	s, err := New(Config{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "capture", s.Name())
	assert.Equal(t, audiocore.DefaultFormat(), s.Format())
	assert.InDelta(t, 1.0, s.cfg.Gain, 1e-9)
	assert.Equal(t, 50, s.cfg.BufferFrames)
}

func TestOnDataReframesCallbacks(t *testing.T) {
	t.Parallel()

	s, _ := newTestSource(t, Config{FrameSize: 4, BufferFrames: 4})

	// device periods rarely line up with frames
	s.onData(nil, pcmBytes(1, 2, 3), 3)
	assert.Empty(t, s.Frames())
	s.onData(nil, pcmBytes(4, 5, 6, 7, 8, 9), 6)

	require.Len(t, s.Frames(), 2)
	assert.Equal(t, []int16{1, 2, 3, 4}, <-s.Frames())
	assert.Equal(t, []int16{5, 6, 7, 8}, <-s.Frames())
	assert.Equal(t, 2, s.framer.Pending())
}

func TestOnDataAppliesGain(t *testing.T) {
	t.Parallel()

	s, _ := newTestSource(t, Config{FrameSize: 2, BufferFrames: 2, Gain: 2})
	s.onData(nil, pcmBytes(100, 30000), 2)
	assert.Equal(t, []int16{200, 32767}, <-s.Frames())
}

func TestOnDataCountsOverrunsAndDrops(t *testing.T) {
	t.Parallel()

	s, am := newTestSource(t, Config{FrameSize: 2, BufferFrames: 2})

	s.onData(nil, pcmBytes(1, 2, 3, 4, 5, 6), 6)
	assert.InDelta(t, 1, testutil.ToFloat64(am.CaptureOverruns), 0)
	assert.Empty(t, s.Frames())

	for range frameChannelSize + 1 {
		s.onData(nil, pcmBytes(7, 8), 2)
	}
	assert.Len(t, s.Frames(), frameChannelSize)
	assert.InDelta(t, 1, testutil.ToFloat64(am.DroppedFrames), 0)
}

func TestStopClosesFramesOnce(t *testing.T) {
	t.Parallel()

	s, _ := newTestSource(t, Config{FrameSize: 2})
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())

	_, ok := <-s.Frames()
	assert.False(t, ok)

	// late callbacks after Stop are ignored
	s.onData(nil, pcmBytes(1, 2), 2)
}
