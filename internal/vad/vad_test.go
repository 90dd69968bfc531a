package vad

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const frameSize = 320

func squareWave(amplitude int16) []int16 {
	out := make([]int16, frameSize)
	for i := range out {
		if i%2 == 0 {
			out[i] = amplitude
		} else {
			out[i] = -amplitude
		}
	}
	return out
}

func sineWave(amplitude float64, freq float64) []int16 {
	out := make([]int16, frameSize)
	for i := range out {
		out[i] = int16(amplitude * math.Sin(2*math.Pi*freq*float64(i)/16000))
	}
	return out
}

func silence() []int16 { return make([]int16, frameSize) }

func TestEnergy(t *testing.T) {
	t.Parallel()

	assert.Zero(t, Energy(nil))
	assert.Zero(t, Energy(silence()))
	assert.InDelta(t, 32767.0/32768.0, Energy(squareWave(32767)), 1e-6)
	assert.InDelta(t, 0.5, Energy(squareWave(16384)), 1e-6)
}

func TestZeroCrossingRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		samples []int16
		want    float32
	}{
		{"empty", nil, 0},
		{"single sample", []int16{5}, 0},
		{"alternating", squareWave(100), 1},
		{"constant", []int16{3, 3, 3, 3}, 0},
		{"zero is non-negative", []int16{0, 1, 0, 2}, 0},
		{"zero to negative", []int16{0, -1, 0}, 1},
		{"half", []int16{1, -1, -1, -1, -1}, 0.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, ZeroCrossingRate(tt.samples), 1e-6)
		})
	}
}

func TestDefaultDecisionFrames(t *testing.T) {
	t.Parallel()

	p := New(DefaultConfig())
	voice, silenceFrames := p.DecisionFrames()
	assert.Equal(t, uint32(5), voice)
	assert.Equal(t, uint32(10), silenceFrames)
}

func TestDecisionFrameFloors(t *testing.T) {
	t.Parallel()

	p := New(DefaultConfig())
	p.SetVoiceDuration(30)
	p.SetSilenceDuration(60)
	voice, silenceFrames := p.DecisionFrames()
	assert.Equal(t, uint32(2), voice)
	assert.Equal(t, uint32(5), silenceFrames)

	p.SetVoiceDuration(300)
	p.SetSilenceDuration(500)
	voice, silenceFrames = p.DecisionFrames()
	assert.Equal(t, uint32(15), voice)
	assert.Equal(t, uint32(25), silenceFrames)
}

func TestHysteresisFlipsOnThresholdFrame(t *testing.T) {
	t.Parallel()

	p := New(DefaultConfig())
	voiceFrames, _ := p.DecisionFrames()
	loud := squareWave(32767)

	for i := uint32(1); i < voiceFrames; i++ {
		require.False(t, p.ProcessFrame(loud), "frame %d flipped early", i)
	}
	assert.True(t, p.ProcessFrame(loud), "flip on frame %d", voiceFrames)

	// a single silent frame does not revert the decision
	assert.True(t, p.ProcessFrame(silence()))
}

func TestHysteresisReturnsToSilence(t *testing.T) {
	t.Parallel()

	p := New(DefaultConfig())
	loud := squareWave(32767)
	for range 5 {
		p.ProcessFrame(loud)
	}
	require.True(t, p.IsVoiceDetected())

	// the energy history keeps raw detection true for 7 frames, then 10
	// consecutive raw-silent frames are needed
	for k := 1; k <= 16; k++ {
		require.True(t, p.ProcessFrame(silence()), "silent frame %d", k)
	}
	assert.False(t, p.ProcessFrame(silence()))
}

func TestSensitivityMonotonicity(t *testing.T) {
	t.Parallel()

	for _, amp := range []float64{50, 200, 400, 600, 1000, 3000} {
		for _, freq := range []float64{200, 1000, 4000} {
			frame := sineWave(amp, freq)

			low := New(Config{Sensitivity: 0.2, EnergyThreshold: 0.01, SilenceMs: 200, VoiceMs: 100})
			high := New(Config{Sensitivity: 0.9, EnergyThreshold: 0.01, SilenceMs: 200, VoiceMs: 100})

			for i := range 40 {
				dl := low.ProcessFrame(frame)
				dh := high.ProcessFrame(frame)
				if dl {
					require.True(t, dh, "amp=%v freq=%v frame=%d", amp, freq, i)
				}
			}
		}
	}
}

func TestZeroCrossingCatchesQuietFricatives(t *testing.T) {
	t.Parallel()

	// energy ~0.012 is below the adaptive threshold of 0.015 but above half
	// of it, and the alternating signal has a zero-crossing rate of 1
	p := New(DefaultConfig())
	hiss := squareWave(400)
	for range 20 {
		p.ProcessFrame(hiss)
	}
	assert.True(t, p.IsVoiceDetected())

	// the same energy without crossings stays silent
	q := New(DefaultConfig())
	dc := make([]int16, frameSize)
	for i := range dc {
		dc[i] = 400
	}
	for range 20 {
		q.ProcessFrame(dc)
	}
	assert.False(t, q.IsVoiceDetected())
}

func TestSetters(t *testing.T) {
	t.Parallel()

	p := New(DefaultConfig())

	p.SetSensitivity(1.7)
	assert.InDelta(t, 1.0, p.Sensitivity(), 1e-9)
	p.SetSensitivity(-0.3)
	assert.InDelta(t, 0.0, p.Sensitivity(), 1e-9)

	p.SetEnergyThreshold(0)
	assert.InDelta(t, 0.001, p.EnergyThreshold(), 1e-9)
	p.SetEnergyThreshold(0.05)
	assert.InDelta(t, 0.05, p.EnergyThreshold(), 1e-9)
}

func TestEmptyFrameReturnsCurrentDecision(t *testing.T) {
	t.Parallel()

	p := New(DefaultConfig())
	for range 5 {
		p.ProcessFrame(squareWave(32767))
	}
	before := p.Stats()

	assert.True(t, p.ProcessFrame(nil))
	assert.Equal(t, before, p.Stats())
}

func TestResetStatsKeepsDecision(t *testing.T) {
	t.Parallel()

	p := New(DefaultConfig())
	for range 6 {
		p.ProcessFrame(squareWave(32767))
	}
	stats := p.Stats()
	assert.Equal(t, uint64(6), stats.TotalFrames)
	assert.Equal(t, uint64(2), stats.VoiceFrames)
	assert.Equal(t, uint64(4), stats.SilenceFrames)

	p.ResetStats()
	stats = p.Stats()
	assert.Zero(t, stats.TotalFrames)
	assert.Zero(t, stats.VoiceFrames)
	assert.Zero(t, stats.SilenceFrames)
	assert.True(t, p.IsVoiceDetected())

	// the history is cleared so the first silent frame reads as silent
	p.ProcessFrame(silence())
	assert.Zero(t, p.CurrentEnergy())
}
