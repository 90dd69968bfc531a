package mfcc

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/memory"
)

func newTestFrontend(t *testing.T) *Frontend {
	t.Helper()
	f, err := New(nil)
	require.NoError(t, err)
	return f
}

func tone(n int, freq, amplitude float64, phase int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * math.Sin(2*math.Pi*freq*float64(i+phase)/SampleRate))
	}
	return out
}

func TestShapeConstants(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 480, WindowSamples)
	assert.Equal(t, 160, HopSamples)
	assert.Equal(t, 241, NumBins)
	assert.Equal(t, 49, NumFrames)
	assert.Equal(t, 40, NumMFCC)
	assert.Equal(t, 1960, FeatureSize)
	assert.Equal(t, 8160, InputBufferSize)
}

func TestTablesAreDeterministic(t *testing.T) {
	t.Parallel()

	a := newTestFrontend(t)
	b := newTestFrontend(t)

	assert.Equal(t, a.window, b.window)
	assert.Equal(t, a.filterbank, b.filterbank)
	assert.Equal(t, a.dct, b.dct)
}

func TestHannWindow(t *testing.T) {
	t.Parallel()

	w := hannWindow(WindowSamples)
	assert.InDelta(t, 0, w[0], 1e-7)
	assert.InDelta(t, 0, w[WindowSamples-1], 1e-7)
	for i := range WindowSamples / 2 {
		assert.InDelta(t, w[i], w[WindowSamples-1-i], 1e-6)
	}
}

func TestMelFilterbankShape(t *testing.T) {
	t.Parallel()

	fb := melFilterbank()
	require.Len(t, fb, NumMels*NumBins)

	bins := melBinPoints()
	require.Len(t, bins, NumMels+2)
	assert.Equal(t, 0, bins[0])
	assert.Equal(t, 240, bins[NumMels+1])
	for i := 1; i < len(bins); i++ {
		assert.LessOrEqual(t, bins[i-1], bins[i])
	}

	for _, v := range fb {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}

	// the last band peaks at its center bin
	last := fb[(NumMels-1)*NumBins:]
	assert.InDelta(t, 1.0, last[bins[NumMels]], 1e-6)
}

func TestDCTIsOrthonormal(t *testing.T) {
	t.Parallel()

	d := dctMatrix()
	for i := range NumMFCC {
		for j := range NumMFCC {
			var dot float64
			for k := range NumMels {
				dot += float64(d[i*NumMels+k]) * float64(d[j*NumMels+k])
			}
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(t, want, dot, 1e-5, "rows %d,%d", i, j)
		}
	}
}

func TestProcessSamplesNeedsFullWindow(t *testing.T) {
	t.Parallel()

	f := newTestFrontend(t)
	frame := make([]int16, 320)
	out := make([]float32, FeatureSize)

	calls := 0
	for !f.HasSufficientData() {
		ready := f.ProcessSamples(frame)
		calls++
		if f.HasSufficientData() {
			assert.True(t, ready)
		} else {
			assert.False(t, ready)
			assert.False(t, f.Features(out))
		}
	}
	assert.Equal(t, 26, calls)
	assert.Equal(t, InputBufferSize, f.SamplesAvailable())

	// once saturated every call recomputes
	assert.True(t, f.ProcessSamples(frame[:1]))
	assert.False(t, f.ProcessSamples(nil))
}

func TestZeroInputFeatures(t *testing.T) {
	t.Parallel()

	f := newTestFrontend(t)
	require.True(t, f.ProcessSamples(make([]int16, InputBufferSize)))

	out := make([]float32, FeatureSize)
	require.True(t, f.Features(out))

	c0 := -10 * math.Sqrt(NumMels)
	for frame := range NumFrames {
		row := out[frame*NumMFCC : (frame+1)*NumMFCC]
		assert.InDelta(t, c0, row[0], 1e-3, "frame %d", frame)
		for i := 1; i < NumMFCC; i++ {
			assert.InDelta(t, 0, row[i], 1e-3, "frame %d coeff %d", frame, i)
		}
	}
}

func TestFrameZeroStartsAtWritePosition(t *testing.T) {
	t.Parallel()

	signal := tone(InputBufferSize, 440, 8000, 0)

	a := newTestFrontend(t)
	require.True(t, a.ProcessSamples(signal))

	// b sees junk first, so its write position is not zero when the same
	// signal completes the window
	b := newTestFrontend(t)
	b.ProcessSamples(tone(1234, 3000, 20000, 7))
	require.True(t, b.ProcessSamples(signal))

	fa := make([]float32, FeatureSize)
	fb := make([]float32, FeatureSize)
	require.True(t, a.Features(fa))
	require.True(t, b.Features(fb))
	assert.Equal(t, fa, fb)
}

func TestToneRaisesItsMelBand(t *testing.T) {
	t.Parallel()

	f := newTestFrontend(t)
	require.True(t, f.ProcessSamples(tone(InputBufferSize, 1000, 16000, 0)))

	// inspect the log-mel energies of the last frame
	peak := 0
	for m := range NumMels {
		if f.logMel[m] > f.logMel[peak] {
			peak = m
		}
	}

	bins := melBinPoints()
	toneBin := int(1000.0 * WindowSamples / SampleRate) // 30
	assert.LessOrEqual(t, bins[peak], toneBin+1)
	assert.GreaterOrEqual(t, bins[peak+2], toneBin-1)

	out := make([]float32, FeatureSize)
	require.True(t, f.Features(out))
	for i, v := range out {
		require.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0), "index %d", i)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	f := newTestFrontend(t)
	require.True(t, f.ProcessSamples(tone(InputBufferSize, 500, 10000, 0)))

	f.Reset()
	assert.False(t, f.HasSufficientData())
	assert.Zero(t, f.SamplesAvailable())
	assert.False(t, f.Features(make([]float32, FeatureSize)))
	for _, v := range f.features {
		require.Zero(t, v)
	}
}

func TestFeaturesRejectsShortBuffer(t *testing.T) {
	t.Parallel()

	f := newTestFrontend(t)
	require.True(t, f.ProcessSamples(make([]int16, InputBufferSize)))
	assert.False(t, f.Features(make([]float32, FeatureSize-1)))
}

func TestReleasedFrontendHasNoFeatures(t *testing.T) {
	t.Parallel()

	f, err := New(nil)
	require.NoError(t, err)
	require.True(t, f.ProcessSamples(make([]int16, InputBufferSize)))
	require.True(t, f.Features(make([]float32, FeatureSize)))

	f.Release()
	assert.False(t, f.Features(make([]float32, FeatureSize)))
	assert.False(t, f.HasSufficientData())
	assert.Zero(t, f.SamplesAvailable())
	assert.False(t, f.ProcessSamples(make([]int16, 320)))
}

func TestNewAccountsArena(t *testing.T) {
	t.Parallel()

	arena := memory.NewArena(memory.RegionInternal, 1024)
	_, err := New(arena)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryResource))

	arena = memory.NewArena(memory.RegionExternal, 0)
	f, err := New(arena)
	require.NoError(t, err)
	assert.Equal(t, int64(InputBufferSize*2+FeatureSize*4), arena.Stats().Used)

	f.Release()
	assert.Zero(t, arena.Stats().Used)
}

func BenchmarkProcessSamples(b *testing.B) {
	f, err := New(nil)
	require.NoError(b, err)
	frame := tone(320, 700, 12000, 0)
	f.ProcessSamples(make([]int16, InputBufferSize))

	b.ReportAllocs()
	for b.Loop() {
		f.ProcessSamples(frame)
	}
}
