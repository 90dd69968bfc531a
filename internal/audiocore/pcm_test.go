package audiocore

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func constFrame(v int16) []int16 {
	out := make([]int16, DefaultFrameSize)
	for i := range out {
		out[i] = v
	}
	return out
}

func squareFrame(amplitude int16) []int16 {
	out := make([]int16, DefaultFrameSize)
	for i := range out {
		if i%2 == 0 {
			out[i] = amplitude
		} else {
			out[i] = -amplitude
		}
	}
	return out
}

func TestRMS(t *testing.T) {
	t.Parallel()

	assert.Zero(t, RMS(nil))
	assert.Zero(t, RMS(constFrame(0)))
	assert.InDelta(t, 0.5, RMS(squareFrame(16384)), 1e-6)
	assert.InDelta(t, 1000.0/32768, RMS(constFrame(-1000)), 1e-6)
}

func TestApplyGain(t *testing.T) {
	t.Parallel()

	s := []int16{100, -100, 20000, -20000}
	ApplyGain(s, 2)
	assert.Equal(t, []int16{200, -200, math.MaxInt16, math.MinInt16}, s)

	s = []int16{7, -7}
	ApplyGain(s, 1)
	assert.Equal(t, []int16{7, -7}, s)
}

func TestPCMCodec(t *testing.T) {
	t.Parallel()

	samples := []int16{0, 1, -1, math.MaxInt16, math.MinInt16}
	raw := EncodePCM16(nil, samples)
	assert.Equal(t, []byte{0, 0, 1, 0, 0xff, 0xff, 0xff, 0x7f, 0x00, 0x80}, raw)
	assert.Equal(t, samples, DecodePCM16(nil, raw))

	// trailing odd byte is ignored
	assert.Equal(t, []int16{1}, DecodePCM16(nil, []byte{1, 0, 9}))
}
