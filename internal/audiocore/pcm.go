package audiocore

import (
	"encoding/binary"
	"math"
)

const fullScale = 32768.0

// RMS returns the root mean square of samples normalized to [0, 1].
func RMS(samples []int16) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum int64
	for _, s := range samples {
		sum += int64(s) * int64(s)
	}
	return float32(math.Sqrt(float64(sum)/float64(len(samples))) / fullScale)
}

// ApplyGain scales samples in place, saturating at the int16 limits.
func ApplyGain(samples []int16, gain float64) {
	if gain == 1 {
		return
	}
	for i, s := range samples {
		v := float64(s) * gain
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		samples[i] = int16(v)
	}
}

// DecodePCM16 appends the little-endian samples in p to dst. A trailing odd
// byte is ignored.
func DecodePCM16(dst []int16, p []byte) []int16 {
	for i := 0; i+1 < len(p); i += 2 {
		dst = append(dst, int16(binary.LittleEndian.Uint16(p[i:]))) //nolint:gosec // two's complement reinterpretation
	}
	return dst
}

// EncodePCM16 appends samples to dst as little-endian bytes.
func EncodePCM16(dst []byte, samples []int16) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s)) //nolint:gosec // two's complement reinterpretation
	}
	return dst
}
