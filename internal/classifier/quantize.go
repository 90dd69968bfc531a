package classifier

import "math"

// Quantization holds the affine mapping between float values and int8
// tensor values.
type Quantization struct {
	Scale     float32
	ZeroPoint int32
}

// Quantize maps v to int8, rounding half away from zero and saturating.
// NaN maps to the zero point.
func (q Quantization) Quantize(v float32) int8 {
	if q.Scale == 0 || math.IsNaN(float64(v)) {
		return clampInt8(q.ZeroPoint)
	}
	r := math.Round(float64(v/q.Scale)) + float64(q.ZeroPoint)
	r = min(max(r, math.MinInt8), math.MaxInt8)
	return int8(r)
}

// Dequantize maps an int8 tensor value back to float.
func (q Quantization) Dequantize(v int8) float32 {
	return float32(int32(v)-q.ZeroPoint) * q.Scale
}

// QuantizeInto quantizes src into dst and pads the rest of dst with the zero
// point.
func (q Quantization) QuantizeInto(dst []int8, src []float32) {
	n := min(len(dst), len(src))
	for i := range n {
		dst[i] = q.Quantize(src[i])
	}
	pad := clampInt8(q.ZeroPoint)
	for i := n; i < len(dst); i++ {
		dst[i] = pad
	}
}

func clampInt8(v int32) int8 {
	return int8(min(max(v, math.MinInt8), math.MaxInt8)) //nolint:gosec // clamped to int8 range
}

// ClampConfidence limits c to [0, 1].
func ClampConfidence(c float32) float32 {
	return min(max(c, 0), 1)
}
