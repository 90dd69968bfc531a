// Package mfcc computes the 49x40 MFCC feature matrix consumed by the wake-word
// classifier from 16 kHz mono PCM.
//
// The frontend keeps a circular window of the most recent InputBufferSize
// samples. Once the window has been filled, every call recomputes all frames
// from the window, oldest sample first.
package mfcc

import (
	"math"

	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/logger"
	"github.com/tphakala/voicetrigger/internal/memory"
)

const (
	SampleRate    = 16000
	WindowMs      = 30
	HopMs         = 10
	WindowSamples = SampleRate * WindowMs / 1000 // 480
	HopSamples    = SampleRate * HopMs / 1000    // 160
	NumMels       = 40
	NumMFCC       = 40
	NumFrames     = 49
	NumBins       = WindowSamples/2 + 1 // 241

	// FeatureSize is the number of floats in one feature matrix.
	FeatureSize = NumFrames * NumMFCC

	// InputBufferSize is the history needed for NumFrames overlapping windows.
	InputBufferSize = (NumFrames-1)*HopSamples + WindowSamples

	logFloor  = 1e-10
	fullScale = 32768.0
)

// Frontend extracts MFCC features. It is not safe for concurrent use; callers
// sharing a Frontend across goroutines must serialize access.
type Frontend struct {
	arena *memory.Arena

	// immutable after New
	window     []float32
	filterbank []float32
	dct        []float32
	cosT, sinT []float64

	input      []int16
	writePos   int
	available  int // saturates at InputBufferSize
	features   []float32
	frameCount int

	// scratch
	frame  []float32
	power  []float32
	logMel []float32
}

// New allocates the frontend buffers from arena and precomputes its tables.
func New(arena *memory.Arena) (*Frontend, error) {
	f := &Frontend{arena: arena}

	var err error
	if f.input, err = memory.Alloc[int16](arena, InputBufferSize); err != nil {
		return nil, allocError(err, "input buffer")
	}
	if f.features, err = memory.Alloc[float32](arena, FeatureSize); err != nil {
		f.Release()
		return nil, allocError(err, "feature matrix")
	}

	f.window = hannWindow(WindowSamples)
	f.filterbank = melFilterbank()
	f.dct = dctMatrix()
	f.cosT, f.sinT = twiddles(WindowSamples)

	f.frame = make([]float32, WindowSamples)
	f.power = make([]float32, NumBins)
	f.logMel = make([]float32, NumMels)

	GetLogger().Info("MFCC frontend initialized",
		logger.Int("sample_rate", SampleRate),
		logger.Int("window_ms", WindowMs),
		logger.Int("hop_ms", HopMs),
		logger.Int("mels", NumMels),
		logger.Int("frames", NumFrames),
		logger.Int("coefficients", NumMFCC),
		logger.String("region", string(arena.Region())))

	return f, nil
}

func allocError(err error, what string) error {
	return errors.New(err).
		Component("mfcc").
		Category(errors.CategoryResource).
		Context("buffer", what).
		Build()
}

// Release returns the frontend's buffers to its arena. A released frontend
// produces no features.
func (f *Frontend) Release() {
	memory.Free(f.arena, f.input)
	memory.Free(f.arena, f.features)
	f.input, f.features = nil, nil
	f.writePos = 0
	f.available = 0
	f.frameCount = 0
}

// ProcessSamples appends samples to the input window and reports whether a
// new feature matrix was computed.
func (f *Frontend) ProcessSamples(samples []int16) bool {
	if len(samples) == 0 || f.input == nil {
		return false
	}

	for _, s := range samples {
		f.input[f.writePos] = s
		f.writePos = (f.writePos + 1) % InputBufferSize
		if f.available < InputBufferSize {
			f.available++
		}
	}

	if f.available < InputBufferSize {
		return false
	}

	// the oldest sample sits at the write position
	start := f.writePos
	f.frameCount = 0
	for i := range NumFrames {
		frameStart := start + i*HopSamples
		for j := range WindowSamples {
			f.frame[j] = float32(f.input[(frameStart+j)%InputBufferSize]) / fullScale
		}
		f.powerSpectrum()
		f.melLog()
		f.cepstrum(f.features[i*NumMFCC : (i+1)*NumMFCC])
		f.frameCount++
	}
	return true
}

// powerSpectrum computes |DFT|^2 of the windowed frame over NumBins bins.
func (f *Frontend) powerSpectrum() {
	for n := range WindowSamples {
		f.frame[n] *= f.window[n]
	}
	for k := range NumBins {
		var re, im float64
		idx := 0
		for n := range WindowSamples {
			x := float64(f.frame[n])
			re += x * f.cosT[idx]
			im += x * f.sinT[idx]
			idx += k
			if idx >= WindowSamples {
				idx -= WindowSamples
			}
		}
		f.power[k] = float32(re*re + im*im)
	}
}

func (f *Frontend) melLog() {
	for m := range NumMels {
		row := f.filterbank[m*NumBins : (m+1)*NumBins]
		var e float32
		for k, w := range row {
			e += f.power[k] * w
		}
		f.logMel[m] = float32(math.Log10(float64(max(e, logFloor))))
	}
}

func (f *Frontend) cepstrum(out []float32) {
	for i := range NumMFCC {
		row := f.dct[i*NumMels : (i+1)*NumMels]
		var c float32
		for j, d := range row {
			c += f.logMel[j] * d
		}
		out[i] = c
	}
}

// Features copies the current matrix into out, which must hold FeatureSize
// values. It returns false when no complete matrix is available.
func (f *Frontend) Features(out []float32) bool {
	if f.features == nil || f.frameCount != NumFrames || len(out) < FeatureSize {
		return false
	}
	copy(out, f.features)
	return true
}

// Reset clears the input window, the feature matrix and all counters.
func (f *Frontend) Reset() {
	clear(f.input)
	clear(f.features)
	f.writePos = 0
	f.available = 0
	f.frameCount = 0
}

// HasSufficientData reports whether the input window has been filled since the
// last reset.
func (f *Frontend) HasSufficientData() bool {
	return f.available >= InputBufferSize
}

// SamplesAvailable returns the number of buffered samples, saturating at
// InputBufferSize.
func (f *Frontend) SamplesAvailable() int {
	return f.available
}
