// Package vad implements an energy and zero-crossing voice activity detector
// with hysteresis.
package vad

import (
	"math"
	"sync"

	"github.com/tphakala/voicetrigger/internal/logger"
)

const (
	// FramePeriodMs is the capture frame period the decision counts are derived from.
	FramePeriodMs = 20

	historySize = 8

	DefaultSensitivity     = 0.5
	DefaultEnergyThreshold = 0.01
	DefaultSilenceMs       = 200
	DefaultVoiceMs         = 100

	minEnergyThreshold = 0.001
	minVoiceFrames     = 2
	minSilenceFrames   = 5
	zcrVoiceThreshold  = 0.1
	fullScale          = 32768.0
	framesPerSecond    = 1000 / FramePeriodMs
)

// Config holds the tunable detector parameters.
type Config struct {
	Sensitivity     float32
	EnergyThreshold float32
	SilenceMs       uint32
	VoiceMs         uint32
}

// DefaultConfig returns the stock detector parameters.
func DefaultConfig() Config {
	return Config{
		Sensitivity:     DefaultSensitivity,
		EnergyThreshold: DefaultEnergyThreshold,
		SilenceMs:       DefaultSilenceMs,
		VoiceMs:         DefaultVoiceMs,
	}
}

// Stats holds frame counters since the last reset.
type Stats struct {
	VoiceFrames   uint64
	SilenceFrames uint64
	TotalFrames   uint64
	Energy        float32
}

// Processor decides per frame whether speech is present. It is safe for
// concurrent use, though frames are expected from a single producer.
type Processor struct {
	mu sync.Mutex

	sensitivity     float32
	energyThreshold float32
	silenceMs       uint32
	voiceMs         uint32

	framesForVoice   uint32
	framesForSilence uint32

	voiceDetected      bool
	currentEnergy      float32
	history            [historySize]float32
	historyIndex       int
	consecutiveVoice   uint32
	consecutiveSilence uint32

	voiceFrames   uint64
	silenceFrames uint64
	totalFrames   uint64
}

// New creates a processor from cfg, clamping out-of-range values.
func New(cfg Config) *Processor {
	p := &Processor{}
	p.sensitivity = clampSensitivity(cfg.Sensitivity)
	p.energyThreshold = max(cfg.EnergyThreshold, minEnergyThreshold)
	p.silenceMs = cfg.SilenceMs
	p.voiceMs = cfg.VoiceMs
	p.framesForVoice = framesFor(cfg.VoiceMs, minVoiceFrames)
	p.framesForSilence = framesFor(cfg.SilenceMs, minSilenceFrames)

	GetLogger().Info("VAD initialized",
		logger.Float32("sensitivity", p.sensitivity),
		logger.Float32("energy_threshold", p.energyThreshold),
		logger.Int("voice_frames", int(p.framesForVoice)),
		logger.Int("silence_frames", int(p.framesForSilence)))
	return p
}

func framesFor(ms, floor uint32) uint32 {
	return max(ms*framesPerSecond/1000, floor)
}

func clampSensitivity(s float32) float32 {
	return min(max(s, 0), 1)
}

// Energy returns the RMS energy of samples normalized to [0, 1].
func Energy(samples []int16) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum int64
	for _, s := range samples {
		v := int64(s)
		sum += v * v
	}
	return float32(math.Sqrt(float64(sum)/float64(len(samples))) / fullScale)
}

// ZeroCrossingRate returns the fraction of adjacent sample pairs whose signs
// differ. Zero counts as non-negative.
func ZeroCrossingRate(samples []int16) float32 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float32(crossings) / float32(len(samples)-1)
}

// ProcessFrame analyzes one frame and returns the debounced voice decision.
// An empty frame returns the current decision without changing state.
func (p *Processor) ProcessFrame(samples []int16) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(samples) == 0 {
		return p.voiceDetected
	}

	p.totalFrames++

	energy := Energy(samples)
	zcr := ZeroCrossingRate(samples)

	p.history[p.historyIndex] = energy
	p.historyIndex = (p.historyIndex + 1) % historySize

	var smoothed float32
	for _, e := range p.history {
		smoothed += e
	}
	smoothed /= historySize
	p.currentEnergy = smoothed

	adaptive := p.energyThreshold * (2 - p.sensitivity)
	raw := smoothed > adaptive || (zcr > zcrVoiceThreshold && smoothed > adaptive*0.5)

	detected := p.applyHysteresis(raw)
	if detected {
		p.voiceFrames++
	} else {
		p.silenceFrames++
	}
	return detected
}

func (p *Processor) applyHysteresis(raw bool) bool {
	if raw {
		p.consecutiveVoice++
		p.consecutiveSilence = 0
		if !p.voiceDetected && p.consecutiveVoice >= p.framesForVoice {
			p.voiceDetected = true
			GetLogger().Debug("voice detected", logger.Int("frames", int(p.consecutiveVoice)))
		}
	} else {
		p.consecutiveSilence++
		p.consecutiveVoice = 0
		if p.voiceDetected && p.consecutiveSilence >= p.framesForSilence {
			p.voiceDetected = false
			GetLogger().Debug("silence detected", logger.Int("frames", int(p.consecutiveSilence)))
		}
	}
	return p.voiceDetected
}

// IsVoiceDetected returns the current debounced decision.
func (p *Processor) IsVoiceDetected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voiceDetected
}

// CurrentEnergy returns the smoothed energy of the most recent frame.
func (p *Processor) CurrentEnergy() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentEnergy
}

func (p *Processor) SetSensitivity(s float32) {
	p.mu.Lock()
	p.sensitivity = clampSensitivity(s)
	p.mu.Unlock()
	GetLogger().Debug("VAD sensitivity set", logger.Float32("sensitivity", clampSensitivity(s)))
}

func (p *Processor) Sensitivity() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sensitivity
}

func (p *Processor) SetEnergyThreshold(t float32) {
	p.mu.Lock()
	p.energyThreshold = max(t, minEnergyThreshold)
	p.mu.Unlock()
}

func (p *Processor) EnergyThreshold() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.energyThreshold
}

// SetSilenceDuration sets how long raw silence must last before the decision
// reverts to silence.
func (p *Processor) SetSilenceDuration(ms uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.silenceMs = ms
	p.framesForSilence = framesFor(ms, minSilenceFrames)
}

// SetVoiceDuration sets how long raw voice must last before the decision
// flips to voice.
func (p *Processor) SetVoiceDuration(ms uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voiceMs = ms
	p.framesForVoice = framesFor(ms, minVoiceFrames)
}

// DecisionFrames returns the consecutive frame counts needed to flip to voice
// and to silence.
func (p *Processor) DecisionFrames() (voice, silence uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.framesForVoice, p.framesForSilence
}

func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		VoiceFrames:   p.voiceFrames,
		SilenceFrames: p.silenceFrames,
		TotalFrames:   p.totalFrames,
		Energy:        p.currentEnergy,
	}
}

// ResetStats zeroes the counters and energy history. The current decision is
// kept.
func (p *Processor) ResetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voiceFrames = 0
	p.silenceFrames = 0
	p.totalFrames = 0
	p.consecutiveVoice = 0
	p.consecutiveSilence = 0
	p.history = [historySize]float32{}
	p.historyIndex = 0
	GetLogger().Info("VAD statistics reset")
}
