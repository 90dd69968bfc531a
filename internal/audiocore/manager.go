package audiocore

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/logger"
	"github.com/tphakala/voicetrigger/internal/memory"
	"github.com/tphakala/voicetrigger/internal/observability/metrics"
	"github.com/tphakala/voicetrigger/internal/ringbuffer"
	"github.com/tphakala/voicetrigger/internal/vad"
)

const (
	DefaultBackBufferMs = 300
	// DefaultStreamLevel is the RMS level that keeps a frame streaming even
	// when the VAD reports silence.
	DefaultStreamLevel = 0.01
)

// FrameConsumer receives every captured frame. ProcessFrame must not block.
type FrameConsumer interface {
	ProcessFrame(samples []int16)
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	SampleRate   int
	BackBufferMs uint32
	StreamLevel  float32
}

// DefaultManagerConfig returns the stock manager parameters.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		SampleRate:   SampleRate,
		BackBufferMs: DefaultBackBufferMs,
		StreamLevel:  DefaultStreamLevel,
	}
}

// Manager runs each captured frame through level metering, the back buffer,
// the VAD and the wake-word detector, and forwards audio to the data callback
// while streaming.
type Manager struct {
	cfg      ManagerConfig
	vad      *vad.Processor
	detector FrameConsumer
	metrics  atomic.Pointer[metrics.AudioMetrics]
	log      logger.Logger

	// mu serializes frame processing with streaming state changes so the
	// back buffer is always delivered ahead of live frames.
	mu        sync.Mutex
	back      *ringbuffer.RingBuffer
	scratch   []byte
	streaming bool
	lastVoice bool
	onAudio   func([]int16)
	onVAD     func(bool)

	level           atomic.Uint32 // float32 bits
	capturing       atomic.Bool
	samplesCaptured atomic.Uint64
	samplesStreamed atomic.Uint64
}

// NewManager creates a manager. detector may be nil when wake-word detection
// is disabled. The back buffer is allocated from arena.
func NewManager(cfg ManagerConfig, v *vad.Processor, detector FrameConsumer, arena *memory.Arena) (*Manager, error) {
	if v == nil {
		return nil, errors.Newf("audio manager requires a VAD processor").
			Component("audiocore").
			Category(errors.CategoryValidation).
			Build()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = SampleRate
	}
	if cfg.BackBufferMs == 0 {
		cfg.BackBufferMs = DefaultBackBufferMs
	}
	if cfg.StreamLevel <= 0 {
		cfg.StreamLevel = DefaultStreamLevel
	}

	backSamples := cfg.SampleRate * int(cfg.BackBufferMs) / 1000
	back, err := ringbuffer.New(backSamples*2, arena)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:      cfg,
		vad:      v,
		detector: detector,
		log:      GetLogger(),
		back:     back,
	}

	m.log.Info("audio manager initialized",
		logger.Int("sample_rate", cfg.SampleRate),
		logger.Int("back_buffer_ms", int(cfg.BackBufferMs)),
		logger.Int("back_buffer_samples", backSamples))

	return m, nil
}

// SetMetrics attaches the audio metrics.
func (m *Manager) SetMetrics(am *metrics.AudioMetrics) {
	m.metrics.Store(am)
}

// SetAudioDataCallback sets the receiver of streamed audio. It runs with the
// manager locked and must not call back into the Manager.
func (m *Manager) SetAudioDataCallback(fn func([]int16)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAudio = fn
}

// SetVADCallback sets the receiver of voice activity transitions. It is
// called outside the manager lock.
func (m *Manager) SetVADCallback(fn func(bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onVAD = fn
}

// ProcessFrame handles one captured frame.
func (m *Manager) ProcessFrame(samples []int16) {
	if len(samples) == 0 {
		return
	}

	level := RMS(samples)
	m.level.Store(math.Float32bits(level))
	m.samplesCaptured.Add(uint64(len(samples)))
	am := m.metrics.Load()
	am.RecordFrame(level)

	m.mu.Lock()
	m.scratch = EncodePCM16(m.scratch[:0], samples)
	m.back.Write(m.scratch)

	voice := m.vad.ProcessFrame(samples)
	changed := voice != m.lastVoice
	m.lastVoice = voice
	onVAD := m.onVAD

	if m.streaming && m.onAudio != nil && (voice || level > m.cfg.StreamLevel) {
		m.onAudio(samples)
		m.samplesStreamed.Add(uint64(len(samples)))
		am.AddSamplesStreamed(len(samples))
	}
	m.mu.Unlock()

	if changed {
		am.RecordVADTransition(voice)
		m.log.Debug("voice activity changed", logger.Bool("voice", voice), logger.Float32("level", level))
		if onVAD != nil {
			onVAD(voice)
		}
	}

	if m.detector != nil {
		m.detector.ProcessFrame(samples)
	}
}

// StartStreaming delivers the back buffer to the audio-data callback and then
// forwards live frames until StopStreaming.
func (m *Manager) StartStreaming() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.streaming {
		return
	}
	m.streaming = true

	pending := m.back.Available()
	if pending >= 2 && m.onAudio != nil {
		buf := make([]byte, pending&^1)
		n := m.back.Read(buf)
		pre := DecodePCM16(make([]int16, 0, n/2), buf[:n])
		m.onAudio(pre)
		m.samplesStreamed.Add(uint64(len(pre)))
		m.metrics.Load().AddSamplesStreamed(len(pre))
	}

	m.log.Info("audio streaming started", logger.Int("pre_trigger_samples", pending/2))
}

// StopStreaming stops forwarding audio.
func (m *Manager) StopStreaming() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.streaming {
		return
	}
	m.streaming = false
	m.log.Info("audio streaming stopped")
}

func (m *Manager) IsStreaming() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streaming
}

// BackBuffer moves up to len(dst) of the oldest back-buffer samples into dst
// and returns how many were copied.
func (m *Manager) BackBuffer(dst []int16) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := min(len(dst), m.back.Available()/2)
	if n == 0 {
		return 0
	}
	buf := make([]byte, n*2)
	got := m.back.Read(buf)
	decoded := DecodePCM16(dst[:0], buf[:got])
	return len(decoded)
}

// AudioLevel returns the RMS level of the most recent frame.
func (m *Manager) AudioLevel() float32 {
	return math.Float32frombits(m.level.Load())
}

func (m *Manager) IsVoiceDetected() bool { return m.vad.IsVoiceDetected() }

func (m *Manager) IsCapturing() bool { return m.capturing.Load() }

func (m *Manager) SamplesCaptured() uint64 { return m.samplesCaptured.Load() }

func (m *Manager) SamplesStreamed() uint64 { return m.samplesStreamed.Load() }

func (m *Manager) SetVADSensitivity(s float32) { m.vad.SetSensitivity(s) }

// Run starts src and processes its frames until ctx ends or the source closes
// its frame channel. The source is stopped before Run returns.
func (m *Manager) Run(ctx context.Context, src Source) error {
	if err := src.Start(ctx); err != nil {
		return err
	}
	m.capturing.Store(true)
	m.log.Info("audio capture started", logger.String("source", src.Name()))

	defer func() {
		m.capturing.Store(false)
		m.StopStreaming()
		if err := src.Stop(); err != nil {
			m.log.Warn("failed to stop audio source", logger.String("source", src.Name()), logger.Error(err))
		}
		m.log.Info("audio capture stopped", logger.String("source", src.Name()))
	}()

	frames := src.Frames()
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				if es, isErrSource := src.(ErrorSource); isErrSource {
					return es.Err()
				}
				return nil
			}
			m.ProcessFrame(frame)
		}
	}
}

// Close releases the back buffer.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streaming = false
	m.back.Release()
}
