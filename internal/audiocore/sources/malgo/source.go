// Package malgo provides a capture device audio source built on miniaudio.
package malgo

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/voicetrigger/internal/audiocore"
	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/logger"
	"github.com/tphakala/voicetrigger/internal/observability/metrics"
)

const (
	restartDelay     = 100 * time.Millisecond
	frameChannelSize = 16
)

// Config configures a capture source.
type Config struct {
	Device       string  // device ID or name substring, empty for system default
	Backend      string  // backend override, empty for platform default
	SampleRate   uint32  // capture rate, defaults to 16 kHz
	FrameSize    int     // samples per delivered frame
	BufferFrames int     // frames held between the device callback and the consumer
	Gain         float64 // linear gain
}

// Source captures mono S16 audio from a device.
type Source struct {
	cfg     Config
	metrics *metrics.AudioMetrics
	log     logger.Logger
	framer  *audiocore.Framer
	frames  chan []int16
	dropLog *logger.Throttle

	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	name     string
	cancel   context.CancelFunc
	closed   bool

	running  atomic.Bool
	stopping atomic.Bool
}

// New creates a capture source. The device is opened by Start.
func New(cfg Config, am *metrics.AudioMetrics) (*Source, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = audiocore.SampleRate
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = audiocore.DefaultFrameSize
	}
	if cfg.BufferFrames <= 0 {
		cfg.BufferFrames = 50
	}
	if cfg.Gain <= 0 {
		cfg.Gain = 1
	}

	framer, err := audiocore.NewFramer(cfg.FrameSize, cfg.BufferFrames)
	if err != nil {
		return nil, err
	}

	return &Source{
		cfg:     cfg,
		metrics: am,
		log:     GetLogger(),
		framer:  framer,
		frames:  make(chan []int16, frameChannelSize),
		dropLog: logger.NewThrottle(5 * time.Second),
	}, nil
}

func (s *Source) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.name == "" {
		return "capture"
	}
	return s.name
}

func (s *Source) Format() audiocore.Format {
	return audiocore.Format{
		SampleRate: int(s.cfg.SampleRate),
		Channels:   audiocore.NumChannels,
		BitDepth:   audiocore.BitDepth,
		FrameSize:  s.cfg.FrameSize,
	}
}

func (s *Source) Frames() <-chan []int16 { return s.frames }

// Start opens the configured device and begins capture. Capture stops when
// ctx is cancelled or Stop is called.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() || s.closed {
		return errors.Newf("capture source already started").
			Component("audiocore").
			Category(errors.CategoryState).
			Build()
	}

	malgoCtx, err := malgo.InitContext(backends(s.cfg.Backend), malgo.ContextConfig{}, func(message string) {
		s.log.Debug("malgo", logger.String("message", message))
	})
	if err != nil {
		return errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Build()
	}

	infos, err := malgoCtx.Devices(malgo.Capture)
	if err != nil {
		freeContext(malgoCtx)
		return errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}

	info, err := selectDevice(infos, s.cfg.Device)
	if err != nil {
		freeContext(malgoCtx)
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = audiocore.NumChannels
	deviceConfig.Capture.DeviceID = info.ID.Pointer()
	deviceConfig.SampleRate = s.cfg.SampleRate
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onDeviceStop,
	})
	if err != nil {
		freeContext(malgoCtx)
		return errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudioSource).
			Context("operation", "init_device").
			Context("device", info.Name()).
			Build()
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		freeContext(malgoCtx)
		return errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudioSource).
			Context("operation", "start_device").
			Context("device", info.Name()).
			Build()
	}

	s.malgoCtx = malgoCtx
	s.device = device
	s.name = info.Name()
	s.running.Store(true)

	captureCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go func() {
		<-captureCtx.Done()
		_ = s.Stop()
	}()

	s.log.Info("listening on capture device",
		logger.String("device", info.Name()),
		logger.String("id", decodeID(info.ID.String())),
		logger.Int("sample_rate", int(s.cfg.SampleRate)))
	return nil
}

// onData runs on the miniaudio thread.
func (s *Source) onData(_, input []byte, _ uint32) {
	if !s.framer.Write(input) {
		s.metrics.RecordCaptureOverrun()
		s.dropLog.Warn(s.log, "capture handoff buffer full, dropping audio",
			logger.Int("bytes", len(input)),
			logger.Int("pending", s.framer.Pending()))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for frame := s.framer.Next(); frame != nil; frame = s.framer.Next() {
		audiocore.ApplyGain(frame, s.cfg.Gain)
		select {
		case s.frames <- frame:
		default:
			s.metrics.RecordDroppedFrame()
			s.dropLog.Warn(s.log, "frame consumer is behind, dropping frame")
		}
	}
}

// onDeviceStop is called when the device stops, either by Stop or
// unexpectedly. Unexpected stops are retried once.
func (s *Source) onDeviceStop() {
	if s.stopping.Load() || !s.running.Load() {
		return
	}
	s.log.Warn("capture device stopped unexpectedly, restarting")
	go func() {
		time.Sleep(restartDelay)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || s.device == nil {
			return
		}
		s.metrics.RecordCaptureRestart()
		if err := s.device.Start(); err != nil {
			s.log.Error("failed to restart capture device", logger.Error(err))
		}
	}()
}

// Stop releases the device and closes the frame channel.
func (s *Source) Stop() error {
	s.stopping.Store(true)

	s.mu.Lock()
	device, malgoCtx, cancel := s.device, s.malgoCtx, s.cancel
	s.device, s.malgoCtx = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if device != nil {
		// Uninit waits for in-flight callbacks, which take s.mu
		_ = device.Stop()
		device.Uninit()
	}
	if malgoCtx != nil {
		freeContext(malgoCtx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	s.running.Store(false)
	return nil
}

func freeContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}
