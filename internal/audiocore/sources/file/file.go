// Package file provides an audio source that reads WAV or FLAC files.
package file

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tphakala/flac"

	"github.com/tphakala/voicetrigger/internal/audiocore"
	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/logger"
)

// Config configures a file source.
type Config struct {
	Path      string
	FrameSize int  // samples per frame, defaults to 20 ms
	Realtime  bool // pace frames at the capture rate
}

// Info describes a decoded audio file.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Source decodes an audio file into mono 16-bit frames. Only the first
// channel is used; the sample rate must be 16 kHz.
type Source struct {
	cfg    Config
	frames chan []int16

	mu      sync.Mutex
	err     error
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New returns a file source. The file is opened by Start.
func New(cfg Config) *Source {
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = audiocore.DefaultFrameSize
	}
	return &Source{
		cfg:    cfg,
		frames: make(chan []int16, 8),
	}
}

func (s *Source) Name() string { return filepath.Base(s.cfg.Path) }

func (s *Source) Format() audiocore.Format {
	f := audiocore.DefaultFormat()
	f.FrameSize = s.cfg.FrameSize
	return f
}

func (s *Source) Frames() <-chan []int16 { return s.frames }

// Err returns the decode error that ended the source, if any.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Start opens the file, validates its format and begins decoding in the
// background.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.Newf("file source already started").
			Component("audiocore").
			Category(errors.CategoryState).
			Context("path", s.cfg.Path).
			Build()
	}

	f, err := os.Open(s.cfg.Path)
	if err != nil {
		return errors.New(err).
			Component("audiocore").
			Category(errors.CategoryFileIO).
			Context("operation", "open_audio_file").
			FileContext(s.cfg.Path, 0).
			Build()
	}

	dec, err := newDecoder(f, s.cfg.Path)
	if err != nil {
		_ = f.Close()
		return err
	}

	info := dec.info()
	if info.SampleRate != audiocore.SampleRate {
		_ = f.Close()
		return errors.Newf("unsupported sample rate %d Hz, expected %d Hz", info.SampleRate, audiocore.SampleRate).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("path", s.cfg.Path).
			Context("sample_rate", info.SampleRate).
			Build()
	}

	GetLogger().Info("reading audio file",
		logger.String("path", s.cfg.Path),
		logger.Int("sample_rate", info.SampleRate),
		logger.Int("channels", info.Channels),
		logger.Int("bit_depth", info.BitDepth),
		logger.Bool("realtime", s.cfg.Realtime))

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true

	go s.run(runCtx, f, dec)
	return nil
}

func (s *Source) run(ctx context.Context, f *os.File, dec decoder) {
	defer close(s.done)
	defer close(s.frames)
	defer f.Close() //nolint:errcheck // read-only file

	var ticker *time.Ticker
	if s.cfg.Realtime {
		period := time.Duration(s.cfg.FrameSize) * time.Second / audiocore.SampleRate
		ticker = time.NewTicker(period)
		defer ticker.Stop()
	}

	pending := make([]int16, 0, s.cfg.FrameSize*4)
	emit := func(frame []int16) bool {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return false
			case <-ticker.C:
			}
		}
		select {
		case <-ctx.Done():
			return false
		case s.frames <- frame:
			return true
		}
	}

	for {
		samples, err := dec.next()
		pending = append(pending, samples...)
		for len(pending) >= s.cfg.FrameSize {
			frame := make([]int16, s.cfg.FrameSize)
			copy(frame, pending)
			pending = append(pending[:0], pending[s.cfg.FrameSize:]...)
			if !emit(frame) {
				return
			}
		}

		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.setErr(errors.New(err).
				Component("audiocore").
				Category(errors.CategoryAudioSource).
				Context("operation", "decode_audio_file").
				FileContext(s.cfg.Path, 0).
				Build())
			return
		}
	}

	if len(pending) > 0 {
		frame := make([]int16, s.cfg.FrameSize)
		copy(frame, pending)
		emit(frame)
	}
}

func (s *Source) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Stop cancels decoding and waits for the decoder goroutine to exit.
func (s *Source) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Probe returns the format of the audio file at path.
func Probe(path string) (Info, error) {
	f, err := os.Open(path) //nolint:gosec // caller supplied input path
	if err != nil {
		return Info{}, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	defer f.Close() //nolint:errcheck // read-only file

	dec, err := newDecoder(f, path)
	if err != nil {
		return Info{}, err
	}
	return dec.info(), nil
}

// decoder yields mono 16-bit samples until io.EOF.
type decoder interface {
	info() Info
	next() ([]int16, error)
}

func newDecoder(f *os.File, path string) (decoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return newWAVDecoder(f, path)
	case ".flac":
		return newFLACDecoder(f, path)
	default:
		return nil, errors.Newf("unsupported audio file type %q", filepath.Ext(path)).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}
}

type wavDecoder struct {
	dec      *wav.Decoder
	buf      *audio.IntBuffer
	channels int
	bitDepth int
	out      []int16
}

func newWAVDecoder(f *os.File, path string) (*wavDecoder, error) {
	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, errors.Newf("invalid WAV file format").
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}

	bitDepth := int(dec.BitDepth)
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, errors.Newf("unsupported bit depth: %d", bitDepth).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}

	channels := int(dec.NumChans)
	if channels < 1 {
		return nil, errors.Newf("unsupported number of channels: %d", channels).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}

	return &wavDecoder{
		dec: dec,
		buf: &audio.IntBuffer{
			Data:   make([]int, 4096*channels),
			Format: &audio.Format{SampleRate: int(dec.SampleRate), NumChannels: channels},
		},
		channels: channels,
		bitDepth: bitDepth,
	}, nil
}

func (d *wavDecoder) info() Info {
	return Info{SampleRate: int(d.dec.SampleRate), Channels: d.channels, BitDepth: d.bitDepth}
}

func (d *wavDecoder) next() ([]int16, error) {
	n, err := d.dec.PCMBuffer(d.buf)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, io.EOF
	}

	d.out = d.out[:0]
	for i := 0; i < n; i += d.channels {
		d.out = append(d.out, scaleTo16(int32(d.buf.Data[i]), d.bitDepth)) //nolint:gosec // decoder output fits the declared bit depth
	}
	return d.out, nil
}

type flacDecoder struct {
	dec *flac.Decoder
	out []int16
}

func newFLACDecoder(f *os.File, path string) (*flacDecoder, error) {
	dec, err := flac.NewDecoder(f)
	if err != nil {
		return nil, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("operation", "open_flac").
			Context("path", path).
			Build()
	}
	switch dec.BitsPerSample {
	case 16, 24, 32:
	default:
		return nil, errors.Newf("unsupported bit depth: %d", dec.BitsPerSample).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}
	return &flacDecoder{dec: dec}, nil
}

func (d *flacDecoder) info() Info {
	return Info{SampleRate: d.dec.SampleRate, Channels: d.dec.NChannels, BitDepth: d.dec.BitsPerSample}
}

func (d *flacDecoder) next() ([]int16, error) {
	frame, err := d.dec.Next()
	if err != nil {
		return nil, err
	}

	bytesPerSample := d.dec.BitsPerSample / 8
	stride := bytesPerSample * d.dec.NChannels
	d.out = d.out[:0]
	for i := 0; i+bytesPerSample <= len(frame); i += stride {
		var v int32
		switch d.dec.BitsPerSample {
		case 16:
			v = int32(int16(binary.LittleEndian.Uint16(frame[i:]))) //nolint:gosec // two's complement reinterpretation
		case 24:
			v = int32(frame[i]) | int32(frame[i+1])<<8 | int32(int8(frame[i+2]))<<16 //nolint:gosec // sign extension of the top byte
		case 32:
			v = int32(binary.LittleEndian.Uint32(frame[i:])) //nolint:gosec // two's complement reinterpretation
		}
		d.out = append(d.out, scaleTo16(v, d.dec.BitsPerSample))
	}
	return d.out, nil
}

// scaleTo16 converts a sample of the given bit depth to 16 bits. 8-bit PCM is
// unsigned.
func scaleTo16(v int32, bitDepth int) int16 {
	switch bitDepth {
	case 8:
		return int16((v - 128) << 8) //nolint:gosec // 8-bit range
	case 24:
		return int16(v >> 8) //nolint:gosec // 24-bit range
	case 32:
		return int16(v >> 16) //nolint:gosec // 32-bit range
	default:
		return int16(v) //nolint:gosec // 16-bit range
	}
}
