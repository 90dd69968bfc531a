// Package export writes streamed session audio to WAV clips.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/voicetrigger/internal/errors"
)

const (
	bitDepth    = 16
	numChannels = 1
	pcmFormat   = 1
)

// ClipWriter streams 16-bit mono PCM into a WAV file.
type ClipWriter struct {
	mu         sync.Mutex
	path       string
	file       *os.File
	enc        *wav.Encoder
	buf        *audio.IntBuffer
	sampleRate int
	samples    int
	closed     bool
}

// ClipPath returns the clip file path for a session started at t.
func ClipPath(dir, sessionID string, t time.Time) string {
	return filepath.Join(dir, t.Format("2006-01-02"), fmt.Sprintf("%s_%s.wav", t.Format("150405"), sessionID))
}

// NewClipWriter creates path, including missing directories, and prepares a
// WAV encoder for it.
func NewClipWriter(path string, sampleRate int) (*ClipWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("operation", "create_clip_dir").
			FileContext(path, 0).
			Build()
	}

	f, err := os.Create(path) //nolint:gosec // path is built from the configured clip directory
	if err != nil {
		return nil, errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("operation", "create_clip").
			FileContext(path, 0).
			Build()
	}

	return &ClipWriter{
		path:       path,
		file:       f,
		enc:        wav.NewEncoder(f, sampleRate, bitDepth, numChannels, pcmFormat),
		buf:        &audio.IntBuffer{Format: &audio.Format{SampleRate: sampleRate, NumChannels: numChannels}, SourceBitDepth: bitDepth},
		sampleRate: sampleRate,
	}, nil
}

// Write appends samples to the clip.
func (w *ClipWriter) Write(samples []int16) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.Newf("clip writer is closed").
			Component("export").
			Category(errors.CategoryState).
			Build()
	}
	if len(samples) == 0 {
		return nil
	}

	w.buf.Data = w.buf.Data[:0]
	for _, s := range samples {
		w.buf.Data = append(w.buf.Data, int(s))
	}
	if err := w.enc.Write(w.buf); err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("operation", "write_clip").
			FileContext(w.path, int64(w.samples*2)).
			Build()
	}
	w.samples += len(samples)
	return nil
}

// Close finalizes the WAV header and closes the file.
func (w *ClipWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	encErr := w.enc.Close()
	fileErr := w.file.Close()
	if err := errors.Join(encErr, fileErr); err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("operation", "close_clip").
			FileContext(w.path, int64(w.samples*2)).
			Build()
	}
	return nil
}

func (w *ClipWriter) Path() string { return w.path }

// Duration returns the length of audio written so far.
func (w *ClipWriter) Duration() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return time.Duration(w.samples) * time.Second / time.Duration(w.sampleRate)
}
