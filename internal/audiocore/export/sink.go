package export

import (
	"context"
	"sync"

	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/logger"
	"github.com/tphakala/voicetrigger/internal/session"
)

// ClipSink is a session.Sink that writes each session's streamed audio to
// its own WAV clip under a directory.
type ClipSink struct {
	dir        string
	sampleRate int

	mu      sync.Mutex
	writers map[string]*ClipWriter
}

// NewClipSink returns a sink writing clips under dir.
func NewClipSink(dir string, sampleRate int) *ClipSink {
	return &ClipSink{dir: dir, sampleRate: sampleRate, writers: make(map[string]*ClipWriter)}
}

func (s *ClipSink) Name() string { return "clip" }

func (s *ClipSink) SessionStarted(_ context.Context, info session.Info) error {
	w, err := NewClipWriter(ClipPath(s.dir, info.ID, info.Started), s.sampleRate)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.writers[info.ID] = w
	s.mu.Unlock()
	return nil
}

func (s *ClipSink) Audio(_ context.Context, info session.Info, samples []int16) error {
	s.mu.Lock()
	w := s.writers[info.ID]
	s.mu.Unlock()
	if w == nil {
		// clip creation failed at session start
		return nil
	}
	return w.Write(samples)
}

func (s *ClipSink) SessionEnded(_ context.Context, info session.Info) error {
	s.mu.Lock()
	w := s.writers[info.ID]
	delete(s.writers, info.ID)
	s.mu.Unlock()
	if w == nil {
		return nil
	}
	if err := w.Close(); err != nil {
		return err
	}
	GetLogger().Info("session clip saved",
		logger.String("session_id", info.ID),
		logger.String("path", w.Path()),
		logger.Duration("duration", w.Duration()))
	return nil
}

// Close finalizes clips of sessions that never ended.
func (s *ClipSink) Close() error {
	s.mu.Lock()
	writers := s.writers
	s.writers = make(map[string]*ClipWriter)
	s.mu.Unlock()

	var errs []error
	for _, w := range writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
