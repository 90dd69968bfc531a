package analysis

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/voicetrigger/internal/audiocore"
	"github.com/tphakala/voicetrigger/internal/audiocore/sources/file"
	"github.com/tphakala/voicetrigger/internal/classifier"
	"github.com/tphakala/voicetrigger/internal/conf"
	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/logger"
	"github.com/tphakala/voicetrigger/internal/pipeline"
	"github.com/tphakala/voicetrigger/internal/wakeword"
)

// FileOptions adjusts a file analysis run.
type FileOptions struct {
	// Classifier replaces the configured model. The caller keeps ownership.
	Classifier classifier.Classifier
}

// FileDetection is one confirmed detection, positioned relative to the start
// of the file.
type FileDetection struct {
	ID         string
	Offset     time.Duration
	Confidence float32
	LatencyMs  uint32
}

// FileResult summarizes a file analysis run.
type FileResult struct {
	Path       string
	Duration   time.Duration
	Detections []FileDetection
	Sessions   uint64
}

// File runs the voice trigger pipeline over settings.Input.Path without any
// integrations and returns the detections it confirmed. Unless the input is
// paced in real time, time is measured in samples so results do not depend on
// decoding speed.
func File(ctx context.Context, settings *conf.Settings, opts FileOptions) (*FileResult, error) {
	path := settings.Input.Path
	if err := validateAudioFile(path); err != nil {
		return nil, err
	}

	clf := opts.Classifier
	if clf == nil && settings.WakeWord.Enabled {
		tfl, err := LoadClassifier(settings)
		if err != nil {
			return nil, err
		}
		defer tfl.Close() //nolint:errcheck // nothing to flush
		clf = tfl
	}

	var (
		manager atomic.Pointer[audiocore.Manager]
		start   = time.Now()
		now     func() time.Time
	)
	if !settings.Input.Realtime {
		now = func() time.Time {
			m := manager.Load()
			if m == nil {
				return start
			}
			return start.Add(samplesToDuration(m.SamplesCaptured()))
		}
	}

	var (
		mu         sync.Mutex
		detections []FileDetection
	)
	onDetection := func(d wakeword.Detection) {
		mu.Lock()
		defer mu.Unlock()
		detections = append(detections, FileDetection{
			ID:         d.ID,
			Offset:     d.Time.Sub(start),
			Confidence: d.Confidence,
			LatencyMs:  d.LatencyMs,
		})
	}

	var src audiocore.Source = file.New(file.Config{
		Path:      path,
		FrameSize: settings.Audio.FrameSize,
		Realtime:  settings.Input.Realtime,
	})
	var step *lockstepSource
	if !settings.Input.Realtime {
		step = newLockstepSource(src)
		src = step
	}

	p, err := pipeline.New(settings, pipeline.Options{
		Classifier:  clf,
		Source:      src,
		OnDetection: onDetection,
		Now:         now,
	})
	if err != nil {
		return nil, err
	}
	defer p.Close()

	manager.Store(p.Manager)
	if step != nil {
		step.idle = detectorIdle(p.Detector)
	}

	log := GetLogger()
	log.Info("analyzing audio file",
		logger.String("path", path),
		logger.Bool("realtime", settings.Input.Realtime))

	runErr := p.Run(ctx)

	mu.Lock()
	result := &FileResult{
		Path:       path,
		Duration:   samplesToDuration(p.Manager.SamplesCaptured()),
		Detections: append([]FileDetection(nil), detections...),
		Sessions:   p.Session.SessionsStarted(),
	}
	mu.Unlock()

	log.Info("file analysis finished",
		logger.String("path", path),
		logger.Duration("duration", result.Duration),
		logger.Int("detections", len(result.Detections)),
		logger.Uint64("sessions", result.Sessions))

	return result, runErr
}

func samplesToDuration(n uint64) time.Duration {
	return time.Duration(n) * time.Second / audiocore.SampleRate
}

func detectorIdle(d *wakeword.Detector) func() bool {
	if d == nil {
		return func() bool { return true }
	}
	return func() bool {
		st := d.Stats()
		return st.SignalsHandled >= st.SignalsPosted
	}
}

// validateAudioFile checks that path is a non-empty 16 kHz audio file.
func validateAudioFile(path string) error {
	if path == "" {
		return errors.Newf("no input file given").
			Component("analysis").
			Category(errors.CategoryValidation).
			Build()
	}

	info, err := os.Stat(path)
	if err != nil {
		return errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			FileContext(path, 0).
			Build()
	}
	if info.IsDir() {
		return errors.Newf("%s is a directory, not a file", filepath.Base(path)).
			Component("analysis").
			Category(errors.CategoryValidation).
			FileContext(path, 0).
			Build()
	}
	if info.Size() == 0 {
		return errors.Newf("%s is empty", filepath.Base(path)).
			Component("analysis").
			Category(errors.CategoryValidation).
			FileContext(path, 0).
			Build()
	}

	format, err := file.Probe(path)
	if err != nil {
		return err
	}
	if format.SampleRate != audiocore.SampleRate {
		return errors.Newf("%s is sampled at %d Hz, expected %d Hz", filepath.Base(path), format.SampleRate, audiocore.SampleRate).
			Component("analysis").
			Category(errors.CategoryValidation).
			FileContext(path, info.Size()).
			Context("sample_rate", format.SampleRate).
			Build()
	}
	return nil
}
