// Package wakeword turns PCM frames into validated wake-word detections.
//
// The capture goroutine calls ProcessFrame, which feeds the MFCC frontend and
// posts a token to a bounded channel whenever a new feature matrix is ready.
// A consumer goroutine started by Enable pulls tokens, runs the classifier at
// most once per inference interval and passes the confidence through the
// Validator. Confirmed detections are delivered to the detection callback.
package wakeword

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/voicetrigger/internal/classifier"
	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/logger"
	"github.com/tphakala/voicetrigger/internal/memory"
	"github.com/tphakala/voicetrigger/internal/mfcc"
	"github.com/tphakala/voicetrigger/internal/observability/metrics"
	"github.com/tphakala/voicetrigger/internal/ringbuffer"
)

// Detection is a confirmed wake-word event.
type Detection struct {
	ID         string
	Confidence float32
	LatencyMs  uint32
	Time       time.Time
}

// Options carries the detector's collaborators.
type Options struct {
	Classifier classifier.Classifier
	// Internal and External are the memory arenas; Config.UseLargeMemory
	// selects between them. Nil arenas allocate without accounting.
	Internal *memory.Arena
	External *memory.Arena
	Metrics  *metrics.WakeWordMetrics
	// Now replaces time.Now for throttling and validation.
	Now func() time.Time
}

// Detector is the wake-word detection orchestrator.
type Detector struct {
	cfg        Config
	classifier classifier.Classifier
	arena      *memory.Arena
	metrics    *metrics.WakeWordMetrics
	now        func() time.Time
	log        logger.Logger

	// featMu serializes the producer's writes to the frontend with the
	// consumer's feature reads.
	featMu   sync.Mutex
	frontend *mfcc.Frontend

	audio    *ringbuffer.RingBuffer
	frameBuf []byte // producer scratch

	signals chan struct{}

	valMu     sync.Mutex
	validator *Validator
	threshold atomic.Uint32 // float32 bits

	features      []float32 // consumer scratch
	lastInference time.Time // consumer only

	onDetection atomic.Pointer[func(Detection)]

	runMu   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	enabled atomic.Bool

	detections      atomic.Uint64
	falsePositives  atomic.Uint64
	inferences      atomic.Uint64
	inferenceErrors atomic.Uint64
	totalLatencyMs  atomic.Uint64
	lastConfidence  atomic.Uint32 // float32 bits
	lastLatencyMs   atomic.Uint32
	signalsPosted   atomic.Uint64
	signalsHandled  atomic.Uint64
	droppedSignals  atomic.Uint64
	throttled       atomic.Uint64
	idleWakeups     atomic.Uint64

	queueFullLog  *logger.Throttle
	shortWriteLog *logger.Throttle
}

// New builds a detector. It fails when a buffer cannot be allocated, when the
// classifier is missing or when the classifier does not consume a full
// feature matrix.
func New(cfg Config, opts Options) (*Detector, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if opts.Classifier == nil {
		return nil, errors.Newf("no classifier configured").
			Component("wakeword").
			Category(errors.CategoryModelInit).
			Build()
	}
	if got := opts.Classifier.InputSize(); got != mfcc.FeatureSize {
		return nil, errors.Newf("classifier expects %d features, frontend produces %d", got, mfcc.FeatureSize).
			Component("wakeword").
			Category(errors.CategoryValidation).
			Context("expected", mfcc.FeatureSize).
			Context("actual", got).
			Build()
	}

	d := &Detector{
		cfg:           cfg,
		classifier:    opts.Classifier,
		arena:         memory.Select(cfg.UseLargeMemory, opts.Internal, opts.External),
		metrics:       opts.Metrics,
		now:           opts.Now,
		log:           GetLogger(),
		signals:       make(chan struct{}, cfg.QueueSize),
		validator:     NewValidator(cfg.Threshold, cfg.TriggerDuration()),
		queueFullLog:  logger.NewThrottle(5 * time.Second),
		shortWriteLog: logger.NewThrottle(5 * time.Second),
	}
	if d.now == nil {
		d.now = time.Now
	}
	d.threshold.Store(math.Float32bits(cfg.Threshold))

	var err error
	if d.frontend, err = mfcc.New(d.arena); err != nil {
		return nil, err
	}
	if d.features, err = memory.Alloc[float32](d.arena, mfcc.FeatureSize); err != nil {
		d.release()
		return nil, d.allocError(err, "feature buffer")
	}
	if d.audio, err = ringbuffer.New(audioRingSeconds*mfcc.SampleRate*2, d.arena); err != nil {
		d.release()
		return nil, d.allocError(err, "audio ring")
	}

	d.log.Info("wake word detector initialized",
		logger.Float32("threshold", cfg.Threshold),
		logger.Int("trigger_duration_ms", int(cfg.TriggerDurationMs)),
		logger.Int("queue_size", cfg.QueueSize),
		logger.Duration("inference_interval", cfg.InferenceInterval),
		logger.String("region", string(d.arena.Region())))

	if cfg.SelfCheck {
		// result is logged; a failing self-check never blocks startup
		_, _ = d.SelfCheck()
	}

	return d, nil
}

func (d *Detector) allocError(err error, what string) error {
	return errors.New(err).
		Component("wakeword").
		Category(errors.CategoryResource).
		Context("buffer", what).
		Context("region", string(d.arena.Region())).
		Build()
}

func (d *Detector) release() {
	if d.frontend != nil {
		d.frontend.Release()
	}
	memory.Free(d.arena, d.features)
	d.features = nil
	if d.audio != nil {
		d.audio.Release()
	}
}

// SelfCheck runs an all-zero feature matrix through the classifier and warns
// when the confidence is implausibly high.
func (d *Detector) SelfCheck() (float32, error) {
	zero := make([]float32, mfcc.FeatureSize)
	conf, err := d.classifier.Infer(zero)
	if err != nil {
		d.log.Warn("zero-input self-check failed", logger.Error(err))
		return 0, err
	}
	if conf > SelfCheckLimit {
		d.log.Warn("zero-input confidence higher than expected, model may be biased or badly quantized",
			logger.Float32("confidence", conf),
			logger.Float32("expected_max", SelfCheckLimit))
	} else {
		d.log.Info("zero-input self-check passed", logger.Float32("confidence", conf))
	}
	return conf, nil
}

// SetDetectionCallback sets the function called for each confirmed detection.
// The callback runs on the consumer goroutine and must not block.
func (d *Detector) SetDetectionCallback(fn func(Detection)) {
	if fn == nil {
		d.onDetection.Store(nil)
		return
	}
	d.onDetection.Store(&fn)
}

// ProcessFrame feeds one capture frame. It never blocks and is a no-op while
// the detector is disabled.
func (d *Detector) ProcessFrame(samples []int16) {
	if len(samples) == 0 || !d.enabled.Load() {
		return
	}

	d.featMu.Lock()
	ready := d.frontend.ProcessSamples(samples)
	d.featMu.Unlock()

	if ready {
		select {
		case d.signals <- struct{}{}:
			d.signalsPosted.Add(1)
		default:
			// drop the newest token; the consumer reads the current matrix anyway
			d.droppedSignals.Add(1)
			d.metrics.RecordDroppedSignal()
			d.queueFullLog.Debug(d.log, "signal queue full, skipping inference cycle")
		}
	}

	d.frameBuf = d.frameBuf[:0]
	for _, s := range samples {
		d.frameBuf = binary.LittleEndian.AppendUint16(d.frameBuf, uint16(s)) //nolint:gosec // two's complement reinterpretation
	}
	if n := d.audio.Write(d.frameBuf); n != len(d.frameBuf) {
		d.shortWriteLog.Warn(d.log, "audio buffer overflow, data may be lost",
			logger.Int("written", n),
			logger.Int("expected", len(d.frameBuf)))
	}
}

// Enable starts the consumer goroutine. It returns immediately; calling it on
// an enabled detector does nothing.
func (d *Detector) Enable(ctx context.Context) {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	if d.enabled.Load() {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done
	d.enabled.Store(true)
	d.metrics.SetEnabled(true)

	go d.run(runCtx, done)
	d.log.Info("wake word detection enabled")
}

// Disable stops the consumer goroutine and waits for it to exit. An inference
// already running completes first.
func (d *Detector) Disable() {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	if d.cancel == nil {
		return
	}
	d.enabled.Store(false)
	d.cancel()
	<-d.done
	d.cancel = nil
	d.done = nil
	d.metrics.SetEnabled(false)
	d.log.Info("wake word detection disabled")
}

// IsEnabled reports whether the consumer goroutine is running.
func (d *Detector) IsEnabled() bool {
	return d.enabled.Load()
}

func (d *Detector) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer d.enabled.Store(false)

	// Wait for signals at most one inference interval at a time.
	idle := time.NewTimer(d.cfg.InferenceInterval)
	defer idle.Stop()

	d.log.Debug("wake word consumer started")
	for {
		select {
		case <-ctx.Done():
			d.log.Debug("wake word consumer stopped")
			return
		case <-d.signals:
			d.handleSignal()
			d.signalsHandled.Add(1)
		case <-idle.C:
			d.idleWakeups.Add(1)
		}
		idle.Reset(d.cfg.InferenceInterval)
	}
}

func (d *Detector) handleSignal() {
	now := d.now()
	if !d.lastInference.IsZero() && now.Sub(d.lastInference) < d.cfg.InferenceInterval {
		d.throttled.Add(1)
		d.metrics.RecordThrottled()
		return
	}
	d.lastInference = now
	d.processInference(now)
}

func (d *Detector) processInference(now time.Time) {
	start := time.Now()

	d.featMu.Lock()
	ok := d.frontend.Features(d.features)
	d.featMu.Unlock()
	if !ok {
		return
	}

	conf, err := d.classifier.Infer(d.features)
	elapsed := time.Since(start)
	if err != nil {
		d.inferenceErrors.Add(1)
		d.metrics.RecordInferenceError()
		d.log.Error("inference failed", logger.Error(err))
		return
	}
	conf = classifier.ClampConfidence(conf)

	count := d.inferences.Add(1)
	d.lastConfidence.Store(math.Float32bits(conf))
	d.metrics.RecordInference(elapsed, conf)

	d.valMu.Lock()
	confirmed := d.validator.Update(conf, now)
	d.valMu.Unlock()

	if confirmed {
		latency := uint32(elapsed.Milliseconds()) //nolint:gosec // inference time fits uint32 milliseconds
		d.lastLatencyMs.Store(latency)
		d.totalLatencyMs.Add(uint64(latency))
		d.detections.Add(1)
		d.metrics.RecordDetection()

		det := Detection{
			ID:         uuid.NewString(),
			Confidence: conf,
			LatencyMs:  latency,
			Time:       now,
		}
		d.log.Info("wake word detected",
			logger.String("detection_id", det.ID),
			logger.Float32("confidence", conf),
			logger.Int("latency_ms", int(latency)))

		if cb := d.onDetection.Load(); cb != nil {
			(*cb)(det)
		}
	}

	if count%statsLogEvery == 0 {
		d.log.Debug("inference statistics",
			logger.Uint64("inference", count),
			logger.Float32("confidence", conf),
			logger.Duration("duration", elapsed))
	}
}

// SetThreshold changes the detection threshold, clamped to [0, 1].
func (d *Detector) SetThreshold(t float32) {
	t = classifier.ClampConfidence(t)
	d.threshold.Store(math.Float32bits(t))
	d.valMu.Lock()
	d.validator.SetThreshold(t)
	d.valMu.Unlock()
	d.log.Info("wake word threshold set", logger.Float32("threshold", t))
}

func (d *Detector) Threshold() float32 {
	return math.Float32frombits(d.threshold.Load())
}

// ValidationState returns the current validator state.
func (d *Detector) ValidationState() ValidationState {
	d.valMu.Lock()
	defer d.valMu.Unlock()
	return d.validator.State()
}

// Reset clears the validation state, the last confidence, the frontend, the
// audio ring and any pending signals.
func (d *Detector) Reset() {
	d.valMu.Lock()
	d.validator.Reset()
	d.valMu.Unlock()

	d.lastConfidence.Store(0)

	d.featMu.Lock()
	d.frontend.Reset()
	d.featMu.Unlock()

	d.audio.Clear()

	for {
		select {
		case <-d.signals:
		default:
			return
		}
	}
}

// RecordFalsePositive counts a detection that an external validator rejected.
func (d *Detector) RecordFalsePositive() {
	d.falsePositives.Add(1)
	d.metrics.RecordFalsePositive()
}

// RecentAudio copies up to len(dst) of the most recent buffered samples into
// dst and returns the number of samples copied.
func (d *Detector) RecentAudio(dst []int16) int {
	avail := d.audio.Available() / 2
	n := min(len(dst), avail)
	if n == 0 {
		return 0
	}
	buf := make([]byte, n*2)
	got := d.audio.Peek(buf, (avail-n)*2)
	for i := range got / 2 {
		dst[i] = int16(binary.LittleEndian.Uint16(buf[i*2:])) //nolint:gosec // two's complement reinterpretation
	}
	return got / 2
}

// Close disables the detector and releases its buffers. The classifier is
// owned by the caller.
func (d *Detector) Close() {
	d.Disable()
	d.featMu.Lock()
	defer d.featMu.Unlock()
	d.release()
}
