// Package session drives the listening cycle: a wake word (or push-to-talk)
// starts a streaming session, silence or the maximum duration ends it, and a
// short cooldown follows before the next trigger is accepted.
//
// Session events are handed to sinks in order on a dedicated goroutine, so a
// slow sink never stalls the capture path.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/logger"
	"github.com/tphakala/voicetrigger/internal/observability/metrics"
	"github.com/tphakala/voicetrigger/internal/wakeword"
)

// State is the listening cycle state.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCooldown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Trigger identifies what started a session.
type Trigger string

const (
	TriggerWakeWord   Trigger = "wakeword"
	TriggerPushToTalk Trigger = "push_to_talk"
)

// EndReason identifies why a session ended.
type EndReason string

const (
	EndSilence     EndReason = "silence"
	EndMaxDuration EndReason = "max_duration"
	EndShutdown    EndReason = "shutdown"
)

// Default listening cycle timings.
const (
	DefaultSilenceTimeout = 700 * time.Millisecond
	DefaultMaxStream      = 8 * time.Second
	DefaultCooldown       = 400 * time.Millisecond
	DefaultTickInterval   = 20 * time.Millisecond
	DefaultQueueSize      = 512

	drainTimeout = 5 * time.Second
)

// Info describes one streaming session. Sinks receive copies.
type Info struct {
	ID        string
	Trigger   Trigger
	Room      string
	Detection *wakeword.Detection // nil for push-to-talk
	Started   time.Time
	Ended     time.Time // zero while streaming
	Reason    EndReason
	Samples   uint64 // samples delivered to sinks
}

// Duration returns the session length, or zero while it is still streaming.
func (i *Info) Duration() time.Duration {
	if i.Ended.IsZero() {
		return 0
	}
	return i.Ended.Sub(i.Started)
}

// Sink consumes session events. Calls for one session arrive in order:
// SessionStarted, any number of Audio calls, SessionEnded.
type Sink interface {
	Name() string
	SessionStarted(ctx context.Context, info Info) error
	Audio(ctx context.Context, info Info, samples []int16) error
	SessionEnded(ctx context.Context, info Info) error
}

// Streamer is the part of the audio manager the session controls.
type Streamer interface {
	StartStreaming()
	StopStreaming()
}

// Config holds the listening cycle timings.
type Config struct {
	SilenceTimeout time.Duration
	MaxStream      time.Duration
	Cooldown       time.Duration
	TickInterval   time.Duration
	QueueSize      int // pending sink events
	Room           string
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		SilenceTimeout: DefaultSilenceTimeout,
		MaxStream:      DefaultMaxStream,
		Cooldown:       DefaultCooldown,
		TickInterval:   DefaultTickInterval,
		QueueSize:      DefaultQueueSize,
	}
}

type eventKind int

const (
	eventStarted eventKind = iota
	eventAudio
	eventEnded
)

type event struct {
	kind    eventKind
	info    Info
	samples []int16
}

// Machine is the listening cycle state machine.
type Machine struct {
	cfg      Config
	streamer Streamer
	sinks    []Sink
	metrics  *metrics.SessionMetrics
	now      func() time.Time
	log      logger.Logger

	mu           sync.Mutex
	state        State
	stateEntered time.Time
	silenceStart time.Time // zero when voice is present
	current      *Info

	events      chan event
	stopped     chan struct{}
	stopOnce    sync.Once
	droppedLog  *logger.Throttle
	sinkErrLog  *logger.Throttle
	started     atomic.Uint64
	dropped     atomic.Uint64
	lastSession atomic.Pointer[Info]
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithMetrics records session metrics.
func WithMetrics(sm *metrics.SessionMetrics) Option {
	return func(m *Machine) { m.metrics = sm }
}

// WithSinks adds session sinks.
func WithSinks(sinks ...Sink) Option {
	return func(m *Machine) { m.sinks = append(m.sinks, sinks...) }
}

// New creates an idle state machine controlling streamer.
func New(cfg Config, streamer Streamer, opts ...Option) (*Machine, error) {
	if streamer == nil {
		return nil, errors.Newf("session requires an audio streamer").
			Component("session").
			Category(errors.CategoryValidation).
			Build()
	}

	def := DefaultConfig()
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = def.SilenceTimeout
	}
	if cfg.MaxStream <= 0 {
		cfg.MaxStream = def.MaxStream
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}

	m := &Machine{
		cfg:        cfg,
		streamer:   streamer,
		now:        time.Now,
		log:        GetLogger(),
		events:     make(chan event, cfg.QueueSize),
		stopped:    make(chan struct{}),
		droppedLog: logger.NewThrottle(5 * time.Second),
		sinkErrLog: logger.NewThrottle(5 * time.Second),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.stateEntered = m.now()
	return m, nil
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns the active session, if any.
func (m *Machine) Current() (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Info{}, false
	}
	return *m.current, true
}

// Last returns the most recently ended session.
func (m *Machine) Last() (Info, bool) {
	if info := m.lastSession.Load(); info != nil {
		return *info, true
	}
	return Info{}, false
}

// SessionsStarted returns the number of sessions started.
func (m *Machine) SessionsStarted() uint64 { return m.started.Load() }

// DroppedAudio returns the number of audio frames dropped because the sink
// queue was full.
func (m *Machine) DroppedAudio() uint64 { return m.dropped.Load() }

// OnDetection starts a session for d. Detections outside the idle state are
// ignored; it reports whether a session was started.
func (m *Machine) OnDetection(d wakeword.Detection) bool {
	return m.begin(TriggerWakeWord, &d)
}

// TriggerPushToTalk starts a session as if the wake word had been heard.
func (m *Machine) TriggerPushToTalk() bool {
	return m.begin(TriggerPushToTalk, nil)
}

func (m *Machine) begin(trigger Trigger, d *wakeword.Detection) bool {
	m.mu.Lock()
	if m.state != StateIdle {
		state := m.state
		m.mu.Unlock()
		m.log.Debug("trigger ignored",
			logger.String("trigger", string(trigger)),
			logger.String("state", state.String()))
		return false
	}

	now := m.now()
	info := &Info{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Room:      m.cfg.Room,
		Detection: d,
		Started:   now,
	}
	m.current = info
	m.transition(StateStreaming, now)
	// queued under mu so the start event precedes any audio of this session
	m.enqueue(event{kind: eventStarted, info: *info})
	m.mu.Unlock()

	m.started.Add(1)
	m.metrics.RecordStart(string(trigger))

	fields := []logger.Field{
		logger.String("session_id", info.ID),
		logger.String("trigger", string(trigger)),
	}
	if d != nil {
		fields = append(fields, logger.Float32("confidence", d.Confidence), logger.String("detection_id", d.ID))
	}
	m.log.Info("session started", fields...)

	// delivers the back buffer through HandleAudio
	m.streamer.StartStreaming()
	return true
}

// OnVoiceActivity tracks the silence timer while streaming.
func (m *Machine) OnVoiceActivity(active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateStreaming {
		return
	}
	switch {
	case active:
		m.silenceStart = time.Time{}
	case m.silenceStart.IsZero():
		m.silenceStart = m.now()
	}
}

// HandleAudio forwards streamed audio to the sinks. It is the audio manager's
// audio-data callback.
func (m *Machine) HandleAudio(samples []int16) {
	if len(samples) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateStreaming || m.current == nil {
		return
	}
	m.current.Samples += uint64(len(samples))

	frame := make([]int16, len(samples))
	copy(frame, samples)
	select {
	case m.events <- event{kind: eventAudio, info: *m.current, samples: frame}:
	default:
		m.dropped.Add(1)
		m.droppedLog.Warn(m.log, "session sink queue full, dropping audio",
			logger.String("session_id", m.current.ID))
	}
}

// Tick applies the time based transitions for now.
func (m *Machine) Tick(now time.Time) {
	m.mu.Lock()

	var ended *Info
	switch m.state {
	case StateStreaming:
		switch {
		case !m.silenceStart.IsZero() && now.Sub(m.silenceStart) >= m.cfg.SilenceTimeout:
			ended = m.endLocked(EndSilence, now)
		case now.Sub(m.stateEntered) >= m.cfg.MaxStream:
			ended = m.endLocked(EndMaxDuration, now)
		}
	case StateCooldown:
		if now.Sub(m.stateEntered) >= m.cfg.Cooldown {
			m.transition(StateIdle, now)
		}
	}
	m.mu.Unlock()

	if ended != nil {
		m.finish(ended)
	}
}

// endLocked moves a streaming session to cooldown and queues its end event.
// The caller holds mu.
func (m *Machine) endLocked(reason EndReason, now time.Time) *Info {
	info := m.current
	info.Ended = now
	info.Reason = reason
	m.current = nil
	m.transition(StateCooldown, now)
	m.enqueue(event{kind: eventEnded, info: *info})
	return info
}

// finish runs the side effects of an ended session outside mu; the streamer
// calls back into HandleAudio while holding its own lock.
func (m *Machine) finish(info *Info) {
	m.streamer.StopStreaming()
	m.lastSession.Store(info)
	m.metrics.RecordEnd(string(info.Reason), info.Duration())
	m.log.Info("session ended",
		logger.String("session_id", info.ID),
		logger.String("reason", string(info.Reason)),
		logger.Duration("duration", info.Duration()),
		logger.Uint64("samples", info.Samples))
}

func (m *Machine) transition(to State, now time.Time) {
	from := m.state
	m.state = to
	m.stateEntered = now
	m.silenceStart = time.Time{}
	m.log.Debug("state transition",
		logger.String("from", from.String()),
		logger.String("to", to.String()))
}

// enqueue queues a lifecycle event. Lifecycle events are never dropped; if
// the dispatcher has exited they are discarded.
func (m *Machine) enqueue(ev event) {
	select {
	case m.events <- ev:
	case <-m.stopped:
	}
}

// Run drives the timers and dispatches sink events until ctx is done. An
// active session is ended with EndShutdown and pending events are delivered
// before Run returns.
func (m *Machine) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	dispatchCtx, cancelDispatch := context.WithCancel(context.WithoutCancel(ctx))
	wg.Go(func() { m.dispatch(dispatchCtx) })

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			cancelDispatch()
			wg.Wait()
			return nil
		case <-ticker.C:
			m.Tick(m.now())
		}
	}
}

func (m *Machine) shutdown() {
	m.mu.Lock()
	var ended *Info
	if m.state == StateStreaming && m.current != nil {
		ended = m.endLocked(EndShutdown, m.now())
	}
	m.mu.Unlock()

	if ended != nil {
		m.finish(ended)
	}
}

func (m *Machine) dispatch(ctx context.Context) {
	defer m.stopOnce.Do(func() { close(m.stopped) })

	for {
		select {
		case ev := <-m.events:
			m.deliver(ctx, ev)
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
			defer cancel()
			for {
				select {
				case ev := <-m.events:
					m.deliver(drainCtx, ev)
				default:
					return
				}
			}
		}
	}
}

func (m *Machine) deliver(ctx context.Context, ev event) {
	ctx = logger.WithTraceID(ctx, ev.info.ID)
	for _, sink := range m.sinks {
		var err error
		switch ev.kind {
		case eventStarted:
			err = sink.SessionStarted(ctx, ev.info)
		case eventAudio:
			err = sink.Audio(ctx, ev.info, ev.samples)
		case eventEnded:
			err = sink.SessionEnded(ctx, ev.info)
		}
		if err != nil {
			m.metrics.RecordSinkError(sink.Name())
			m.sinkErrLog.Warn(m.log.WithContext(ctx), "session sink failed",
				logger.String("sink", sink.Name()),
				logger.String("session_id", ev.info.ID),
				logger.Error(err))
		}
	}
}
