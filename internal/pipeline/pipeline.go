// Package pipeline assembles capture, voice activity detection, wake word
// detection, the session state machine and its integrations, and runs them
// together.
package pipeline

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/voicetrigger/internal/api"
	"github.com/tphakala/voicetrigger/internal/audiocore"
	"github.com/tphakala/voicetrigger/internal/audiocore/export"
	"github.com/tphakala/voicetrigger/internal/classifier"
	"github.com/tphakala/voicetrigger/internal/conf"
	"github.com/tphakala/voicetrigger/internal/datastore"
	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/logger"
	"github.com/tphakala/voicetrigger/internal/memory"
	"github.com/tphakala/voicetrigger/internal/monitor"
	"github.com/tphakala/voicetrigger/internal/mqtt"
	"github.com/tphakala/voicetrigger/internal/notification"
	"github.com/tphakala/voicetrigger/internal/observability"
	"github.com/tphakala/voicetrigger/internal/session"
	"github.com/tphakala/voicetrigger/internal/stream"
	"github.com/tphakala/voicetrigger/internal/vad"
	"github.com/tphakala/voicetrigger/internal/wakeword"
)

const (
	// drainTimeout bounds the wait for queued inferences after the source ends.
	drainTimeout = 2 * time.Second
	drainPoll    = 10 * time.Millisecond
)

// Options carries what the settings cannot describe.
type Options struct {
	// Classifier scores feature matrices. The pipeline does not close it.
	Classifier classifier.Classifier
	// Source delivers captured frames. The pipeline ends when it closes.
	Source audiocore.Source
	// Metrics receives all pipeline metrics; nil creates a private set.
	Metrics *observability.Metrics
	// Integrations starts the stream client, MQTT, notifications, the
	// datastore, the HTTP API, telemetry and the system monitor as configured.
	// File analysis runs without them.
	Integrations bool
	// Sinks are added after the configured session sinks.
	Sinks []session.Sink
	// OnDetection observes every confirmed detection, including those that
	// do not start a session.
	OnDetection func(wakeword.Detection)
	// Now replaces time.Now for the detector and the session state machine.
	Now func() time.Time
}

// Pipeline is an assembled voice trigger.
type Pipeline struct {
	settings *conf.Settings
	opts     Options
	metrics  *observability.Metrics
	log      logger.Logger

	Internal *memory.Arena
	External *memory.Arena
	VAD      *vad.Processor
	Detector *wakeword.Detector
	Manager  *audiocore.Manager
	Session  *session.Machine
	Feedback *api.Feedback

	store     datastore.Interface
	stream    *stream.Client
	clips     *export.ClipSink
	mqtt      mqtt.Client
	notifier  *notification.Notifier
	server    *api.Server
	endpoint  *observability.Endpoint
	sysmon    *monitor.SystemMonitor
	closeOnce sync.Once
}

// New builds every component described by settings. Nothing runs until Run.
func New(settings *conf.Settings, opts Options) (p *Pipeline, err error) {
	if opts.Source == nil {
		return nil, errors.Newf("pipeline requires an audio source").
			Component("pipeline").
			Category(errors.CategoryValidation).
			Build()
	}
	if settings.WakeWord.Enabled && opts.Classifier == nil {
		return nil, errors.Newf("wake word detection enabled without a classifier").
			Component("pipeline").
			Category(errors.CategoryModelInit).
			Build()
	}

	p = &Pipeline{
		settings: settings,
		opts:     opts,
		metrics:  opts.Metrics,
		log:      GetLogger(),
	}
	defer func() {
		if err != nil {
			p.Close()
			p = nil
		}
	}()

	if p.metrics == nil {
		if p.metrics, err = observability.NewMetrics(); err != nil {
			return p, err
		}
	}

	if err = p.buildCore(); err != nil {
		return p, err
	}

	sinks, err := p.buildSinks()
	if err != nil {
		return p, err
	}
	sinks = append(sinks, opts.Sinks...)

	sessionOpts := []session.Option{
		session.WithMetrics(p.metrics.Session),
		session.WithSinks(sinks...),
	}
	if opts.Now != nil {
		sessionOpts = append(sessionOpts, session.WithClock(opts.Now))
	}
	if p.Session, err = session.New(sessionConfig(settings), p.Manager, sessionOpts...); err != nil {
		return p, err
	}

	p.Manager.SetAudioDataCallback(p.Session.HandleAudio)
	p.Manager.SetVADCallback(p.Session.OnVoiceActivity)
	if p.Detector != nil {
		p.Detector.SetDetectionCallback(p.onDetection)
	}

	if opts.Integrations {
		if err = p.buildServices(); err != nil {
			return p, err
		}
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	p.log.Info("pipeline assembled",
		logger.Bool("wakeword", p.Detector != nil),
		logger.Any("sinks", names),
		logger.String("room", room(settings)))
	return p, nil
}

func (p *Pipeline) buildCore() error {
	s := p.settings
	p.Internal = memory.NewArena(memory.RegionInternal, s.Memory.InternalLimit)
	p.External = memory.NewExternalArena()
	p.VAD = vad.New(vadConfig(s))

	var detector audiocore.FrameConsumer
	if s.WakeWord.Enabled {
		var err error
		p.Detector, err = wakeword.New(wakeWordConfig(s), wakeword.Options{
			Classifier: p.opts.Classifier,
			Internal:   p.Internal,
			External:   p.External,
			Metrics:    p.metrics.WakeWord,
			Now:        p.opts.Now,
		})
		if err != nil {
			return err
		}
		detector = p.Detector
	}

	arena := memory.Select(s.WakeWord.UseLargeMemory, p.Internal, p.External)
	m, err := audiocore.NewManager(managerConfig(s), p.VAD, detector, arena)
	if err != nil {
		return err
	}
	m.SetMetrics(p.metrics.Audio)
	p.Manager = m
	return nil
}

func (p *Pipeline) clipDir() string {
	if !p.settings.Audio.Export.Enabled || p.settings.Audio.Export.Path == "" {
		return ""
	}
	return conf.GetBasePath(p.settings.Audio.Export.Path)
}

// buildSinks returns the configured session sinks in delivery order.
func (p *Pipeline) buildSinks() ([]session.Sink, error) {
	s := p.settings
	var sinks []session.Sink

	if !p.opts.Integrations {
		return sinks, nil
	}

	if s.Stream.Enabled {
		c, err := stream.New(streamConfig(s), p.metrics.Session)
		if err != nil {
			return nil, err
		}
		p.stream = c
		sinks = append(sinks, c)
	}

	clipDir := p.clipDir()
	if clipDir != "" {
		p.clips = export.NewClipSink(clipDir, s.Audio.SampleRate)
		sinks = append(sinks, p.clips)
	}

	if s.Datastore.Type != "" && s.Datastore.Type != "none" {
		ds := s.Datastore
		ds.Path = resolvePath(ds.Path)
		store, err := datastore.New(&ds)
		if err != nil {
			return nil, err
		}
		if store != nil {
			if err := store.Open(); err != nil {
				return nil, err
			}
			p.store = store
			sinks = append(sinks, datastore.NewRecorder(store, s.Main.NodeID, clipDir))
		}
	}

	if s.MQTT.Enabled {
		c, err := mqtt.NewClient(mqttConfig(s), p.metrics.MQTT)
		if err != nil {
			return nil, err
		}
		p.mqtt = c
		sinks = append(sinks, mqtt.NewPublisher(c, mqttConfig(s).Topic, s.Main.NodeID))
	}

	if s.Notification.Enabled {
		timeout := time.Duration(s.Notification.TimeoutSeconds) * time.Second
		var providers []notification.Provider
		if len(s.Notification.URLs) > 0 {
			providers = append(providers, notification.NewShoutrrrProvider("shoutrrr", true, s.Notification.URLs, nil, timeout))
		}
		if s.Notification.Webhook.Enabled {
			providers = append(providers, notification.NewWebhookProvider("webhook", true, s.Notification.Webhook.URL, nil,
				&http.Client{Timeout: timeout}))
		}
		n, err := notification.NewNotifier(s.Main.Name, 0, timeout, p.metrics.Session, providers...)
		if err != nil {
			return nil, err
		}
		p.notifier = n
		sinks = append(sinks, n)
	}

	return sinks, nil
}

// buildServices prepares the long running integrations started by Run.
func (p *Pipeline) buildServices() error {
	s := p.settings

	p.Feedback = api.NewFeedback(time.Duration(s.Feedback.WindowSeconds) * time.Second)

	if s.API.Enabled {
		opts := []api.ServerOption{
			api.WithAudio(p.Manager),
			api.WithSessions(p.Session),
			api.WithFeedback(p.Feedback),
		}
		if p.Detector != nil {
			opts = append(opts, api.WithDetector(p.Detector))
		}
		if p.store != nil {
			opts = append(opts, api.WithDataStore(p.store))
		}
		p.server = api.New(apiConfig(s), opts...)
	}

	if s.Telemetry.Enabled {
		ep, err := observability.NewEndpoint(s, p.metrics)
		if err != nil {
			return err
		}
		p.endpoint = ep
	}

	if s.Monitor.Enabled {
		var alerter monitor.Alerter
		if p.notifier != nil {
			alerter = p.notifier
		}
		p.sysmon = monitor.NewSystemMonitor(monitorConfig(s, p.clipDir()), p.metrics.System, alerter, p.Internal, p.External)
	}
	return nil
}

func (p *Pipeline) onDetection(d wakeword.Detection) {
	if p.Feedback != nil {
		p.Feedback.Remember(d)
	}
	if p.opts.OnDetection != nil {
		p.opts.OnDetection(d)
	}
	if !p.Session.OnDetection(d) {
		p.log.Debug("detection ignored, session not idle",
			logger.String("detection_id", d.ID),
			logger.String("state", p.Session.State().String()))
	}
}

// Run processes audio until ctx is cancelled or the source ends, then stops
// every component. A session still streaming at that point ends with reason
// "shutdown".
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if p.endpoint != nil {
		if err := p.endpoint.Start(ctx, &wg); err != nil {
			return err
		}
	}
	if p.mqtt != nil {
		mqtt.ConnectInBackground(ctx, p.mqtt)
	}
	if p.Detector != nil {
		p.Detector.Enable(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)

	// capture stops on cancel, and cancels everything when the source ends
	captureCtx, stopCapture := context.WithCancel(gctx)
	defer stopCapture()
	g.Go(func() error {
		err := p.Manager.Run(captureCtx, p.opts.Source)
		if err == nil && ctx.Err() == nil {
			p.waitDetectorIdle(ctx)
			p.log.Info("audio source ended")
		}
		cancel()
		return err
	})

	g.Go(func() error { return p.Session.Run(gctx) })

	if p.server != nil {
		g.Go(func() error { return p.server.Run(gctx) })
	}
	if p.sysmon != nil {
		g.Go(func() error { return p.sysmon.Run(gctx) })
	}

	err := g.Wait()
	wg.Wait()
	if p.Detector != nil {
		p.Detector.Disable()
	}
	if err != nil {
		p.log.Error("pipeline stopped with error", logger.Error(err))
		return err
	}
	p.log.Info("pipeline stopped")
	return nil
}

// waitDetectorIdle gives the detector a bounded chance to handle frames still
// queued when the source ended.
func (p *Pipeline) waitDetectorIdle(ctx context.Context) {
	if p.Detector == nil {
		return
	}
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	deadline := time.After(drainTimeout)
	for {
		st := p.Detector.Stats()
		if st.SignalsHandled >= st.SignalsPosted {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			p.log.Warn("detector still busy after source ended")
			return
		case <-ticker.C:
		}
	}
}

// Store returns the detection history store, nil when disabled.
func (p *Pipeline) Store() datastore.Interface { return p.store }

// Metrics returns the metric set used by the pipeline.
func (p *Pipeline) Metrics() *observability.Metrics { return p.metrics }

// Close releases every component. It is safe to call more than once.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		if p.mqtt != nil {
			p.mqtt.Disconnect()
		}
		if p.stream != nil {
			if err := p.stream.Close(); err != nil {
				p.log.Warn("failed to close stream client", logger.Error(err))
			}
		}
		if p.clips != nil {
			if err := p.clips.Close(); err != nil {
				p.log.Warn("failed to finalize clips", logger.Error(err))
			}
		}
		if p.store != nil {
			if err := p.store.Close(); err != nil {
				p.log.Warn("failed to close datastore", logger.Error(err))
			}
		}
		if p.Detector != nil {
			p.Detector.Close()
		}
		if p.Manager != nil {
			p.Manager.Close()
		}
	})
}
