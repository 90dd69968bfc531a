// Package api serves the control and status HTTP API.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/voicetrigger/internal/datastore"
	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/logger"
	"github.com/tphakala/voicetrigger/internal/session"
	"github.com/tphakala/voicetrigger/internal/wakeword"
)

// Detector is the wake word detector as seen by the API.
type Detector interface {
	Enable(ctx context.Context)
	Disable()
	Reset()
	SetThreshold(t float32)
	Stats() wakeword.Stats
	RecordFalsePositive()
}

// Audio reports capture state.
type Audio interface {
	AudioLevel() float32
	IsVoiceDetected() bool
	IsCapturing() bool
	SamplesCaptured() uint64
	SamplesStreamed() uint64
}

// Sessions is the listening cycle as seen by the API.
type Sessions interface {
	State() session.State
	Current() (session.Info, bool)
	SessionsStarted() uint64
	TriggerPushToTalk() bool
}

// Config holds the server settings.
type Config struct {
	Listen          string
	NodeName        string
	NodeID          string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	BodyLimit       string
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Listen:          "127.0.0.1:8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		BodyLimit:       "64K",
	}
}

// Server is the HTTP server. All collaborators are optional; endpoints whose
// collaborator is missing answer 503.
type Server struct {
	echo     *echo.Echo
	config   Config
	detector Detector
	audio    Audio
	sessions Sessions
	store    datastore.Interface
	feedback *Feedback

	// ctx outlives requests; the detector consumer started by enable runs on it
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	log       logger.Logger
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithDetector sets the wake word detector.
func WithDetector(d Detector) ServerOption {
	return func(s *Server) { s.detector = d }
}

// WithAudio sets the capture state source.
func WithAudio(a Audio) ServerOption {
	return func(s *Server) { s.audio = a }
}

// WithSessions sets the session state machine.
func WithSessions(m Sessions) ServerOption {
	return func(s *Server) { s.sessions = m }
}

// WithDataStore sets the detection history store.
func WithDataStore(ds datastore.Interface) ServerOption {
	return func(s *Server) { s.store = ds }
}

// WithFeedback sets the false positive window.
func WithFeedback(f *Feedback) ServerOption {
	return func(s *Server) { s.feedback = f }
}

// WithContext sets the parent of the server lifetime context.
func WithContext(ctx context.Context) ServerOption {
	return func(s *Server) { s.ctx = ctx }
}

// New creates the server and registers its routes.
func New(cfg Config, opts ...ServerOption) *Server {
	def := DefaultConfig()
	if cfg.Listen == "" {
		cfg.Listen = def.Listen
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = def.BodyLimit
	}

	s := &Server{
		config:    cfg,
		ctx:       context.Background(),
		startTime: time.Now(),
		log:       GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(s.ctx)

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Logger = logger.NewEchoLoggerAdapter(s.log)
	s.echo.Server.ReadTimeout = cfg.ReadTimeout
	s.echo.Server.WriteTimeout = cfg.WriteTimeout

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(newRequestLogger(s.log))
	s.echo.Use(echomw.BodyLimit(s.config.BodyLimit))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	g := s.echo.Group("/api/v1")
	g.GET("/status", s.GetStatus)

	g.POST("/wakeword/enable", s.EnableWakeWord)
	g.POST("/wakeword/disable", s.DisableWakeWord)
	g.POST("/wakeword/reset", s.ResetWakeWord)
	g.PUT("/wakeword/threshold", s.SetThreshold)

	g.GET("/detections", s.GetDetections)
	g.POST("/detections/:id/false-positive", s.ReportFalsePositive)

	g.POST("/session/push-to-talk", s.PushToTalk)
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime":         uptime.Round(time.Second).String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP API starting", logger.String("address", s.config.Listen))
		errCh <- s.echo.Start(s.config.Listen)
	}()

	select {
	case err := <-errCh:
		s.cancel()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.New(err).
				Component("api").
				Category(errors.CategoryNetwork).
				Context("address", s.config.Listen).
				Build()
		}
		return nil
	case <-ctx.Done():
	}

	return s.Shutdown()
}

// Shutdown stops the server and cancels the lifetime context.
func (s *Server) Shutdown() error {
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("operation", "shutdown").
			Build()
	}
	s.log.Info("HTTP API stopped")
	return nil
}

// Addr returns the listening address once the server is running.
func (s *Server) Addr() net.Addr {
	return s.echo.ListenerAddr()
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
