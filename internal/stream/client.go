// Package stream sends session audio to a speech server over WebSocket.
//
// Each session is framed by a JSON config message and a JSON end-of-stream
// marker, with the PCM audio in between as binary messages:
//
//	{"config":{"sample_rate":16000,"room":"kitchen"}}
//	<binary 16-bit little-endian mono PCM> ...
//	{"eof":1}
//
// The connection is kept open between sessions and redialled at the start of
// the next session if the server dropped it.
package stream

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tphakala/voicetrigger/internal/audiocore"
	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/logger"
	"github.com/tphakala/voicetrigger/internal/observability/metrics"
	"github.com/tphakala/voicetrigger/internal/session"
)

const (
	DefaultReconnectDelay   = time.Second
	DefaultMaxRetries       = 3
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 2 * time.Second
)

// Config configures the speech server connection.
type Config struct {
	URL              string
	Room             string // default room when the session carries none
	SampleRate       int
	ReconnectDelay   time.Duration
	MaxRetries       int // dial attempts per session
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

type configMessage struct {
	Config streamConfig `json:"config"`
}

type streamConfig struct {
	SampleRate int    `json:"sample_rate"`
	Room       string `json:"room"`
}

type eofMessage struct {
	EOF int `json:"eof"`
}

// Client streams sessions to the speech server. It implements session.Sink.
type Client struct {
	cfg     Config
	dialer  websocket.Dialer
	metrics *metrics.SessionMetrics
	log     logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	readDone  chan struct{}
	sessionID string // session whose config was sent on conn
	pcm       []byte
	closed    bool
}

// New validates cfg and returns a client. No connection is made until the
// first session starts.
func New(cfg Config, sm *metrics.SessionMetrics) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, errors.Newf("invalid stream URL %q, expected ws:// or wss://", cfg.URL).
			Component("stream").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audiocore.SampleRate
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	return &Client{
		cfg:     cfg,
		dialer:  websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		metrics: sm,
		log:     GetLogger(),
	}, nil
}

func (c *Client) Name() string { return "stream" }

// Connected reports whether a server connection is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// SessionStarted connects if needed and announces the session.
func (c *Client) SessionStarted(ctx context.Context, info session.Info) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessionID = ""
	if err := c.ensureConnLocked(ctx); err != nil {
		return err
	}

	room := info.Room
	if room == "" {
		room = c.cfg.Room
	}
	msg := configMessage{Config: streamConfig{SampleRate: c.cfg.SampleRate, Room: room}}
	if err := c.writeLocked(func(conn *websocket.Conn) error { return conn.WriteJSON(msg) }); err != nil {
		return c.writeError(err, "send_config", info.ID)
	}

	c.sessionID = info.ID
	c.log.Debug("stream session started",
		logger.String("session_id", info.ID),
		logger.String("room", room))
	return nil
}

// Audio sends one PCM frame. Frames of a session whose start failed are
// skipped.
func (c *Client) Audio(_ context.Context, info session.Info, samples []int16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.sessionID != info.ID {
		return nil
	}

	c.pcm = audiocore.EncodePCM16(c.pcm[:0], samples)
	if err := c.writeLocked(func(conn *websocket.Conn) error {
		return conn.WriteMessage(websocket.BinaryMessage, c.pcm)
	}); err != nil {
		return c.writeError(err, "send_audio", info.ID)
	}
	c.metrics.AddStreamBytes(len(c.pcm))
	return nil
}

// SessionEnded sends the end-of-stream marker.
func (c *Client) SessionEnded(_ context.Context, info session.Info) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.sessionID != info.ID {
		return nil
	}
	c.sessionID = ""

	if err := c.writeLocked(func(conn *websocket.Conn) error {
		return conn.WriteJSON(eofMessage{EOF: 1})
	}); err != nil {
		return c.writeError(err, "send_eof", info.ID)
	}
	c.log.Debug("stream session ended", logger.String("session_id", info.ID))
	return nil
}

// Close sends a close frame and shuts the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn, readDone := c.conn, c.readDone
	c.conn, c.readDone = nil, nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := conn.Close()
	<-readDone
	return err
}

// ensureConnLocked dials the server unless a connection is open. The caller
// holds mu.
func (c *Client) ensureConnLocked(ctx context.Context) error {
	if c.closed {
		return errors.Newf("stream client is closed").
			Component("stream").
			Category(errors.CategoryState).
			Build()
	}
	if c.conn != nil {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err == nil {
			c.conn = conn
			c.readDone = make(chan struct{})
			go c.readLoop(conn, c.readDone)
			c.log.Info("connected to speech server", logger.String("url", c.cfg.URL))
			return nil
		}

		lastErr = err
		c.log.Warn("speech server dial failed",
			logger.String("url", c.cfg.URL),
			logger.Int("attempt", attempt),
			logger.Error(err))

		if attempt == c.cfg.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = c.cfg.MaxRetries
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}

	return errors.New(lastErr).
		Component("stream").
		Category(errors.CategoryNetwork).
		Context("operation", "dial").
		Context("url", c.cfg.URL).
		Context("attempts", c.cfg.MaxRetries).
		Build()
}

func (c *Client) writeLocked(write func(*websocket.Conn) error) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return write(c.conn)
}

// writeError drops the failed connection so the next session redials, and
// wraps err. The caller holds mu.
func (c *Client) writeError(err error, op, sessionID string) error {
	c.dropLocked(c.conn)
	return errors.New(err).
		Component("stream").
		Category(errors.CategoryStream).
		Context("operation", op).
		Context("session_id", sessionID).
		Build()
}

func (c *Client) dropLocked(conn *websocket.Conn) {
	if conn == nil || c.conn != conn {
		return
	}
	_ = conn.Close()
	c.conn = nil
	c.sessionID = ""
}

// readLoop consumes server messages so control frames are processed, and
// notices when the server goes away.
func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("speech server connection lost", logger.Error(err))
			}
			c.mu.Lock()
			c.dropLocked(conn)
			c.mu.Unlock()
			return
		}
		if typ == websocket.TextMessage {
			c.log.Debug("speech server message", logger.String("message", string(msg)))
		}
	}
}
