package notification

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/voicetrigger/internal/errors"
	"github.com/tphakala/voicetrigger/internal/logger"
	"github.com/tphakala/voicetrigger/internal/observability/metrics"
	"github.com/tphakala/voicetrigger/internal/session"
)

// DefaultMinInterval is the minimum spacing between detection notifications.
const DefaultMinInterval = 10 * time.Second

// Notifier is a session.Sink that announces wake-word sessions through its
// providers. Notifications beyond one per interval are skipped.
type Notifier struct {
	providers []Provider
	nodeName  string
	limiter   *rate.Limiter
	timeout   time.Duration
	metrics   *metrics.SessionMetrics
	log       logger.Logger
}

// NewNotifier validates providers and returns a notifier. Disabled providers
// are dropped.
func NewNotifier(nodeName string, minInterval, timeout time.Duration, sm *metrics.SessionMetrics, providers ...Provider) (*Notifier, error) {
	n := &Notifier{
		nodeName: nodeName,
		timeout:  timeout,
		metrics:  sm,
		log:      GetLogger(),
	}
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if n.timeout <= 0 {
		n.timeout = defaultWebhookTimeout
	}
	n.limiter = rate.NewLimiter(rate.Every(minInterval), 1)

	for _, p := range providers {
		if !p.IsEnabled() {
			continue
		}
		if err := p.ValidateConfig(); err != nil {
			return nil, err
		}
		n.providers = append(n.providers, p)
	}
	return n, nil
}

func (n *Notifier) Name() string { return "notification" }

// Providers returns the number of active providers.
func (n *Notifier) Providers() int { return len(n.providers) }

func (n *Notifier) SessionStarted(ctx context.Context, info session.Info) error {
	if info.Detection == nil || len(n.providers) == 0 {
		return nil
	}
	if !n.limiter.Allow() {
		n.metrics.RecordNotification("rate_limited")
		n.log.Debug("notification rate limited", logger.String("session_id", info.ID))
		return nil
	}
	return n.Send(ctx, detectionNotification(&info, n.nodeName))
}

func (n *Notifier) Audio(context.Context, session.Info, []int16) error { return nil }

func (n *Notifier) SessionEnded(context.Context, session.Info) error { return nil }

// Send delivers msg to every provider that supports its type.
func (n *Notifier) Send(ctx context.Context, msg *Notification) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	var errs []error
	for _, p := range n.providers {
		if !p.SupportsType(msg.Type) {
			continue
		}
		if err := p.Send(ctx, msg); err != nil {
			n.metrics.RecordNotification("failed")
			n.log.Warn("notification failed",
				logger.String("provider", p.GetName()),
				logger.Error(err))
			errs = append(errs, err)
			continue
		}
		n.metrics.RecordNotification("sent")
	}
	return errors.Join(errs...)
}

func detectionNotification(info *session.Info, nodeName string) *Notification {
	d := info.Detection
	where := info.Room
	if where == "" {
		where = nodeName
	}
	msg := fmt.Sprintf("Wake word detected with %.0f%% confidence", d.Confidence*100)
	if where != "" {
		msg = fmt.Sprintf("Wake word detected in %s with %.0f%% confidence", where, d.Confidence*100)
	}
	ts := d.Time
	if ts.IsZero() {
		ts = info.Started
	}
	return &Notification{
		ID:        d.ID,
		Type:      TypeDetection,
		Title:     "Wake word detected",
		Message:   msg,
		Component: "wakeword",
		Timestamp: ts,
		Metadata: map[string]any{
			"session_id": info.ID,
			"confidence": d.Confidence,
			"latency_ms": d.LatencyMs,
			"room":       info.Room,
		},
	}
}
