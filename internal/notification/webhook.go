package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tphakala/voicetrigger/internal/errors"
)

const (
	// defaultWebhookTimeout is the default timeout for webhook HTTP requests
	defaultWebhookTimeout = 30 * time.Second

	// maxErrorBodySize limits how much of an error response is kept
	maxErrorBodySize = 1024
)

// WebhookPayload is the JSON body posted to webhooks.
type WebhookPayload struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitzero"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitzero"`
}

// WebhookProvider posts notifications as JSON to an HTTP endpoint.
type WebhookProvider struct {
	name    string
	enabled bool
	url     string
	types   map[string]bool
	client  *http.Client
}

// NewWebhookProvider returns a webhook provider. A nil client uses a client
// with the default webhook timeout.
func NewWebhookProvider(name string, enabled bool, endpoint string, supportedTypes []string, client *http.Client) *WebhookProvider {
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	wp := &WebhookProvider{
		name:    strings.TrimSpace(name),
		enabled: enabled,
		url:     endpoint,
		types:   typeSet(supportedTypes),
		client:  client,
	}
	if wp.name == "" {
		wp.name = "webhook"
	}
	return wp
}

func (w *WebhookProvider) GetName() string          { return w.name }
func (w *WebhookProvider) IsEnabled() bool          { return w.enabled }
func (w *WebhookProvider) SupportsType(t Type) bool { return w.types[string(t)] }

// ValidateConfig checks the endpoint URL.
func (w *WebhookProvider) ValidateConfig() error {
	if !w.enabled {
		return nil
	}
	u, err := url.Parse(w.url)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Newf("webhook URL must be an http or https URL").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("provider", w.name).
			Build()
	}
	return nil
}

// Send posts n to the endpoint. Any non-2xx response is an error.
func (w *WebhookProvider) Send(ctx context.Context, n *Notification) error {
	body, err := json.Marshal(WebhookPayload{
		ID:        n.ID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Component: n.Component,
		Timestamp: n.Timestamp.UTC().Format(time.RFC3339),
		Metadata:  n.Metadata,
	})
	if err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryNotification).
			Context("operation", "marshal_webhook_payload").
			Build()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryNotification).
			Context("operation", "build_webhook_request").
			Build()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "voicetrigger-webhook/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return errors.New(err).
			Component("notification").
			Category(errors.CategoryNetwork).
			Context("provider", w.name).
			Build()
	}
	defer resp.Body.Close() //nolint:errcheck // response body

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return errors.Newf("webhook returned status %d", resp.StatusCode).
			Component("notification").
			Category(errors.CategoryHTTP).
			Context("provider", w.name).
			Context("status", resp.StatusCode).
			Context("body", string(snippet)).
			Build()
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
