// Package webhooks delivers change events to HTTP endpoints as signed JSON
// or Slack messages. Each configured endpoint is one notify.Observer.
package webhooks

import (
	"strings"
	"time"

	"psurops/internal/config"
	"psurops/internal/notify"
)

// Format represents the payload format
type Format string

const (
	FormatJSON  Format = "json"
	FormatSlack Format = "slack"
)

// Header names sent with every delivery.
const (
	HeaderEventID    = "X-PSUROPS-Event-ID"
	HeaderEventKind  = "X-PSUROPS-Event-Kind"
	HeaderDeliveryID = "X-PSUROPS-Delivery-ID"
	HeaderSignature  = "X-PSUROPS-Signature-256"
)

// Webhook represents a configured webhook endpoint
type Webhook struct {
	ID         string
	URL        string
	Secret     string
	Format     Format
	Events     []notify.EventKind
	Headers    map[string]string
	Timeout    time.Duration
	MaxRetries int
}

// FromConfig converts configuration into a Webhook. A URL containing
// hooks.slack.com selects the Slack format.
func FromConfig(c config.WebhookConfig) *Webhook {
	w := &Webhook{
		ID:         c.ID,
		URL:        c.URL,
		Secret:     c.Secret,
		Format:     FormatJSON,
		Headers:    c.Headers,
		Timeout:    time.Duration(c.TimeoutMs) * time.Millisecond,
		MaxRetries: c.MaxRetries,
	}
	if strings.Contains(c.URL, "hooks.slack.com") {
		w.Format = FormatSlack
	}
	for _, e := range c.Events {
		w.Events = append(w.Events, notify.EventKind(strings.TrimSpace(e)))
	}
	if w.ID == "" {
		w.ID = c.URL
	}
	if w.Timeout <= 0 {
		w.Timeout = 10 * time.Second
	}
	return w
}

// Wants reports whether the webhook subscribes to kind. An empty event list
// means every kind.
func (w *Webhook) Wants(kind notify.EventKind) bool {
	if len(w.Events) == 0 {
		return true
	}
	for _, k := range w.Events {
		if k == kind || k == "*" {
			return true
		}
	}
	return false
}
