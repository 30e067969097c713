package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"psurops/internal/notify"
	"psurops/internal/slogutil"
	"psurops/internal/version"
)

// Observer posts events to one webhook. Transient failures (transport errors
// and 5xx) are retried by the HTTP client; once retries are exhausted the
// error is returned and the notifier drops the observer.
type Observer struct {
	webhook *Webhook
	client  *resty.Client
	logger  *slog.Logger
}

// NewObserver builds an observer for w.
func NewObserver(w *Webhook, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	client := resty.New().
		SetTimeout(w.Timeout).
		SetRetryCount(w.MaxRetries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "psurops-webhook/"+version.Version)

	return &Observer{
		webhook: w,
		client:  client,
		logger:  logger.With("component", "webhooks", "webhook", w.ID),
	}
}

// Deliver implements notify.Observer. Events the webhook did not subscribe
// to are skipped.
func (o *Observer) Deliver(ctx context.Context, e notify.Event) error {
	if !o.webhook.Wants(e.Kind) {
		return nil
	}

	payload, err := formatPayload(o.webhook.Format, e)
	if err != nil {
		return fmt.Errorf("failed to format payload: %w", err)
	}

	deliveryID := uuid.New().String()
	req := o.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetHeader(HeaderEventID, e.ID).
		SetHeader(HeaderEventKind, string(e.Kind)).
		SetHeader(HeaderDeliveryID, deliveryID).
		SetHeaders(o.webhook.Headers)
	if o.webhook.Secret != "" {
		req.SetHeader(HeaderSignature, "sha256="+Sign(payload, o.webhook.Secret))
	}

	resp, err := req.Post(o.webhook.URL)
	if err != nil {
		o.logger.Warn("Webhook delivery failed", "delivery", deliveryID, "event", e.ID, "error", err)
		return err
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		o.logger.Warn("Webhook rejected delivery", "delivery", deliveryID, "event", e.ID, "status", resp.StatusCode())
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode(), o.webhook.URL)
	}
	o.logger.Debug("Webhook delivered", "delivery", deliveryID, "event", e.ID, "status", resp.StatusCode(), "attempts", resp.Request.Attempt)
	return nil
}

// Sign returns the hex HMAC-SHA256 of payload keyed by secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a "sha256=<hex>" signature header.
func Verify(payload []byte, secret, header string) bool {
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	want, err := hex.DecodeString(header[len(prefix):])
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(want, mac.Sum(nil))
}

func formatPayload(f Format, e notify.Event) ([]byte, error) {
	if f == FormatSlack {
		return formatSlack(e)
	}
	return json.Marshal(map[string]interface{}{
		"event_id":   e.ID,
		"event_kind": e.Kind,
		"seq":        e.Seq,
		"timestamp":  e.Timestamp.Format(time.RFC3339),
		"payload":    e.Payload,
	})
}

// formatSlack renders a one-line incoming-webhook message.
func formatSlack(e notify.Event) ([]byte, error) {
	subject := ""
	if id, ok := e.Payload["identifier"].(string); ok && id != "" {
		subject = " " + id
	}
	text := fmt.Sprintf("PSUR schedule %s%s", e.Kind, subject)
	switch e.Kind {
	case notify.EventBulkUpdate:
		text = fmt.Sprintf("PSUR schedule bulk update: %v records changed", e.Payload["updated_count"])
	case notify.EventDelete:
		text = fmt.Sprintf("PSUR schedule: %s removed (%v rows)", strings.TrimSpace(subject), e.Payload["deleted_rows"])
	case notify.EventReload:
		text = fmt.Sprintf("PSUR schedule reloaded from source: %v records", e.Payload["count"])
	}
	return json.Marshal(map[string]interface{}{
		"text": text,
		"attachments": []map[string]interface{}{{
			"color":  slackColor(e.Kind),
			"footer": "psurops",
			"ts":     e.Timestamp.Unix(),
		}},
	})
}

func slackColor(kind notify.EventKind) string {
	switch kind {
	case notify.EventDelete:
		return "danger"
	case notify.EventReload, notify.EventBulkUpdate:
		return "warning"
	default:
		return "good"
	}
}
