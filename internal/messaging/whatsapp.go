// Package messaging relays outbound WhatsApp messages through an n8n webhook.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lewisedginton/organizer/internal/tools"
	"github.com/lewisedginton/organizer/pkg/logger"
)

// Source identifies the assistant to the workflow on the other end.
const Source = "JARVIS_VOYAGER"

var (
	// ErrNotConfigured is returned when no webhook URL is set.
	ErrNotConfigured = fmt.Errorf("whatsapp relay: %w", tools.ErrServiceNotConfigured)
	// ErrWebhookRejected is returned for non-2xx webhook responses.
	ErrWebhookRejected = fmt.Errorf("whatsapp relay: %w", tools.ErrDeliveryRejected)
)

// Config holds the relay settings.
type Config struct {
	WebhookURL string
	Timeout    time.Duration
	Client     *http.Client
	Logger     logger.Logger
}

// payload is the body the n8n workflow expects.
type payload struct {
	ContactName string `json:"contactName"`
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
	Source      string `json:"source"`
}

// WhatsAppRelay implements tools.Messenger.
type WhatsAppRelay struct {
	url    string
	client *http.Client
	log    logger.Logger
}

var _ tools.Messenger = (*WhatsAppRelay)(nil)

// NewWhatsAppRelay creates a relay. An empty WebhookURL yields a relay that
// reports ErrNotConfigured on every send.
func NewWhatsAppRelay(cfg Config) *WhatsAppRelay {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &WhatsAppRelay{url: cfg.WebhookURL, client: client, log: cfg.Logger}
}

// SendWhatsApp posts the message to the webhook.
func (r *WhatsAppRelay) SendWhatsApp(ctx context.Context, m tools.WhatsApp) error {
	if r.url == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(payload{
		ContactName: m.ContactName,
		PhoneNumber: m.PhoneNumber,
		Message:     m.Message,
		Source:      Source,
	})
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if r.log != nil {
			r.log.Warn("WhatsApp webhook rejected message",
				logger.HTTPStatusField(resp.StatusCode),
				logger.StringField("contact", m.ContactName))
		}
		return fmt.Errorf("%w: status %d", ErrWebhookRejected, resp.StatusCode)
	}
	return nil
}
