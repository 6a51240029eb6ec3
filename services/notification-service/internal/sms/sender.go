package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type Message struct {
	To   string
	Body string
	// Reference is forwarded as Idempotency-Key so the gateway can drop resends.
	Reference string
}

type Sender interface {
	Send(ctx context.Context, m Message) error
	ProviderID() string
}

// New picks the sender for SMS_PROVIDER.
func New(provider, webhookURL, token string) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "noop":
		return NoopSender{}, nil
	case "webhook":
		if strings.TrimSpace(webhookURL) == "" {
			return nil, errors.New("sms webhook provider requires SMS_WEBHOOK_URL")
		}
		return NewWebhookSender(webhookURL, token), nil
	default:
		return nil, fmt.Errorf("unknown sms provider %q", provider)
	}
}

// WebhookSender posts {to, body} as JSON to an SMS gateway.
type WebhookSender struct {
	url   string
	token string
	http  *http.Client
}

func NewWebhookSender(url string, token string) *WebhookSender {
	return &WebhookSender{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *WebhookSender) ProviderID() string { return "sms-webhook" }

func (s *WebhookSender) Send(ctx context.Context, m Message) error {
	raw, err := json.Marshal(map[string]string{"to": m.To, "body": m.Body})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	if m.Reference != "" {
		req.Header.Set("Idempotency-Key", m.Reference)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms webhook returned %d", resp.StatusCode)
	}
	return nil
}

type NoopSender struct{}

func (NoopSender) ProviderID() string { return "sms-noop" }

func (NoopSender) Send(context.Context, Message) error { return nil }
