// Package sink forwards summary events to external systems.
package sink

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/loglens/loglens/pkg/models"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-LogLens-Signature"

// WebhookSink posts each SummaryEvent as JSON to a URL, signing the body
// when a secret is configured.
type WebhookSink struct {
	url      string
	secret   string
	client   *http.Client
	attempts int
	backoff  time.Duration
}

// WebhookOption configures a WebhookSink.
type WebhookOption func(*WebhookSink)

// WithSecret enables HMAC-SHA256 signing.
func WithSecret(secret string) WebhookOption {
	return func(s *WebhookSink) { s.secret = secret }
}

// WithRetry sets the number of attempts and the base backoff between them.
func WithRetry(attempts int, backoff time.Duration) WebhookOption {
	return func(s *WebhookSink) {
		if attempts > 0 {
			s.attempts = attempts
		}
		s.backoff = backoff
	}
}

// WithClient overrides the HTTP client.
func WithClient(c *http.Client) WebhookOption {
	return func(s *WebhookSink) { s.client = c }
}

// NewWebhookSink creates a webhook sink for url.
func NewWebhookSink(url string, opts ...WebhookOption) *WebhookSink {
	s := &WebhookSink{
		url:      url,
		client:   &http.Client{Timeout: 15 * time.Second},
		attempts: 3,
		backoff:  2 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *WebhookSink) Name() string { return "webhook" }

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Publish posts event, retrying with linear backoff on transport errors
// and non-2xx responses.
func (s *WebhookSink) Publish(ctx context.Context, event models.SummaryEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook: %w (last error: %v)", ctx.Err(), lastErr)
			case <-time.After(time.Duration(attempt) * s.backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("webhook: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "LogLens-Webhook/1.0")
		req.Header.Set("X-LogLens-Event", "summary")
		if s.secret != "" {
			req.Header.Set(SignatureHeader, Sign(s.secret, body))
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("HTTP %d from %s", resp.StatusCode, s.url)
	}
	return fmt.Errorf("webhook: failed after %d attempts: %w", s.attempts, lastErr)
}
