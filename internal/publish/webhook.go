package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hyperjump/simgroup/internal/models"
)

// WebhookSink POSTs each envelope to a URL.
type WebhookSink struct {
	URL    string
	client *http.Client
}

// NewWebhookSink returns a sink posting to url.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		URL:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Send posts one envelope. Any non-2xx response is an error.
func (s *WebhookSink) Send(ctx context.Context, messageType string, records []models.GroupAssignment) error {
	payload, err := Encode(messageType, records)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Message-Type", messageType)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}

// Close is a no-op.
func (s *WebhookSink) Close() error { return nil }
