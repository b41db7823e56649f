package autoread

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HTTPAcknowledger marks notifications read through the gateway REST API.
type HTTPAcknowledger struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewHTTPAcknowledger builds an acknowledger against baseURL.
func NewHTTPAcknowledger(baseURL, token string, timeout time.Duration) *HTTPAcknowledger {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAcknowledger{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// MarkRead acknowledges a single notification.
func (a *HTTPAcknowledger) MarkRead(ctx context.Context, id uuid.UUID) error {
	url := fmt.Sprintf("%s/api/v1/notifications/%s/read", a.baseURL, id)
	return a.post(ctx, url, nil)
}

// MarkReadBatch acknowledges several notifications in one request.
func (a *HTTPAcknowledger) MarkReadBatch(ctx context.Context, ids []uuid.UUID) error {
	body, err := json.Marshal(map[string][]uuid.UUID{"ids": ids})
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}
	return a.post(ctx, a.baseURL+"/api/v1/notifications/read-batch", body)
}

func (a *HTTPAcknowledger) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("acknowledge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("acknowledge rejected: status %d", resp.StatusCode)
	}
	return nil
}
