package call

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPRecorder persists call logs through the gateway REST API. The endpoint
// is idempotent per session id, so retries after ambiguous failures are safe.
type HTTPRecorder struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewHTTPRecorder builds a recorder against baseURL (e.g. "http://host:8080").
func NewHTTPRecorder(baseURL, token string, timeout time.Duration) *HTTPRecorder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPRecorder{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// RecordCall posts one terminal session to the call-log store.
func (r *HTTPRecorder) RecordCall(ctx context.Context, entry Log) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal call log: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/v1/calls", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to record call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("call log rejected: status %d", resp.StatusCode)
	}
	return nil
}
