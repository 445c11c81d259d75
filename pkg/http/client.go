package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxErrorBody bounds how much of a failed response is kept in StatusError.
const maxErrorBody = 4096

// StatusError is returned by PostJSON for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// ClientOption configures Client.
type ClientOption func(*http.Client)

// Client talks JSON to upstream HTTP services.
type Client struct {
	hc *http.Client
}

// NewClient creates a JSON client with a 30s default timeout.
func NewClient(opts ...ClientOption) *Client {
	hc := &http.Client{Timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(hc)
	}
	return &Client{hc: hc}
}

// PostJSON encodes body as JSON, posts it to url and decodes a 2xx response
// into dest. A nil dest discards the response body.
func (c *Client) PostJSON(ctx context.Context, url string, body, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: string(b)}
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// WithTimeout sets the per-request timeout. Non-positive values are ignored.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(hc *http.Client) {
		if timeout > 0 {
			hc.Timeout = timeout
		}
	}
}
