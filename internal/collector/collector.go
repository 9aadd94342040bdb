package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"segmentline/internal/domain"
)

const (
	DefaultTimeout = 10 * time.Second
	maxErrorBody   = 4096
)

// StatusError is returned for a non-2xx collector response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// Client posts segment payloads to the configured collector endpoint.
// It makes exactly one attempt per Send.
type Client struct {
	URL        string
	HTTPClient *http.Client
	Timeout    time.Duration
	NewID      func() string
}

// New returns a client for url. A zero timeout selects DefaultTimeout.
func New(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		URL:        url,
		HTTPClient: &http.Client{Timeout: timeout},
		Timeout:    timeout,
	}
}

// Send delivers one payload and returns the delivery id it was tagged with.
func (c *Client) Send(ctx context.Context, payload domain.Payload) (string, error) {
	if strings.TrimSpace(c.URL) == "" {
		return "", fmt.Errorf("collector url not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	deliveryID := c.newID()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(data))
	if err != nil {
		return deliveryID, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "segmentline")
	req.Header.Set("X-Segment-Delivery", deliveryID)
	res, err := c.client().Do(req)
	if err != nil {
		return deliveryID, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return deliveryID, &StatusError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxErrorBody))
	return deliveryID, nil
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (c *Client) newID() string {
	if c.NewID != nil {
		return c.NewID()
	}
	return uuid.NewString()
}
