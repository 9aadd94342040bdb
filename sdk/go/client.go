package segmentlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal Segmentline compose API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  30 * time.Second,
	}
}

// CatalogEntry is one selectable schema.
type CatalogEntry struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Payload is what the server sends to the collector.
type Payload struct {
	SegmentName string              `json:"segment_name"`
	Schema      []map[string]string `json:"schema"`
}

// Result is the outcome of the last submission.
type Result struct {
	Outcome string `json:"outcome"`
	Message string `json:"message"`
}

// View is the compose state returned after every intent.
type View struct {
	Open         bool             `json:"open"`
	Name         string           `json:"name"`
	Slots        []string         `json:"slots"`
	Availability [][]CatalogEntry `json:"availability"`
	Preview      Payload          `json:"preview"`
	Status       string           `json:"status"`
	Busy         bool             `json:"busy"`
	Result       *Result          `json:"result,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Catalog lists the selectable schemas in catalog order.
func (c *Client) Catalog(ctx context.Context) ([]CatalogEntry, error) {
	var resp struct {
		Items []CatalogEntry `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "catalog", nil, &resp)
	return resp.Items, err
}

// View fetches the current compose state.
func (c *Client) View(ctx context.Context) (View, error) {
	return c.view(ctx, http.MethodGet, "compose", nil)
}

// Open starts a fresh draft.
func (c *Client) Open(ctx context.Context) (View, error) {
	return c.view(ctx, http.MethodPost, "compose/open", nil)
}

// Close discards the draft.
func (c *Client) Close(ctx context.Context) (View, error) {
	return c.view(ctx, http.MethodPost, "compose/close", nil)
}

// Dismiss clears the last submission result.
func (c *Client) Dismiss(ctx context.Context) (View, error) {
	return c.view(ctx, http.MethodPost, "compose/dismiss", nil)
}

// SetName renames the segment.
func (c *Client) SetName(ctx context.Context, name string) (View, error) {
	return c.view(ctx, http.MethodPut, "compose/name", map[string]any{"name": name})
}

// SetSlot selects value in slot index; an empty value clears it.
func (c *Client) SetSlot(ctx context.Context, index int, value string) (View, error) {
	return c.view(ctx, http.MethodPut, fmt.Sprintf("compose/slots/%d", index), map[string]any{"value": value})
}

// AddSlot appends an empty slot.
func (c *Client) AddSlot(ctx context.Context) (View, error) {
	return c.view(ctx, http.MethodPost, "compose/slots", nil)
}

// RemoveSlot deletes slot index.
func (c *Client) RemoveSlot(ctx context.Context, index int) (View, error) {
	return c.view(ctx, http.MethodDelete, fmt.Sprintf("compose/slots/%d", index), nil)
}

// Submit sends the draft to the collector.
func (c *Client) Submit(ctx context.Context) (View, error) {
	return c.view(ctx, http.MethodPost, "compose/submit", nil)
}

func (c *Client) view(ctx context.Context, method, endpoint string, body any) (View, error) {
	var v View
	err := c.do(ctx, method, endpoint, body, &v)
	return v, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
