// Package lodgify provides a client for the Lodgify reservations API.
package lodgify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/heavenly/booksync/ratelimit"
)

const defaultBaseURL = "https://api.lodgify.com"

// Client wraps Lodgify API interactions.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

// Config holds Lodgify configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional override, used by tests
	Policy  *ratelimit.Policy
}

// NewClient creates a new Lodgify client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("missing required Lodgify API key")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    ratelimit.New(cfg.Policy),
	}, nil
}

// get performs an authenticated GET with pacing and retry. Responses with
// 429/5xx status are classified transient; other non-200 statuses are
// permanent failures.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	fullURL := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimPrefix(endpoint, "/"))
	if len(params) > 0 {
		fullURL = fmt.Sprintf("%s?%s", fullURL, params.Encode())
	}

	var body []byte
	err := c.limiter.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, http.NoBody)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("X-ApiKey", c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Network-level failures are transient by classification
			return ratelimit.Transient(fmt.Errorf("request failed: %w", err))
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return ratelimit.Transient(fmt.Errorf("read response: %w", err))
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			body = data
			return nil
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp.Header.Get("Retry-After"))
			return ratelimit.TransientAfter(
				fmt.Errorf("API error %d: %s", resp.StatusCode, truncate(data, 300)), wait)
		case resp.StatusCode >= 500:
			return ratelimit.Transient(
				fmt.Errorf("API error %d: %s", resp.StatusCode, truncate(data, 300)))
		default:
			return fmt.Errorf("API error %d: %s", resp.StatusCode, truncate(data, 300))
		}
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// retryAfter parses a Retry-After header value in seconds.
func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}

func truncate(data []byte, limit int) string {
	if len(data) > limit {
		return string(data[:limit])
	}
	return string(data)
}

// ListBookings retrieves one page of booking documents.
//
// Lodgify has returned several envelope shapes over API revisions: a raw
// array, or an object with the list under "items", "bookings", "results"
// or "data". All are tolerated.
func (c *Client) ListBookings(ctx context.Context, limit, skip int) ([]map[string]interface{}, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("size", strconv.Itoa(limit))
	}
	if skip > 0 {
		params.Set("offset", strconv.Itoa(skip))
	}

	body, err := c.get(ctx, "v2/reservations/bookings", params)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	items, err := decodeList(body)
	if err != nil {
		return nil, fmt.Errorf("decode bookings response: %w", err)
	}
	return items, nil
}

// decodeList decodes a booking-list payload regardless of envelope shape.
func decodeList(body []byte) ([]map[string]interface{}, error) {
	var direct []map[string]interface{}
	if err := json.Unmarshal(body, &direct); err == nil {
		return direct, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	for _, key := range []string{"items", "bookings", "results", "data"} {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		var items []map[string]interface{}
		if err := json.Unmarshal(raw, &items); err == nil {
			return items, nil
		}
	}

	// An envelope without a recognized list key is an empty page, not an
	// error; Lodgify omits the list entirely on the last page.
	return nil, nil
}

// ListProperties retrieves all property records.
func (c *Client) ListProperties(ctx context.Context) ([]map[string]interface{}, error) {
	body, err := c.get(ctx, "v1/properties", nil)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}

	var props []map[string]interface{}
	if err := json.Unmarshal(body, &props); err != nil {
		return nil, fmt.Errorf("decode properties response: %w", err)
	}
	return props, nil
}

// PropertyIndex returns a property-id → name map used by the extractor's
// last-resort unit naming.
func (c *Client) PropertyIndex(ctx context.Context) (map[string]string, error) {
	props, err := c.ListProperties(ctx)
	if err != nil {
		return nil, err
	}

	index := make(map[string]string, len(props))
	for _, p := range props {
		name, _ := p["name"].(string)
		switch id := p["id"].(type) {
		case float64:
			index[strconv.FormatInt(int64(id), 10)] = strings.TrimSpace(name)
		case string:
			if id != "" {
				index[id] = strings.TrimSpace(name)
			}
		}
	}
	return index, nil
}

// Ping checks connectivity with a minimal read. No side effects.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "v1/properties", nil)
	return err
}
