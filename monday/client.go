// Package monday provides a client for the Monday.com GraphQL API.
package monday

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/heavenly/booksync/ratelimit"
)

const defaultAPIURL = "https://api.monday.com/v2"

// Column describes one board column.
type Column struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	SettingsStr string `json:"settings_str"`
}

// Item is a board item. State is one of "active", "archived", "deleted".
type Item struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// Client wraps Monday.com GraphQL API interactions.
type Client struct {
	token      string
	apiURL     string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

// Config holds Monday.com configuration.
type Config struct {
	Token  string
	APIURL string // optional override, used by tests
	Policy *ratelimit.Policy
}

// NewClient creates a new Monday.com client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.Token == "" {
		return nil, fmt.Errorf("missing required Monday API token")
	}

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	return &Client{
		token:      cfg.Token,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    ratelimit.New(cfg.Policy),
	}, nil
}

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

// execute posts one GraphQL document with pacing and retry, decoding the
// "data" object into out. GraphQL-level errors come back with HTTP 200, so
// both the status and the errors array are checked.
func (c *Client) execute(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	payload, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("encode query: %w", err)
	}

	return c.limiter.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return ratelimit.Transient(fmt.Errorf("request failed: %w", err))
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return ratelimit.Transient(fmt.Errorf("read response: %w", err))
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp.Header.Get("Retry-After"))
			return ratelimit.TransientAfter(fmt.Errorf("API error %d", resp.StatusCode), wait)
		case resp.StatusCode >= 500:
			return ratelimit.Transient(fmt.Errorf("API error %d", resp.StatusCode))
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("API error %d: %s", resp.StatusCode, truncate(body, 300))
		}

		var gql graphqlResponse
		if err := json.Unmarshal(body, &gql); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if len(gql.Errors) > 0 {
			msg := gql.Errors[0].Message
			// Monday reports complexity throttling as a GraphQL error, not
			// an HTTP status.
			if strings.Contains(strings.ToLower(msg), "complexity") ||
				strings.Contains(strings.ToLower(msg), "rate limit") {
				return ratelimit.Transient(fmt.Errorf("graphql error: %s", msg))
			}
			return fmt.Errorf("graphql error: %s", msg)
		}

		if out != nil {
			if err := json.Unmarshal(gql.Data, out); err != nil {
				return fmt.Errorf("decode data: %w", err)
			}
		}
		return nil
	})
}

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

// Columns retrieves the column schema of a board.
func (c *Client) Columns(ctx context.Context, boardID int64) ([]Column, error) {
	query := `query ($board: [ID!]) {
		boards(ids: $board) {
			columns { id title type settings_str }
		}
	}`

	var data struct {
		Boards []struct {
			Columns []Column `json:"columns"`
		} `json:"boards"`
	}
	err := c.execute(ctx, query, map[string]interface{}{
		"board": []string{strconv.FormatInt(boardID, 10)},
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("fetch columns: %w", err)
	}
	if len(data.Boards) == 0 {
		return nil, fmt.Errorf("board %d not found", boardID)
	}
	return data.Boards[0].Columns, nil
}

// FindItemByColumnValue looks up the first item whose column holds exactly
// value. Returns nil when no item matches.
func (c *Client) FindItemByColumnValue(ctx context.Context, boardID int64, columnID, value string) (*Item, error) {
	query := `query ($board: ID!, $column: String!, $value: [String]!) {
		items_page_by_column_values(board_id: $board, limit: 1, columns: [{column_id: $column, column_values: $value}]) {
			items { id name state }
		}
	}`

	var data struct {
		Page struct {
			Items []Item `json:"items"`
		} `json:"items_page_by_column_values"`
	}
	err := c.execute(ctx, query, map[string]interface{}{
		"board":  strconv.FormatInt(boardID, 10),
		"column": columnID,
		"value":  []string{value},
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("find item by %s=%q: %w", columnID, value, err)
	}
	if len(data.Page.Items) == 0 {
		return nil, nil
	}
	item := data.Page.Items[0]
	return &item, nil
}

// CreateItem creates a board item with the given name and column values,
// returning the new item's id.
func (c *Client) CreateItem(ctx context.Context, boardID int64, name string, values map[string]interface{}) (string, error) {
	encoded, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("encode column values: %w", err)
	}

	query := `mutation ($board: ID!, $name: String!, $values: JSON!) {
		create_item(board_id: $board, item_name: $name, column_values: $values, create_labels_if_missing: true) {
			id
		}
	}`

	var data struct {
		CreateItem struct {
			ID string `json:"id"`
		} `json:"create_item"`
	}
	err = c.execute(ctx, query, map[string]interface{}{
		"board":  strconv.FormatInt(boardID, 10),
		"name":   name,
		"values": string(encoded),
	}, &data)
	if err != nil {
		return "", fmt.Errorf("create item %q: %w", name, err)
	}
	return data.CreateItem.ID, nil
}

// ChangeColumnValues overwrites the given columns of an existing item.
func (c *Client) ChangeColumnValues(ctx context.Context, boardID int64, itemID string, values map[string]interface{}) error {
	encoded, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("encode column values: %w", err)
	}

	query := `mutation ($board: ID!, $item: ID!, $values: JSON!) {
		change_multiple_column_values(board_id: $board, item_id: $item, column_values: $values, create_labels_if_missing: true) {
			id
		}
	}`

	err = c.execute(ctx, query, map[string]interface{}{
		"board":  strconv.FormatInt(boardID, 10),
		"item":   itemID,
		"values": string(encoded),
	}, nil)
	if err != nil {
		return fmt.Errorf("update item %s: %w", itemID, err)
	}
	return nil
}

// RestoreItem un-archives an item so it can be updated again.
func (c *Client) RestoreItem(ctx context.Context, itemID string) error {
	query := `mutation ($item: ID!) {
		unarchive_item(item_id: $item) { id }
	}`

	err := c.execute(ctx, query, map[string]interface{}{"item": itemID}, nil)
	if err != nil {
		return fmt.Errorf("restore item %s: %w", itemID, err)
	}
	return nil
}

// ChangeColumnSettings replaces a column's settings_str, used to register
// new dropdown labels.
func (c *Client) ChangeColumnSettings(ctx context.Context, boardID int64, columnID, settingsStr string) error {
	query := `mutation ($board: ID!, $column: String!, $settings: JSON!) {
		change_column_metadata(board_id: $board, column_id: $column, column_property: "settings_str", value: $settings) {
			id
		}
	}`

	err := c.execute(ctx, query, map[string]interface{}{
		"board":    strconv.FormatInt(boardID, 10),
		"column":   columnID,
		"settings": settingsStr,
	}, nil)
	if err != nil {
		return fmt.Errorf("update settings of column %s: %w", columnID, err)
	}
	return nil
}

// Ping checks API connectivity and token validity with a minimal query.
func (c *Client) Ping(ctx context.Context) error {
	var data struct {
		Me struct {
			ID string `json:"id"`
		} `json:"me"`
	}
	if err := c.execute(ctx, `query { me { id } }`, nil, &data); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
