package sync

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/heavenly/booksync/monday"
)

// BoardAPI is the target-board surface the sync engine needs. The monday
// client satisfies it; tests substitute a fake.
type BoardAPI interface {
	Columns(ctx context.Context, boardID int64) ([]monday.Column, error)
	FindItemByColumnValue(ctx context.Context, boardID int64, columnID, value string) (*monday.Item, error)
	CreateItem(ctx context.Context, boardID int64, name string, values map[string]interface{}) (string, error)
	ChangeColumnValues(ctx context.Context, boardID int64, itemID string, values map[string]interface{}) error
	RestoreItem(ctx context.Context, itemID string) error
	ChangeColumnSettings(ctx context.Context, boardID int64, columnID, settingsStr string) error
}

// logicalColumnTitles maps logical field keys to the column titles the
// mapper expects on the board. Columns are matched by title, so renaming a
// board column detaches the field (schema drift, handled by omission).
var logicalColumnTitles = map[string]string{
	"booking_id":     "Booking ID",
	"property":       "Property",
	"property_id":    "Property ID",
	"guest":          "Guest",
	"email":          "Email",
	"phone":          "Phone",
	"check_in":       "Check-in",
	"check_out":      "Check-out",
	"nights":         "Nights",
	"source":         "Source",
	"source_text":    "Source Text",
	"status":         "Status",
	"booking_status": "Booking Status",
	"currency":       "Currency",
	"total_amount":   "Total Amount",
	"amount_paid":    "Amount Paid",
	"amount_due":     "Amount Due",
	"language":       "Language",
	"adults":         "Adults",
	"children":       "Children",
	"infants":        "Infants",
	"pets":           "Pets",
	"people":         "People",
	"key_code":       "Key Code",
	"thread_uid":     "Thread UID",
	"created_at":     "Created At",
	"updated_at":     "Updated At",
	"canceled_at":    "Canceled At",
	"last_sync":      "Last Sync",
	"raw":            "Raw JSON",
}

// ColumnSchema is the board's column set indexed by logical key. Missing
// logical keys mean the board lacks that column; mapping degrades by
// omission.
type ColumnSchema struct {
	columns map[string]monday.Column
}

// buildSchema indexes board columns by logical key, matching titles
// case-insensitively on trimmed text.
func buildSchema(columns []monday.Column) *ColumnSchema {
	byTitle := make(map[string]monday.Column, len(columns))
	for _, col := range columns {
		byTitle[strings.ToLower(strings.TrimSpace(col.Title))] = col
	}

	indexed := make(map[string]monday.Column, len(logicalColumnTitles))
	for key, title := range logicalColumnTitles {
		if col, ok := byTitle[strings.ToLower(title)]; ok {
			indexed[key] = col
		}
	}
	return &ColumnSchema{columns: indexed}
}

// Column returns the board column bound to a logical key.
func (s *ColumnSchema) Column(logicalKey string) (monday.Column, bool) {
	col, ok := s.columns[logicalKey]
	return col, ok
}

// Len reports how many logical keys resolved to board columns.
func (s *ColumnSchema) Len() int {
	return len(s.columns)
}

// SchemaCache is a read-through cache of one board's ColumnSchema. It is
// injected explicitly so tests get a fresh cache per case and concurrent
// batches never share hidden global state; a cache miss after Invalidate
// simply refetches.
type SchemaCache struct {
	api     BoardAPI
	boardID int64

	mu     sync.Mutex
	schema *ColumnSchema
}

// NewSchemaCache creates an empty cache for one board.
func NewSchemaCache(api BoardAPI, boardID int64) *SchemaCache {
	return &SchemaCache{api: api, boardID: boardID}
}

// Get returns the cached schema, fetching it on first use or after an
// invalidation.
func (c *SchemaCache) Get(ctx context.Context) (*ColumnSchema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.schema != nil {
		return c.schema, nil
	}

	columns, err := c.api.Columns(ctx, c.boardID)
	if err != nil {
		return nil, fmt.Errorf("fetch board schema: %w", err)
	}
	c.schema = buildSchema(columns)
	return c.schema, nil
}

// Invalidate drops the cached schema so the next Get refetches it.
func (c *SchemaCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schema = nil
}
