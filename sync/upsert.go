package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Syncer drives bookings from the source feed onto one Monday board.
type Syncer struct {
	Board   BoardAPI
	BoardID int64
	Schema  *SchemaCache

	// now is the clock used for lifecycle classification and the Last
	// Sync stamp; tests pin it.
	now func() time.Time
}

// NewSyncer creates a Syncer with a fresh schema cache for the board.
func NewSyncer(board BoardAPI, boardID int64) *Syncer {
	return &Syncer{
		Board:   board,
		BoardID: boardID,
		Schema:  NewSchemaCache(board, boardID),
		now:     time.Now,
	}
}

// UpsertOutcome reports what one upsert did. Err is a message rather than
// an error value so outcomes serialize cleanly into responses and audit
// records.
type UpsertOutcome struct {
	OK       bool   `json:"ok"`
	SourceID string `json:"source_id"`
	ItemID   string `json:"item_id,omitempty"`
	Created  bool   `json:"created,omitempty"`
	Updated  bool   `json:"updated,omitempty"`
	Restored bool   `json:"restored,omitempty"`
	Err      string `json:"error,omitempty"`
}

func failedOutcome(sourceID string, err error) UpsertOutcome {
	return UpsertOutcome{SourceID: sourceID, Err: err.Error()}
}

// SyncBooking runs the full pipeline for one raw payload: extract,
// classify, guard the schema, map, upsert.
func (s *Syncer) SyncBooking(ctx context.Context, doc Document, props map[string]string) UpsertOutcome {
	rec := Extract(doc, props)
	if rec.ExternalID == "" {
		return failedOutcome("", fmt.Errorf("booking has no id"))
	}

	source, fallbackText := ClassifySource(rec)
	status := ClassifyStatus(rec.StatusRaw)
	lifecycle := ClassifyLifecycle(rec, status, s.now())

	if label := source.Label(); label != "" {
		if err := s.EnsureDropdownLabel(ctx, "source", label); err != nil {
			// Mapper falls back to the free-text column
			slog.Warn("Could not register source label", "label", label, "error", err)
			fallbackText = rec.SourceText
		}
	}

	schema, err := s.Schema.Get(ctx)
	if err != nil {
		return failedOutcome(rec.ExternalID, err)
	}

	values := mapColumnValues(rec, source, fallbackText, status, lifecycle, schema, s.now())
	return s.Upsert(ctx, itemName(rec), rec.ExternalID, values)
}

// Upsert creates or updates the board item keyed by externalID.
//
// Lookup goes through the Booking ID column's text. A hit on an active
// item updates in place; a hit on an archived item is restored first, with
// creation as the fallback when restore fails (never drop a booking). A
// missing lookup column is schema drift: treated as "not found", logged,
// and the item is created. Repeated calls for one externalID converge to a
// single active item.
func (s *Syncer) Upsert(ctx context.Context, name, externalID string, values map[string]interface{}) UpsertOutcome {
	schema, err := s.Schema.Get(ctx)
	if err != nil {
		return failedOutcome(externalID, err)
	}

	lookupCol, ok := schema.Column("booking_id")
	if !ok {
		slog.Warn("Booking ID column missing from board, creating without lookup", "booking", externalID)
		return s.create(ctx, name, externalID, values)
	}

	item, err := s.Board.FindItemByColumnValue(ctx, s.BoardID, lookupCol.ID, externalID)
	if err != nil {
		return failedOutcome(externalID, fmt.Errorf("lookup: %w", err))
	}

	if item == nil {
		return s.create(ctx, name, externalID, values)
	}

	outcome := UpsertOutcome{SourceID: externalID, ItemID: item.ID}

	if item.State != "active" {
		if err := s.Board.RestoreItem(ctx, item.ID); err != nil {
			slog.Warn("Restore failed, creating a fresh item",
				"booking", externalID, "item", item.ID, "error", err)
			return s.create(ctx, name, externalID, values)
		}
		outcome.Restored = true
	}

	if err := s.Board.ChangeColumnValues(ctx, s.BoardID, item.ID, values); err != nil {
		return failedOutcome(externalID, fmt.Errorf("update item %s: %w", item.ID, err))
	}
	outcome.OK = true
	outcome.Updated = true
	return outcome
}

// DebugSample runs the extraction and mapping pipeline for one payload
// without writing anything, for the sync-all debug echo.
func (s *Syncer) DebugSample(ctx context.Context, doc Document, props map[string]string) map[string]interface{} {
	rec := Extract(doc, props)
	source, fallbackText := ClassifySource(rec)
	status := ClassifyStatus(rec.StatusRaw)
	lifecycle := ClassifyLifecycle(rec, status, s.now())

	sample := map[string]interface{}{
		"raw":       doc,
		"record":    rec,
		"source":    source.Label(),
		"status":    status,
		"lifecycle": lifecycle,
		"item_name": itemName(rec),
	}
	if schema, err := s.Schema.Get(ctx); err == nil {
		sample["column_values"] = mapColumnValues(rec, source, fallbackText, status, lifecycle, schema, s.now())
	}
	return sample
}

func (s *Syncer) create(ctx context.Context, name, externalID string, values map[string]interface{}) UpsertOutcome {
	itemID, err := s.Board.CreateItem(ctx, s.BoardID, name, values)
	if err != nil {
		return failedOutcome(externalID, fmt.Errorf("create item: %w", err))
	}
	return UpsertOutcome{OK: true, SourceID: externalID, ItemID: itemID, Created: true}
}
