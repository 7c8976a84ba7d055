package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/heavenly/booksync/monday"
)

// fakeBoard is an in-memory BoardAPI with a single lookup column. Items
// are indexed by the value written to the Booking ID column.
type fakeBoard struct {
	columns []monday.Column

	items  map[string]*monday.Item // lookup value → item
	values map[string]map[string]interface{}
	nextID int

	columnsFetches  int
	settingsChanges int
	creates         int
	updates         int
	restores        int

	findErr    error
	createErr  error
	updateErr  error
	restoreErr error
	guardErr   error
}

func newFakeBoard() *fakeBoard {
	return &fakeBoard{
		columns: testBoardColumns(),
		items:   make(map[string]*monday.Item),
		values:  make(map[string]map[string]interface{}),
		nextID:  1000,
	}
}

func (f *fakeBoard) Columns(_ context.Context, _ int64) ([]monday.Column, error) {
	f.columnsFetches++
	return f.columns, nil
}

func (f *fakeBoard) FindItemByColumnValue(_ context.Context, _ int64, _, value string) (*monday.Item, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if item, ok := f.items[value]; ok {
		copied := *item
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeBoard) CreateItem(_ context.Context, _ int64, name string, values map[string]interface{}) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.creates++
	f.nextID++
	id := strconv.Itoa(f.nextID)

	lookup, _ := values["text_bid"].(string)
	f.items[lookup] = &monday.Item{ID: id, Name: name, State: "active"}
	f.values[id] = values
	return id, nil
}

func (f *fakeBoard) ChangeColumnValues(_ context.Context, _ int64, itemID string, values map[string]interface{}) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates++
	f.values[itemID] = values
	return nil
}

func (f *fakeBoard) RestoreItem(_ context.Context, itemID string) error {
	if f.restoreErr != nil {
		return f.restoreErr
	}
	f.restores++
	for _, item := range f.items {
		if item.ID == itemID {
			item.State = "active"
		}
	}
	return nil
}

func (f *fakeBoard) ChangeColumnSettings(_ context.Context, _ int64, columnID, settingsStr string) error {
	if f.guardErr != nil {
		return f.guardErr
	}
	f.settingsChanges++
	for i := range f.columns {
		if f.columns[i].ID == columnID {
			f.columns[i].SettingsStr = settingsStr
		}
	}
	return nil
}

func testSyncer(board *fakeBoard) *Syncer {
	s := NewSyncer(board, 4321)
	s.now = func() time.Time { return mapNow }
	return s
}

func TestUpsertCreatesThenUpdates(t *testing.T) {
	board := newFakeBoard()
	s := testSyncer(board)
	doc := Document{
		"id":        "B77",
		"arrival":   "2024-06-01",
		"departure": "2024-06-04",
		"guest":     map[string]interface{}{"name": "Jane Doe", "email": "jane@x.com"},
		"status":    "booked",
	}

	first := s.SyncBooking(context.Background(), doc, nil)
	if !first.OK || !first.Created || first.Updated {
		t.Fatalf("first sync outcome = %+v, want created", first)
	}

	second := s.SyncBooking(context.Background(), doc, nil)
	if !second.OK || second.Created || !second.Updated {
		t.Fatalf("second sync outcome = %+v, want updated", second)
	}
	if second.ItemID != first.ItemID {
		t.Errorf("item id changed across syncs: %s then %s", first.ItemID, second.ItemID)
	}
	if len(board.items) != 1 {
		t.Errorf("%d items on board, want exactly 1 active item per booking", len(board.items))
	}
}

func TestUpsertCancelledResync(t *testing.T) {
	board := newFakeBoard()
	s := testSyncer(board)

	doc := Document{
		"id":        "B77",
		"arrival":   "2026-05-01",
		"departure": "2026-05-04",
		"status":    "booked",
	}
	first := s.SyncBooking(context.Background(), doc, nil)
	if !first.Created {
		t.Fatalf("first outcome = %+v", first)
	}

	doc["status"] = "cancelled"
	second := s.SyncBooking(context.Background(), doc, nil)
	if !second.OK || !second.Updated || second.ItemID != first.ItemID {
		t.Fatalf("cancelled resync outcome = %+v, want update of %s", second, first.ItemID)
	}

	values := board.values[second.ItemID]
	if got := values["status_book"]; !equalLabel(got, "Cancelled") {
		t.Errorf("booking status = %#v, want Cancelled", got)
	}
	// Departure is in the past relative to the pinned clock
	if got := values["status_life"]; !equalLabel(got, "Completed") {
		t.Errorf("lifecycle = %#v, want Completed", got)
	}
}

func equalLabel(v interface{}, label string) bool {
	m, ok := v.(map[string]interface{})
	return ok && m["label"] == label
}

func TestUpsertRestoresArchivedItem(t *testing.T) {
	board := newFakeBoard()
	board.items["B77"] = &monday.Item{ID: "555", Name: "old", State: "archived"}
	s := testSyncer(board)

	outcome := s.SyncBooking(context.Background(), Document{"id": "B77"}, nil)
	if !outcome.OK || !outcome.Restored || !outcome.Updated {
		t.Fatalf("outcome = %+v, want restore then update", outcome)
	}
	if outcome.ItemID != "555" {
		t.Errorf("item id = %s, want the restored 555", outcome.ItemID)
	}
	if board.creates != 0 {
		t.Errorf("%d creates, want 0", board.creates)
	}
	if board.items["B77"].State != "active" {
		t.Error("item not restored to active")
	}
}

func TestUpsertCreatesWhenRestoreFails(t *testing.T) {
	board := newFakeBoard()
	board.items["B77"] = &monday.Item{ID: "555", Name: "old", State: "deleted"}
	board.restoreErr = errors.New("cannot restore deleted item")
	s := testSyncer(board)

	outcome := s.SyncBooking(context.Background(), Document{"id": "B77"}, nil)
	if !outcome.OK || !outcome.Created {
		t.Fatalf("outcome = %+v, want create fallback", outcome)
	}
	if outcome.ItemID == "555" {
		t.Error("a fresh item should have been created")
	}
}

func TestUpsertMissingLookupColumnCreates(t *testing.T) {
	board := newFakeBoard()
	// Board lost its Booking ID column
	var trimmed []monday.Column
	for _, col := range board.columns {
		if col.Title != "Booking ID" {
			trimmed = append(trimmed, col)
		}
	}
	board.columns = trimmed
	s := testSyncer(board)

	outcome := s.SyncBooking(context.Background(), Document{"id": "B77"}, nil)
	if !outcome.OK || !outcome.Created {
		t.Fatalf("outcome = %+v, want create despite missing lookup column", outcome)
	}
}

func TestUpsertLookupFailureIsItemFailure(t *testing.T) {
	board := newFakeBoard()
	board.findErr = errors.New("API error 500")
	s := testSyncer(board)

	outcome := s.SyncBooking(context.Background(), Document{"id": "B77"}, nil)
	if outcome.OK || outcome.Err == "" {
		t.Fatalf("outcome = %+v, want failure with error message", outcome)
	}
	if outcome.SourceID != "B77" {
		t.Errorf("SourceID = %q, want B77 for attribution", outcome.SourceID)
	}
}

func TestSyncBookingRejectsMissingID(t *testing.T) {
	s := testSyncer(newFakeBoard())

	outcome := s.SyncBooking(context.Background(), Document{"guest": map[string]interface{}{"name": "x"}}, nil)
	if outcome.OK {
		t.Fatal("booking without an id must not be written")
	}
}

func TestGuardExtendsDropdownExactlyOnce(t *testing.T) {
	board := newFakeBoard()
	s := testSyncer(board)
	// Expedia is not registered on the fake board's Source column
	doc := Document{"id": "B77", "source": "expedia"}

	first := s.SyncBooking(context.Background(), doc, nil)
	if !first.OK {
		t.Fatalf("first sync failed: %+v", first)
	}
	if board.settingsChanges != 1 {
		t.Fatalf("settings changed %d times, want 1", board.settingsChanges)
	}

	// After the extension, the dropdown write must carry the label
	values := board.values[first.ItemID]
	src, ok := values["dropdown_src"].(map[string]interface{})
	if !ok {
		t.Fatalf("dropdown_src missing after label registration: %#v", values)
	}
	labels, _ := src["labels"].([]string)
	if len(labels) != 1 || labels[0] != "Expedia" {
		t.Errorf("dropdown labels = %v, want [Expedia]", labels)
	}

	second := s.SyncBooking(context.Background(), doc, nil)
	if !second.OK {
		t.Fatalf("second sync failed: %+v", second)
	}
	if board.settingsChanges != 1 {
		t.Errorf("settings changed %d times after resync, want still 1 (idempotent)", board.settingsChanges)
	}
}

func TestGuardFailureDegradesToFreeText(t *testing.T) {
	board := newFakeBoard()
	board.guardErr = fmt.Errorf("permission denied")
	s := testSyncer(board)

	outcome := s.SyncBooking(context.Background(), Document{"id": "B77", "source": "expedia"}, nil)
	if !outcome.OK {
		t.Fatalf("guard failure must not fail the upsert: %+v", outcome)
	}

	values := board.values[outcome.ItemID]
	if _, ok := values["dropdown_src"]; ok {
		t.Error("unregistered label must not be forced onto the dropdown")
	}
	if _, ok := values["lt_srctext"]; !ok {
		t.Error("free-text fallback should carry the source")
	}
}

func TestSchemaCacheInvalidation(t *testing.T) {
	board := newFakeBoard()
	cache := NewSchemaCache(board, 4321)

	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if board.columnsFetches != 1 {
		t.Errorf("columns fetched %d times, want 1 (cached)", board.columnsFetches)
	}

	cache.Invalidate()
	if _, err := cache.Get(context.Background()); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if board.columnsFetches != 2 {
		t.Errorf("columns fetched %d times after invalidation, want 2", board.columnsFetches)
	}
}
