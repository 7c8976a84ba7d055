package lodgify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/heavenly/booksync/ratelimit"
)

func fastPolicy() *ratelimit.Policy {
	return &ratelimit.Policy{
		APIDelay:          time.Millisecond,
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Millisecond,
	}
}

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(&Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Policy:  fastPolicy(),
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, srv
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(&Config{}); err == nil {
		t.Error("NewClient should fail without an API key")
	}
	if _, err := NewClient(nil); err == nil {
		t.Error("NewClient should fail with nil config")
	}
}

func TestAPIKeyHeader(t *testing.T) {
	var gotKey string
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-ApiKey")
		w.Write([]byte(`[]`))
	}))

	if _, err := client.ListBookings(context.Background(), 50, 0); err != nil {
		t.Fatalf("ListBookings failed: %v", err)
	}
	if gotKey != "test-key" {
		t.Errorf("X-ApiKey header = %q, want %q", gotKey, "test-key")
	}
}

func TestListBookingsPagination(t *testing.T) {
	var gotQuery string
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"items": []}`))
	}))

	if _, err := client.ListBookings(context.Background(), 25, 50); err != nil {
		t.Fatalf("ListBookings failed: %v", err)
	}
	if gotQuery != "offset=50&size=25" {
		t.Errorf("query = %q, want %q", gotQuery, "offset=50&size=25")
	}
}

func TestListBookingsEnvelopeShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantLen int
	}{
		{
			name:    "raw array",
			body:    `[{"id": 1}, {"id": 2}]`,
			wantLen: 2,
		},
		{
			name:    "items envelope",
			body:    `{"items": [{"id": 1}], "count": 1}`,
			wantLen: 1,
		},
		{
			name:    "bookings envelope",
			body:    `{"bookings": [{"id": 1}, {"id": 2}, {"id": 3}]}`,
			wantLen: 3,
		},
		{
			name:    "results envelope",
			body:    `{"results": [{"id": 9}]}`,
			wantLen: 1,
		},
		{
			name:    "data envelope",
			body:    `{"data": [{"id": 9}]}`,
			wantLen: 1,
		},
		{
			name:    "empty last page without list key",
			body:    `{"count": 0}`,
			wantLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))

			items, err := client.ListBookings(context.Background(), 50, 0)
			if err != nil {
				t.Fatalf("ListBookings failed: %v", err)
			}
			if len(items) != tt.wantLen {
				t.Errorf("got %d bookings, want %d", len(items), tt.wantLen)
			}
		})
	}
}

func TestRateLimitRetriedThenSucceeds(t *testing.T) {
	calls := 0
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"items": [{"id": 7}]}`))
	}))

	items, err := client.ListBookings(context.Background(), 50, 0)
	if err != nil {
		t.Fatalf("ListBookings failed after retry: %v", err)
	}
	if calls != 2 {
		t.Errorf("server called %d times, want 2", calls)
	}
	if len(items) != 1 {
		t.Errorf("got %d bookings, want 1", len(items))
	}
}

func TestServerErrorRetried(t *testing.T) {
	calls := 0
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))

	if _, err := client.ListBookings(context.Background(), 50, 0); err == nil {
		t.Fatal("ListBookings should fail when the server keeps erroring")
	}
	if calls != 3 {
		t.Errorf("server called %d times, want 3 (MaxAttempts)", calls)
	}
}

func TestClientErrorNotRetried(t *testing.T) {
	calls := 0
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message": "invalid offset"}`))
	}))

	if _, err := client.ListBookings(context.Background(), 50, 0); err == nil {
		t.Fatal("ListBookings should fail on a 400")
	}
	if calls != 1 {
		t.Errorf("server called %d times, want 1 (no retries for client errors)", calls)
	}
}

func TestPropertyIndex(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/properties" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`[
			{"id": 101, "name": "Queens 8"},
			{"id": "202", "name": " Hillside Lodge "},
			{"name": "no id, skipped"}
		]`))
	}))

	index, err := client.PropertyIndex(context.Background())
	if err != nil {
		t.Fatalf("PropertyIndex failed: %v", err)
	}
	if got := index["101"]; got != "Queens 8" {
		t.Errorf("index[101] = %q, want %q", got, "Queens 8")
	}
	if got := index["202"]; got != "Hillside Lodge" {
		t.Errorf("index[202] = %q, want trimmed %q", got, "Hillside Lodge")
	}
	if len(index) != 2 {
		t.Errorf("index has %d entries, want 2", len(index))
	}
}

func TestPing(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))

	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
