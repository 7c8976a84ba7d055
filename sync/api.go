package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"github.com/heavenly/booksync/lodgify"
	"github.com/heavenly/booksync/monday"
)

const (
	// DefaultPageSize is the sync-all page size when ?limit is absent.
	DefaultPageSize = 50

	// DefaultBatchSeconds is the sync-all soft time budget when ?max_sec
	// is absent, chosen to finish inside typical proxy timeouts.
	DefaultBatchSeconds = 25

	// propertyIndexTTL bounds how long the property-id → name index is
	// reused before refetching.
	propertyIndexTTL = 10 * time.Minute
)

// requireAuth wraps a handler function to require authentication
func requireAuth(handler func(*core.RequestEvent) error) func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if e.Auth == nil {
			return apis.NewUnauthorizedError("Authentication required", nil)
		}
		return handler(e)
	}
}

// Service holds the wired collaborators behind the sync endpoints.
type Service struct {
	app    core.App
	source *lodgify.Client
	syncer *Syncer

	mu      sync.Mutex
	props   map[string]string
	propsAt time.Time
}

// InitializeSyncService builds the remote clients from the environment and
// registers the sync endpoints on the app router. Missing credentials are
// a startup failure, not a per-request error.
func InitializeSyncService(app *pocketbase.PocketBase, e *core.ServeEvent) error {
	source, err := lodgify.NewClient(&lodgify.Config{
		APIKey:  os.Getenv("LODGIFY_API_KEY"),
		BaseURL: os.Getenv("LODGIFY_BASE_URL"),
	})
	if err != nil {
		return fmt.Errorf("lodgify client: %w", err)
	}

	board, err := monday.NewClient(&monday.Config{
		Token:  os.Getenv("MONDAY_API_TOKEN"),
		APIURL: os.Getenv("MONDAY_API_URL"),
	})
	if err != nil {
		return fmt.Errorf("monday client: %w", err)
	}

	boardID, err := strconv.ParseInt(os.Getenv("MONDAY_BOARD_ID"), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid MONDAY_BOARD_ID: %w", err)
	}

	svc := &Service{
		app:    app,
		source: source,
		syncer: NewSyncer(board, boardID),
	}

	e.Router.POST("/webhook/{source}", svc.handleWebhook)
	e.Router.GET("/sync-all", svc.handleSyncAll)
	e.Router.GET("/api/sync/columns", requireAuth(svc.handleColumns))
	e.Router.GET("/api/sync/status", requireAuth(svc.handleStatus))
	e.Router.GET("/api/sync/health", svc.handleHealth)

	if os.Getenv("SYNC_SCHEDULE_ENABLED") != "false" {
		scheduler := NewScheduler(app, source, svc.syncer)
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
	} else {
		slog.Info("Scheduled sync disabled via SYNC_SCHEDULE_ENABLED=false")
	}

	slog.Info("Sync service initialized", "board", boardID)
	return nil
}

// propertyNames returns a cached property-id → name index, refetched after
// the TTL. A fetch failure degrades to whatever was cached (possibly nil).
func (s *Service) propertyNames(ctx context.Context) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.props != nil && time.Since(s.propsAt) < propertyIndexTTL {
		return s.props
	}

	props, err := s.source.PropertyIndex(ctx)
	if err != nil {
		slog.Warn("Could not refresh property index", "error", err)
		return s.props
	}
	s.props = props
	s.propsAt = time.Now()
	return props
}

// handleWebhook upserts the single booking carried in the request body.
// The document may arrive bare or wrapped in a {"booking": …} envelope.
func (s *Service) handleWebhook(e *core.RequestEvent) error {
	sourceTag := e.Request.PathValue("source")

	body, err := io.ReadAll(io.LimitReader(e.Request.Body, 1<<20))
	if err != nil {
		return e.JSON(http.StatusBadRequest, map[string]interface{}{"error": "unreadable body"})
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil || len(doc) == 0 {
		return e.JSON(http.StatusBadRequest, map[string]interface{}{"error": "no booking payload"})
	}
	if wrapped, ok := doc["booking"].(map[string]interface{}); ok {
		doc = wrapped
	}
	if len(doc) == 0 {
		return e.JSON(http.StatusBadRequest, map[string]interface{}{"error": "no booking payload"})
	}

	ctx, cancel := context.WithTimeout(e.Request.Context(), time.Minute)
	defer cancel()

	slog.Info("Webhook received", "source", sourceTag)
	outcome := s.syncer.SyncBooking(ctx, doc, s.propertyNames(ctx))
	if !outcome.OK {
		return e.JSON(http.StatusBadGateway, outcome)
	}
	return e.JSON(http.StatusOK, outcome)
}

// handleSyncAll pulls one page of bookings and runs the batch coordinator
// over it. Responds with aggregate counts plus the next_skip continuation
// cursor; ?debug=1 additionally echoes one raw/mapped sample.
func (s *Service) handleSyncAll(e *core.RequestEvent) error {
	query := e.Request.URL.Query()

	limit := intQueryParam(query.Get("limit"), DefaultPageSize)
	skip := intQueryParam(query.Get("skip"), 0)
	maxSec := intQueryParam(query.Get("max_sec"), DefaultBatchSeconds)
	debug := query.Get("debug") == "1" || query.Get("debug") == "true"

	ctx, cancel := context.WithTimeout(e.Request.Context(), time.Duration(maxSec+30)*time.Second)
	defer cancel()

	start := time.Now()
	bookings, err := s.source.ListBookings(ctx, limit, skip)
	if err != nil {
		slog.Error("Failed to fetch bookings page", "skip", skip, "error", err)
		return e.JSON(http.StatusBadGateway, map[string]interface{}{"error": err.Error()})
	}

	props := s.propertyNames(ctx)
	result := s.syncer.RunBatch(ctx, bookings, props, skip, time.Duration(maxSec)*time.Second)
	recordSyncRun(s.app, "manual", result, time.Since(start), nil)

	response := map[string]interface{}{
		"fetched":   len(bookings),
		"processed": result.Processed,
		"created":   result.Created,
		"updated":   result.Updated,
		"failed":    result.Failed,
		"next_skip": result.NextSkip,
		"timed_out": result.TimedOut,
		"cancelled": result.Cancelled,
		"outcomes":  result.Outcomes,
	}
	if debug && len(bookings) > 0 {
		response["debug_sample"] = s.syncer.DebugSample(ctx, bookings[0], props)
	}
	return e.JSON(http.StatusOK, response)
}

func intQueryParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
		return n
	}
	return fallback
}

// handleColumns lists the board's current columns and which logical
// fields they resolved to. Read-only diagnostics.
func (s *Service) handleColumns(e *core.RequestEvent) error {
	ctx, cancel := context.WithTimeout(e.Request.Context(), 30*time.Second)
	defer cancel()

	columns, err := s.syncer.Board.Columns(ctx, s.syncer.BoardID)
	if err != nil {
		return e.JSON(http.StatusBadGateway, map[string]interface{}{"error": err.Error()})
	}

	schema := buildSchema(columns)
	mapping := make(map[string]interface{}, len(logicalColumnTitles))
	for key, title := range logicalColumnTitles {
		if col, ok := schema.Column(key); ok {
			mapping[key] = map[string]interface{}{"id": col.ID, "title": col.Title, "type": col.Type}
		} else {
			mapping[key] = map[string]interface{}{"missing": true, "expected_title": title}
		}
	}

	return e.JSON(http.StatusOK, map[string]interface{}{
		"board":   s.syncer.BoardID,
		"columns": columns,
		"mapping": mapping,
	})
}

// handleHealth checks connectivity to both remote APIs. No side effects.
func (s *Service) handleHealth(e *core.RequestEvent) error {
	ctx, cancel := context.WithTimeout(e.Request.Context(), 30*time.Second)
	defer cancel()

	health := map[string]interface{}{"status": "ok"}
	httpStatus := http.StatusOK

	if err := s.source.Ping(ctx); err != nil {
		health["lodgify"] = err.Error()
		health["status"] = "degraded"
		httpStatus = http.StatusServiceUnavailable
	} else {
		health["lodgify"] = "ok"
	}

	if board, ok := s.syncer.Board.(*monday.Client); ok {
		if err := board.Ping(ctx); err != nil {
			health["monday"] = err.Error()
			health["status"] = "degraded"
			httpStatus = http.StatusServiceUnavailable
		} else {
			health["monday"] = "ok"
		}
	}

	return e.JSON(httpStatus, health)
}

// handleStatus returns the recent sync_runs audit records.
func (s *Service) handleStatus(e *core.RequestEvent) error {
	runs, err := recentSyncRuns(s.app, 20)
	if err != nil {
		return e.JSON(http.StatusOK, map[string]interface{}{
			"runs":  []interface{}{},
			"error": err.Error(),
		})
	}
	return e.JSON(http.StatusOK, map[string]interface{}{"runs": runs})
}
