package sync

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pocketbase/pocketbase/core"
)

// RunRetentionDays is how long sync_runs audit records are kept before the
// daily prune removes them.
const RunRetentionDays = 7

const runsCollection = "sync_runs"

// recordSyncRun writes one batch outcome into the sync_runs collection.
// The audit trail is optional infrastructure: a missing collection, or no
// app at all, skips the record rather than failing the run.
func recordSyncRun(app core.App, trigger string, result BatchResult, took time.Duration, runErr error) {
	if app == nil {
		return
	}

	collection, err := app.FindCollectionByNameOrId(runsCollection)
	if err != nil {
		slog.Warn("sync_runs collection not found, skipping audit record", "error", err)
		return
	}

	record := core.NewRecord(collection)
	record.Set("trigger", trigger)
	record.Set("processed", result.Processed)
	record.Set("created", result.Created)
	record.Set("updated", result.Updated)
	record.Set("failed", result.Failed)
	record.Set("next_skip", result.NextSkip)
	record.Set("timed_out", result.TimedOut)
	record.Set("cancelled", result.Cancelled)
	record.Set("duration_ms", took.Milliseconds())
	if runErr != nil {
		record.Set("error", runErr.Error())
	}

	if err := app.Save(record); err != nil {
		slog.Warn("Failed to save sync run record", "error", err)
	}
}

// pruneOldSyncRuns deletes audit records older than the retention window.
func pruneOldSyncRuns(app core.App) error {
	cutoff := time.Now().AddDate(0, 0, -RunRetentionDays).UTC().Format(time.RFC3339)

	collection, err := app.FindCollectionByNameOrId(runsCollection)
	if err != nil {
		return fmt.Errorf("finding %s collection: %w", runsCollection, err)
	}

	records, err := app.FindRecordsByFilter(
		collection,
		fmt.Sprintf("created < '%s'", cutoff),
		"-created",
		1000,
		0,
	)
	if err != nil {
		return fmt.Errorf("finding old sync runs: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	deleted := 0
	for _, record := range records {
		if err := app.Delete(record); err != nil {
			slog.Warn("Failed to delete old sync run", "id", record.Id, "error", err)
			continue
		}
		deleted++
	}

	slog.Info("Pruned old sync runs", "deleted", deleted, "cutoff", cutoff)
	return nil
}

// recentSyncRuns returns the newest audit records for the status endpoint.
func recentSyncRuns(app core.App, limit int) ([]map[string]interface{}, error) {
	if app == nil {
		return nil, fmt.Errorf("no app to read %s from", runsCollection)
	}

	collection, err := app.FindCollectionByNameOrId(runsCollection)
	if err != nil {
		return nil, fmt.Errorf("finding %s collection: %w", runsCollection, err)
	}

	records, err := app.FindRecordsByFilter(collection, "", "-created", limit, 0)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}

	runs := make([]map[string]interface{}, 0, len(records))
	for _, record := range records {
		runs = append(runs, map[string]interface{}{
			"id":          record.Id,
			"trigger":     record.GetString("trigger"),
			"processed":   record.GetInt("processed"),
			"created":     record.GetInt("created"),
			"updated":     record.GetInt("updated"),
			"failed":      record.GetInt("failed"),
			"next_skip":   record.GetInt("next_skip"),
			"timed_out":   record.GetBool("timed_out"),
			"cancelled":   record.GetBool("cancelled"),
			"duration_ms": record.GetInt("duration_ms"),
			"error":       record.GetString("error"),
			"ran_at":      record.GetDateTime("created").Time().UTC().Format(time.RFC3339),
		})
	}
	return runs, nil
}
