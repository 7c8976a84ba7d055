package sync

import (
	"context"
	"log/slog"
	"time"
)

// BatchResult aggregates per-item outcomes of one batch run. NextSkip is
// the resumption cursor: the caller's skip plus the number of bookings
// actually processed, so an interrupted batch can be continued with
// ?skip=NextSkip. TimedOut means the batch's own time budget ran out;
// Cancelled means the caller's context ended first.
type BatchResult struct {
	Processed int             `json:"processed"`
	Created   int             `json:"created"`
	Updated   int             `json:"updated"`
	Failed    int             `json:"failed"`
	NextSkip  int             `json:"next_skip"`
	TimedOut  bool            `json:"timed_out"`
	Cancelled bool            `json:"cancelled"`
	Outcomes  []UpsertOutcome `json:"outcomes"`
}

// RunBatch upserts a page of bookings sequentially. One item's failure is
// recorded and never aborts its siblings; no automatic per-item retry.
// The time budget is cooperative — checked between items, so a single
// slow call can overrun it — and exhausting it yields a partial result
// with the cursor set, not an error.
func (s *Syncer) RunBatch(ctx context.Context, bookings []Document, props map[string]string,
	skip int, budget time.Duration) BatchResult {

	result := BatchResult{NextSkip: skip}
	start := time.Now()

	for _, doc := range bookings {
		select {
		case <-ctx.Done():
			result.Cancelled = true
			return result
		default:
		}
		if budget > 0 && time.Since(start) > budget {
			result.TimedOut = true
			slog.Info("Batch time budget exhausted",
				"processed", result.Processed, "next_skip", result.NextSkip)
			return result
		}

		outcome := s.SyncBooking(ctx, doc, props)
		result.Outcomes = append(result.Outcomes, outcome)
		result.Processed++
		result.NextSkip++

		switch {
		case !outcome.OK:
			result.Failed++
			slog.Warn("Booking sync failed", "booking", outcome.SourceID, "error", outcome.Err)
		case outcome.Created:
			result.Created++
		case outcome.Updated:
			result.Updated++
		}
	}

	return result
}
