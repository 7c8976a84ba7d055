package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/heavenly/booksync/monday"
)

// EnsureDropdownLabel makes sure label is registered on the dropdown
// column bound to logicalKey, extending the column's settings when it is
// not and invalidating the schema cache so subsequent mapping sees the
// update. Idempotent: a second call with the same label is a no-op.
//
// A failure here is not fatal to the upsert — the caller's free-text
// fallback absorbs an unregistered label — so errors are returned for
// logging, not propagation.
func (s *Syncer) EnsureDropdownLabel(ctx context.Context, logicalKey, label string) error {
	if label == "" {
		return nil
	}

	schema, err := s.Schema.Get(ctx)
	if err != nil {
		return err
	}
	col, ok := schema.Column(logicalKey)
	if !ok {
		return fmt.Errorf("no board column for %q", logicalKey)
	}

	newSettings, changed := monday.ExtendSettingsLabels(col.SettingsStr, DefaultSourceLabels, label)
	if !changed {
		return nil
	}

	if err := s.Board.ChangeColumnSettings(ctx, s.BoardID, col.ID, newSettings); err != nil {
		return fmt.Errorf("extend %s labels with %q: %w", logicalKey, label, err)
	}

	slog.Info("Registered dropdown label", "column", col.ID, "label", label)
	s.Schema.Invalidate()
	return nil
}
