package store

import (
	"context"
	"fmt"

	"github.com/roach88/txsim/internal/ir"
)

// UpsertStatus records item with its latest status.
//
// Uses ON CONFLICT(id) DO UPDATE so the row is updated in place and keeps
// its rowid, which preserves first-insertion order for LoadPending.
func (s *Store) UpsertStatus(ctx context.Context, item ir.WorkItem, status ir.Status) error {
	if !status.Valid() {
		return fmt.Errorf("upsert %s: invalid status %q", item.ID(), status)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO work_items (id, amount, priority, status, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			priority = excluded.priority,
			status = excluded.status,
			updated_at = excluded.updated_at
	`,
		item.ID(),
		item.Amount(),
		item.Priority(),
		string(status),
		s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", item.ID(), err)
	}

	return nil
}

// DeleteAll removes every record.
func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM work_items`); err != nil {
		return fmt.Errorf("delete all: %w", err)
	}
	return nil
}
