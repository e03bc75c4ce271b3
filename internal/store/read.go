package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/txsim/internal/ir"
)

// LoadPending returns every item whose status is Pending, in the order the
// items were first recorded.
//
// Returns an empty slice (not nil) when nothing is pending.
func (s *Store) LoadPending(ctx context.Context) ([]ir.WorkItem, error) {
	records, err := s.query(ctx, `
		SELECT id, amount, priority, status, updated_at
		FROM work_items
		WHERE status = ?
		ORDER BY rowid ASC
	`, string(ir.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("load pending: %w", err)
	}

	items := make([]ir.WorkItem, 0, len(records))
	for _, rec := range records {
		items = append(items, rec.Item)
	}
	return items, nil
}

// List returns every record in first-insertion order.
func (s *Store) List(ctx context.Context) ([]ir.Record, error) {
	records, err := s.query(ctx, `
		SELECT id, amount, priority, status, updated_at
		FROM work_items
		ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return records, nil
}

// Get returns the record for id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (ir.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, amount, priority, status, updated_at
		FROM work_items
		WHERE id = ?
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Record{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.Record{}, fmt.Errorf("get %s: %w", id, err)
	}
	return rec, nil
}

// CountByStatus returns the number of records per status. Statuses with no
// records are present with a zero count.
func (s *Store) CountByStatus(ctx context.Context) (map[ir.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM work_items
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[ir.Status]int, len(ir.AllStatuses))
	for _, st := range ir.AllStatuses {
		counts[st] = 0
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[ir.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]ir.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []ir.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (ir.Record, error) {
	var (
		id        string
		amount    float64
		priority  float64
		status    string
		updatedAt int64
	)
	if err := row.Scan(&id, &amount, &priority, &status, &updatedAt); err != nil {
		return ir.Record{}, err
	}

	item, err := ir.NewWorkItem(id, amount, priority)
	if err != nil {
		return ir.Record{}, fmt.Errorf("decode row %s: %w", id, err)
	}
	st, err := ir.ParseStatus(status)
	if err != nil {
		return ir.Record{}, fmt.Errorf("decode row %s: %w", id, err)
	}

	return ir.Record{
		Item:      item,
		Status:    st,
		UpdatedAt: time.UnixMilli(updatedAt),
	}, nil
}
