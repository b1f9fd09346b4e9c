// Package result provides ResultStore implementations: a sqlite-backed store
// that archives terminal results durably, and an in-memory store with TTL
// eviction for embedded and test use.
package result

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/batchline/batchline/internal/apperror"
	"github.com/batchline/batchline/internal/batch"
)

// SQLiteStore archives batch results in the batch_results table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Put(ctx context.Context, res *batch.Result) error {
	errsJSON, err := json.Marshal(res.Errors)
	if err != nil {
		return fmt.Errorf("marshal result errors: %w", err)
	}

	var endStr sql.NullString
	if res.EndTime != nil {
		endStr = sql.NullString{String: res.EndTime.Format(time.RFC3339Nano), Valid: true}
	}

	const query = `INSERT INTO batch_results
		(batch_id, status, total_items, processed_items, success_items, failed_items,
		 start_time, end_time, duration, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(batch_id) DO UPDATE SET
		 status = excluded.status,
		 total_items = excluded.total_items,
		 processed_items = excluded.processed_items,
		 success_items = excluded.success_items,
		 failed_items = excluded.failed_items,
		 start_time = excluded.start_time,
		 end_time = excluded.end_time,
		 duration = excluded.duration,
		 errors = excluded.errors,
		 stored_at = (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))`

	_, err = s.db.ExecContext(ctx, query,
		res.BatchID, string(res.Status),
		res.TotalItems, res.Processed, res.Succeeded, res.Failed,
		res.StartTime.Format(time.RFC3339Nano), endStr,
		res.Duration, string(errsJSON),
	)
	if err != nil {
		return fmt.Errorf("store batch result: %w", err)
	}
	return nil
}

// Purge deletes archived results stored before the retention window and
// returns how many rows were removed. A non-positive window is a no-op.
func (s *SQLiteStore) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention).UTC().Format("2006-01-02T15:04:05Z")

	r, err := s.db.ExecContext(ctx, `DELETE FROM batch_results WHERE stored_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge batch results: %w", err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge batch results: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Get(ctx context.Context, batchID string) (*batch.Result, error) {
	const query = `SELECT batch_id, status, total_items, processed_items,
		success_items, failed_items, start_time, end_time, duration, errors
		FROM batch_results WHERE batch_id = ?`

	res := &batch.Result{}
	var status, startStr, errsJSON string
	var endStr sql.NullString

	err := s.db.QueryRowContext(ctx, query, batchID).Scan(
		&res.BatchID, &status,
		&res.TotalItems, &res.Processed, &res.Succeeded, &res.Failed,
		&startStr, &endStr, &res.Duration, &errsJSON,
	)
	if err == sql.ErrNoRows {
		return nil, apperror.New(apperror.NotFound, "result not found: "+batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("get batch result: %w", err)
	}

	res.Status = batch.Status(status)
	res.StartTime, _ = time.Parse(time.RFC3339Nano, startStr)
	if endStr.Valid {
		t, perr := time.Parse(time.RFC3339Nano, endStr.String)
		if perr == nil {
			res.EndTime = &t
		}
	}
	if err := json.Unmarshal([]byte(errsJSON), &res.Errors); err != nil {
		return nil, fmt.Errorf("parse result errors: %w", err)
	}
	return res, nil
}
