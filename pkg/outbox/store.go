// Package outbox persists "this span still needs to reach the columnar
// store" markers. Rows are written best effort after span inserts and
// drained by an external consumer.
package outbox

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/traceloft/traceloft/pkg/apperrors"
)

// OperationInsert is the only operation currently emitted: a newly stored
// span that must be synced downstream.
const OperationInsert = "INSERT"

// Row is one pending or processed sync marker.
type Row struct {
	ID          int64      `json:"id"`
	SpanID      string     `json:"span_id"`
	Operation   string     `json:"operation"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// Store reads and writes outbox rows.
type Store struct {
	db *sql.DB
}

// NewStore creates a new outbox store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Enqueue writes a sync marker, deduplicated on (span_id, operation). A
// marker that already exists is not an error; the span only needs to reach
// the downstream store once.
func (s *Store) Enqueue(ctx context.Context, spanID, operation string) error {
	query := `
		INSERT INTO spans_outbox (span_id, operation, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (span_id, operation) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, spanID, operation); err != nil {
		return apperrors.Database("failed to enqueue outbox row", err)
	}
	return nil
}

// FetchPending returns up to limit unprocessed rows, oldest first.
func (s *Store) FetchPending(ctx context.Context, limit int) ([]Row, error) {
	query := `
		SELECT id, span_id, operation, created_at
		FROM spans_outbox
		WHERE processed_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, apperrors.Database("failed to fetch pending outbox rows", err)
	}
	defer rows.Close()

	var pending []Row
	for rows.Next() {
		var row Row
		if err := rows.Scan(&row.ID, &row.SpanID, &row.Operation, &row.CreatedAt); err != nil {
			return nil, apperrors.Database("failed to scan outbox row", err)
		}
		pending = append(pending, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Database("failed to iterate outbox rows", err)
	}
	return pending, nil
}

// MarkProcessed stamps the rows as drained.
func (s *Store) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query := `
		UPDATE spans_outbox
		SET processed_at = NOW()
		WHERE id = ANY($1)
	`
	if _, err := s.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return apperrors.Database("failed to mark outbox rows processed", err)
	}
	return nil
}

// PruneProcessed deletes processed rows older than the cutoff and returns
// how many were removed.
func (s *Store) PruneProcessed(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `
		DELETE FROM spans_outbox
		WHERE processed_at IS NOT NULL AND processed_at < $1
	`
	res, err := s.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, apperrors.Database("failed to prune outbox rows", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Database("failed to read affected rows", err)
	}
	return n, nil
}
