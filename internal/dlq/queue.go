// Package dlq persists extractor tuples the Graph Builder parsed but could
// not merge, so they can be reviewed and retried without re-running the
// whole ingestion stream. Records that fail to parse are dropped by
// graphbuilder.ParseStream and never reach the queue.
package dlq

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Entry is one failed extractor record.
type Entry struct {
	ID           int64
	DocumentID   string
	RawRecord    string
	ErrorMessage string
	RetryCount   int
	LastRetryAt  *time.Time
	CreatedAt    time.Time
}

// Queue manages failed extractor records for a single graph store.
type Queue struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewQueue(db *sql.DB) *Queue {
	return &Queue{db: db, logger: slog.Default().With("component", "dlq")}
}

// Schema is the backing table DDL, grounded on the teacher's dead-letter
// queue table, narrowed to one uniqueness key: (document_id, raw_record).
const Schema = `
CREATE TABLE IF NOT EXISTS builder_dead_letters (
	id SERIAL PRIMARY KEY,
	document_id TEXT NOT NULL,
	raw_record TEXT NOT NULL,
	error_message TEXT NOT NULL,
	retry_count INT NOT NULL DEFAULT 0,
	last_retry_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (document_id, raw_record)
)`

// Enqueue records a tuple the builder could not merge. A repeat
// failure for the same (document_id, raw_record) increments retry_count
// instead of inserting a duplicate row.
func (q *Queue) Enqueue(ctx context.Context, documentID, rawRecord string, cause error) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO builder_dead_letters (document_id, raw_record, error_message, retry_count)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (document_id, raw_record) DO UPDATE
		SET retry_count = builder_dead_letters.retry_count + 1,
		    error_message = $3,
		    updated_at = NOW(),
		    last_retry_at = NOW()
	`, documentID, rawRecord, cause.Error())
	if err != nil {
		return fmt.Errorf("failed to enqueue dead record: %w", err)
	}

	q.logger.Warn("extractor record enqueued to dead letter queue",
		"document_id", documentID, "error", cause.Error())
	return nil
}

// PendingRetries returns records with fewer than maxRetries attempts so far,
// oldest first.
func (q *Queue) PendingRetries(ctx context.Context, documentID string, maxRetries int) ([]Entry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, document_id, raw_record, error_message, retry_count, last_retry_at, created_at
		FROM builder_dead_letters
		WHERE document_id = $1 AND retry_count < $2
		ORDER BY created_at ASC
	`, documentID, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letter queue: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var lastRetryAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.RawRecord, &e.ErrorMessage, &e.RetryCount, &lastRetryAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter entry: %w", err)
		}
		if lastRetryAt.Valid {
			e.LastRetryAt = &lastRetryAt.Time
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkResolved removes a record after a successful reprocessing.
func (q *Queue) MarkResolved(ctx context.Context, documentID, rawRecord string) error {
	if _, err := q.db.ExecContext(ctx, `
		DELETE FROM builder_dead_letters WHERE document_id = $1 AND raw_record = $2
	`, documentID, rawRecord); err != nil {
		return fmt.Errorf("failed to delete dead letter entry: %w", err)
	}
	return nil
}
