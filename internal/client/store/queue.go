package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/paperkeep/paperkeep/internal/models"
)

// The queue keeps one row per (entity_type, entity_id). Enqueuing a second
// mutation for the same entity coalesces with the pending one; replay order
// is irrelevant once only the final operation and payload remain, and the
// server's last-write-wins rule makes the collapsed entry converge to the
// same state a full log would.

// coalesce merges a pending operation with a newly enqueued one. drop means
// the queue row disappears entirely (a created-then-deleted entity the
// server never saw).
func coalesce(prev, next models.Operation) (op models.Operation, drop bool) {
	switch prev {
	case models.OpCreate:
		if next == models.OpDelete {
			return "", true
		}
		return models.OpCreate, false
	case models.OpUpdate:
		if next == models.OpDelete {
			return models.OpDelete, false
		}
		return models.OpUpdate, false
	default: // pending delete; a re-add revives the server-side row
		if next == models.OpDelete {
			return models.OpDelete, false
		}
		return models.OpUpdate, false
	}
}

// enqueueTx records a mutation inside the caller's transaction, coalescing
// with any pending entry for the same entity. A fresh mutation resets the
// retry bookkeeping. Returns whether the queue row was dropped.
func enqueueTx(ctx context.Context, tx *sql.Tx, t models.EntityType, id string, op models.Operation, payload []byte) (bool, error) {
	var prev models.Operation
	err := tx.QueryRowContext(ctx, `
		SELECT operation FROM sync_queue WHERE entity_type = ? AND entity_id = ?
	`, string(t), id).Scan(&prev)

	if errors.Is(err, sql.ErrNoRows) {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sync_queue (entity_type, entity_id, operation, payload, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, string(t), id, string(op), nullable(payload), nowString())
		if err != nil {
			return false, fmt.Errorf("enqueue: %w", err)
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("enqueue lookup: %w", err)
	}

	merged, drop := coalesce(prev, op)
	if drop {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM sync_queue WHERE entity_type = ? AND entity_id = ?
		`, string(t), id)
		if err != nil {
			return false, fmt.Errorf("drop queue entry: %w", err)
		}
		return true, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sync_queue
		   SET operation = ?, payload = ?, retry_count = 0, last_error = ''
		 WHERE entity_type = ? AND entity_id = ?
	`, string(merged), nullable(payload), string(t), id)
	if err != nil {
		return false, fmt.Errorf("coalesce queue entry: %w", err)
	}
	return false, nil
}

func nullable(payload []byte) any {
	if payload == nil {
		return nil
	}
	return string(payload)
}

// ListPending returns every pending queue entry, oldest first.
func (s *Store) ListPending(ctx context.Context) ([]models.QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_type, entity_id, operation, payload, created_at, retry_count, last_error
		  FROM sync_queue
		 ORDER BY created_at, entity_type, entity_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		var (
			e       models.QueueEntry
			payload sql.NullString
			created string
		)
		if err := rows.Scan(&e.EntityType, &e.EntityID, &e.Operation, &payload, &created, &e.RetryCount, &e.LastError); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Ack removes an acknowledged queue entry. Called only after the server
// reported success for the entity; a crash before this point re-sends the
// mutation, which the server applies idempotently.
func (s *Store) Ack(ctx context.Context, t models.EntityType, id string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_queue WHERE entity_type = ? AND entity_id = ?
	`, string(t), id)
	if err != nil {
		return fmt.Errorf("ack: %w", err)
	}
	return nil
}

// RecordFailure increments the entry's retry count and stores the failure
// reason for diagnostics. The entry stays queued.
func (s *Store) RecordFailure(ctx context.Context, t models.EntityType, id string, cause string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_queue
		   SET retry_count = retry_count + 1, last_error = ?
		 WHERE entity_type = ? AND entity_id = ?
	`, cause, string(t), id)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

// PendingCount returns the number of queued mutations.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return n, nil
}
