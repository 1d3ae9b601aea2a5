package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/outbox"
	"github.com/spec-kit/case-service/internal/persistence"
)

const outboxColumns = `id, event_type, channel, payload, status, retry_count, max_retries, last_error,
               next_attempt_at, created_at, processed_at`

// Deliverable entries are PENDING, retryable FAILED, or PROCESSING with an
// expired lease; next_attempt_at doubles as the lease deadline.
const claimOutboxSQL = `
WITH picked AS (
    SELECT id
    FROM outbox_entries
    WHERE status IN ('PENDING','FAILED','PROCESSING')
      AND retry_count < max_retries
      AND next_attempt_at <= $1
    ORDER BY created_at, id
    FOR UPDATE SKIP LOCKED
    LIMIT $3
)
UPDATE outbox_entries AS o
SET status='PROCESSING', next_attempt_at=$2
FROM picked
WHERE o.id = picked.id
RETURNING o.id, o.event_type, o.channel, o.payload, o.status, o.retry_count, o.max_retries, o.last_error,
          o.next_attempt_at, o.created_at, o.processed_at`

const markOutboxCompletedSQL = `
UPDATE outbox_entries SET status='COMPLETED', processed_at=$2, last_error=NULL
WHERE id=$1 AND status='PROCESSING'`

const markOutboxFailedSQL = `
UPDATE outbox_entries
SET status='FAILED', retry_count=retry_count+1, last_error=$2, next_attempt_at=$3
WHERE id=$1 AND status='PROCESSING'
RETURNING ` + outboxColumns

const listExhaustedSQL = `
SELECT ` + outboxColumns + `
FROM outbox_entries
WHERE status='FAILED' AND retry_count >= max_retries
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`

const requeueOutboxSQL = `
UPDATE outbox_entries SET status='PENDING', retry_count=0, next_attempt_at=$2
WHERE id=$1 AND status='FAILED' AND retry_count >= max_retries`

// OutboxRepository is the Postgres outbox.Store.
type OutboxRepository interface {
	outbox.Store
}

type outboxRepository struct {
	db persistence.DB
}

// NewOutboxRepository builds repository.
func NewOutboxRepository(db persistence.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Insert(ctx context.Context, entry *domain.OutboxEntry) error {
	const query = `
        INSERT INTO outbox_entries (event_type, channel, payload, status, retry_count, max_retries, next_attempt_at, created_at)
        VALUES ($1,$2,$3::jsonb,$4,0,$5,$6,$7)
        RETURNING id`
	return r.db.QueryRow(ctx, query,
		entry.EventType,
		entry.Channel,
		string(entry.Payload),
		entry.Status,
		entry.MaxRetries,
		entry.NextAttemptAt,
		entry.CreatedAt,
	).Scan(&entry.ID)
}

func (r *outboxRepository) Claim(ctx context.Context, now, leaseUntil time.Time, limit int) ([]domain.OutboxEntry, error) {
	rows, err := r.db.Query(ctx, claimOutboxSQL, now, leaseUntil, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOutboxEntries(rows)
}

func (r *outboxRepository) MarkCompleted(ctx context.Context, id string, at time.Time) error {
	cmd, err := r.db.Exec(ctx, markOutboxCompletedSQL, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return outbox.ErrNotClaimed
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id, lastError string, nextAttemptAt time.Time) (*domain.OutboxEntry, error) {
	entry, err := scanOutboxEntry(r.db.QueryRow(ctx, markOutboxFailedSQL, id, lastError, nextAttemptAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, outbox.ErrNotClaimed
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *outboxRepository) ListExhausted(ctx context.Context, limit, offset int) ([]domain.OutboxEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.Query(ctx, listExhaustedSQL, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOutboxEntries(rows)
}

func (r *outboxRepository) Requeue(ctx context.Context, id string, at time.Time) error {
	cmd, err := r.db.Exec(ctx, requeueOutboxSQL, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanOutboxEntries(rows pgx.Rows) ([]domain.OutboxEntry, error) {
	var result []domain.OutboxEntry
	for rows.Next() {
		entry, err := scanOutboxEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *entry)
	}
	return result, rows.Err()
}

func scanOutboxEntry(row pgx.Row) (*domain.OutboxEntry, error) {
	var (
		entry   domain.OutboxEntry
		payload []byte
	)
	if err := row.Scan(
		&entry.ID,
		&entry.EventType,
		&entry.Channel,
		&payload,
		&entry.Status,
		&entry.RetryCount,
		&entry.MaxRetries,
		&entry.LastError,
		&entry.NextAttemptAt,
		&entry.CreatedAt,
		&entry.ProcessedAt,
	); err != nil {
		return nil, err
	}
	entry.Payload = payload
	return &entry, nil
}
