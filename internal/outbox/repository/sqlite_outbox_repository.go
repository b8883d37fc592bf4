package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/healthsync/internal/database"
	apperrors "github.com/allisson/healthsync/internal/errors"
	"github.com/allisson/healthsync/internal/outbox/domain"
)

// SQLiteOutboxEventRepository handles outbox event persistence for the on-device SQLite store
type SQLiteOutboxEventRepository struct {
	db *sql.DB
}

// NewSQLiteOutboxEventRepository creates a new SQLiteOutboxEventRepository
func NewSQLiteOutboxEventRepository(db *sql.DB) *SQLiteOutboxEventRepository {
	return &SQLiteOutboxEventRepository{
		db: db,
	}
}

// Create inserts a new outbox event
func (r *SQLiteOutboxEventRepository) Create(ctx context.Context, event *domain.OutboxEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_events (` + outboxColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		event.ID,
		string(event.EventType),
		event.EntityID,
		event.UserID,
		string(event.Status),
		event.AttemptCount,
		event.MaxAttempts,
		database.SQLiteNullTime(event.LastAttemptAt),
		database.SQLiteNullTime(event.NextRetryAt),
		event.ErrorMessage,
		event.Priority,
		database.SQLiteTime(event.CreatedAt),
		database.SQLiteNullTime(event.CompletedAt),
		database.SQLiteTime(event.UpdatedAt),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create outbox event")
	}
	return nil
}

// GetByID retrieves an outbox event by id
func (r *SQLiteOutboxEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + outboxColumns + ` FROM outbox_events WHERE id = ?`

	event, err := scanEvent(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOutboxEventNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get outbox event")
	}
	return event, nil
}

// GetPending retrieves the user's pending events that are due at now, highest priority first
// and oldest first within a priority
func (r *SQLiteOutboxEventRepository) GetPending(
	ctx context.Context,
	userID uuid.UUID,
	now time.Time,
	limit int,
) ([]*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + outboxColumns + `
			  FROM outbox_events
			  WHERE status = ? AND user_id = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)
			  ORDER BY priority DESC, created_at ASC
			  LIMIT ?`

	rows, err := querier.QueryContext(
		ctx,
		query,
		string(domain.OutboxEventStatusPending),
		userID,
		database.SQLiteTime(now),
		limit,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to get pending outbox events")
	}

	events, err := collectEvents(rows)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to scan outbox events")
	}
	return events, nil
}

// Claim moves a pending event to processing. It reports false when another worker got there first
func (r *SQLiteOutboxEventRepository) Claim(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_events SET status = ?, updated_at = ? WHERE id = ? AND status = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(domain.OutboxEventStatusProcessing),
		database.SQLiteTime(now),
		id,
		string(domain.OutboxEventStatusPending),
	)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to claim outbox event")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to claim outbox event")
	}
	return affected == 1, nil
}

// Update updates an outbox event
func (r *SQLiteOutboxEventRepository) Update(ctx context.Context, event *domain.OutboxEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_events
			  SET status = ?, attempt_count = ?, max_attempts = ?, last_attempt_at = ?, next_retry_at = ?,
			      error_message = ?, priority = ?, completed_at = ?, updated_at = ?
			  WHERE id = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(event.Status),
		event.AttemptCount,
		event.MaxAttempts,
		database.SQLiteNullTime(event.LastAttemptAt),
		database.SQLiteNullTime(event.NextRetryAt),
		event.ErrorMessage,
		event.Priority,
		database.SQLiteNullTime(event.CompletedAt),
		database.SQLiteTime(event.UpdatedAt),
		event.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update outbox event")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to update outbox event")
	}
	if affected == 0 {
		return domain.ErrOutboxEventNotFound
	}
	return nil
}

// DeleteCompletedBefore removes completed events finished before cutoff
func (r *SQLiteOutboxEventRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM outbox_events WHERE status = ? AND completed_at < ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(domain.OutboxEventStatusCompleted),
		database.SQLiteTime(cutoff),
	)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete completed outbox events")
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete completed outbox events")
	}
	return count, nil
}

// ResetProcessing returns events claimed before claimedBefore and still processing to pending
func (r *SQLiteOutboxEventRepository) ResetProcessing(
	ctx context.Context,
	claimedBefore time.Time,
	now time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_events SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(domain.OutboxEventStatusPending),
		database.SQLiteTime(now),
		string(domain.OutboxEventStatusProcessing),
		database.SQLiteTime(claimedBefore),
	)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to reset processing outbox events")
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to reset processing outbox events")
	}
	return count, nil
}

// CountByStatus counts the user's events per status
func (r *SQLiteOutboxEventRepository) CountByStatus(ctx context.Context, userID uuid.UUID) (domain.StatusCounts, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT status, COUNT(*) FROM outbox_events WHERE user_id = ? GROUP BY status`

	rows, err := querier.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to count outbox events")
	}

	counts, err := collectCounts(rows)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to scan outbox event counts")
	}
	return counts, nil
}
