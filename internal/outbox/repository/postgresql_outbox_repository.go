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

// PostgreSQLOutboxEventRepository handles outbox event persistence for PostgreSQL
type PostgreSQLOutboxEventRepository struct {
	db *sql.DB
}

// NewPostgreSQLOutboxEventRepository creates a new PostgreSQLOutboxEventRepository
func NewPostgreSQLOutboxEventRepository(db *sql.DB) *PostgreSQLOutboxEventRepository {
	return &PostgreSQLOutboxEventRepository{
		db: db,
	}
}

// Create inserts a new outbox event
func (r *PostgreSQLOutboxEventRepository) Create(ctx context.Context, event *domain.OutboxEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_events (` + outboxColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

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
		event.LastAttemptAt,
		event.NextRetryAt,
		event.ErrorMessage,
		event.Priority,
		event.CreatedAt,
		event.CompletedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create outbox event")
	}
	return nil
}

// GetByID retrieves an outbox event by id
func (r *PostgreSQLOutboxEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + outboxColumns + ` FROM outbox_events WHERE id = $1`

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
func (r *PostgreSQLOutboxEventRepository) GetPending(
	ctx context.Context,
	userID uuid.UUID,
	now time.Time,
	limit int,
) ([]*domain.OutboxEvent, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + outboxColumns + `
			  FROM outbox_events
			  WHERE status = $1 AND user_id = $2 AND (next_retry_at IS NULL OR next_retry_at <= $3)
			  ORDER BY priority DESC, created_at ASC
			  LIMIT $4`

	rows, err := querier.QueryContext(
		ctx,
		query,
		string(domain.OutboxEventStatusPending),
		userID,
		now,
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
func (r *PostgreSQLOutboxEventRepository) Claim(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_events SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(domain.OutboxEventStatusProcessing),
		now,
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
func (r *PostgreSQLOutboxEventRepository) Update(ctx context.Context, event *domain.OutboxEvent) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_events
			  SET status = $1, attempt_count = $2, max_attempts = $3, last_attempt_at = $4, next_retry_at = $5,
			      error_message = $6, priority = $7, completed_at = $8, updated_at = $9
			  WHERE id = $10`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(event.Status),
		event.AttemptCount,
		event.MaxAttempts,
		event.LastAttemptAt,
		event.NextRetryAt,
		event.ErrorMessage,
		event.Priority,
		event.CompletedAt,
		event.UpdatedAt,
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
func (r *PostgreSQLOutboxEventRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM outbox_events WHERE status = $1 AND completed_at < $2`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(domain.OutboxEventStatusCompleted),
		cutoff,
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
func (r *PostgreSQLOutboxEventRepository) ResetProcessing(
	ctx context.Context,
	claimedBefore time.Time,
	now time.Time,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_events SET status = $1, updated_at = $2 WHERE status = $3 AND updated_at < $4`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(domain.OutboxEventStatusPending),
		now,
		string(domain.OutboxEventStatusProcessing),
		claimedBefore,
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
func (r *PostgreSQLOutboxEventRepository) CountByStatus(ctx context.Context, userID uuid.UUID) (domain.StatusCounts, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT status, COUNT(*) FROM outbox_events WHERE user_id = $1 GROUP BY status`

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
