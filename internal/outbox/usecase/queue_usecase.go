package usecase

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	apperrors "github.com/allisson/healthsync/internal/errors"
	"github.com/allisson/healthsync/internal/outbox/domain"
)

const maxErrorMessageLength = 1024

// QueueConfig holds outbox queue configuration
type QueueConfig struct {
	MaxAttempts int
	Backoff     domain.Backoff
}

// Queue implements the outbox event state machine
type Queue struct {
	config QueueConfig
	repo   OutboxEventRepository
	now    func() time.Time
}

// NewQueue creates a new Queue
func NewQueue(config QueueConfig, repo OutboxEventRepository) *Queue {
	return &Queue{
		config: config,
		repo:   repo,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateEvent enqueues a pending event. It joins the transaction carried by ctx, if any.
func (q *Queue) CreateEvent(
	ctx context.Context,
	eventType domain.EventType,
	entityID uuid.UUID,
	userID uuid.UUID,
	priority int,
) (*domain.OutboxEvent, error) {
	if _, _, err := eventType.Parse(); err != nil {
		return nil, err
	}

	event := domain.NewOutboxEvent(eventType, entityID, userID, priority, q.config.MaxAttempts, q.now())
	if err := q.repo.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// FetchPending returns the user's events that are due now
func (q *Queue) FetchPending(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.OutboxEvent, error) {
	return q.repo.GetPending(ctx, userID, q.now(), limit)
}

// MarkProcessing claims a pending event. It reports false when the event is no longer pending.
func (q *Queue) MarkProcessing(ctx context.Context, event *domain.OutboxEvent) (bool, error) {
	now := q.now()

	claimed, err := q.repo.Claim(ctx, event.ID, now)
	if err != nil || !claimed {
		return false, err
	}

	event.Status = domain.OutboxEventStatusProcessing
	event.UpdatedAt = now
	return true, nil
}

// MarkCompleted records a successful delivery
func (q *Queue) MarkCompleted(ctx context.Context, event *domain.OutboxEvent) error {
	now := q.now()

	event.Status = domain.OutboxEventStatusCompleted
	event.CompletedAt = &now
	event.LastAttemptAt = &now
	event.NextRetryAt = nil
	event.ErrorMessage = nil
	event.UpdatedAt = now

	return q.repo.Update(ctx, event)
}

// MarkFailed records a failed attempt. A retryable failure with budget left goes back to
// pending after the backoff delay; anything else becomes terminally failed.
func (q *Queue) MarkFailed(ctx context.Context, event *domain.OutboxEvent, cause error, retryable bool) error {
	now := q.now()

	event.AttemptCount++
	event.LastAttemptAt = &now
	event.UpdatedAt = now
	if cause != nil {
		message := truncate(cause.Error(), maxErrorMessageLength)
		event.ErrorMessage = &message
	}

	if retryable && !event.Exhausted() {
		nextRetryAt := now.Add(q.config.Backoff.Delay(event.AttemptCount))
		event.Status = domain.OutboxEventStatusPending
		event.NextRetryAt = &nextRetryAt
	} else {
		event.Status = domain.OutboxEventStatusFailed
		event.NextRetryAt = nil
	}

	return q.repo.Update(ctx, event)
}

// PurgeCompleted deletes completed events older than the retention period
func (q *Queue) PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan < 0 {
		return 0, apperrors.Wrap(apperrors.ErrInvalidInput, "retention period must not be negative")
	}
	return q.repo.DeleteCompletedBefore(ctx, q.now().Add(-olderThan))
}

// ResetProcessing returns events claimed more than olderThan ago and still processing to
// pending. Younger claims may belong to a pass that is still running.
func (q *Queue) ResetProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan < 0 {
		return 0, apperrors.Wrap(apperrors.ErrInvalidInput, "claim timeout must not be negative")
	}
	now := q.now()
	return q.repo.ResetProcessing(ctx, now.Add(-olderThan), now)
}

// Stats counts the user's events by status
func (q *Queue) Stats(ctx context.Context, userID uuid.UUID) (domain.StatusCounts, error) {
	return q.repo.CountByStatus(ctx, userID)
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
