// Package usecase implements the outbox business logic: the durable queue state machine and
// the processor that drains it against the backend.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/healthsync/internal/outbox/domain"
	recordDomain "github.com/allisson/healthsync/internal/record/domain"
)

// OutboxEventRepository defines outbox event repository operations
type OutboxEventRepository interface {
	Create(ctx context.Context, event *domain.OutboxEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.OutboxEvent, error)
	GetPending(ctx context.Context, userID uuid.UUID, now time.Time, limit int) ([]*domain.OutboxEvent, error)
	Claim(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	Update(ctx context.Context, event *domain.OutboxEvent) error
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ResetProcessing(ctx context.Context, claimedBefore time.Time, now time.Time) (int64, error)
	CountByStatus(ctx context.Context, userID uuid.UUID) (domain.StatusCounts, error)
}

// RecordStore is the slice of the Event Store the processor needs
type RecordStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*recordDomain.Record, error)
	MarkSynced(
		ctx context.Context,
		id uuid.UUID,
		backendID string,
		remoteStatus recordDomain.RemoteStatus,
		now time.Time,
	) error
	MarkSyncFailed(ctx context.Context, id uuid.UUID, now time.Time) error
}

// Dispatcher delivers one event and its record to the backend. Errors wrapped with
// domain.NewPermanentError are not retried.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *domain.OutboxEvent, record *recordDomain.Record) (*domain.Delivery, error)
}

// SessionProvider reports the authenticated user
type SessionProvider interface {
	CurrentUserID() (uuid.UUID, bool)
}

// QueueUseCase defines the outbox queue operations
type QueueUseCase interface {
	CreateEvent(
		ctx context.Context,
		eventType domain.EventType,
		entityID uuid.UUID,
		userID uuid.UUID,
		priority int,
	) (*domain.OutboxEvent, error)
	FetchPending(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.OutboxEvent, error)
	MarkProcessing(ctx context.Context, event *domain.OutboxEvent) (bool, error)
	MarkCompleted(ctx context.Context, event *domain.OutboxEvent) error
	MarkFailed(ctx context.Context, event *domain.OutboxEvent, cause error, retryable bool) error
	PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error)
	ResetProcessing(ctx context.Context, olderThan time.Duration) (int64, error)
	Stats(ctx context.Context, userID uuid.UUID) (domain.StatusCounts, error)
}

// StatusWatcher is told when a user has a delivered record waiting for its remote result
type StatusWatcher interface {
	Resume(userID uuid.UUID)
}

// ProcessorUseCase defines the outbox processor operations
type ProcessorUseCase interface {
	Start(ctx context.Context) error
	ProcessEvents(ctx context.Context) (Summary, error)
	Purge(ctx context.Context) (int64, error)
	Trigger()
}
