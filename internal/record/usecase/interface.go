// Package usecase implements the Event Store business logic: validated record writes that
// enqueue their outbox event atomically, and read paths that never touch the network.
package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	outboxDomain "github.com/allisson/healthsync/internal/outbox/domain"
	"github.com/allisson/healthsync/internal/record/domain"
)

// RecordRepository defines Event Store persistence operations.
type RecordRepository interface {
	Save(ctx context.Context, record *domain.Record) (uuid.UUID, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Record, error)
	GetByBackendID(ctx context.Context, backendID string) (*domain.Record, error)
	List(ctx context.Context, filter domain.Filter) ([]*domain.Record, error)
	GetLatest(ctx context.Context, userID uuid.UUID, recordType domain.RecordType, metric string) (*domain.Record, error)
	Update(ctx context.Context, record *domain.Record) error
	UpdateStatus(
		ctx context.Context,
		id uuid.UUID,
		status domain.RemoteStatus,
		result []byte,
		now time.Time,
	) (bool, error)
	ListInFlight(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Record, error)
}

// EventEnqueuer creates outbox events. It must join the transaction carried by ctx.
type EventEnqueuer interface {
	CreateEvent(
		ctx context.Context,
		eventType outboxDomain.EventType,
		entityID uuid.UUID,
		userID uuid.UUID,
		priority int,
	) (*outboxDomain.OutboxEvent, error)
}

// SaveInput carries a new record captured by a user action or a device observer.
type SaveInput struct {
	UserID     uuid.UUID
	Type       domain.RecordType
	Metric     string
	Payload    json.RawMessage
	SourceID   *string
	RecordedAt time.Time
	Priority   int
}

// SaveResult reports the stored record id and whether this call created it.
type SaveResult struct {
	ID      uuid.UUID
	Created bool
}

// UpdateInput carries an edit of an existing record.
type UpdateInput struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Metric     *string
	Payload    json.RawMessage
	RecordedAt *time.Time
	Priority   int
}

// RecordUseCase defines the Event Store operations.
type RecordUseCase interface {
	Save(ctx context.Context, input SaveInput) (*SaveResult, error)
	Update(ctx context.Context, input UpdateInput) (*domain.Record, error)
	Get(ctx context.Context, userID uuid.UUID, id uuid.UUID) (*domain.Record, error)
	Fetch(ctx context.Context, filter domain.Filter) ([]*domain.Record, error)
	FetchLatest(ctx context.Context, userID uuid.UUID, recordType domain.RecordType, metric string) (*domain.Record, error)
	FindByBackendID(ctx context.Context, backendID string) (*domain.Record, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RemoteStatus, result json.RawMessage) (bool, error)
	ListInFlight(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Record, error)
}
