// Package domain defines the core outbox domain entities and types.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutboxEventStatus represents the status of an outbox event
type OutboxEventStatus string

const (
	OutboxEventStatusPending    OutboxEventStatus = "pending"
	OutboxEventStatusProcessing OutboxEventStatus = "processing"
	OutboxEventStatusCompleted  OutboxEventStatus = "completed"
	OutboxEventStatusFailed     OutboxEventStatus = "failed"
)

// Valid reports whether s is a known event status.
func (s OutboxEventStatus) Valid() bool {
	switch s {
	case OutboxEventStatusPending, OutboxEventStatusProcessing, OutboxEventStatusCompleted, OutboxEventStatusFailed:
		return true
	}
	return false
}

// ParseOutboxEventStatus converts a persisted value into an OutboxEventStatus.
func ParseOutboxEventStatus(value string) (OutboxEventStatus, error) {
	s := OutboxEventStatus(value)
	if !s.Valid() {
		return "", ErrInvalidEventStatus
	}
	return s, nil
}

// OutboxEvent is a durable intent to push one domain record change to the backend.
// The event references its record by EntityID and never carries a copy of the payload.
type OutboxEvent struct {
	ID            uuid.UUID
	EventType     EventType
	EntityID      uuid.UUID
	UserID        uuid.UUID
	Status        OutboxEventStatus
	AttemptCount  int
	MaxAttempts   int
	LastAttemptAt *time.Time
	NextRetryAt   *time.Time
	ErrorMessage  *string
	Priority      int
	CreatedAt     time.Time
	CompletedAt   *time.Time
	UpdatedAt     time.Time
}

// NewOutboxEvent builds a pending event for entityID.
func NewOutboxEvent(
	eventType EventType,
	entityID uuid.UUID,
	userID uuid.UUID,
	priority int,
	maxAttempts int,
	now time.Time,
) *OutboxEvent {
	return &OutboxEvent{
		ID:          uuid.Must(uuid.NewV7()),
		EventType:   eventType,
		EntityID:    entityID,
		UserID:      userID,
		Status:      OutboxEventStatusPending,
		MaxAttempts: maxAttempts,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Exhausted reports whether the retry budget is spent.
func (e *OutboxEvent) Exhausted() bool {
	return e.AttemptCount >= e.MaxAttempts
}

// StatusCounts is the number of events per status.
type StatusCounts map[OutboxEventStatus]int64
