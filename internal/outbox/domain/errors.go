package domain

import (
	"github.com/allisson/healthsync/internal/errors"
)

// Outbox-specific error definitions.
var (
	// ErrOutboxEventNotFound indicates the event does not exist.
	ErrOutboxEventNotFound = errors.Wrap(errors.ErrNotFound, "outbox event not found")

	// ErrInvalidEventType indicates an event type outside the known record types and operations.
	ErrInvalidEventType = errors.Wrap(errors.ErrInvalidInput, "invalid event type")

	// ErrInvalidEventStatus indicates an unknown persisted event status.
	ErrInvalidEventStatus = errors.Wrap(errors.ErrInvalidInput, "invalid event status")
)
