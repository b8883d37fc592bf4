package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Record is a locally persisted business entity subject to remote synchronization.
// Payload carries the type-specific fields (quantity and unit, meal items, mood score, ...).
type Record struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Type         RecordType
	Metric       string
	Payload      json.RawMessage
	SourceID     *string
	BackendID    *string
	SyncStatus   SyncStatus
	RemoteStatus RemoteStatus
	Result       json.RawMessage
	RecordedAt   time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InFlight reports whether the record still waits for the backend, either for delivery or
// for remote processing to complete.
func (r *Record) InFlight() bool {
	return r.SyncStatus == SyncStatusPending || r.RemoteStatus == RemoteStatusProcessing
}

// HasBackendID reports whether the record was acknowledged by the backend at least once.
func (r *Record) HasBackendID() bool {
	return r.BackendID != nil && *r.BackendID != ""
}

// Filter narrows record queries. Zero values mean "no filter" except UserID.
type Filter struct {
	UserID     uuid.UUID
	Type       RecordType
	Metric     string
	From       *time.Time
	To         *time.Time
	SyncStatus SyncStatus
	Offset     int
	Limit      int
}
