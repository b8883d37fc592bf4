package dto

import (
	"encoding/json"
	"time"

	"github.com/allisson/healthsync/internal/record/domain"
)

// CreateRecordResponse reports the stored record id. Created is false when the source id
// was already stored.
type CreateRecordResponse struct {
	ID      string `json:"id"`
	Created bool   `json:"created"`
}

// RecordResponse represents a record in API responses.
type RecordResponse struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Metric       string          `json:"metric,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	SourceID     *string         `json:"source_id,omitempty"`
	BackendID    *string         `json:"backend_id,omitempty"`
	SyncStatus   string          `json:"sync_status"`
	RemoteStatus string          `json:"remote_status,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	RecordedAt   time.Time       `json:"recorded_at"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// MapRecordToResponse converts a domain record to an API response.
func MapRecordToResponse(record *domain.Record) RecordResponse {
	return RecordResponse{
		ID:           record.ID.String(),
		Type:         string(record.Type),
		Metric:       record.Metric,
		Payload:      record.Payload,
		SourceID:     record.SourceID,
		BackendID:    record.BackendID,
		SyncStatus:   string(record.SyncStatus),
		RemoteStatus: string(record.RemoteStatus),
		Result:       record.Result,
		RecordedAt:   record.RecordedAt,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

// ListRecordsResponse represents a page of records in API responses.
type ListRecordsResponse struct {
	Data []RecordResponse `json:"data"`
}

// MapRecordsToListResponse converts domain records to a list API response.
func MapRecordsToListResponse(records []*domain.Record) ListRecordsResponse {
	responses := make([]RecordResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, MapRecordToResponse(record))
	}
	return ListRecordsResponse{Data: responses}
}
