// Package dto provides data transfer objects for the sync HTTP API.
package dto

import "github.com/allisson/healthsync/internal/outbox/domain"

// SyncStatsResponse reports the outbox event counts of the session user.
type SyncStatsResponse struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// MapStatusCountsToResponse converts status counts to an API response. Missing statuses are zero.
func MapStatusCountsToResponse(counts domain.StatusCounts) SyncStatsResponse {
	return SyncStatsResponse{
		Pending:    counts[domain.OutboxEventStatusPending],
		Processing: counts[domain.OutboxEventStatusProcessing],
		Completed:  counts[domain.OutboxEventStatusCompleted],
		Failed:     counts[domain.OutboxEventStatusFailed],
	}
}

// TriggerResponse acknowledges a sync request.
type TriggerResponse struct {
	Status string `json:"status"`
}
