package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/healthsync/internal/metrics"
	"github.com/allisson/healthsync/internal/record/domain"
)

// recordUseCaseWithMetrics decorates RecordUseCase with metrics instrumentation.
type recordUseCaseWithMetrics struct {
	next    RecordUseCase
	metrics metrics.BusinessMetrics
}

// NewRecordUseCaseWithMetrics wraps a RecordUseCase with metrics recording.
func NewRecordUseCaseWithMetrics(useCase RecordUseCase, m metrics.BusinessMetrics) RecordUseCase {
	return &recordUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (r *recordUseCaseWithMetrics) observe(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	r.metrics.RecordOperation(ctx, "records", operation, status)
	r.metrics.RecordDuration(ctx, "records", operation, time.Since(start), status)
}

// Save records metrics for record creation, distinguishing deduplicated writes.
func (r *recordUseCaseWithMetrics) Save(ctx context.Context, input SaveInput) (*SaveResult, error) {
	start := time.Now()
	result, err := r.next.Save(ctx, input)

	r.observe(ctx, "record_save", start, err)
	if err == nil && !result.Created {
		r.metrics.RecordOperation(ctx, "records", "record_save_duplicate", "success")
	}

	return result, err
}

// Update records metrics for record edits.
func (r *recordUseCaseWithMetrics) Update(ctx context.Context, input UpdateInput) (*domain.Record, error) {
	start := time.Now()
	record, err := r.next.Update(ctx, input)
	r.observe(ctx, "record_update", start, err)
	return record, err
}

// Get records metrics for single record reads.
func (r *recordUseCaseWithMetrics) Get(ctx context.Context, userID uuid.UUID, id uuid.UUID) (*domain.Record, error) {
	start := time.Now()
	record, err := r.next.Get(ctx, userID, id)
	r.observe(ctx, "record_get", start, err)
	return record, err
}

// Fetch records metrics for record listing.
func (r *recordUseCaseWithMetrics) Fetch(ctx context.Context, filter domain.Filter) ([]*domain.Record, error) {
	start := time.Now()
	records, err := r.next.Fetch(ctx, filter)
	r.observe(ctx, "record_fetch", start, err)
	return records, err
}

// FetchLatest records metrics for latest record lookups.
func (r *recordUseCaseWithMetrics) FetchLatest(
	ctx context.Context,
	userID uuid.UUID,
	recordType domain.RecordType,
	metric string,
) (*domain.Record, error) {
	start := time.Now()
	record, err := r.next.FetchLatest(ctx, userID, recordType, metric)
	r.observe(ctx, "record_fetch_latest", start, err)
	return record, err
}

// FindByBackendID records metrics for backend id lookups.
func (r *recordUseCaseWithMetrics) FindByBackendID(ctx context.Context, backendID string) (*domain.Record, error) {
	start := time.Now()
	record, err := r.next.FindByBackendID(ctx, backendID)
	r.observe(ctx, "record_find_backend_id", start, err)
	return record, err
}

// UpdateStatus records metrics for remote status updates.
func (r *recordUseCaseWithMetrics) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.RemoteStatus,
	result json.RawMessage,
) (bool, error) {
	start := time.Now()
	applied, err := r.next.UpdateStatus(ctx, id, status, result)
	r.observe(ctx, "record_update_status", start, err)
	return applied, err
}

// ListInFlight records metrics for in-flight listing.
func (r *recordUseCaseWithMetrics) ListInFlight(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
) ([]*domain.Record, error) {
	start := time.Now()
	records, err := r.next.ListInFlight(ctx, userID, limit)
	r.observe(ctx, "record_list_in_flight", start, err)
	return records, err
}
