package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/allisson/healthsync/internal/database"
	outboxDomain "github.com/allisson/healthsync/internal/outbox/domain"
	"github.com/allisson/healthsync/internal/record/domain"
	customValidation "github.com/allisson/healthsync/internal/validation"
)

// futureSkew tolerates small clock differences between devices and this store.
const futureSkew = 5 * time.Minute

// recordUseCase implements RecordUseCase.
type recordUseCase struct {
	txManager  database.TxManager
	recordRepo RecordRepository
	enqueuer   EventEnqueuer
	now        func() time.Time
}

// NewRecordUseCase creates a new RecordUseCase.
func NewRecordUseCase(
	txManager database.TxManager,
	recordRepo RecordRepository,
	enqueuer EventEnqueuer,
) RecordUseCase {
	return &recordUseCase{
		txManager:  txManager,
		recordRepo: recordRepo,
		enqueuer:   enqueuer,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func recordTypeRule() validation.Rule {
	types := make([]interface{}, 0, len(domain.RecordTypes))
	for _, t := range domain.RecordTypes {
		types = append(types, t)
	}
	return validation.In(types...).ErrorObject(
		validation.NewError("validation_record_type", "must be a known record type"),
	)
}

func (r *recordUseCase) validateSave(input *SaveInput) error {
	err := validation.ValidateStruct(input,
		validation.Field(&input.UserID, customValidation.NotNilUUID),
		validation.Field(&input.Type, validation.Required, recordTypeRule()),
		validation.Field(&input.Metric, customValidation.Identifier, validation.Length(0, 64)),
		validation.Field(&input.Payload, validation.Required, customValidation.JSONObject),
		validation.Field(&input.SourceID, validation.NilOrNotEmpty, validation.Length(1, 255)),
		validation.Field(&input.RecordedAt, customValidation.NotAfter(r.now, futureSkew)),
	)
	return customValidation.WrapValidationError(err)
}

// Save stores a new record and enqueues its create event in one transaction. A record whose
// source id was already stored for the user is not written again and no event is enqueued.
func (r *recordUseCase) Save(ctx context.Context, input SaveInput) (*SaveResult, error) {
	if err := r.validateSave(&input); err != nil {
		return nil, err
	}

	now := r.now()
	recordedAt := input.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = now
	}

	record := &domain.Record{
		ID:           uuid.Must(uuid.NewV7()),
		UserID:       input.UserID,
		Type:         input.Type,
		Metric:       input.Metric,
		Payload:      input.Payload,
		SourceID:     input.SourceID,
		SyncStatus:   domain.SyncStatusPending,
		RemoteStatus: domain.RemoteStatusNone,
		RecordedAt:   recordedAt.UTC(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var result SaveResult
	err := r.txManager.WithTx(ctx, func(ctx context.Context) error {
		id, created, err := r.recordRepo.Save(ctx, record)
		if err != nil {
			return err
		}
		result = SaveResult{ID: id, Created: created}

		if !created {
			return nil
		}

		_, err = r.enqueuer.CreateEvent(
			ctx,
			outboxDomain.NewEventType(record.Type, outboxDomain.OperationCreate),
			record.ID,
			record.UserID,
			input.Priority,
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// Update edits a record owned by the user, marks it pending again and enqueues its update
// event in one transaction.
func (r *recordUseCase) Update(ctx context.Context, input UpdateInput) (*domain.Record, error) {
	err := validation.ValidateStruct(&input,
		validation.Field(&input.ID, customValidation.NotNilUUID),
		validation.Field(&input.UserID, customValidation.NotNilUUID),
		validation.Field(&input.Metric, validation.NilOrNotEmpty, customValidation.Identifier),
		validation.Field(&input.Payload, validation.Required, customValidation.JSONObject),
	)
	if err != nil {
		return nil, customValidation.WrapValidationError(err)
	}

	var record *domain.Record
	err = r.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		record, err = r.recordRepo.GetByID(ctx, input.ID)
		if err != nil {
			return err
		}
		if record.UserID != input.UserID {
			return domain.ErrRecordForbidden
		}

		if input.Metric != nil {
			record.Metric = *input.Metric
		}
		if input.RecordedAt != nil {
			record.RecordedAt = input.RecordedAt.UTC()
		}
		// The edit is a new submission: the previous remote result no longer applies.
		record.Payload = input.Payload
		record.SyncStatus = domain.SyncStatusPending
		record.RemoteStatus = domain.RemoteStatusNone
		record.Result = nil
		record.UpdatedAt = r.now()

		if err := r.recordRepo.Update(ctx, record); err != nil {
			return err
		}

		_, err = r.enqueuer.CreateEvent(
			ctx,
			outboxDomain.NewEventType(record.Type, outboxDomain.OperationUpdate),
			record.ID,
			record.UserID,
			input.Priority,
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// Get retrieves a record owned by the user.
func (r *recordUseCase) Get(ctx context.Context, userID uuid.UUID, id uuid.UUID) (*domain.Record, error) {
	record, err := r.recordRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.UserID != userID {
		return nil, domain.ErrRecordNotFound
	}
	return record, nil
}

// Fetch lists records from the local store.
func (r *recordUseCase) Fetch(ctx context.Context, filter domain.Filter) ([]*domain.Record, error) {
	if filter.UserID == uuid.Nil {
		return nil, customValidation.WrapValidationError(validation.Errors{"user_id": validation.ErrRequired})
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, domain.ErrInvalidRecordType
	}
	if filter.SyncStatus != "" && !filter.SyncStatus.Valid() {
		return nil, domain.ErrInvalidSyncStatus
	}
	return r.recordRepo.List(ctx, filter)
}

// FetchLatest returns the most recently created record for a type and metric.
func (r *recordUseCase) FetchLatest(
	ctx context.Context,
	userID uuid.UUID,
	recordType domain.RecordType,
	metric string,
) (*domain.Record, error) {
	if !recordType.Valid() {
		return nil, domain.ErrInvalidRecordType
	}
	return r.recordRepo.GetLatest(ctx, userID, recordType, metric)
}

// FindByBackendID resolves the local record acknowledged under backendID.
func (r *recordUseCase) FindByBackendID(ctx context.Context, backendID string) (*domain.Record, error) {
	if backendID == "" {
		return nil, domain.ErrRecordNotFound
	}
	return r.recordRepo.GetByBackendID(ctx, backendID)
}

// UpdateStatus applies a remote processing status in a single statement, so it never
// interleaves with a concurrent processor write to the same record.
func (r *recordUseCase) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.RemoteStatus,
	result json.RawMessage,
) (bool, error) {
	if !status.Valid() || status == domain.RemoteStatusNone {
		return false, domain.ErrInvalidRemoteStatus
	}
	return r.recordRepo.UpdateStatus(ctx, id, status, result, r.now())
}

// ListInFlight lists records still waiting for delivery or remote processing.
func (r *recordUseCase) ListInFlight(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.Record, error) {
	return r.recordRepo.ListInFlight(ctx, userID, limit)
}
