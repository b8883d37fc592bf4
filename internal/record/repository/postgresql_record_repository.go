package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/healthsync/internal/database"
	apperrors "github.com/allisson/healthsync/internal/errors"
	"github.com/allisson/healthsync/internal/record/domain"
)

// PostgreSQLRecordRepository implements Record persistence for PostgreSQL.
// Uses native UUID and JSONB types with transaction support via database.GetTx().
type PostgreSQLRecordRepository struct {
	db *sql.DB
}

// NewPostgreSQLRecordRepository creates a new PostgreSQL Record repository.
func NewPostgreSQLRecordRepository(db *sql.DB) *PostgreSQLRecordRepository {
	return &PostgreSQLRecordRepository{db: db}
}

// Save inserts the record unless another record of the same user already carries its
// source id. It returns the id of the stored record and whether this call created it.
func (p *PostgreSQLRecordRepository) Save(ctx context.Context, record *domain.Record) (uuid.UUID, bool, error) {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO records (` + recordColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			  ON CONFLICT (user_id, source_id) DO NOTHING`

	result, err := querier.ExecContext(
		ctx,
		query,
		record.ID,
		record.UserID,
		string(record.Type),
		record.Metric,
		jsonArg(record.Payload),
		record.SourceID,
		record.BackendID,
		string(record.SyncStatus),
		string(record.RemoteStatus),
		jsonArg(record.Result),
		record.RecordedAt,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return uuid.Nil, false, apperrors.Wrap(err, "failed to save record")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return uuid.Nil, false, apperrors.Wrap(err, "failed to save record")
	}
	if affected == 1 {
		return record.ID, true, nil
	}

	var existingID uuid.UUID
	err = querier.QueryRowContext(
		ctx,
		`SELECT id FROM records WHERE user_id = $1 AND source_id = $2`,
		record.UserID,
		record.SourceID,
	).Scan(&existingID)
	if err != nil {
		return uuid.Nil, false, apperrors.Wrap(err, "failed to resolve duplicate record")
	}

	return existingID, false, nil
}

// GetByID retrieves a record by id.
func (p *PostgreSQLRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Record, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + recordColumns + ` FROM records WHERE id = $1`

	record, err := scanRecord(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get record")
	}
	return record, nil
}

// GetByBackendID retrieves the record acknowledged by the backend under backendID.
func (p *PostgreSQLRecordRepository) GetByBackendID(ctx context.Context, backendID string) (*domain.Record, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + recordColumns + ` FROM records WHERE backend_id = $1 LIMIT 1`

	record, err := scanRecord(querier.QueryRowContext(ctx, query, backendID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get record by backend id")
	}
	return record, nil
}

// List retrieves the records of a user matching filter, newest first.
func (p *PostgreSQLRecordRepository) List(ctx context.Context, filter domain.Filter) ([]*domain.Record, error) {
	querier := database.GetTx(ctx, p.db)

	tail, args, err := listQuery(
		filter,
		dollarPlaceholder,
		func(id uuid.UUID) (any, error) { return id, nil },
		func(t time.Time) any { return t },
	)
	if err != nil {
		return nil, err
	}

	rows, err := querier.QueryContext(ctx, `SELECT `+recordColumns+` FROM records `+tail, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list records")
	}
	return collectRecords(rows)
}

// GetLatest retrieves the most recently created record of a user for a type and metric.
func (p *PostgreSQLRecordRepository) GetLatest(
	ctx context.Context,
	userID uuid.UUID,
	recordType domain.RecordType,
	metric string,
) (*domain.Record, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + recordColumns + ` FROM records
			  WHERE user_id = $1 AND record_type = $2 AND metric = $3
			  ORDER BY created_at DESC
			  LIMIT 1`

	record, err := scanRecord(querier.QueryRowContext(ctx, query, userID, string(recordType), metric))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get latest record")
	}
	return record, nil
}

// Update rewrites the user editable fields of a record along with its sync and remote state.
func (p *PostgreSQLRecordRepository) Update(ctx context.Context, record *domain.Record) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE records
			  SET metric = $1,
			      payload = $2,
			      sync_status = $3,
			      remote_status = $4,
			      result = $5,
			      recorded_at = $6,
			      updated_at = $7
			  WHERE id = $8`

	result, err := querier.ExecContext(
		ctx,
		query,
		record.Metric,
		jsonArg(record.Payload),
		string(record.SyncStatus),
		string(record.RemoteStatus),
		jsonArg(record.Result),
		record.RecordedAt,
		record.UpdatedAt,
		record.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update record")
	}
	return requireAffected(result, "failed to update record")
}

// MarkSynced stores the backend id and flags the record as synced. A remote status that
// already reached a terminal value is kept.
func (p *PostgreSQLRecordRepository) MarkSynced(
	ctx context.Context,
	id uuid.UUID,
	backendID string,
	remoteStatus domain.RemoteStatus,
	now time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE records
			  SET backend_id = $1,
			      sync_status = $2,
			      remote_status = CASE WHEN remote_status IN ($3, $4) THEN remote_status ELSE $5 END,
			      updated_at = $6
			  WHERE id = $7`

	result, err := querier.ExecContext(
		ctx,
		query,
		backendID,
		string(domain.SyncStatusSynced),
		string(domain.RemoteStatusCompleted),
		string(domain.RemoteStatusFailed),
		string(remoteStatus),
		now,
		id,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark record synced")
	}
	return requireAffected(result, "failed to mark record synced")
}

// MarkSyncFailed flags a record whose delivery was abandoned.
func (p *PostgreSQLRecordRepository) MarkSyncFailed(ctx context.Context, id uuid.UUID, now time.Time) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE records SET sync_status = $1, updated_at = $2 WHERE id = $3`

	result, err := querier.ExecContext(ctx, query, string(domain.SyncStatusFailed), now, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark record sync failed")
	}
	return requireAffected(result, "failed to mark record sync failed")
}

// UpdateStatus applies a remote status in a single statement. A nil result keeps the stored
// one, and a terminal status is never moved back to processing. It reports whether the
// row changed.
func (p *PostgreSQLRecordRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.RemoteStatus,
	result []byte,
	now time.Time,
) (bool, error) {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE records
			  SET remote_status = $1,
			      result = COALESCE($2, result),
			      updated_at = $3
			  WHERE id = $4`
	args := []any{string(status), jsonArg(result), now, id}

	if status == domain.RemoteStatusProcessing {
		query += ` AND remote_status NOT IN ($5, $6)`
		args = append(args, string(domain.RemoteStatusCompleted), string(domain.RemoteStatusFailed))
	}

	res, err := querier.ExecContext(ctx, query, args...)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to update record status")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.Wrap(err, "failed to update record status")
	}
	return affected > 0, nil
}

// ListInFlight retrieves records of a user still waiting for delivery or remote processing.
func (p *PostgreSQLRecordRepository) ListInFlight(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
) ([]*domain.Record, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT ` + recordColumns + ` FROM records
			  WHERE user_id = $1 AND (sync_status = $2 OR remote_status = $3)
			  ORDER BY created_at ASC
			  LIMIT $4`

	rows, err := querier.QueryContext(
		ctx,
		query,
		userID,
		string(domain.SyncStatusPending),
		string(domain.RemoteStatusProcessing),
		limit,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list in-flight records")
	}
	return collectRecords(rows)
}
