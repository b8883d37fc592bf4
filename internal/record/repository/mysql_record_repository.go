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

// MySQLRecordRepository implements Record persistence for MySQL.
// Uses BINARY(16) for UUID storage and JSON columns with transaction support via database.GetTx().
type MySQLRecordRepository struct {
	db *sql.DB
}

// NewMySQLRecordRepository creates a new MySQL Record repository.
func NewMySQLRecordRepository(db *sql.DB) *MySQLRecordRepository {
	return &MySQLRecordRepository{db: db}
}

// Save inserts the record unless another record of the same user already carries its
// source id. It returns the id of the stored record and whether this call created it.
func (m *MySQLRecordRepository) Save(ctx context.Context, record *domain.Record) (uuid.UUID, bool, error) {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO records (` + recordColumns + `)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE id = id`

	result, err := querier.ExecContext(
		ctx,
		query,
		binaryID(record.ID),
		binaryID(record.UserID),
		string(record.Type),
		record.Metric,
		jsonArg(record.Payload),
		record.SourceID,
		record.BackendID,
		string(record.SyncStatus),
		string(record.RemoteStatus),
		jsonArg(record.Result),
		record.RecordedAt.UTC(),
		record.CreatedAt.UTC(),
		record.UpdatedAt.UTC(),
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
		`SELECT id FROM records WHERE user_id = ? AND source_id = ?`,
		binaryID(record.UserID),
		record.SourceID,
	).Scan(&existingID)
	if err != nil {
		return uuid.Nil, false, apperrors.Wrap(err, "failed to resolve duplicate record")
	}

	return existingID, false, nil
}

// GetByID retrieves a record by id.
func (m *MySQLRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Record, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + recordColumns + ` FROM records WHERE id = ?`

	record, err := scanRecord(querier.QueryRowContext(ctx, query, binaryID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get record")
	}
	return record, nil
}

// GetByBackendID retrieves the record acknowledged by the backend under backendID.
func (m *MySQLRecordRepository) GetByBackendID(ctx context.Context, backendID string) (*domain.Record, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + recordColumns + ` FROM records WHERE backend_id = ? LIMIT 1`

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
func (m *MySQLRecordRepository) List(ctx context.Context, filter domain.Filter) ([]*domain.Record, error) {
	querier := database.GetTx(ctx, m.db)

	tail, args, err := listQuery(
		filter,
		questionPlaceholder,
		func(id uuid.UUID) (any, error) { return binaryID(id), nil },
		func(t time.Time) any { return t.UTC() },
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
func (m *MySQLRecordRepository) GetLatest(
	ctx context.Context,
	userID uuid.UUID,
	recordType domain.RecordType,
	metric string,
) (*domain.Record, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + recordColumns + ` FROM records
			  WHERE user_id = ? AND record_type = ? AND metric = ?
			  ORDER BY created_at DESC
			  LIMIT 1`

	record, err := scanRecord(querier.QueryRowContext(ctx, query, binaryID(userID), string(recordType), metric))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get latest record")
	}
	return record, nil
}

// Update rewrites the user editable fields of a record along with its sync and remote state.
func (m *MySQLRecordRepository) Update(ctx context.Context, record *domain.Record) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE records
			  SET metric = ?,
			      payload = ?,
			      sync_status = ?,
			      remote_status = ?,
			      result = ?,
			      recorded_at = ?,
			      updated_at = ?
			  WHERE id = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		record.Metric,
		jsonArg(record.Payload),
		string(record.SyncStatus),
		string(record.RemoteStatus),
		jsonArg(record.Result),
		record.RecordedAt.UTC(),
		record.UpdatedAt.UTC(),
		binaryID(record.ID),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update record")
	}
	return requireAffected(result, "failed to update record")
}

// MarkSynced stores the backend id and flags the record as synced. A remote status that
// already reached a terminal value is kept.
func (m *MySQLRecordRepository) MarkSynced(
	ctx context.Context,
	id uuid.UUID,
	backendID string,
	remoteStatus domain.RemoteStatus,
	now time.Time,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE records
			  SET backend_id = ?,
			      sync_status = ?,
			      remote_status = CASE WHEN remote_status IN (?, ?) THEN remote_status ELSE ? END,
			      updated_at = ?
			  WHERE id = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		backendID,
		string(domain.SyncStatusSynced),
		string(domain.RemoteStatusCompleted),
		string(domain.RemoteStatusFailed),
		string(remoteStatus),
		now.UTC(),
		binaryID(id),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark record synced")
	}
	return requireAffected(result, "failed to mark record synced")
}

// MarkSyncFailed flags a record whose delivery was abandoned.
func (m *MySQLRecordRepository) MarkSyncFailed(ctx context.Context, id uuid.UUID, now time.Time) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE records SET sync_status = ?, updated_at = ? WHERE id = ?`

	result, err := querier.ExecContext(ctx, query, string(domain.SyncStatusFailed), now.UTC(), binaryID(id))
	if err != nil {
		return apperrors.Wrap(err, "failed to mark record sync failed")
	}
	return requireAffected(result, "failed to mark record sync failed")
}

// UpdateStatus applies a remote status in a single statement. A nil result keeps the stored
// one, and a terminal status is never moved back to processing. It reports whether the
// row changed.
func (m *MySQLRecordRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.RemoteStatus,
	result []byte,
	now time.Time,
) (bool, error) {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE records
			  SET remote_status = ?,
			      result = COALESCE(?, result),
			      updated_at = ?
			  WHERE id = ?`
	args := []any{string(status), jsonArg(result), now.UTC(), binaryID(id)}

	if status == domain.RemoteStatusProcessing {
		query += ` AND remote_status NOT IN (?, ?)`
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
func (m *MySQLRecordRepository) ListInFlight(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
) ([]*domain.Record, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT ` + recordColumns + ` FROM records
			  WHERE user_id = ? AND (sync_status = ? OR remote_status = ?)
			  ORDER BY created_at ASC
			  LIMIT ?`

	rows, err := querier.QueryContext(
		ctx,
		query,
		binaryID(userID),
		string(domain.SyncStatusPending),
		string(domain.RemoteStatusProcessing),
		limit,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list in-flight records")
	}
	return collectRecords(rows)
}

// binaryID converts a UUID into its BINARY(16) column representation.
func binaryID(id uuid.UUID) []byte {
	return id[:]
}
