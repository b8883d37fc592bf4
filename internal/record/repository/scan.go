// Package repository implements Event Store persistence for domain records.
//
// Provides PostgreSQL, MySQL and SQLite implementations with transaction support via
// database.GetTx(). PostgreSQL uses native UUID and JSONB types, MySQL uses BINARY(16) and
// JSON, SQLite stores both as TEXT. Enum values are stored as their string form and parsed
// back into domain types here, never in business logic.
package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/healthsync/internal/errors"
	"github.com/allisson/healthsync/internal/record/domain"
)

const (
	recordColumns = `id, user_id, record_type, metric, payload, source_id, backend_id, sync_status,
			  remote_status, result, recorded_at, created_at, updated_at`

	defaultListLimit = 100
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one row selected with recordColumns and converts persisted strings
// into domain enums.
func scanRecord(row rowScanner) (*domain.Record, error) {
	var (
		record       domain.Record
		recordType   string
		syncStatus   string
		remoteStatus string
		payload      []byte
		result       []byte
	)

	err := row.Scan(
		&record.ID,
		&record.UserID,
		&recordType,
		&record.Metric,
		&payload,
		&record.SourceID,
		&record.BackendID,
		&syncStatus,
		&remoteStatus,
		&result,
		&record.RecordedAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if record.Type, err = domain.ParseRecordType(recordType); err != nil {
		return nil, err
	}
	if record.SyncStatus, err = domain.ParseSyncStatus(syncStatus); err != nil {
		return nil, err
	}
	if record.RemoteStatus, err = domain.ParseRemoteStatus(remoteStatus); err != nil {
		return nil, err
	}

	record.Payload = json.RawMessage(payload)
	if len(result) > 0 {
		record.Result = json.RawMessage(result)
	}

	return &record, nil
}

// jsonArg binds a JSON document as text so every driver accepts it for JSON, JSONB and TEXT columns.
func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// listQuery builds the WHERE/ORDER/LIMIT tail of a filtered record query.
// placeholder renders the n-th (1-based) bind parameter and encode converts uuids into
// the driver's storage representation.
func listQuery(
	filter domain.Filter,
	placeholder func(n int) string,
	encode func(id uuid.UUID) (any, error),
	encodeTime func(t time.Time) any,
) (string, []any, error) {
	userID, err := encode(filter.UserID)
	if err != nil {
		return "", nil, err
	}

	args := []any{userID}
	conditions := []string{"user_id = " + placeholder(1)}

	add := func(column string, op string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s %s %s", column, op, placeholder(len(args))))
	}

	if filter.Type != "" {
		add("record_type", "=", string(filter.Type))
	}
	if filter.Metric != "" {
		add("metric", "=", filter.Metric)
	}
	if filter.SyncStatus != "" {
		add("sync_status", "=", string(filter.SyncStatus))
	}
	if filter.From != nil {
		add("recorded_at", ">=", encodeTime(*filter.From))
	}
	if filter.To != nil {
		add("recorded_at", "<", encodeTime(*filter.To))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	args = append(args, limit)
	limitPlaceholder := placeholder(len(args))
	args = append(args, offset)
	offsetPlaceholder := placeholder(len(args))

	query := fmt.Sprintf(
		"WHERE %s ORDER BY recorded_at DESC, created_at DESC LIMIT %s OFFSET %s",
		strings.Join(conditions, " AND "),
		limitPlaceholder,
		offsetPlaceholder,
	)

	return query, args, nil
}

func dollarPlaceholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func questionPlaceholder(int) string {
	return "?"
}

// collectRecords scans and closes rows.
func collectRecords(rows *sql.Rows) ([]*domain.Record, error) {
	defer rows.Close() //nolint:errcheck

	records := make([]*domain.Record, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan record")
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate records")
	}

	return records, nil
}

// requireAffected maps an UPDATE that matched no row to ErrRecordNotFound.
func requireAffected(result sql.Result, message string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, message)
	}
	if affected == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}
