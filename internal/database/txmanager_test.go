package database_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/healthsync/internal/database"
	"github.com/allisson/healthsync/internal/testutil"
)

func countRecords(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM records").Scan(&n))
	return n
}

func insertRecord(ctx context.Context, db *sql.DB) error {
	_, err := database.GetTx(ctx, db).ExecContext(ctx,
		`INSERT INTO records (id, user_id, record_type, metric, payload, sync_status, remote_status, recorded_at, created_at, updated_at)
		 VALUES (lower(hex(randomblob(16))), 'u1', 'mood_entry', '', '{}', 'pending', '', datetime('now'), datetime('now'), datetime('now'))`)
	return err
}

func TestWithTx_Success(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	txManager := database.NewTxManager(db)
	ctx := context.Background()

	err := txManager.WithTx(ctx, func(ctx context.Context) error {
		querier := database.GetTx(ctx, db)
		assert.IsType(t, &sql.Tx{}, querier)
		return insertRecord(ctx, db)
	})

	require.NoError(t, err)
	assert.Equal(t, 1, countRecords(t, db))
}

func TestWithTx_RollbackOnError(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	txManager := database.NewTxManager(db)
	ctx := context.Background()

	err := txManager.WithTx(ctx, func(ctx context.Context) error {
		require.NoError(t, insertRecord(ctx, db))
		return assert.AnError
	})

	assert.Equal(t, assert.AnError, err)
	assert.Equal(t, 0, countRecords(t, db))
}

func TestWithTx_NestedJoinsOuter(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	txManager := database.NewTxManager(db)
	ctx := context.Background()

	err := txManager.WithTx(ctx, func(outer context.Context) error {
		outerTx := database.GetTx(outer, db)
		innerErr := txManager.WithTx(outer, func(inner context.Context) error {
			assert.Same(t, outerTx, database.GetTx(inner, db))
			return insertRecord(inner, db)
		})
		require.NoError(t, innerErr)
		return assert.AnError
	})

	assert.Equal(t, assert.AnError, err)
	assert.Equal(t, 0, countRecords(t, db))
}

func TestGetTx_WithoutTransaction(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	querier := database.GetTx(context.Background(), db)

	assert.NotNil(t, querier)
	assert.Equal(t, db, querier)
}
