package commands

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	recordDomain "github.com/allisson/healthsync/internal/record/domain"
	"github.com/allisson/healthsync/internal/syncpolicy"
)

type mockSyncer struct {
	mock.Mock
}

func (m *mockSyncer) SyncMetric(
	ctx context.Context,
	userID uuid.UUID,
	key syncpolicy.MetricKey,
) (*syncpolicy.SyncReport, error) {
	args := m.Called(ctx, userID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncpolicy.SyncReport), args.Error(1)
}

func TestRunSyncMetric(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()
	userID := uuid.New()
	key := syncpolicy.MetricKey{Type: recordDomain.RecordTypePhysicalAttribute, Metric: "weight"}

	t.Run("synced-text", func(t *testing.T) {
		syncer := &mockSyncer{}
		syncer.On("SyncMetric", ctx, userID, key).
			Return(&syncpolicy.SyncReport{Fetched: 5, Created: 3, Duplicates: 2}, nil)

		var out bytes.Buffer
		err := RunSyncMetric(ctx, syncer, logger, &out, userID.String(), "physical_attribute", "weight", "text")

		require.NoError(t, err)
		assert.Contains(t, out.String(), "Synced physical_attribute/weight: 5 fetched, 3 created, 2 duplicate(s), 0 rejected")
		syncer.AssertExpectations(t)
	})

	t.Run("skipped-text", func(t *testing.T) {
		syncer := &mockSyncer{}
		syncer.On("SyncMetric", ctx, userID, key).Return(&syncpolicy.SyncReport{Skipped: true}, nil)

		var out bytes.Buffer
		err := RunSyncMetric(ctx, syncer, logger, &out, userID.String(), "physical_attribute", "weight", "text")

		require.NoError(t, err)
		assert.Contains(t, out.String(), "Skipped physical_attribute/weight")
	})

	t.Run("json-output", func(t *testing.T) {
		syncer := &mockSyncer{}
		syncer.On("SyncMetric", ctx, userID, key).Return(&syncpolicy.SyncReport{Fetched: 1, Created: 1}, nil)

		var out bytes.Buffer
		err := RunSyncMetric(ctx, syncer, logger, &out, userID.String(), "physical_attribute", "weight", "json")

		require.NoError(t, err)
		assert.Contains(t, out.String(), `"metric": "physical_attribute/weight"`)
		assert.Contains(t, out.String(), `"created": 1`)
		assert.Contains(t, out.String(), `"skipped": false`)
	})

	t.Run("invalid-type", func(t *testing.T) {
		syncer := &mockSyncer{}

		err := RunSyncMetric(ctx, syncer, logger, &bytes.Buffer{}, userID.String(), "steps", "", "text")

		require.Error(t, err)
		assert.ErrorIs(t, err, recordDomain.ErrInvalidRecordType)
		syncer.AssertNotCalled(t, "SyncMetric", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("sync-error", func(t *testing.T) {
		syncer := &mockSyncer{}
		syncer.On("SyncMetric", ctx, userID, key).Return(nil, errors.New("bridge unavailable"))

		err := RunSyncMetric(ctx, syncer, logger, &bytes.Buffer{}, userID.String(), "physical_attribute", "weight", "text")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to sync metric")
	})
}
