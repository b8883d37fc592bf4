package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/healthsync/internal/outbox/domain"
	"github.com/allisson/healthsync/internal/outbox/http/dto"
	recordHTTP "github.com/allisson/healthsync/internal/record/http"
)

type mockTrigger struct {
	mock.Mock
}

func (m *mockTrigger) Trigger() {
	m.Called()
}

type mockStatsReader struct {
	mock.Mock
}

func (m *mockStatsReader) Stats(ctx context.Context, userID uuid.UUID) (domain.StatusCounts, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.StatusCounts), args.Error(1)
}

func createTestContext(method, path string, userID uuid.UUID) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	req := httptest.NewRequest(method, path, nil)
	if userID != uuid.Nil {
		req = req.WithContext(recordHTTP.WithUserID(req.Context(), userID))
	}
	c.Request = req

	return c, w
}

func TestSyncHandler_TriggerHandler(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		trigger := &mockTrigger{}
		trigger.On("Trigger").Return().Once()
		handler := NewSyncHandler(trigger, &mockStatsReader{}, nil)

		c, w := createTestContext(http.MethodPost, "/v1/sync/trigger", uuid.Must(uuid.NewV7()))
		handler.TriggerHandler(c)

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.JSONEq(t, `{"status":"accepted"}`, w.Body.String())
		trigger.AssertExpectations(t)
	})

	t.Run("NoSession", func(t *testing.T) {
		trigger := &mockTrigger{}
		handler := NewSyncHandler(trigger, &mockStatsReader{}, nil)

		c, w := createTestContext(http.MethodPost, "/v1/sync/trigger", uuid.Nil)
		handler.TriggerHandler(c)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		trigger.AssertNotCalled(t, "Trigger")
	})
}

func TestSyncHandler_StatsHandler(t *testing.T) {
	userID := uuid.Must(uuid.NewV7())

	t.Run("Success", func(t *testing.T) {
		stats := &mockStatsReader{}
		stats.On("Stats", mock.Anything, userID).
			Return(domain.StatusCounts{
				domain.OutboxEventStatusPending: 3,
				domain.OutboxEventStatusFailed:  1,
			}, nil).
			Once()
		handler := NewSyncHandler(&mockTrigger{}, stats, nil)

		c, w := createTestContext(http.MethodGet, "/v1/sync/stats", userID)
		handler.StatsHandler(c)

		assert.Equal(t, http.StatusOK, w.Code)
		var response dto.SyncStatsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, dto.SyncStatsResponse{Pending: 3, Failed: 1}, response)
		stats.AssertExpectations(t)
	})

	t.Run("Error", func(t *testing.T) {
		stats := &mockStatsReader{}
		stats.On("Stats", mock.Anything, userID).Return(nil, errors.New("disk I/O error")).Once()
		handler := NewSyncHandler(&mockTrigger{}, stats, nil)

		c, w := createTestContext(http.MethodGet, "/v1/sync/stats", userID)
		handler.StatsHandler(c)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("NoSession", func(t *testing.T) {
		handler := NewSyncHandler(&mockTrigger{}, &mockStatsReader{}, nil)

		c, w := createTestContext(http.MethodGet, "/v1/sync/stats", uuid.Nil)
		handler.StatsHandler(c)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
