package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allisson/healthsync/internal/config"
	outboxDomain "github.com/allisson/healthsync/internal/outbox/domain"
	outboxHTTP "github.com/allisson/healthsync/internal/outbox/http"
	"github.com/allisson/healthsync/internal/push"
	recordDomain "github.com/allisson/healthsync/internal/record/domain"
	recordHTTP "github.com/allisson/healthsync/internal/record/http"
	"github.com/allisson/healthsync/internal/record/usecase/mocks"
	"github.com/allisson/healthsync/internal/session"
	"github.com/allisson/healthsync/internal/testutil"
)

type countingTrigger struct {
	calls int
}

func (t *countingTrigger) Trigger() {
	t.calls++
}

type fixedStats struct {
	counts outboxDomain.StatusCounts
}

func (s fixedStats) Stats(ctx context.Context, userID uuid.UUID) (outboxDomain.StatusCounts, error) {
	return s.counts, nil
}

type routerFixture struct {
	router   http.Handler
	session  *session.Session
	records  *mocks.MockRecordUseCase
	trigger  *countingTrigger
	notifier *push.Notifier
}

func setupRouter(t *testing.T) *routerFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &routerFixture{
		session:  session.New(),
		records:  mocks.NewMockRecordUseCase(t),
		trigger:  &countingTrigger{},
		notifier: push.NewNotifier(),
	}

	server := NewServer(nil, "localhost", 0, logger)
	server.SetupRouter(
		&config.Config{MetricsNamespace: "test_app"},
		f.session,
		recordHTTP.NewRecordHandler(f.records, logger),
		outboxHTTP.NewSyncHandler(f.trigger, fixedStats{counts: outboxDomain.StatusCounts{
			outboxDomain.OutboxEventStatusPending: 2,
		}}, logger),
		NewSessionHandler(f.session, f.trigger.Trigger, logger),
		NewEventsHandler(f.notifier, 0, logger),
		nil,
	)
	f.router = server.GetHandler()
	return f
}

func (f *routerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestReadinessHandler_Ready(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	server := NewServer(db, "localhost", 8080, slog.New(slog.NewTextHandler(io.Discard, nil)))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)

	server.readinessHandler(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready","components":{"database":"ok"}}`, w.Body.String())
}

func TestServer_StartWithoutRouter(t *testing.T) {
	server := createTestServer()

	err := server.Start(context.Background())

	assert.Error(t, err)
}

func TestSessionHandler(t *testing.T) {
	t.Run("LoginLogout", func(t *testing.T) {
		f := setupRouter(t)
		userID := uuid.Must(uuid.NewV7())

		w := f.do(http.MethodGet, "/v1/session", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"logged_in":false}`, w.Body.String())

		w = f.do(http.MethodPut, "/v1/session", `{"user_id":"`+userID.String()+`"}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"logged_in":true,"user_id":"`+userID.String()+`"}`, w.Body.String())
		assert.Equal(t, 1, f.trigger.calls)

		current, ok := f.session.CurrentUserID()
		assert.True(t, ok)
		assert.Equal(t, userID, current)

		w = f.do(http.MethodDelete, "/v1/session", "")
		assert.Equal(t, http.StatusNoContent, w.Code)
		_, ok = f.session.CurrentUserID()
		assert.False(t, ok)
	})

	t.Run("InvalidUserID", func(t *testing.T) {
		f := setupRouter(t)

		for _, body := range []string{`{}`, `{"user_id":"abc"}`, `{"user_id":"` + uuid.Nil.String() + `"}`} {
			w := f.do(http.MethodPut, "/v1/session", body)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code, body)
		}
		assert.Equal(t, 0, f.trigger.calls)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		f := setupRouter(t)

		w := f.do(http.MethodPut, "/v1/session", `{"user_id":`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRouter_RecordRoutesRequireSession(t *testing.T) {
	f := setupRouter(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/v1/records"},
		{http.MethodGet, "/v1/records"},
		{http.MethodGet, "/v1/records/latest?type=mood_entry"},
		{http.MethodGet, "/v1/records/" + uuid.Must(uuid.NewV7()).String()},
		{http.MethodPut, "/v1/records/" + uuid.Must(uuid.NewV7()).String()},
		{http.MethodPost, "/v1/sync/trigger"},
		{http.MethodGet, "/v1/sync/stats"},
		{http.MethodGet, "/v1/events"},
	} {
		w := f.do(route.method, route.path, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, route.path)
	}
}

func TestRouter_LoggedIn(t *testing.T) {
	f := setupRouter(t)
	userID := uuid.Must(uuid.NewV7())
	f.session.Login(userID)

	t.Run("LatestIsNotAnID", func(t *testing.T) {
		record := &recordDomain.Record{
			ID:         uuid.Must(uuid.NewV7()),
			UserID:     userID,
			Type:       recordDomain.RecordTypeMoodEntry,
			Payload:    json.RawMessage(`{"score":4}`),
			SyncStatus: recordDomain.SyncStatusSynced,
		}
		f.records.On("FetchLatest", mock.Anything, userID, recordDomain.RecordTypeMoodEntry, "").
			Return(record, nil).
			Once()

		w := f.do(http.MethodGet, "/v1/records/latest?type=mood_entry", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), record.ID.String())
	})

	t.Run("SyncStats", func(t *testing.T) {
		w := f.do(http.MethodGet, "/v1/sync/stats", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"pending":2,"processing":0,"completed":0,"failed":0}`, w.Body.String())
	})

	t.Run("SyncTrigger", func(t *testing.T) {
		before := f.trigger.calls

		w := f.do(http.MethodPost, "/v1/sync/trigger", "")

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, before+1, f.trigger.calls)
	})
}

func TestEventsHandler_Stream(t *testing.T) {
	f := setupRouter(t)
	userID := uuid.Must(uuid.NewV7())
	f.session.Login(userID)

	server := httptest.NewServer(f.router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	require.Eventually(t, func() bool { return f.notifier.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)

	recordID := uuid.Must(uuid.NewV7())
	f.notifier.Notify(push.RefreshSignal{UserID: uuid.Must(uuid.NewV7()), RecordID: uuid.Must(uuid.NewV7())})
	// Let the handler drain the foreign signal before the next one replaces it.
	time.Sleep(50 * time.Millisecond)
	f.notifier.Notify(push.RefreshSignal{
		UserID:   userID,
		RecordID: recordID,
		Type:     recordDomain.RecordTypeSleepSession,
	})

	reader := bufio.NewReader(resp.Body)
	var event, data string
	for event == "" || data == "" {
		line, err := reader.ReadBytes('\n')
		require.NoError(t, err)
		line = bytes.TrimSpace(line)
		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			event = string(bytes.TrimSpace(bytes.TrimPrefix(line, []byte("event:"))))
		case bytes.HasPrefix(line, []byte("data:")):
			data = string(bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:"))))
		}
	}

	assert.Equal(t, "refresh", event)
	assert.JSONEq(t, `{"record_id":"`+recordID.String()+`","type":"sleep_session"}`, data)

	cancel()
	assert.Eventually(t, func() bool { return f.notifier.Subscribers() == 0 }, 2*time.Second, 5*time.Millisecond)
}
