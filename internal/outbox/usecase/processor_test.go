package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/allisson/healthsync/internal/database"
	"github.com/allisson/healthsync/internal/outbox/domain"
	outboxRepository "github.com/allisson/healthsync/internal/outbox/repository"
	recordDomain "github.com/allisson/healthsync/internal/record/domain"
	recordRepository "github.com/allisson/healthsync/internal/record/repository"
	"github.com/allisson/healthsync/internal/session"
	"github.com/allisson/healthsync/internal/testutil"
)

type dispatchFunc func(ctx context.Context, event *domain.OutboxEvent, record *recordDomain.Record) (*domain.Delivery, error)

// stubDispatcher records every dispatched event and delegates to fn.
type stubDispatcher struct {
	mu     sync.Mutex
	calls  []*domain.OutboxEvent
	fn     dispatchFunc
	active atomic.Int32
	peak   atomic.Int32
}

func (s *stubDispatcher) Dispatch(
	ctx context.Context,
	event *domain.OutboxEvent,
	record *recordDomain.Record,
) (*domain.Delivery, error) {
	active := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		peak := s.peak.Load()
		if active <= peak || s.peak.CompareAndSwap(peak, active) {
			break
		}
	}

	s.mu.Lock()
	s.calls = append(s.calls, event)
	s.mu.Unlock()

	return s.fn(ctx, event, record)
}

func (s *stubDispatcher) Calls() []*domain.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.OutboxEvent(nil), s.calls...)
}

func ackWith(backendID string) dispatchFunc {
	return func(context.Context, *domain.OutboxEvent, *recordDomain.Record) (*domain.Delivery, error) {
		return &domain.Delivery{BackendID: backendID, ServerTimestamp: time.Now()}, nil
	}
}

type processorFixture struct {
	processor  *Processor
	queue      *Queue
	records    *recordRepository.SQLiteRecordRepository
	events     *outboxRepository.SQLiteOutboxEventRepository
	dispatcher *stubDispatcher
	session    *session.Session
	userID     uuid.UUID
	clock      *time.Time
}

func setupProcessor(t *testing.T, config ProcessorConfig, fn dispatchFunc) *processorFixture {
	t.Helper()

	db := testutil.SetupSQLiteDB(t)
	t.Cleanup(func() { testutil.TeardownDB(t, db) })

	clock := time.Now().UTC()
	events := outboxRepository.NewSQLiteOutboxEventRepository(db)
	queue := NewQueue(testQueueConfig, events)
	queue.now = func() time.Time { return clock }

	records := recordRepository.NewSQLiteRecordRepository(db)
	dispatcher := &stubDispatcher{fn: fn}

	userID := uuid.Must(uuid.NewV7())
	sess := session.New()
	sess.Login(userID)

	processor := NewProcessor(config, database.NewTxManager(db), queue, records, dispatcher, sess, nil, nil)

	return &processorFixture{
		processor:  processor,
		queue:      queue,
		records:    records,
		events:     events,
		dispatcher: dispatcher,
		session:    sess,
		userID:     userID,
		clock:      &clock,
	}
}

// saveRecord stores a pending record and its create event.
func (f *processorFixture) saveRecord(t *testing.T, payload string) (*recordDomain.Record, *domain.OutboxEvent) {
	t.Helper()

	now := *f.clock
	record := &recordDomain.Record{
		ID:         uuid.Must(uuid.NewV7()),
		UserID:     f.userID,
		Type:       recordDomain.RecordTypePhysicalAttribute,
		Metric:     "weight",
		Payload:    json.RawMessage(payload),
		SyncStatus: recordDomain.SyncStatusPending,
		RecordedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, _, err := f.records.Save(context.Background(), record)
	require.NoError(t, err)

	event := f.enqueue(t, record, domain.OperationCreate)
	return record, event
}

func (f *processorFixture) enqueue(t *testing.T, record *recordDomain.Record, op domain.Operation) *domain.OutboxEvent {
	t.Helper()

	event, err := f.queue.CreateEvent(
		context.Background(),
		domain.NewEventType(record.Type, op),
		record.ID,
		record.UserID,
		0,
	)
	require.NoError(t, err)
	return event
}

func (f *processorFixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func defaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Interval:        time.Hour,
		BatchSize:       10,
		Concurrency:     3,
		CallTimeout:     time.Second,
		RetentionPeriod: 168 * time.Hour,
		PurgeInterval:   time.Hour,
	}
}

func TestProcessor_ProcessEvents_Delivers(t *testing.T) {
	f := setupProcessor(t, defaultProcessorConfig(), ackWith("abc"))
	ctx := context.Background()

	record, event := f.saveRecord(t, `{"quantity":72.5,"unit":"kg"}`)

	summary, err := f.processor.ProcessEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Fetched: 1, Completed: 1}, summary)

	got, err := f.records.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, recordDomain.SyncStatusSynced, got.SyncStatus)
	require.NotNil(t, got.BackendID)
	assert.Equal(t, "abc", *got.BackendID)
	assert.Equal(t, recordDomain.RemoteStatusProcessing, got.RemoteStatus)

	stored, err := f.events.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxEventStatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)

	// Nothing is left to deliver.
	summary, err = f.processor.ProcessEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	assert.Len(t, f.dispatcher.Calls(), 1)
}

func TestProcessor_ProcessEvents_TransientFailuresBackOff(t *testing.T) {
	timeout := errors.New("i/o timeout")
	f := setupProcessor(t, defaultProcessorConfig(),
		func(context.Context, *domain.OutboxEvent, *recordDomain.Record) (*domain.Delivery, error) {
			return nil, timeout
		})
	ctx := context.Background()

	record, event := f.saveRecord(t, `{"quantity":72.5,"unit":"kg"}`)

	var previousRetry time.Time
	for attempt := 1; attempt <= 3; attempt++ {
		summary, err := f.processor.ProcessEvents(ctx)
		require.NoError(t, err)
		assert.Equal(t, Summary{Fetched: 1, Retried: 1}, summary)

		stored, err := f.events.GetByID(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OutboxEventStatusPending, stored.Status)
		assert.Equal(t, attempt, stored.AttemptCount)
		require.NotNil(t, stored.NextRetryAt)
		assert.True(t, stored.NextRetryAt.After(previousRetry))
		previousRetry = *stored.NextRetryAt

		// Not eligible until the backoff elapses.
		summary, err = f.processor.ProcessEvents(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, summary.Fetched)

		if attempt < 3 {
			*f.clock = stored.NextRetryAt.Add(time.Millisecond)
		}
	}

	stored, err := f.events.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, f.clock.Add(4*time.Second), *stored.NextRetryAt, time.Millisecond)

	for attempt := 4; attempt <= 5; attempt++ {
		*f.clock = stored.NextRetryAt.Add(time.Millisecond)
		_, err := f.processor.ProcessEvents(ctx)
		require.NoError(t, err)

		stored, err = f.events.GetByID(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, attempt, stored.AttemptCount)
	}

	assert.Equal(t, domain.OutboxEventStatusFailed, stored.Status)
	assert.Nil(t, stored.NextRetryAt)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "i/o timeout", *stored.ErrorMessage)

	got, err := f.records.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, recordDomain.SyncStatusFailed, got.SyncStatus)

	// Terminal events are never retried.
	f.advance(24 * time.Hour)
	summary, err := f.processor.ProcessEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Fetched)
	assert.Len(t, f.dispatcher.Calls(), 5)
}

func TestProcessor_ProcessEvents_PermanentFailure(t *testing.T) {
	f := setupProcessor(t, defaultProcessorConfig(),
		func(context.Context, *domain.OutboxEvent, *recordDomain.Record) (*domain.Delivery, error) {
			return nil, domain.NewPermanentError(errors.New("422: quantity out of range"))
		})
	ctx := context.Background()

	record, event := f.saveRecord(t, `{"quantity":-1,"unit":"kg"}`)

	summary, err := f.processor.ProcessEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Fetched: 1, Failed: 1}, summary)

	stored, err := f.events.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxEventStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.AttemptCount)
	assert.Nil(t, stored.NextRetryAt)

	got, err := f.records.GetByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, recordDomain.SyncStatusFailed, got.SyncStatus)
}

func TestProcessor_ProcessEvents_EntityNotFound(t *testing.T) {
	f := setupProcessor(t, defaultProcessorConfig(), ackWith("abc"))
	ctx := context.Background()

	orphan := &recordDomain.Record{
		ID:     uuid.Must(uuid.NewV7()),
		UserID: f.userID,
		Type:   recordDomain.RecordTypeMoodEntry,
	}
	event := f.enqueue(t, orphan, domain.OperationCreate)

	summary, err := f.processor.ProcessEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Fetched: 1, Failed: 1}, summary)
	assert.Empty(t, f.dispatcher.Calls())

	stored, err := f.events.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxEventStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "entity not found")
}

func TestProcessor_ProcessEvents_NoUser(t *testing.T) {
	f := setupProcessor(t, defaultProcessorConfig(), ackWith("abc"))
	_, event := f.saveRecord(t, `{"quantity":72.5,"unit":"kg"}`)
	f.session.Logout()

	summary, err := f.processor.ProcessEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	assert.Empty(t, f.dispatcher.Calls())

	stored, err := f.events.GetByID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxEventStatusPending, stored.Status)
}

func TestProcessor_ProcessEvents_Busy(t *testing.T) {
	f := setupProcessor(t, defaultProcessorConfig(), ackWith("abc"))

	f.processor.running.Store(true)
	_, err := f.processor.ProcessEvents(context.Background())
	assert.ErrorIs(t, err, ErrProcessorBusy)

	f.processor.running.Store(false)
	_, err = f.processor.ProcessEvents(context.Background())
	assert.NoError(t, err)
}

func TestProcessor_ProcessEvents_OrdersEventsPerEntity(t *testing.T) {
	f := setupProcessor(t, defaultProcessorConfig(),
		func(context.Context, *domain.OutboxEvent, *recordDomain.Record) (*domain.Delivery, error) {
			time.Sleep(5 * time.Millisecond)
			return &domain.Delivery{BackendID: uuid.NewString()}, nil
		})
	ctx := context.Background()

	var records []*recordDomain.Record
	for i := 0; i < 4; i++ {
		record, _ := f.saveRecord(t, `{"quantity":1,"unit":"kg"}`)
		records = append(records, record)
		f.advance(time.Millisecond)
	}
	for _, record := range records {
		f.enqueue(t, record, domain.OperationUpdate)
		f.advance(time.Millisecond)
	}

	summary, err := f.processor.ProcessEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Fetched: 8, Completed: 8}, summary)

	seen := make(map[uuid.UUID][]domain.EventType)
	for _, call := range f.dispatcher.Calls() {
		seen[call.EntityID] = append(seen[call.EntityID], call.EventType)
	}
	for _, record := range records {
		assert.Equal(t, []domain.EventType{
			domain.NewEventType(record.Type, domain.OperationCreate),
			domain.NewEventType(record.Type, domain.OperationUpdate),
		}, seen[record.ID])
	}
	assert.LessOrEqual(t, f.dispatcher.peak.Load(), int32(3))
}

func TestProcessor_ProcessEvents_StopsGroupAfterFailure(t *testing.T) {
	f := setupProcessor(t, defaultProcessorConfig(),
		func(_ context.Context, event *domain.OutboxEvent, _ *recordDomain.Record) (*domain.Delivery, error) {
			return nil, errors.New("503 service unavailable")
		})
	ctx := context.Background()

	record, _ := f.saveRecord(t, `{"quantity":1,"unit":"kg"}`)
	update := f.enqueue(t, record, domain.OperationUpdate)

	summary, err := f.processor.ProcessEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Fetched: 2, Retried: 1, Skipped: 1}, summary)
	assert.Len(t, f.dispatcher.Calls(), 1)

	stored, err := f.events.GetByID(ctx, update.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxEventStatusPending, stored.Status)
	assert.Equal(t, 0, stored.AttemptCount)
}

func TestProcessor_ProcessEvents_LogoutMidBatch(t *testing.T) {
	config := defaultProcessorConfig()
	config.Concurrency = 1

	var f *processorFixture
	f = setupProcessor(t, config,
		func(context.Context, *domain.OutboxEvent, *recordDomain.Record) (*domain.Delivery, error) {
			f.session.Logout()
			return &domain.Delivery{BackendID: "first"}, nil
		})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f.saveRecord(t, `{"quantity":1,"unit":"kg"}`)
		f.advance(time.Millisecond)
	}

	summary, err := f.processor.ProcessEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Fetched: 3, Completed: 1, Skipped: 2}, summary)

	counts, err := f.queue.Stats(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[domain.OutboxEventStatusPending])
	assert.Equal(t, int64(1), counts[domain.OutboxEventStatusCompleted])
}

func TestProcessor_ProcessEvents_CallTimeout(t *testing.T) {
	config := defaultProcessorConfig()
	config.CallTimeout = 20 * time.Millisecond

	f := setupProcessor(t, config,
		func(ctx context.Context, _ *domain.OutboxEvent, _ *recordDomain.Record) (*domain.Delivery, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	_, event := f.saveRecord(t, `{"quantity":1,"unit":"kg"}`)

	summary, err := f.processor.ProcessEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Retried)

	stored, err := f.events.GetByID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxEventStatusPending, stored.Status)
	assert.Equal(t, 1, stored.AttemptCount)
}

func TestProcessor_Start(t *testing.T) {
	// Registered before the fixture so it runs after the database is closed.
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })

	f := setupProcessor(t, defaultProcessorConfig(), ackWith("abc"))
	_, event := f.saveRecord(t, `{"quantity":72.5,"unit":"kg"}`)

	// Simulate an event stranded in processing by a crash.
	claimed, err := f.events.Claim(context.Background(), event.ID, f.clock.Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, claimed)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.processor.Start(ctx)
	}()

	f.processor.Trigger()

	assert.Eventually(t, func() bool {
		stored, err := f.events.GetByID(context.Background(), event.ID)
		return err == nil && stored.Status == domain.OutboxEventStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("processor did not stop")
	}
}

func TestProcessor_ProcessEvents_ReclaimsOnlyStaleClaims(t *testing.T) {
	f := setupProcessor(t, defaultProcessorConfig(), ackWith("abc"))
	ctx := context.Background()

	_, stale := f.saveRecord(t, `{"quantity":70,"unit":"kg"}`)
	_, live := f.saveRecord(t, `{"quantity":71,"unit":"kg"}`)

	claimed, err := f.events.Claim(ctx, stale.ID, f.clock.Add(-10*time.Minute))
	require.NoError(t, err)
	require.True(t, claimed)
	claimed, err = f.events.Claim(ctx, live.ID, *f.clock)
	require.NoError(t, err)
	require.True(t, claimed)

	summary, err := f.processor.ProcessEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)

	stored, err := f.events.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxEventStatusCompleted, stored.Status)

	stored, err = f.events.GetByID(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxEventStatusProcessing, stored.Status)

	// Once the claim outlives the timeout, a later pass picks it up.
	f.advance(2 * time.Minute)
	summary, err = f.processor.ProcessEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Completed)

	stored, err = f.events.GetByID(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutboxEventStatusCompleted, stored.Status)
}

// resumeRecorder captures the users a processor asked to resume polling for.
type resumeRecorder struct {
	mu    sync.Mutex
	users []uuid.UUID
}

func (r *resumeRecorder) Resume(userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
}

func (r *resumeRecorder) Users() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.users...)
}

func TestProcessor_ProcessEvents_ResumesStatusWatcher(t *testing.T) {
	t.Run("awaiting remote result", func(t *testing.T) {
		f := setupProcessor(t, defaultProcessorConfig(), ackWith("abc"))
		watcher := &resumeRecorder{}
		f.processor.SetStatusWatcher(watcher)

		f.saveRecord(t, `{"quantity":70,"unit":"kg"}`)
		_, err := f.processor.ProcessEvents(context.Background())
		require.NoError(t, err)

		assert.Equal(t, []uuid.UUID{f.userID}, watcher.Users())
	})

	t.Run("result already final", func(t *testing.T) {
		f := setupProcessor(t, defaultProcessorConfig(),
			func(context.Context, *domain.OutboxEvent, *recordDomain.Record) (*domain.Delivery, error) {
				return &domain.Delivery{BackendID: "abc", RemoteStatus: recordDomain.RemoteStatusCompleted}, nil
			})
		watcher := &resumeRecorder{}
		f.processor.SetStatusWatcher(watcher)

		f.saveRecord(t, `{"quantity":70,"unit":"kg"}`)
		_, err := f.processor.ProcessEvents(context.Background())
		require.NoError(t, err)

		assert.Empty(t, watcher.Users())
	})

	t.Run("delivery failed", func(t *testing.T) {
		f := setupProcessor(t, defaultProcessorConfig(),
			func(context.Context, *domain.OutboxEvent, *recordDomain.Record) (*domain.Delivery, error) {
				return nil, errors.New("backend unavailable")
			})
		watcher := &resumeRecorder{}
		f.processor.SetStatusWatcher(watcher)

		f.saveRecord(t, `{"quantity":70,"unit":"kg"}`)
		_, err := f.processor.ProcessEvents(context.Background())
		require.NoError(t, err)

		assert.Empty(t, watcher.Users())
	})
}

func TestProcessor_TriggerCoalesces(t *testing.T) {
	p := NewProcessor(defaultProcessorConfig(), nil, nil, nil, nil, session.New(), nil, nil)

	p.Trigger()
	p.Trigger()
	p.Trigger()

	assert.Len(t, p.trigger, 1)
}

func TestProcessor_Purge(t *testing.T) {
	f := setupProcessor(t, defaultProcessorConfig(), ackWith("abc"))
	ctx := context.Background()

	_, event := f.saveRecord(t, `{"quantity":72.5,"unit":"kg"}`)
	_, err := f.processor.ProcessEvents(ctx)
	require.NoError(t, err)

	count, err := f.processor.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	f.advance(169 * time.Hour)
	count, err = f.processor.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = f.events.GetByID(ctx, event.ID)
	assert.ErrorIs(t, err, domain.ErrOutboxEventNotFound)
}

func TestGroupByEntity(t *testing.T) {
	a, b := uuid.Must(uuid.NewV7()), uuid.Must(uuid.NewV7())
	e1 := &domain.OutboxEvent{EntityID: a}
	e2 := &domain.OutboxEvent{EntityID: b}
	e3 := &domain.OutboxEvent{EntityID: a}

	groups := groupByEntity([]*domain.OutboxEvent{e1, e2, e3})
	require.Len(t, groups, 2)
	assert.Equal(t, []*domain.OutboxEvent{e1, e3}, groups[0])
	assert.Equal(t, []*domain.OutboxEvent{e2}, groups[1])
}
