package push

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	outboxDomain "github.com/allisson/healthsync/internal/outbox/domain"
	recordDomain "github.com/allisson/healthsync/internal/record/domain"
	"github.com/allisson/healthsync/internal/session"
)

// connection is one scripted Listen call of scriptedTransport.
type connection struct {
	userID  uuid.UUID
	deliver func([]byte)
	drop    chan error
}

// scriptedTransport hands every Listen call to the test through conns.
type scriptedTransport struct {
	conns chan *connection
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{conns: make(chan *connection, 8)}
}

func (s *scriptedTransport) Listen(ctx context.Context, userID uuid.UUID, deliver func([]byte)) error {
	c := &connection{userID: userID, deliver: deliver, drop: make(chan error, 1)}
	s.conns <- c
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-c.drop:
		return err
	}
}

func (s *scriptedTransport) next(t *testing.T) *connection {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("transport was not dialed")
		return nil
	}
}

type watcherFixture struct {
	watcher   *Watcher
	transport *scriptedTransport
	poller    *Poller
	store     *memoryStore
	source    *statusSource
	session   *session.Session
	notifier  *Notifier
	userID    uuid.UUID
	record    *recordDomain.Record
	cancel    context.CancelFunc
	done      chan error
}

func startWatcher(t *testing.T) *watcherFixture {
	t.Helper()

	userID := uuid.Must(uuid.NewV7())
	record := inFlightRecord(userID, "srv-1")
	store := newMemoryStore(record)
	source := &statusSource{statuses: map[string]string{"srv-1": "processing"}}
	notifier := NewNotifier()
	reconciler := NewReconciler(store, notifier, nil, nil)
	poller := NewPoller(PollerConfig{Interval: 10 * time.Millisecond}, store, source, reconciler, notifier, nil)

	sess := session.New()
	transport := newScriptedTransport()
	watcher := NewWatcher(WatcherConfig{
		Reconnect: outboxDomain.Backoff{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond},
	}, sess, transport, reconciler, poller, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	return &watcherFixture{
		watcher:   watcher,
		transport: transport,
		poller:    poller,
		store:     store,
		source:    source,
		session:   sess,
		notifier:  notifier,
		userID:    userID,
		record:    record,
		cancel:    cancel,
		done:      done,
	}
}

func (f *watcherFixture) stop(t *testing.T) {
	t.Helper()
	f.cancel()
	select {
	case err := <-f.done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_IdleWithoutUser(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := startWatcher(t)

	select {
	case <-f.transport.conns:
		t.Fatal("transport dialed without a logged-in user")
	case <-time.After(50 * time.Millisecond):
	}
	assert.False(t, f.poller.Running())

	f.stop(t)
}

func TestWatcher_VerificationStopsPolling(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := startWatcher(t)
	f.session.Login(f.userID)

	conn := f.transport.next(t)
	assert.Equal(t, f.userID, conn.userID)
	assert.False(t, f.watcher.Verified())
	require.Eventually(t, func() bool { return f.source.Calls() > 0 }, time.Second, 5*time.Millisecond)

	// Garbage does not verify the connection.
	conn.deliver([]byte(`not json`))
	assert.Never(t, f.watcher.Verified, 50*time.Millisecond, 5*time.Millisecond)

	conn.deliver([]byte(`{"backend_id":"srv-1","entity_type":"meal_log","status":"completed"}`))
	require.Eventually(t, f.watcher.Verified, time.Second, 5*time.Millisecond)
	assert.False(t, f.poller.Running())
	require.Eventually(t, func() bool {
		return f.store.status(f.record.ID) == recordDomain.RemoteStatusCompleted
	}, time.Second, 5*time.Millisecond)

	f.stop(t)
	assert.False(t, f.watcher.Verified())
}

func TestWatcher_ReconnectRestartsPolling(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := startWatcher(t)
	f.session.Login(f.userID)

	conn := f.transport.next(t)
	conn.deliver([]byte(`{"backend_id":"srv-1","status":"processing"}`))
	require.Eventually(t, f.watcher.Verified, time.Second, 5*time.Millisecond)
	require.False(t, f.poller.Running())

	conn.drop <- errors.New("connection reset")
	require.Eventually(t, f.poller.Running, time.Second, 5*time.Millisecond)
	assert.False(t, f.watcher.Verified())

	reconnected := f.transport.next(t)
	assert.Equal(t, f.userID, reconnected.userID)

	// A late message from the dead connection must not verify the new one.
	conn.deliver([]byte(`{"backend_id":"srv-1","status":"processing"}`))
	assert.Never(t, f.watcher.Verified, 50*time.Millisecond, 5*time.Millisecond)

	reconnected.deliver([]byte(`{"backend_id":"srv-1","status":"processing"}`))
	require.Eventually(t, f.watcher.Verified, time.Second, 5*time.Millisecond)

	f.stop(t)
}

func TestWatcher_UnverifiedConnectionKeepsPollingNewRecords(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := startWatcher(t)
	f.source.set("srv-1", "completed")
	f.session.Login(f.userID)
	f.transport.next(t)

	// The connection stays silent, so polling drains the first record and goes idle.
	require.Eventually(t, func() bool {
		return f.store.status(f.record.ID) == recordDomain.RemoteStatusCompleted && !f.poller.Running()
	}, time.Second, 5*time.Millisecond)
	require.False(t, f.watcher.Verified())

	// A later delivery leaves a new record waiting for its result.
	later := inFlightRecord(f.userID, "srv-2")
	f.store.add(later)
	f.source.set("srv-2", "completed")
	f.poller.Resume(f.userID)

	require.Eventually(t, func() bool {
		return f.store.status(later.ID) == recordDomain.RemoteStatusCompleted
	}, time.Second, 5*time.Millisecond)

	f.stop(t)
}

func TestWatcher_VerifiedConnectionIgnoresResume(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := startWatcher(t)
	f.session.Login(f.userID)

	conn := f.transport.next(t)
	conn.deliver([]byte(`{"backend_id":"srv-1","status":"processing"}`))
	require.Eventually(t, f.watcher.Verified, time.Second, 5*time.Millisecond)
	require.False(t, f.poller.Running())

	f.poller.Resume(f.userID)
	assert.False(t, f.poller.Running())

	f.stop(t)
}

func TestWatcher_FollowsSessionChanges(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := startWatcher(t)
	f.session.Login(f.userID)
	first := f.transport.next(t)
	assert.Equal(t, f.userID, first.userID)

	other := uuid.Must(uuid.NewV7())
	f.session.Login(other)
	second := f.transport.next(t)
	assert.Equal(t, other, second.userID)

	f.session.Logout()
	require.Eventually(t, func() bool { return !f.poller.Running() }, time.Second, 5*time.Millisecond)
	select {
	case c := <-f.transport.conns:
		t.Fatalf("unexpected dial for %s after logout", c.userID)
	case <-time.After(50 * time.Millisecond):
	}

	f.stop(t)
}

func TestWatcher_ConcurrentDeliveries(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := startWatcher(t)
	f.session.Login(f.userID)
	conn := f.transport.next(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn.deliver([]byte(`{"backend_id":"srv-1","status":"completed","result":{"ok":true}}`))
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return f.store.status(f.record.ID) == recordDomain.RemoteStatusCompleted
	}, time.Second, 5*time.Millisecond)

	f.stop(t)
}
