package push

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	outboxDomain "github.com/allisson/healthsync/internal/outbox/domain"
)

const defaultMessageBuffer = 64

// SessionProvider exposes the logged-in user and its changes.
type SessionProvider interface {
	CurrentUserID() (uuid.UUID, bool)
	Changed() <-chan struct{}
}

// WatcherConfig holds watcher configuration.
type WatcherConfig struct {
	Reconnect     outboxDomain.Backoff
	MessageBuffer int
}

// Watcher keeps a realtime transport open for the logged-in user. Until the transport proves
// itself by delivering a parseable message, the poller covers for it.
type Watcher struct {
	config     WatcherConfig
	session    SessionProvider
	transport  Transport
	reconciler *Reconciler
	poller     *Poller
	logger     *slog.Logger

	// mu orders verification against connection resets.
	mu         sync.Mutex
	verified   atomic.Bool
	connection uint64
}

// delivery is a raw payload tagged with the connection that received it.
type delivery struct {
	connection uint64
	data       []byte
}

// NewWatcher creates a Watcher.
func NewWatcher(
	config WatcherConfig,
	session SessionProvider,
	transport Transport,
	reconciler *Reconciler,
	poller *Poller,
	logger *slog.Logger,
) *Watcher {
	if config.Reconnect.Base <= 0 {
		config.Reconnect = outboxDomain.Backoff{Base: time.Second, Max: 30 * time.Second}
	}
	if config.MessageBuffer <= 0 {
		config.MessageBuffer = defaultMessageBuffer
	}
	return &Watcher{
		config:     config,
		session:    session,
		transport:  transport,
		reconciler: reconciler,
		poller:     poller,
		logger:     logger,
	}
}

// Verified reports whether the current connection delivered a valid message.
func (w *Watcher) Verified() bool {
	return w.verified.Load()
}

// Run watches the session and serves one user at a time until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		changed := w.session.Changed()
		userID, ok := w.session.CurrentUserID()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-changed:
				continue
			}
		}

		userCtx, cancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-changed:
				cancel()
			case <-userCtx.Done():
			}
		}()

		w.watchUser(userCtx, userID)
		cancel()

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// watchUser serves userID until ctx is cancelled. The transport callback only queues raw
// payloads; parsing and store writes happen on the dispatch goroutine.
func (w *Watcher) watchUser(ctx context.Context, userID uuid.UUID) {
	messages := make(chan delivery, w.config.MessageBuffer)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.dispatch(ctx, messages)
	}()

	var mu sync.RWMutex
	open := true
	deliverFor := func(connection uint64) func([]byte) {
		return func(data []byte) {
			mu.RLock()
			defer mu.RUnlock()
			if !open {
				return
			}
			select {
			case messages <- delivery{connection: connection, data: data}:
			case <-ctx.Done():
			}
		}
	}

	w.verified.Store(false)
	w.poller.Start(ctx, userID)

	attempt := 0
	for {
		err := w.transport.Listen(ctx, userID, deliverFor(w.nextConnection()))
		if w.resetConnection() {
			attempt = 0
		}
		if ctx.Err() != nil {
			break
		}

		attempt++
		delay := w.config.Reconnect.Delay(attempt)
		if w.logger != nil {
			w.logger.Warn("push connection dropped, polling until reconnected",
				slog.String("user_id", userID.String()),
				slog.Int("attempt", attempt),
				slog.Duration("retry_in", delay),
				slog.Any("error", err),
			)
		}
		w.poller.Start(ctx, userID)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
		if ctx.Err() != nil {
			break
		}
	}

	w.poller.Stop()
	w.verified.Store(false)

	mu.Lock()
	open = false
	close(messages)
	mu.Unlock()
	wg.Wait()
}

func (w *Watcher) dispatch(ctx context.Context, messages <-chan delivery) {
	for d := range messages {
		msg, err := ParseMessage(d.data)
		if err != nil {
			if w.logger != nil {
				w.logger.Warn("discarding push message", slog.Any("error", err))
			}
			continue
		}

		if w.verify(d.connection) && w.logger != nil {
			w.logger.Info("push connection verified, polling stopped")
		}

		if err := w.reconciler.OnRemoteUpdate(ctx, *msg); err != nil && w.logger != nil {
			w.logger.Warn("failed to apply push message",
				slog.String("backend_id", msg.BackendID),
				slog.Any("error", err),
			)
		}
	}
}

func (w *Watcher) nextConnection() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connection++
	return w.connection
}

// resetConnection invalidates the dropped connection and reports whether it was verified.
func (w *Watcher) resetConnection() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connection++
	return w.verified.Swap(false)
}

// verify marks connection as verified and stops polling. Only a message from the live
// connection verifies it. It reports whether this call made the transition.
func (w *Watcher) verify(connection uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if connection != w.connection || w.verified.Load() {
		return false
	}
	w.verified.Store(true)
	w.poller.Stop()
	return true
}
