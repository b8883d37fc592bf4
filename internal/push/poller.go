package push

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	recordDomain "github.com/allisson/healthsync/internal/record/domain"
)

const (
	defaultPollInterval  = 5 * time.Second
	defaultPollBatchSize = 50
)

// StatusSource fetches the remote status of a delivered record.
type StatusSource interface {
	FetchStatus(ctx context.Context, recordType recordDomain.RecordType, backendID string) (*Message, error)
}

// InFlightLister lists records still waiting for delivery or remote processing.
type InFlightLister interface {
	ListInFlight(ctx context.Context, userID uuid.UUID, limit int) ([]*recordDomain.Record, error)
}

// PollerConfig holds poller configuration.
type PollerConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Poller periodically asks the backend for the status of in-flight records. It goes idle once
// nothing is in flight and Resume brings it back for the same user.
type Poller struct {
	config     PollerConfig
	records    InFlightLister
	source     StatusSource
	reconciler *Reconciler
	notifier   *Notifier
	logger     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// Set by the last Start; idle means the loop drained on its own and may be resumed.
	parent  context.Context
	userID  uuid.UUID
	idle    bool
	resumed bool
}

// NewPoller creates a Poller.
func NewPoller(
	config PollerConfig,
	records InFlightLister,
	source StatusSource,
	reconciler *Reconciler,
	notifier *Notifier,
	logger *slog.Logger,
) *Poller {
	if config.Interval <= 0 {
		config.Interval = defaultPollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultPollBatchSize
	}
	return &Poller{
		config:     config,
		records:    records,
		source:     source,
		reconciler: reconciler,
		notifier:   notifier,
		logger:     logger,
	}
}

// Start polls for userID in the background until Stop, ctx cancellation or an empty pass.
// It is a no-op while the poller is running.
func (p *Poller) Start(ctx context.Context, userID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		return
	}
	p.parent = ctx
	p.userID = userID
	p.startLocked()
}

// Resume restarts a poller that went idle for userID because nothing was in flight. A call
// made while a pass is running keeps that loop from going idle. It does nothing after Stop or
// for another user.
func (p *Poller) Resume(userID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.userID != userID || p.parent == nil || p.parent.Err() != nil {
		return
	}
	if p.done != nil {
		p.resumed = true
		return
	}
	if p.idle {
		p.startLocked()
	}
}

func (p *Poller) startLocked() {
	pollCtx, cancel := context.WithCancel(p.parent)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.idle = false
	p.resumed = false

	go p.run(pollCtx, p.userID, done)
}

// Stop cancels a running poller and waits for it to exit. A stopped poller cannot be resumed.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.idle = false
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the poller goroutine is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done != nil
}

// Run polls for the logged-in user until ctx is cancelled, restarting on every session change.
// It stands in for the watcher when no push transport is configured.
func (p *Poller) Run(ctx context.Context, session SessionProvider) error {
	for {
		changed := session.Changed()
		if userID, ok := session.CurrentUserID(); ok {
			p.Start(ctx, userID)
		}

		select {
		case <-ctx.Done():
			p.Stop()
			return ctx.Err()
		case <-changed:
			p.Stop()
		}
	}
}

func (p *Poller) run(ctx context.Context, userID uuid.UUID, done chan struct{}) {
	drained := false
	defer func() {
		p.mu.Lock()
		if p.done == done {
			p.cancel()
			p.cancel, p.done = nil, nil
			p.idle = drained
			if drained && p.resumed && p.parent.Err() == nil {
				p.startLocked()
			}
		}
		p.mu.Unlock()
		close(done)
	}()

	if p.logger != nil {
		p.logger.Debug("status polling started", slog.String("user_id", userID.String()))
	}

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			inFlight, err := p.Poll(ctx, userID)
			if err != nil {
				if p.logger != nil && ctx.Err() == nil {
					p.logger.Warn("status poll failed",
						slog.String("user_id", userID.String()),
						slog.Any("error", err),
					)
				}
				continue
			}
			if inFlight == 0 {
				if p.logger != nil {
					p.logger.Debug("status polling idle, nothing in flight",
						slog.String("user_id", userID.String()),
					)
				}
				drained = true
				return
			}
		}
	}
}

// Poll runs one pass and returns how many records were in flight. Records not yet acknowledged
// by the backend count as in flight but are not queried.
func (p *Poller) Poll(ctx context.Context, userID uuid.UUID) (int, error) {
	records, err := p.records.ListInFlight(ctx, userID, p.config.BatchSize)
	if err != nil {
		return 0, err
	}

	for _, record := range records {
		if !record.HasBackendID() {
			continue
		}

		msg, err := p.source.FetchStatus(ctx, record.Type, *record.BackendID)
		if err != nil {
			if ctx.Err() != nil {
				return len(records), ctx.Err()
			}
			if p.logger != nil {
				p.logger.Warn("failed to fetch remote status",
					slog.String("entity_id", record.ID.String()),
					slog.String("backend_id", *record.BackendID),
					slog.Any("error", err),
				)
			}
			continue
		}
		if msg.BackendID == "" {
			msg.BackendID = *record.BackendID
		}
		if msg.Status == "" {
			continue
		}

		if err := p.reconciler.OnRemoteUpdate(ctx, *msg); err != nil && p.logger != nil {
			p.logger.Warn("failed to apply remote status",
				slog.String("entity_id", record.ID.String()),
				slog.String("backend_id", msg.BackendID),
				slog.Any("error", err),
			)
		}
	}

	if len(records) > 0 {
		p.notifier.Notify(RefreshSignal{UserID: userID})
	}
	return len(records), nil
}
