package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/allisson/healthsync/internal/database"
	apperrors "github.com/allisson/healthsync/internal/errors"
	"github.com/allisson/healthsync/internal/metrics"
	"github.com/allisson/healthsync/internal/outbox/domain"
	recordDomain "github.com/allisson/healthsync/internal/record/domain"
)

var (
	// ErrProcessorBusy is returned when a pass is requested while another one is running.
	ErrProcessorBusy = apperrors.Wrap(apperrors.ErrConflict, "outbox processor is already running")

	// ErrEntityNotFound means the event references a record that no longer exists.
	ErrEntityNotFound = apperrors.Wrap(apperrors.ErrNotFound, "entity not found")
)

// ProcessorConfig holds outbox processor configuration
type ProcessorConfig struct {
	Interval        time.Duration
	BatchSize       int
	Concurrency     int
	CallTimeout     time.Duration
	ClaimTimeout    time.Duration
	RetentionPeriod time.Duration
	PurgeInterval   time.Duration
}

// Summary reports the outcome of one processing pass
type Summary struct {
	Fetched   int
	Completed int
	Retried   int
	Failed    int
	Skipped   int
}

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeRetried
	outcomeFailed
	outcomeSkipped
)

// Processor drains the outbox against the backend
type Processor struct {
	config     ProcessorConfig
	txManager  database.TxManager
	queue      QueueUseCase
	records    RecordStore
	dispatcher Dispatcher
	session    SessionProvider
	metrics    metrics.BusinessMetrics
	logger     *slog.Logger

	watcher StatusWatcher
	trigger chan struct{}
	running atomic.Bool
	now     func() time.Time
}

// NewProcessor creates a new Processor
func NewProcessor(
	config ProcessorConfig,
	txManager database.TxManager,
	queue QueueUseCase,
	records RecordStore,
	dispatcher Dispatcher,
	session SessionProvider,
	businessMetrics metrics.BusinessMetrics,
	logger *slog.Logger,
) *Processor {
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 30 * time.Second
	}
	if config.ClaimTimeout <= config.CallTimeout {
		config.ClaimTimeout = config.CallTimeout + time.Minute
	}
	if businessMetrics == nil {
		businessMetrics = metrics.NewNoOpBusinessMetrics()
	}

	return &Processor{
		config:     config,
		txManager:  txManager,
		queue:      queue,
		records:    records,
		dispatcher: dispatcher,
		session:    session,
		metrics:    businessMetrics,
		logger:     logger,
		trigger:    make(chan struct{}, 1),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetStatusWatcher registers w to be resumed whenever a delivery leaves a record waiting for
// its remote result. It must be called before Start.
func (p *Processor) SetStatusWatcher(w StatusWatcher) {
	p.watcher = w
}

// Start recovers events stranded by a previous run and then processes the outbox on every
// tick or trigger until ctx is cancelled. Completed events are purged on their own schedule.
func (p *Processor) Start(ctx context.Context) error {
	if p.logger != nil {
		p.logger.Info("starting outbox event processor",
			slog.Duration("interval", p.config.Interval),
			slog.Int("batch_size", p.config.BatchSize),
			slog.Int("concurrency", p.config.Concurrency),
		)
	}

	p.reclaimStale(ctx)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	purgeInterval := p.config.PurgeInterval
	if purgeInterval <= 0 {
		purgeInterval = time.Hour
	}
	purgeTicker := time.NewTicker(purgeInterval)
	defer purgeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			if p.logger != nil {
				p.logger.Info("stopping outbox event processor")
			}
			return ctx.Err()
		case <-ticker.C:
			p.runPass(ctx)
		case <-p.trigger:
			p.runPass(ctx)
		case <-purgeTicker.C:
			if _, err := p.Purge(ctx); err != nil && p.logger != nil {
				p.logger.Error("failed to purge completed events", slog.Any("error", err))
			}
		}
	}
}

// Trigger requests a pass without waiting for the next tick. Requests made while one is
// already queued are coalesced.
func (p *Processor) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// reclaimStale returns events whose claim outlived ClaimTimeout to pending. Such claims were
// left by a crashed or interrupted pass, or by a finalize that could not be written.
func (p *Processor) reclaimStale(ctx context.Context) {
	reset, err := p.queue.ResetProcessing(ctx, p.config.ClaimTimeout)
	if err != nil {
		if p.logger != nil {
			p.logger.Error("failed to reset processing events", slog.Any("error", err))
		}
		return
	}
	if reset > 0 && p.logger != nil {
		p.logger.Warn("recovered events left in processing", slog.Int64("count", reset))
	}
}

// Purge deletes completed events older than the retention period
func (p *Processor) Purge(ctx context.Context) (int64, error) {
	count, err := p.queue.PurgeCompleted(ctx, p.config.RetentionPeriod)
	if err != nil {
		return 0, err
	}
	if count > 0 && p.logger != nil {
		p.logger.Info("purged completed events", slog.Int64("count", count))
	}
	return count, nil
}

func (p *Processor) runPass(ctx context.Context) {
	summary, err := p.ProcessEvents(ctx)
	if err != nil {
		if p.logger != nil && !errors.Is(err, ErrProcessorBusy) {
			p.logger.Error("failed to process events", slog.Any("error", err))
		}
		return
	}

	if summary.Fetched > 0 && p.logger != nil {
		p.logger.Info("processed events",
			slog.Int("fetched", summary.Fetched),
			slog.Int("completed", summary.Completed),
			slog.Int("retried", summary.Retried),
			slog.Int("failed", summary.Failed),
			slog.Int("skipped", summary.Skipped),
		)
	}
}

// ProcessEvents runs one pass over the logged-in user's due events. Events of the same entity
// are delivered in order; distinct entities are delivered concurrently up to the configured
// limit. A failing event never stops the others; only a failure to fetch the batch is returned.
func (p *Processor) ProcessEvents(ctx context.Context) (Summary, error) {
	if !p.running.CompareAndSwap(false, true) {
		return Summary{}, ErrProcessorBusy
	}
	defer p.running.Store(false)

	userID, ok := p.session.CurrentUserID()
	if !ok {
		return Summary{}, nil
	}

	p.reclaimStale(ctx)

	events, err := p.queue.FetchPending(ctx, userID, p.config.BatchSize)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Fetched: len(events)}
	if len(events) == 0 {
		return summary, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(p.config.Concurrency)

	for _, group := range groupByEntity(events) {
		g.Go(func() error {
			counts := p.processGroup(ctx, userID, group)

			mu.Lock()
			summary.Completed += counts.Completed
			summary.Retried += counts.Retried
			summary.Failed += counts.Failed
			summary.Skipped += counts.Skipped
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return summary, nil
}

// processGroup delivers the events of one entity in order. After an event does not complete,
// the remaining ones stay pending for a later pass.
func (p *Processor) processGroup(ctx context.Context, userID uuid.UUID, events []*domain.OutboxEvent) Summary {
	var counts Summary

	for i, event := range events {
		if ctx.Err() != nil || !p.sessionActive(userID) {
			counts.Skipped += len(events) - i
			return counts
		}

		switch p.processEvent(ctx, event) {
		case outcomeCompleted:
			counts.Completed++
			continue
		case outcomeRetried:
			counts.Retried++
		case outcomeFailed:
			counts.Failed++
		case outcomeSkipped:
			counts.Skipped++
		}

		counts.Skipped += len(events) - i - 1
		return counts
	}

	return counts
}

func (p *Processor) sessionActive(userID uuid.UUID) bool {
	current, ok := p.session.CurrentUserID()
	return ok && current == userID
}

func (p *Processor) processEvent(ctx context.Context, event *domain.OutboxEvent) outcome {
	start := time.Now()

	claimed, err := p.queue.MarkProcessing(ctx, event)
	if err != nil {
		p.logEventError("failed to claim event", event, err)
		return outcomeSkipped
	}
	if !claimed {
		return outcomeSkipped
	}

	record, err := p.records.GetByID(ctx, event.EntityID)
	if err != nil {
		if errors.Is(err, recordDomain.ErrRecordNotFound) {
			return p.fail(ctx, event, nil, domain.NewPermanentError(ErrEntityNotFound), start)
		}
		return p.fail(ctx, event, nil, err, start)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
	delivery, err := p.dispatcher.Dispatch(callCtx, event, record)
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			// Shutting down: the claim is reclaimed once it goes stale.
			return outcomeSkipped
		}
		return p.fail(ctx, event, record, err, start)
	}

	remoteStatus := delivery.RemoteStatus
	if remoteStatus == recordDomain.RemoteStatusNone {
		remoteStatus = recordDomain.RemoteStatusProcessing
	}

	snapshot := *event
	err = p.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := p.records.MarkSynced(ctx, record.ID, delivery.BackendID, remoteStatus, p.now()); err != nil {
			return err
		}
		return p.queue.MarkCompleted(ctx, event)
	})
	if err != nil {
		p.logEventError("failed to finalize delivered event", event, err)
		*event = snapshot
		return p.fail(ctx, event, record, err, start)
	}

	if p.logger != nil {
		p.logger.Info("event delivered",
			slog.String("event_id", event.ID.String()),
			slog.String("event_type", event.EventType.String()),
			slog.String("entity_id", event.EntityID.String()),
			slog.String("backend_id", delivery.BackendID),
		)
	}
	p.record(ctx, "success", start)

	if p.watcher != nil && !remoteStatus.Terminal() {
		p.watcher.Resume(event.UserID)
	}
	return outcomeCompleted
}

// fail records a failed attempt and, when the event becomes terminal, flags its record.
func (p *Processor) fail(
	ctx context.Context,
	event *domain.OutboxEvent,
	record *recordDomain.Record,
	cause error,
	start time.Time,
) outcome {
	retryable := !domain.IsPermanent(cause)

	err := p.txManager.WithTx(ctx, func(ctx context.Context) error {
		if err := p.queue.MarkFailed(ctx, event, cause, retryable); err != nil {
			return err
		}
		if event.Status == domain.OutboxEventStatusFailed && record != nil {
			return p.records.MarkSyncFailed(ctx, record.ID, p.now())
		}
		return nil
	})
	if err != nil {
		p.logEventError("failed to record event failure", event, err)
		return outcomeSkipped
	}

	if event.Status == domain.OutboxEventStatusFailed {
		if p.logger != nil {
			p.logger.Error("event failed permanently",
				slog.String("event_id", event.ID.String()),
				slog.String("event_type", event.EventType.String()),
				slog.String("entity_id", event.EntityID.String()),
				slog.Int("attempt", event.AttemptCount),
				slog.Bool("retryable", retryable),
				slog.Any("error", cause),
			)
		}
		p.record(ctx, "failed", start)
		return outcomeFailed
	}

	if p.logger != nil {
		p.logger.Warn("event delivery failed, will retry",
			slog.String("event_id", event.ID.String()),
			slog.String("event_type", event.EventType.String()),
			slog.String("entity_id", event.EntityID.String()),
			slog.Int("attempt", event.AttemptCount),
			slog.Time("next_retry_at", *event.NextRetryAt),
			slog.Any("error", cause),
		)
	}
	p.record(ctx, "retry", start)
	return outcomeRetried
}

func (p *Processor) record(ctx context.Context, status string, start time.Time) {
	p.metrics.RecordOperation(ctx, "outbox", "event_process", status)
	p.metrics.RecordDuration(ctx, "outbox", "event_process", time.Since(start), status)
}

func (p *Processor) logEventError(message string, event *domain.OutboxEvent, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Error(message,
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.EventType.String()),
		slog.String("entity_id", event.EntityID.String()),
		slog.Any("error", err),
	)
}

// groupByEntity partitions events by entity, keeping the fetch order within and across groups.
func groupByEntity(events []*domain.OutboxEvent) [][]*domain.OutboxEvent {
	index := make(map[uuid.UUID]int)
	groups := make([][]*domain.OutboxEvent, 0)

	for _, event := range events {
		i, ok := index[event.EntityID]
		if !ok {
			i = len(groups)
			index[event.EntityID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], event)
	}

	return groups
}
