package app

import (
	"fmt"

	outboxDomain "github.com/allisson/healthsync/internal/outbox/domain"
	outboxHTTP "github.com/allisson/healthsync/internal/outbox/http"
	outboxRepository "github.com/allisson/healthsync/internal/outbox/repository"
	outboxUsecase "github.com/allisson/healthsync/internal/outbox/usecase"
	"github.com/allisson/healthsync/internal/remote"
)

// OutboxRepository returns the outbox event repository instance.
func (c *Container) OutboxRepository() (outboxUsecase.OutboxEventRepository, error) {
	var err error
	c.outboxRepoInit.Do(func() {
		c.outboxRepo, err = c.initOutboxRepository()
		if err != nil {
			c.initErrors["outboxRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["outboxRepo"]; exists {
		return nil, storedErr
	}
	return c.outboxRepo, nil
}

// Queue returns the outbox queue instance.
func (c *Container) Queue() (*outboxUsecase.Queue, error) {
	var err error
	c.queueInit.Do(func() {
		c.queue, err = c.initQueue()
		if err != nil {
			c.initErrors["queue"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["queue"]; exists {
		return nil, storedErr
	}
	return c.queue, nil
}

// RemoteClient returns the backend API client.
func (c *Container) RemoteClient() *remote.Client {
	c.remoteClientInit.Do(func() {
		c.remoteClient = remote.NewClient(remote.Config{
			BaseURL:        c.config.RemoteBaseURL,
			APIKey:         c.config.RemoteAPIKey,
			Timeout:        c.config.OutboxCallTimeout,
			RateLimit:      c.config.RemoteRateLimitPerSec,
			RateLimitBurst: c.config.RemoteRateLimitBurst,
		})
	})
	return c.remoteClient
}

// Registry returns the event type dispatch registry.
func (c *Container) Registry() *remote.Registry {
	c.registryInit.Do(func() {
		c.registry = remote.NewRegistry(c.RemoteClient())
	})
	return c.registry
}

// Processor returns the outbox processor instance.
func (c *Container) Processor() (*outboxUsecase.Processor, error) {
	var err error
	c.processorInit.Do(func() {
		c.processor, err = c.initProcessor()
		if err != nil {
			c.initErrors["processor"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["processor"]; exists {
		return nil, storedErr
	}
	return c.processor, nil
}

// SyncHandler returns the sync HTTP handler instance.
func (c *Container) SyncHandler() (*outboxHTTP.SyncHandler, error) {
	var err error
	c.syncHandlerInit.Do(func() {
		c.syncHandler, err = c.initSyncHandler()
		if err != nil {
			c.initErrors["syncHandler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["syncHandler"]; exists {
		return nil, storedErr
	}
	return c.syncHandler, nil
}

// initOutboxRepository creates the outbox event repository instance.
func (c *Container) initOutboxRepository() (outboxUsecase.OutboxEventRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for outbox repository: %w", err)
	}

	// Select the appropriate repository based on the database driver
	switch c.config.DBDriver {
	case "sqlite3":
		return outboxRepository.NewSQLiteOutboxEventRepository(db), nil
	case "mysql":
		return outboxRepository.NewMySQLOutboxEventRepository(db), nil
	case "postgres":
		return outboxRepository.NewPostgreSQLOutboxEventRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initQueue creates the outbox queue with its retry policy.
func (c *Container) initQueue() (*outboxUsecase.Queue, error) {
	outboxRepo, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for outbox queue: %w", err)
	}

	return outboxUsecase.NewQueue(outboxUsecase.QueueConfig{
		MaxAttempts: c.config.OutboxMaxAttempts,
		Backoff: outboxDomain.Backoff{
			Base: c.config.OutboxBaseDelay,
			Max:  c.config.OutboxMaxDelay,
		},
	}, outboxRepo), nil
}

// initProcessor creates the outbox processor with all its dependencies.
func (c *Container) initProcessor() (*outboxUsecase.Processor, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for processor: %w", err)
	}

	queue, err := c.Queue()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox queue for processor: %w", err)
	}

	recordRepo, err := c.RecordRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get record repository for processor: %w", err)
	}

	sess, err := c.Session()
	if err != nil {
		return nil, fmt.Errorf("failed to get session for processor: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for processor: %w", err)
	}

	poller, err := c.Poller()
	if err != nil {
		return nil, fmt.Errorf("failed to get poller for processor: %w", err)
	}

	processor := outboxUsecase.NewProcessor(
		outboxUsecase.ProcessorConfig{
			Interval:        c.config.OutboxInterval,
			BatchSize:       c.config.OutboxBatchSize,
			Concurrency:     c.config.OutboxConcurrency,
			CallTimeout:     c.config.OutboxCallTimeout,
			ClaimTimeout:    c.config.OutboxClaimTimeout,
			RetentionPeriod: c.config.OutboxRetention,
			PurgeInterval:   c.config.OutboxPurgeInterval,
		},
		txManager,
		queue,
		recordRepo,
		c.Registry(),
		sess,
		businessMetrics,
		c.Logger(),
	)
	processor.SetStatusWatcher(poller)
	return processor, nil
}

// initSyncHandler creates the sync HTTP handler with all its dependencies.
func (c *Container) initSyncHandler() (*outboxHTTP.SyncHandler, error) {
	processor, err := c.Processor()
	if err != nil {
		return nil, fmt.Errorf("failed to get processor for sync handler: %w", err)
	}

	queue, err := c.Queue()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox queue for sync handler: %w", err)
	}

	return outboxHTTP.NewSyncHandler(processor, queue, c.Logger()), nil
}
