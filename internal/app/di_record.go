package app

import (
	"fmt"

	outboxUsecase "github.com/allisson/healthsync/internal/outbox/usecase"
	recordHTTP "github.com/allisson/healthsync/internal/record/http"
	recordRepository "github.com/allisson/healthsync/internal/record/repository"
	recordUsecase "github.com/allisson/healthsync/internal/record/usecase"
)

// EventStore is the Event Store persistence seen by both the record use case and the
// outbox processor.
type EventStore interface {
	recordUsecase.RecordRepository
	outboxUsecase.RecordStore
}

// RecordRepository returns the record repository instance.
func (c *Container) RecordRepository() (EventStore, error) {
	var err error
	c.recordRepoInit.Do(func() {
		c.recordRepo, err = c.initRecordRepository()
		if err != nil {
			c.initErrors["recordRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["recordRepo"]; exists {
		return nil, storedErr
	}
	return c.recordRepo, nil
}

// RecordUseCase returns the record use case instance.
func (c *Container) RecordUseCase() (recordUsecase.RecordUseCase, error) {
	var err error
	c.recordUseCaseInit.Do(func() {
		c.recordUseCase, err = c.initRecordUseCase()
		if err != nil {
			c.initErrors["recordUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["recordUseCase"]; exists {
		return nil, storedErr
	}
	return c.recordUseCase, nil
}

// RecordHandler returns the record HTTP handler instance.
func (c *Container) RecordHandler() (*recordHTTP.RecordHandler, error) {
	var err error
	c.recordHandlerInit.Do(func() {
		c.recordHandler, err = c.initRecordHandler()
		if err != nil {
			c.initErrors["recordHandler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["recordHandler"]; exists {
		return nil, storedErr
	}
	return c.recordHandler, nil
}

// initRecordRepository creates the record repository instance.
func (c *Container) initRecordRepository() (EventStore, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for record repository: %w", err)
	}

	// Select the appropriate repository based on the database driver
	switch c.config.DBDriver {
	case "sqlite3":
		return recordRepository.NewSQLiteRecordRepository(db), nil
	case "mysql":
		return recordRepository.NewMySQLRecordRepository(db), nil
	case "postgres":
		return recordRepository.NewPostgreSQLRecordRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initRecordUseCase creates the record use case with all its dependencies.
func (c *Container) initRecordUseCase() (recordUsecase.RecordUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for record use case: %w", err)
	}

	recordRepo, err := c.RecordRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get record repository for record use case: %w", err)
	}

	queue, err := c.Queue()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox queue for record use case: %w", err)
	}

	baseUseCase := recordUsecase.NewRecordUseCase(txManager, recordRepo, queue)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for record use case: %w", err)
		}
		return recordUsecase.NewRecordUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

// initRecordHandler creates the record HTTP handler with all its dependencies.
func (c *Container) initRecordHandler() (*recordHTTP.RecordHandler, error) {
	useCase, err := c.RecordUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get record use case for record handler: %w", err)
	}
	return recordHTTP.NewRecordHandler(useCase, c.Logger()), nil
}
