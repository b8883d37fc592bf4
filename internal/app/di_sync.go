package app

import (
	"fmt"

	"github.com/allisson/healthsync/internal/remote"
	"github.com/allisson/healthsync/internal/syncpolicy"
)

// Syncer returns the metric catch-up syncer instance.
func (c *Container) Syncer() (*syncpolicy.Syncer, error) {
	var err error
	c.syncerInit.Do(func() {
		c.syncer, err = c.initSyncer()
		if err != nil {
			c.initErrors["syncer"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["syncer"]; exists {
		return nil, storedErr
	}
	return c.syncer, nil
}

// initSyncer creates the syncer reading samples from the device bridge.
func (c *Container) initSyncer() (*syncpolicy.Syncer, error) {
	recordUseCase, err := c.RecordUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get record use case for syncer: %w", err)
	}

	source := remote.NewSampleClient(remote.Config{
		BaseURL: c.config.SyncSampleSourceURL,
		Timeout: c.config.OutboxCallTimeout,
	})

	return syncpolicy.NewSyncer(
		syncpolicy.SyncerConfig{
			Threshold: c.config.SyncThreshold,
			Window:    c.config.SyncWindow,
		},
		syncpolicy.NewPolicy(recordUseCase),
		source,
		recordUseCase,
		c.Logger(),
	), nil
}
