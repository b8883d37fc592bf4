package app

import (
	"fmt"

	outboxDomain "github.com/allisson/healthsync/internal/outbox/domain"
	"github.com/allisson/healthsync/internal/push"
)

// Push transports selectable through PUSH_TRANSPORT.
const (
	PushTransportWebSocket = "websocket"
	PushTransportMQTT      = "mqtt"
	PushTransportNone      = "none"
)

// Reconciler returns the push reconciler instance.
func (c *Container) Reconciler() (*push.Reconciler, error) {
	var err error
	c.reconcilerInit.Do(func() {
		c.reconciler, err = c.initReconciler()
		if err != nil {
			c.initErrors["reconciler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["reconciler"]; exists {
		return nil, storedErr
	}
	return c.reconciler, nil
}

// Poller returns the remote status poller instance.
func (c *Container) Poller() (*push.Poller, error) {
	var err error
	c.pollerInit.Do(func() {
		c.poller, err = c.initPoller()
		if err != nil {
			c.initErrors["poller"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["poller"]; exists {
		return nil, storedErr
	}
	return c.poller, nil
}

// Watcher returns the push watcher instance. It returns nil when PUSH_TRANSPORT is "none".
func (c *Container) Watcher() (*push.Watcher, error) {
	var err error
	c.watcherInit.Do(func() {
		c.watcher, err = c.initWatcher()
		if err != nil {
			c.initErrors["watcher"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["watcher"]; exists {
		return nil, storedErr
	}
	return c.watcher, nil
}

// initReconciler creates the reconciler with all its dependencies.
func (c *Container) initReconciler() (*push.Reconciler, error) {
	recordUseCase, err := c.RecordUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get record use case for reconciler: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for reconciler: %w", err)
	}

	return push.NewReconciler(recordUseCase, c.Notifier(), businessMetrics, c.Logger()), nil
}

// initPoller creates the poller with all its dependencies.
func (c *Container) initPoller() (*push.Poller, error) {
	recordUseCase, err := c.RecordUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get record use case for poller: %w", err)
	}

	reconciler, err := c.Reconciler()
	if err != nil {
		return nil, fmt.Errorf("failed to get reconciler for poller: %w", err)
	}

	return push.NewPoller(
		push.PollerConfig{Interval: c.config.PushPollInterval},
		recordUseCase,
		c.RemoteClient(),
		reconciler,
		c.Notifier(),
		c.Logger(),
	), nil
}

// initTransport selects the push transport.
func (c *Container) initTransport() (push.Transport, error) {
	switch c.config.PushTransport {
	case PushTransportWebSocket:
		return push.NewWebSocketTransport(push.WebSocketConfig{
			URL:    c.config.PushURL,
			APIKey: c.config.RemoteAPIKey,
		}), nil
	case PushTransportMQTT:
		return push.NewMQTTTransport(push.MQTTConfig{
			Broker:      c.config.PushMQTTBroker,
			Username:    c.config.PushMQTTUsername,
			Password:    c.config.PushMQTTPassword,
			TopicPrefix: c.config.PushMQTTTopicPrefix,
			QoS:         1,
		}), nil
	case PushTransportNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported push transport: %s", c.config.PushTransport)
	}
}

// initWatcher creates the watcher with all its dependencies.
func (c *Container) initWatcher() (*push.Watcher, error) {
	transport, err := c.initTransport()
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, nil
	}

	sess, err := c.Session()
	if err != nil {
		return nil, fmt.Errorf("failed to get session for watcher: %w", err)
	}

	reconciler, err := c.Reconciler()
	if err != nil {
		return nil, fmt.Errorf("failed to get reconciler for watcher: %w", err)
	}

	poller, err := c.Poller()
	if err != nil {
		return nil, fmt.Errorf("failed to get poller for watcher: %w", err)
	}

	return push.NewWatcher(
		push.WatcherConfig{
			Reconnect: outboxDomain.Backoff{
				Base: c.config.PushReconnectBaseDelay,
				Max:  c.config.PushReconnectMaxDelay,
			},
		},
		sess,
		transport,
		reconciler,
		poller,
		c.Logger(),
	), nil
}
