package push

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	apperrors "github.com/allisson/healthsync/internal/errors"
)

const (
	defaultMQTTConnectTimeout = 10 * time.Second
	mqttDisconnectQuiesce     = 250
)

// MQTTConfig holds the MQTT transport configuration.
type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	ConnectTimeout time.Duration
}

// MQTTTransport receives status updates from a per-user MQTT topic.
type MQTTTransport struct {
	config    MQTTConfig
	newClient func(*mqtt.ClientOptions) mqtt.Client
}

// NewMQTTTransport creates an MQTTTransport.
func NewMQTTTransport(config MQTTConfig) *MQTTTransport {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaultMQTTConnectTimeout
	}
	if config.ClientID == "" {
		config.ClientID = "healthsync"
	}
	return &MQTTTransport{config: config, newClient: mqtt.NewClient}
}

// Topic returns the update topic of userID.
func (t *MQTTTransport) Topic(userID uuid.UUID) string {
	return fmt.Sprintf("%s/%s/updates", t.config.TopicPrefix, userID)
}

// Listen connects, subscribes to the user topic and blocks until the connection is lost or
// ctx is cancelled. Reconnection is left to the caller.
func (t *MQTTTransport) Listen(ctx context.Context, userID uuid.UUID, deliver func([]byte)) error {
	lost := make(chan error, 1)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(t.config.Broker)
	opts.SetClientID(fmt.Sprintf("%s-%s", t.config.ClientID, userID))
	if t.config.Username != "" {
		opts.SetUsername(t.config.Username)
	}
	if t.config.Password != "" {
		opts.SetPassword(t.config.Password)
	}
	opts.SetAutoReconnect(false)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(t.config.ConnectTimeout)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		select {
		case lost <- err:
		default:
		}
	})

	client := t.newClient(opts)
	if err := wait(ctx, client.Connect(), t.config.ConnectTimeout); err != nil {
		return apperrors.Wrap(err, "failed to connect to MQTT broker")
	}
	defer client.Disconnect(mqttDisconnectQuiesce)

	topic := t.Topic(userID)
	token := client.Subscribe(topic, t.config.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		deliver(msg.Payload())
	})
	if err := wait(ctx, token, t.config.ConnectTimeout); err != nil {
		return apperrors.Wrapf(err, "failed to subscribe to topic %s", topic)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-lost:
		return apperrors.Wrap(err, "MQTT connection lost")
	}
}

// wait blocks until token completes, ctx is cancelled or timeout elapses.
func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return apperrors.Wrap(apperrors.ErrUnavailable, "MQTT operation timed out")
	}
}
