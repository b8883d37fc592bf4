package push

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	apperrors "github.com/allisson/healthsync/internal/errors"
)

const (
	defaultPongWait  = 60 * time.Second
	closeWriteWait   = time.Second
	handshakeTimeout = 10 * time.Second
)

// WebSocketConfig holds the WebSocket transport configuration.
type WebSocketConfig struct {
	URL    string
	APIKey string
	// PongWait is how long the connection may stay silent. Pings are sent at 9/10 of it.
	PongWait time.Duration
}

// WebSocketTransport receives status updates over a WebSocket connection.
type WebSocketTransport struct {
	config WebSocketConfig
	dialer *websocket.Dialer
}

// NewWebSocketTransport creates a WebSocketTransport.
func NewWebSocketTransport(config WebSocketConfig) *WebSocketTransport {
	if config.PongWait <= 0 {
		config.PongWait = defaultPongWait
	}
	return &WebSocketTransport{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

func (t *WebSocketTransport) endpoint(userID uuid.UUID) (string, error) {
	u, err := url.Parse(t.config.URL)
	if err != nil {
		return "", apperrors.Wrap(err, "invalid push url")
	}
	query := u.Query()
	query.Set("user_id", userID.String())
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// Listen dials the push endpoint for userID and reads until the connection fails.
func (t *WebSocketTransport) Listen(ctx context.Context, userID uuid.UUID, deliver func([]byte)) error {
	endpoint, err := t.endpoint(userID)
	if err != nil {
		return err
	}

	header := http.Header{}
	if t.config.APIKey != "" {
		header.Set("X-API-Key", t.config.APIKey)
	}

	conn, resp, err := t.dialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return apperrors.Wrap(err, "failed to dial push endpoint")
	}
	defer func() {
		_ = conn.Close()
	}()

	pongWait := t.config.PongWait
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.keepAlive(ctx, conn, pongWait*9/10, done)
	}()
	defer func() {
		close(done)
		wg.Wait()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return apperrors.Wrap(err, "push connection lost")
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		deliver(data)
	}
}

// keepAlive pings the peer and closes the connection when ctx is cancelled. WriteControl and
// Close are safe to call concurrently with the read loop.
func (t *WebSocketTransport) keepAlive(ctx context.Context, conn *websocket.Conn, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(closeWriteWait)); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
