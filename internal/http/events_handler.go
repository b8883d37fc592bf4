package http

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/allisson/healthsync/internal/errors"
	"github.com/allisson/healthsync/internal/httputil"
	"github.com/allisson/healthsync/internal/push"
	recordHTTP "github.com/allisson/healthsync/internal/record/http"
)

const defaultHeartbeat = 30 * time.Second

// refreshEvent is the data of a "refresh" server-sent event.
type refreshEvent struct {
	RecordID string `json:"record_id,omitempty"`
	Type     string `json:"type,omitempty"`
}

// EventsHandler streams refresh signals to local clients as server-sent events.
type EventsHandler struct {
	notifier  *push.Notifier
	heartbeat time.Duration
	logger    *slog.Logger
}

// NewEventsHandler creates an EventsHandler. A zero heartbeat uses 30 seconds.
func NewEventsHandler(notifier *push.Notifier, heartbeat time.Duration, logger *slog.Logger) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &EventsHandler{
		notifier:  notifier,
		heartbeat: heartbeat,
		logger:    logger,
	}
}

// StreamHandler emits a "refresh" event whenever stored records of the session user change,
// and a "ping" event on every heartbeat. The stream ends when the client goes away.
// GET /v1/events
func (h *EventsHandler) StreamHandler(c *gin.Context) {
	userID, ok := recordHTTP.GetUserID(c.Request.Context())
	if !ok {
		httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, h.logger)
		return
	}

	signals, unsubscribe := h.notifier.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			c.SSEvent("ping", "")
			return true
		case signal, open := <-signals:
			if !open {
				return false
			}
			if signal.UserID != userID {
				return true
			}
			c.SSEvent("refresh", newRefreshEvent(signal))
			return true
		}
	})
}

func newRefreshEvent(signal push.RefreshSignal) refreshEvent {
	event := refreshEvent{Type: string(signal.Type)}
	if signal.RecordID != uuid.Nil {
		event.RecordID = signal.RecordID.String()
	}
	return event
}
