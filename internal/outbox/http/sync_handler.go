// Package http provides HTTP handlers for manual sync control.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/allisson/healthsync/internal/errors"
	"github.com/allisson/healthsync/internal/httputil"
	"github.com/allisson/healthsync/internal/outbox/domain"
	"github.com/allisson/healthsync/internal/outbox/http/dto"
	recordHTTP "github.com/allisson/healthsync/internal/record/http"
)

// Trigger requests an outbox pass without waiting for the next tick.
type Trigger interface {
	Trigger()
}

// StatsReader reports outbox event counts for a user.
type StatsReader interface {
	Stats(ctx context.Context, userID uuid.UUID) (domain.StatusCounts, error)
}

// SyncHandler handles manual sync requests.
type SyncHandler struct {
	processor Trigger
	queue     StatsReader
	logger    *slog.Logger
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(processor Trigger, queue StatsReader, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		processor: processor,
		queue:     queue,
		logger:    logger,
	}
}

// TriggerHandler wakes the outbox processor.
// POST /v1/sync/trigger
// Returns 202 Accepted; the pass runs in the background.
func (h *SyncHandler) TriggerHandler(c *gin.Context) {
	if _, ok := recordHTTP.GetUserID(c.Request.Context()); !ok {
		httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, h.logger)
		return
	}

	h.processor.Trigger()

	if h.logger != nil {
		h.logger.Debug("sync triggered")
	}
	c.JSON(http.StatusAccepted, dto.TriggerResponse{Status: "accepted"})
}

// StatsHandler returns the outbox event counts of the session user.
// GET /v1/sync/stats
func (h *SyncHandler) StatsHandler(c *gin.Context) {
	userID, ok := recordHTTP.GetUserID(c.Request.Context())
	if !ok {
		httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, h.logger)
		return
	}

	counts, err := h.queue.Stats(c.Request.Context(), userID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapStatusCountsToResponse(counts))
}
