package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/allisson/healthsync/internal/errors"
	"github.com/allisson/healthsync/internal/httputil"
	"github.com/allisson/healthsync/internal/record/domain"
	"github.com/allisson/healthsync/internal/record/http/dto"
	recordUseCase "github.com/allisson/healthsync/internal/record/usecase"
	customValidation "github.com/allisson/healthsync/internal/validation"
)

// RecordHandler handles HTTP requests for the local record store. Every handler expects
// SessionMiddleware to have stored the user in the request context.
type RecordHandler struct {
	recordUseCase recordUseCase.RecordUseCase
	logger        *slog.Logger
}

// NewRecordHandler creates a new record handler.
func NewRecordHandler(recordUseCase recordUseCase.RecordUseCase, logger *slog.Logger) *RecordHandler {
	return &RecordHandler{
		recordUseCase: recordUseCase,
		logger:        logger,
	}
}

func (h *RecordHandler) userID(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := GetUserID(c.Request.Context())
	if !ok {
		httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, h.logger)
		return uuid.Nil, false
	}
	return userID, true
}

// CreateHandler stores a new record and queues it for delivery.
// POST /v1/records
// Returns 201 Created, or 200 OK with the existing id when source_id was already stored.
func (h *RecordHandler) CreateHandler(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req dto.CreateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	input := recordUseCase.SaveInput{
		UserID:   userID,
		Type:     domain.RecordType(req.Type),
		Metric:   req.Metric,
		Payload:  req.Payload,
		SourceID: req.SourceID,
		Priority: req.Priority,
	}
	if req.RecordedAt != nil {
		input.RecordedAt = *req.RecordedAt
	}

	result, err := h.recordUseCase.Save(c.Request.Context(), input)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	status := http.StatusCreated
	if !result.Created {
		status = http.StatusOK
	}
	c.JSON(status, dto.CreateRecordResponse{ID: result.ID.String(), Created: result.Created})
}

// UpdateHandler edits a record and queues the update for delivery.
// PUT /v1/records/:id
func (h *RecordHandler) UpdateHandler(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleValidationErrorGin(c,
			fmt.Errorf("invalid record ID format: must be a valid UUID"),
			h.logger)
		return
	}

	var req dto.UpdateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	record, err := h.recordUseCase.Update(c.Request.Context(), recordUseCase.UpdateInput{
		ID:         recordID,
		UserID:     userID,
		Metric:     req.Metric,
		Payload:    req.Payload,
		RecordedAt: req.RecordedAt,
		Priority:   req.Priority,
	})
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapRecordToResponse(record))
}

// GetHandler returns one record of the session user.
// GET /v1/records/:id
func (h *RecordHandler) GetHandler(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	recordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleValidationErrorGin(c,
			fmt.Errorf("invalid record ID format: must be a valid UUID"),
			h.logger)
		return
	}

	record, err := h.recordUseCase.Get(c.Request.Context(), userID, recordID)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapRecordToResponse(record))
}

// ListHandler lists records of the session user, newest first.
// GET /v1/records?type=&metric=&sync_status=&from=&to=&offset=&limit=
func (h *RecordHandler) ListHandler(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	from, err := parseTimeQuery(c, "from")
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	to, err := parseTimeQuery(c, "to")
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	records, err := h.recordUseCase.Fetch(c.Request.Context(), domain.Filter{
		UserID:     userID,
		Type:       domain.RecordType(c.Query("type")),
		Metric:     c.Query("metric"),
		From:       from,
		To:         to,
		SyncStatus: domain.SyncStatus(c.Query("sync_status")),
		Offset:     offset,
		Limit:      limit,
	})
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapRecordsToListResponse(records))
}

// LatestHandler returns the most recently created record of a type and metric.
// GET /v1/records/latest?type=&metric=
func (h *RecordHandler) LatestHandler(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	recordType := c.Query("type")
	if recordType == "" {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("type query parameter is required"), h.logger)
		return
	}

	record, err := h.recordUseCase.FetchLatest(
		c.Request.Context(),
		userID,
		domain.RecordType(recordType),
		c.Query("metric"),
	)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapRecordToResponse(record))
}

// parseTimeQuery parses an optional RFC 3339 query parameter.
func parseTimeQuery(c *gin.Context, name string) (*time.Time, error) {
	value := c.Query(name)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s parameter: must be an RFC 3339 timestamp", name)
	}
	t = t.UTC()
	return &t, nil
}
