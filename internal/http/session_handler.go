package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/allisson/healthsync/internal/httputil"
	"github.com/allisson/healthsync/internal/session"
	customValidation "github.com/allisson/healthsync/internal/validation"
)

// LoginRequest selects the user the sync workers act for.
type LoginRequest struct {
	UserID string `json:"user_id"`
}

// Validate checks that UserID is a non-nil UUID.
func (r *LoginRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.UserID,
			validation.Required,
			validation.By(func(value interface{}) error {
				id, err := uuid.Parse(value.(string))
				if err != nil || id == uuid.Nil {
					return validation.NewError("validation_uuid", "must be a valid UUID")
				}
				return nil
			}),
		),
	)
}

// SessionResponse describes the authentication context.
type SessionResponse struct {
	LoggedIn bool   `json:"logged_in"`
	UserID   string `json:"user_id,omitempty"`
}

// SessionHandler logs users in and out of the local session.
type SessionHandler struct {
	session *session.Session
	onLogin func()
	logger  *slog.Logger
}

// NewSessionHandler creates a new session handler. onLogin, when set, runs after every
// successful login so that queued work for the user starts immediately.
func NewSessionHandler(sess *session.Session, onLogin func(), logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		session: sess,
		onLogin: onLogin,
		logger:  logger,
	}
}

func (h *SessionHandler) current() SessionResponse {
	userID, ok := h.session.CurrentUserID()
	if !ok {
		return SessionResponse{}
	}
	return SessionResponse{LoggedIn: true, UserID: userID.String()}
}

// GetHandler returns the logged-in user.
// GET /v1/session
func (h *SessionHandler) GetHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.current())
}

// LoginHandler logs a user in, replacing any previous one.
// PUT /v1/session
func (h *SessionHandler) LoginHandler(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	userID := uuid.MustParse(req.UserID)
	h.session.Login(userID)
	if h.logger != nil {
		h.logger.Info("user logged in", slog.String("user_id", userID.String()))
	}
	if h.onLogin != nil {
		h.onLogin()
	}

	c.JSON(http.StatusOK, h.current())
}

// LogoutHandler clears the session. Sync workers go idle until the next login.
// DELETE /v1/session
func (h *SessionHandler) LogoutHandler(c *gin.Context) {
	h.session.Logout()
	if h.logger != nil {
		h.logger.Info("user logged out")
	}
	c.Status(http.StatusNoContent)
}
