// Package http provides HTTP handlers for the local record API.
package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/healthsync/internal/errors"
	"github.com/allisson/healthsync/internal/httputil"
	"github.com/allisson/healthsync/internal/session"
)

// SessionMiddleware scopes a request to the logged-in user. Requests made while nobody is
// logged in are rejected with 401 Unauthorized.
//
// Usage:
//
//	records := router.Group("/v1/records", SessionMiddleware(sess, logger))
//	records.GET("", func(c *gin.Context) {
//	    userID, _ := GetUserID(c.Request.Context())
//	})
func SessionMiddleware(provider session.Provider, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := provider.CurrentUserID()
		if !ok {
			if logger != nil {
				logger.Debug("request rejected: no user logged in", slog.String("path", c.FullPath()))
			}
			httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}
