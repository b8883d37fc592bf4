package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/allisson/healthsync/internal/session"
)

func TestSessionMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(sess *session.Session) *gin.Engine {
		router := gin.New()
		router.GET("/v1/records", SessionMiddleware(sess, nil), func(c *gin.Context) {
			userID, ok := GetUserID(c.Request.Context())
			if !ok {
				c.Status(http.StatusTeapot)
				return
			}
			c.String(http.StatusOK, userID.String())
		})
		return router
	}

	t.Run("RejectsWithoutUser", func(t *testing.T) {
		router := newRouter(session.New())

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/records", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("StoresUserInContext", func(t *testing.T) {
		sess := session.New()
		userID := uuid.Must(uuid.NewV7())
		sess.Login(userID)
		router := newRouter(sess)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/records", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, userID.String(), w.Body.String())
	})

	t.Run("FollowsLogout", func(t *testing.T) {
		sess := session.New()
		sess.Login(uuid.Must(uuid.NewV7()))
		sess.Logout()
		router := newRouter(sess)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/records", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
