// Package http provides HTTP server implementation and request handlers.
package http

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/healthsync/internal/config"
	"github.com/allisson/healthsync/internal/metrics"
	outboxHTTP "github.com/allisson/healthsync/internal/outbox/http"
	recordHTTP "github.com/allisson/healthsync/internal/record/http"
	"github.com/allisson/healthsync/internal/session"
)

// Server represents the HTTP server
type Server struct {
	db     *sql.DB
	server *http.Server
	router *gin.Engine
	logger *slog.Logger
}

// NewServer creates a new HTTP server. SetupRouter must be called before Start.
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
	return &Server{
		db:     db,
		logger: logger,
		server: &http.Server{
			Addr:        fmt.Sprintf("%s:%d", host, port),
			ReadTimeout: 15 * time.Second,
			// No WriteTimeout: /v1/events holds its response open.
			IdleTimeout: 60 * time.Second,
		},
	}
}

// SetupRouter registers every route of the local API.
func (s *Server) SetupRouter(
	cfg *config.Config,
	sess *session.Session,
	recordHandler *recordHTTP.RecordHandler,
	syncHandler *outboxHTTP.SyncHandler,
	sessionHandler *SessionHandler,
	eventsHandler *EventsHandler,
	metricsProvider *metrics.Provider,
) {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if corsMiddleware := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	if metricsProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(metricsProvider.MeterProvider(), cfg.MetricsNamespace))
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")

	sessionGroup := v1.Group("/session")
	{
		sessionGroup.GET("", sessionHandler.GetHandler)
		sessionGroup.PUT("", sessionHandler.LoginHandler)
		sessionGroup.DELETE("", sessionHandler.LogoutHandler)
	}

	authenticated := v1.Group("", recordHTTP.SessionMiddleware(sess, s.logger))

	records := authenticated.Group("/records")
	{
		records.POST("", recordHandler.CreateHandler)
		records.GET("", recordHandler.ListHandler)
		records.GET("/latest", recordHandler.LatestHandler)
		records.GET("/:id", recordHandler.GetHandler)
		records.PUT("/:id", recordHandler.UpdateHandler)
	}

	syncGroup := authenticated.Group("/sync")
	{
		syncGroup.POST("/trigger", syncHandler.TriggerHandler)
		syncGroup.GET("/stats", syncHandler.StatsHandler)
	}

	authenticated.GET("/events", eventsHandler.StreamHandler)

	s.router = router
}

// GetHandler returns the http.Handler for testing purposes.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	if s.router == nil {
		return errors.New("router not configured")
	}
	s.server.Handler = s.router

	s.logger.Info("starting http server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.server.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports whether the local store answers.
func (s *Server) readinessHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": gin.H{"database": "error"},
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn("readiness check failed", slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": gin.H{"database": "error"},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"components": gin.H{"database": "ok"},
	})
}
