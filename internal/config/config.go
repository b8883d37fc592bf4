// Package config provides application configuration through environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// ServerHost is the host address the local API server will bind to.
	ServerHost string
	// ServerPort is the port number the local API server will listen on.
	ServerPort int

	// DBDriver is the database driver to use ("sqlite3", "postgres" or "mysql").
	DBDriver string
	// DBConnectionString is the connection string (or file path for sqlite3) for the database.
	DBConnectionString string
	// DBMaxOpenConnections is the maximum number of open connections to the database.
	DBMaxOpenConnections int
	// DBMaxIdleConnections is the maximum number of idle connections in the database pool.
	DBMaxIdleConnections int
	// DBConnMaxLifetime is the maximum amount of time a connection may be reused.
	DBConnMaxLifetime time.Duration

	// LogLevel is the logging level (e.g., "debug", "info", "warn", "error").
	LogLevel string

	// OutboxInterval is the delay between two outbox processing passes.
	OutboxInterval time.Duration
	// OutboxBatchSize is the maximum number of events fetched per pass.
	OutboxBatchSize int
	// OutboxConcurrency is the number of events delivered in parallel within a pass.
	OutboxConcurrency int
	// OutboxMaxAttempts is the number of delivery attempts before an event is terminally failed.
	OutboxMaxAttempts int
	// OutboxBaseDelay is the first retry delay of the exponential backoff.
	OutboxBaseDelay time.Duration
	// OutboxMaxDelay caps the exponential backoff.
	OutboxMaxDelay time.Duration
	// OutboxCallTimeout bounds every remote API call.
	OutboxCallTimeout time.Duration
	// OutboxClaimTimeout is how long an event may stay processing before another pass reclaims it.
	OutboxClaimTimeout time.Duration
	// OutboxRetention is how long completed events are kept before being purged.
	OutboxRetention time.Duration
	// OutboxPurgeInterval is the delay between two purge runs.
	OutboxPurgeInterval time.Duration

	// RemoteBaseURL is the base URL of the backend REST API.
	RemoteBaseURL string
	// RemoteAPIKey is sent as X-API-Key when not empty.
	RemoteAPIKey string
	// RemoteRateLimitPerSec limits outgoing backend calls per second.
	RemoteRateLimitPerSec float64
	// RemoteRateLimitBurst is the burst size of the backend call limiter.
	RemoteRateLimitBurst int

	// PushTransport selects the push channel ("websocket", "mqtt" or "none").
	PushTransport string
	// PushURL is the WebSocket endpoint delivering remote completion messages.
	PushURL string
	// PushMQTTBroker is the MQTT broker address used when PushTransport is "mqtt".
	PushMQTTBroker string
	// PushMQTTTopicPrefix prefixes the per-user MQTT update topic.
	PushMQTTTopicPrefix string
	// PushMQTTUsername and PushMQTTPassword authenticate against the broker when set.
	PushMQTTUsername string
	PushMQTTPassword string
	// PushPollInterval is the polling fallback interval while push is unverified.
	PushPollInterval time.Duration
	// PushReconnectBaseDelay is the first reconnection delay of the push channel.
	PushReconnectBaseDelay time.Duration
	// PushReconnectMaxDelay caps the push reconnection backoff.
	PushReconnectMaxDelay time.Duration

	// SyncThreshold is the staleness threshold used before pulling device samples.
	SyncThreshold time.Duration
	// SyncWindow is the trailing window re-scanned on every catch-up sync.
	SyncWindow time.Duration
	// SyncSampleSourceURL is the device bridge serving recent samples.
	SyncSampleSourceURL string

	// SessionUserID logs this user in at startup when not empty.
	SessionUserID string

	// CORSEnabled indicates whether CORS is enabled.
	CORSEnabled bool
	// CORSAllowOrigins is a comma-separated list of allowed origins for CORS.
	CORSAllowOrigins string

	// MetricsEnabled indicates whether metrics collection is enabled.
	MetricsEnabled bool
	// MetricsNamespace is the namespace for the application metrics.
	MetricsNamespace string
	// MetricsPort is the port number for the metrics server.
	MetricsPort int
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	// Try to load .env file recursively
	loadDotEnv()

	return &Config{
		// Server configuration
		ServerHost: env.GetString("SERVER_HOST", "0.0.0.0"),
		ServerPort: env.GetInt("SERVER_PORT", 8080),

		// Database configuration
		DBDriver:             env.GetString("DB_DRIVER", "sqlite3"),
		DBConnectionString:   env.GetString("DB_CONNECTION_STRING", "healthsync.db"),
		DBMaxOpenConnections: env.GetInt("DB_MAX_OPEN_CONNECTIONS", 25),
		DBMaxIdleConnections: env.GetInt("DB_MAX_IDLE_CONNECTIONS", 5),
		DBConnMaxLifetime:    env.GetDuration("DB_CONN_MAX_LIFETIME", 5, time.Minute),

		// Logging
		LogLevel: env.GetString("LOG_LEVEL", "info"),

		// Outbox processor
		OutboxInterval:      env.GetDuration("OUTBOX_INTERVAL_SECONDS", 5, time.Second),
		OutboxBatchSize:     env.GetInt("OUTBOX_BATCH_SIZE", 10),
		OutboxConcurrency:   env.GetInt("OUTBOX_CONCURRENCY", 3),
		OutboxMaxAttempts:   env.GetInt("OUTBOX_MAX_ATTEMPTS", 5),
		OutboxBaseDelay:     env.GetDuration("OUTBOX_BASE_DELAY_SECONDS", 1, time.Second),
		OutboxMaxDelay:      env.GetDuration("OUTBOX_MAX_DELAY_SECONDS", 600, time.Second),
		OutboxCallTimeout:   env.GetDuration("OUTBOX_CALL_TIMEOUT_SECONDS", 30, time.Second),
		OutboxClaimTimeout:  env.GetDuration("OUTBOX_CLAIM_TIMEOUT_SECONDS", 90, time.Second),
		OutboxRetention:     env.GetDuration("OUTBOX_RETENTION_HOURS", 168, time.Hour),
		OutboxPurgeInterval: env.GetDuration("OUTBOX_PURGE_INTERVAL_MINUTES", 60, time.Minute),

		// Remote API
		RemoteBaseURL:         env.GetString("REMOTE_BASE_URL", "http://localhost:9000"),
		RemoteAPIKey:          env.GetString("REMOTE_API_KEY", ""),
		RemoteRateLimitPerSec: env.GetFloat64("REMOTE_RATE_LIMIT_PER_SEC", 10.0),
		RemoteRateLimitBurst:  env.GetInt("REMOTE_RATE_LIMIT_BURST", 20),

		// Push channel
		PushTransport:          env.GetString("PUSH_TRANSPORT", "websocket"),
		PushURL:                env.GetString("PUSH_URL", "ws://localhost:9000/ws"),
		PushMQTTBroker:         env.GetString("PUSH_MQTT_BROKER", "tcp://localhost:1883"),
		PushMQTTTopicPrefix:    env.GetString("PUSH_MQTT_TOPIC_PREFIX", "healthsync/users"),
		PushMQTTUsername:       env.GetString("PUSH_MQTT_USERNAME", ""),
		PushMQTTPassword:       env.GetString("PUSH_MQTT_PASSWORD", ""),
		PushPollInterval:       env.GetDuration("PUSH_POLL_INTERVAL_SECONDS", 5, time.Second),
		PushReconnectBaseDelay: env.GetDuration("PUSH_RECONNECT_BASE_SECONDS", 1, time.Second),
		PushReconnectMaxDelay:  env.GetDuration("PUSH_RECONNECT_MAX_SECONDS", 30, time.Second),

		// Sync decision policy
		SyncThreshold:       env.GetDuration("SYNC_THRESHOLD_HOURS", 1, time.Hour),
		SyncWindow:          env.GetDuration("SYNC_WINDOW_DAYS", 7, 24*time.Hour),
		SyncSampleSourceURL: env.GetString("SYNC_SAMPLE_SOURCE_URL", "http://localhost:9100"),

		// Session
		SessionUserID: env.GetString("SESSION_USER_ID", ""),

		// CORS
		CORSEnabled:      env.GetBool("CORS_ENABLED", false),
		CORSAllowOrigins: env.GetString("CORS_ALLOW_ORIGINS", ""),

		// Metrics
		MetricsEnabled:   env.GetBool("METRICS_ENABLED", true),
		MetricsNamespace: env.GetString("METRICS_NAMESPACE", "healthsync"),
		MetricsPort:      env.GetInt("METRICS_PORT", 8081),
	}
}

// GetGinMode returns the appropriate Gin mode based on log level.
func (c *Config) GetGinMode() string {
	switch c.LogLevel {
	case "debug":
		return "debug"
	default:
		return "release"
	}
}

// loadDotEnv searches for a .env file recursively from the current directory
// up to the root directory and loads it if found.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
}
