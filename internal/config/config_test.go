package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "load default configuration",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "0.0.0.0", cfg.ServerHost)
				assert.Equal(t, 8080, cfg.ServerPort)
				assert.Equal(t, "sqlite3", cfg.DBDriver)
				assert.Equal(t, "healthsync.db", cfg.DBConnectionString)
				assert.Equal(t, 25, cfg.DBMaxOpenConnections)
				assert.Equal(t, 5, cfg.DBMaxIdleConnections)
				assert.Equal(t, 5*time.Minute, cfg.DBConnMaxLifetime)
				assert.Equal(t, "info", cfg.LogLevel)
				assert.Equal(t, 5*time.Second, cfg.OutboxInterval)
				assert.Equal(t, 10, cfg.OutboxBatchSize)
				assert.Equal(t, 3, cfg.OutboxConcurrency)
				assert.Equal(t, 5, cfg.OutboxMaxAttempts)
				assert.Equal(t, time.Second, cfg.OutboxBaseDelay)
				assert.Equal(t, 10*time.Minute, cfg.OutboxMaxDelay)
				assert.Equal(t, 30*time.Second, cfg.OutboxCallTimeout)
				assert.Equal(t, 90*time.Second, cfg.OutboxClaimTimeout)
				assert.Equal(t, 7*24*time.Hour, cfg.OutboxRetention)
				assert.Equal(t, time.Hour, cfg.OutboxPurgeInterval)
				assert.Equal(t, "websocket", cfg.PushTransport)
				assert.Equal(t, 5*time.Second, cfg.PushPollInterval)
				assert.Equal(t, time.Hour, cfg.SyncThreshold)
				assert.Equal(t, 7*24*time.Hour, cfg.SyncWindow)
				assert.Equal(t, "http://localhost:9100", cfg.SyncSampleSourceURL)
				assert.Empty(t, cfg.PushMQTTUsername)
				assert.Empty(t, cfg.SessionUserID)
				assert.True(t, cfg.MetricsEnabled)
				assert.Equal(t, "healthsync", cfg.MetricsNamespace)
			},
		},
		{
			name: "load custom database configuration",
			envVars: map[string]string{
				"DB_DRIVER":               "mysql",
				"DB_CONNECTION_STRING":    "user:password@tcp(localhost:3306)/testdb",
				"DB_MAX_OPEN_CONNECTIONS": "50",
				"DB_MAX_IDLE_CONNECTIONS": "10",
				"DB_CONN_MAX_LIFETIME":    "10",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "mysql", cfg.DBDriver)
				assert.Equal(t, "user:password@tcp(localhost:3306)/testdb", cfg.DBConnectionString)
				assert.Equal(t, 50, cfg.DBMaxOpenConnections)
				assert.Equal(t, 10, cfg.DBMaxIdleConnections)
				assert.Equal(t, 10*time.Minute, cfg.DBConnMaxLifetime)
			},
		},
		{
			name: "load custom outbox configuration",
			envVars: map[string]string{
				"OUTBOX_INTERVAL_SECONDS":      "2",
				"OUTBOX_BATCH_SIZE":            "20",
				"OUTBOX_CONCURRENCY":           "5",
				"OUTBOX_MAX_ATTEMPTS":          "8",
				"OUTBOX_BASE_DELAY_SECONDS":    "3",
				"OUTBOX_MAX_DELAY_SECONDS":     "120",
				"OUTBOX_CALL_TIMEOUT_SECONDS":  "10",
				"OUTBOX_RETENTION_HOURS":       "24",
				"OUTBOX_CLAIM_TIMEOUT_SECONDS": "40",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 2*time.Second, cfg.OutboxInterval)
				assert.Equal(t, 20, cfg.OutboxBatchSize)
				assert.Equal(t, 5, cfg.OutboxConcurrency)
				assert.Equal(t, 8, cfg.OutboxMaxAttempts)
				assert.Equal(t, 3*time.Second, cfg.OutboxBaseDelay)
				assert.Equal(t, 2*time.Minute, cfg.OutboxMaxDelay)
				assert.Equal(t, 10*time.Second, cfg.OutboxCallTimeout)
				assert.Equal(t, 24*time.Hour, cfg.OutboxRetention)
				assert.Equal(t, 40*time.Second, cfg.OutboxClaimTimeout)
			},
		},
		{
			name: "load custom push configuration",
			envVars: map[string]string{
				"PUSH_TRANSPORT":             "mqtt",
				"PUSH_MQTT_BROKER":           "tcp://broker:1883",
				"PUSH_POLL_INTERVAL_SECONDS": "9",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "mqtt", cfg.PushTransport)
				assert.Equal(t, "tcp://broker:1883", cfg.PushMQTTBroker)
				assert.Equal(t, 9*time.Second, cfg.PushPollInterval)
			},
		},
		{
			name: "load custom log level",
			envVars: map[string]string{
				"LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.Equal(t, "debug", cfg.GetGinMode())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			// Set test environment variables
			for key, value := range tt.envVars {
				err := os.Setenv(key, value)
				require.NoError(t, err)
			}

			// Load configuration
			cfg := Load()

			// Validate
			tt.validate(t, cfg)
		})
	}
}

func TestGetGinMode(t *testing.T) {
	for level, want := range map[string]string{
		"debug": "debug",
		"info":  "release",
		"warn":  "release",
		"error": "release",
		"":      "release",
	} {
		cfg := &Config{LogLevel: level}
		assert.Equal(t, want, cfg.GetGinMode(), level)
	}
}
