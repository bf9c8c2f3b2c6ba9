package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequiredEnv sets the env vars without which Load fails validation.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FINSIGHT_DATABASE_URL", "postgres://localhost:5432/finsight?sslmode=disable")
	t.Setenv("FINSIGHT_LLM_GEMINI_API_KEY", "test-api-key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, QueueDriverMemory, cfg.Queue.Driver)
	assert.Equal(t, 100, cfg.Queue.BufferSize)
	assert.Equal(t, 5*time.Minute, cfg.Queue.VisibilityTimeout)
	assert.Equal(t, 2, cfg.Worker.Count)
	assert.Equal(t, 3, cfg.Worker.MaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.Worker.StuckTaskAge)
	assert.Equal(t, "data", cfg.Intake.DataDir)
	assert.Equal(t, int64(10<<20), cfg.Intake.MaxUploadBytes)
	assert.False(t, cfg.Intake.CleanupAfterAnalysis)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.ModelName)
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FINSIGHT_SERVER_PORT", "9090")
	t.Setenv("FINSIGHT_SERVER_LOG_LEVEL", "debug")
	t.Setenv("FINSIGHT_WORKER_MAX_ATTEMPTS", "5")
	t.Setenv("FINSIGHT_QUEUE_VISIBILITY_TIMEOUT", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 5, cfg.Worker.MaxAttempts)
	assert.Equal(t, 90*time.Second, cfg.Queue.VisibilityTimeout)
}

func TestLoad_MissingRequired(t *testing.T) {
	// Only the API key, no database URL.
	t.Setenv("FINSIGHT_LLM_GEMINI_API_KEY", "test-api-key")

	cfg, err := Load()
	assert.Nil(t, cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FINSIGHT_SERVER_LOG_LEVEL", "verbose")

	cfg, err := Load()
	assert.Nil(t, cfg)
	assert.Error(t, err)
}

func TestLoad_NATSDriverRequiresURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FINSIGHT_QUEUE_DRIVER", "nats")

	cfg, err := Load()
	assert.Nil(t, cfg)
	assert.Error(t, err)

	t.Setenv("FINSIGHT_QUEUE_NATS_URL", "nats://localhost:4222")

	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, QueueDriverNATS, cfg.Queue.Driver)
	assert.Equal(t, "ANALYSIS", cfg.Queue.NATSStream)
}
