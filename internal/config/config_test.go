package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 25, cfg.WriteBatchLimit)
	assert.Equal(t, int64(5242880), cfg.UploadMaxBytes)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, time.Hour, cfg.JobMaxRuntime)
	assert.Equal(t, 30*time.Second, cfg.VisibilityTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("WRITE_BATCH_LIMIT", "50")
	t.Setenv("BACKEND_TIMEOUT", "5s")
	t.Setenv("RESULT_S3_BUCKET", "registrar-results")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, 50, cfg.WriteBatchLimit)
	assert.Equal(t, 5*time.Second, cfg.BackendTimeout)
	assert.Equal(t, "registrar-results", cfg.ResultS3Bucket)
}

func TestLoadRejectsNonPositiveBatchLimit(t *testing.T) {
	t.Setenv("WRITE_BATCH_LIMIT", "0")
	_, err := Load()
	assert.Error(t, err)
}
