package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, devSecret, cfg.JWTSecret)
	assert.Equal(t, 2*time.Second, cfg.OutboxInterval)
	assert.True(t, cfg.IdempotencyEnabled)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("OUTBOX_BATCH_SIZE", "7")
	t.Setenv("EXPIRY_SWEEP_INTERVAL", "10m")
	t.Setenv("IDEMPOTENCY_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.OutboxBatchSize)
	assert.Equal(t, 10*time.Minute, cfg.ExpirySweepInterval)
	assert.False(t, cfg.IdempotencyEnabled)
}

func TestLoad_ProductionNeedsSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "short")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("OUTBOX_BATCH_SIZE", "0")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("OUTBOX_BATCH_SIZE", "ten")
	_, err = Load()
	assert.Error(t, err)
}
