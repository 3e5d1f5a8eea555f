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

	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.DueCheckInterval)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.CleanupInterval)
	assert.Equal(t, time.Hour, cfg.Scheduler.StaleAfter)
	assert.Equal(t, time.Minute, cfg.Scheduler.MinLeadTime)
	assert.Equal(t, 59999*time.Millisecond, cfg.Scheduler.EarlyAdmission)
	assert.Equal(t, 5*time.Millisecond, cfg.MassSend.DefaultPacing)
	assert.Equal(t, 5*time.Second, cfg.MassSend.MaxPacing)
	assert.Equal(t, 10, cfg.Activity.MaxEntries)
	assert.True(t, cfg.Settings.AutoIntercept)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SENDIQ_STORAGE_BACKEND", "memory")
	t.Setenv("SENDIQ_SCHEDULER_DUE_CHECK_INTERVAL", "10s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 10*time.Second, cfg.Scheduler.DueCheckInterval)
}

func TestValidate(t *testing.T) {
	t.Setenv("SENDIQ_STORAGE_BACKEND", "sqlite")

	_, err := Load()
	assert.ErrorContains(t, err, "unsupported storage backend")
}
