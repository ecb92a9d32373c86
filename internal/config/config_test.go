package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 64, cfg.MES.LineageMaxDepth)
	assert.Equal(t, 1000, cfg.MES.MaxBatchSize)
	assert.Equal(t, 5*time.Minute, cfg.MES.PartCacheTTL)
	assert.True(t, cfg.Database.AutoMigrate)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("MES_DEFAULT_SITE_CODE", "SZ01")
	t.Setenv("MES_MAX_BATCH_SIZE", "50")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, "SZ01", cfg.MES.DefaultSiteCode)
	assert.Equal(t, 50, cfg.MES.MaxBatchSize)
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("MES_CONFIG_TEST", "")
	assert.Equal(t, "fallback", GetEnvOrDefault("MES_CONFIG_TEST", "fallback"))
	t.Setenv("MES_CONFIG_TEST", "set")
	assert.Equal(t, "set", GetEnvOrDefault("MES_CONFIG_TEST", "fallback"))
}
