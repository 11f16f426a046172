package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flowcore/flowcore/internal/config"
)

func TestDefault_SeedsBaselineValues(t *testing.T) {
	cfg := config.Default()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.DatabaseDSN)
	assert.Equal(t, 6*time.Hour, cfg.PricingUpdateInterval)
	assert.Equal(t, time.Hour, cfg.PricingCacheDuration)
	assert.True(t, cfg.PricingFallbackEnabled)
	assert.Equal(t, "50.00", cfg.TokenDefaultDailyLimitUSD)
}

func TestLoad_OverlaysStringEnvVarsOntoDefaults(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_DSN", "postgres://localhost/flowcore")
	t.Setenv("TOKEN_DEFAULT_DAILY_LIMIT_USD", "100.00")

	cfg := config.Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "postgres://localhost/flowcore", cfg.DatabaseDSN)
	assert.Equal(t, "100.00", cfg.TokenDefaultDailyLimitUSD)
}

func TestLoad_OverlaysPricingDurationEnvVarsAsHours(t *testing.T) {
	t.Setenv("PRICING_UPDATE_INTERVAL_HOURS", "12")
	t.Setenv("PRICING_CACHE_DURATION_HOURS", "2")

	cfg := config.Load()
	assert.Equal(t, 12*time.Hour, cfg.PricingUpdateInterval)
	assert.Equal(t, 2*time.Hour, cfg.PricingCacheDuration)
}

func TestLoad_IgnoresUnparseableIntEnvVarAndKeepsDefault(t *testing.T) {
	t.Setenv("PRICING_UPDATE_INTERVAL_HOURS", "not-a-number")

	cfg := config.Load()
	assert.Equal(t, 6*time.Hour, cfg.PricingUpdateInterval)
}

func TestLoad_OverlaysPricingFallbackBoolEnvVar(t *testing.T) {
	t.Setenv("PRICING_FALLBACK_ENABLED", "false")

	cfg := config.Load()
	assert.False(t, cfg.PricingFallbackEnabled)
}

func TestLoad_IgnoresUnparseableBoolEnvVarAndKeepsDefault(t *testing.T) {
	t.Setenv("PRICING_FALLBACK_ENABLED", "maybe")

	cfg := config.Load()
	assert.True(t, cfg.PricingFallbackEnabled)
}

func TestGetPortInt_ParsesNumericPort(t *testing.T) {
	cfg := config.Default()
	cfg.Port = "8443"
	assert.Equal(t, 8443, cfg.GetPortInt())
}

func TestGetPortInt_ReturnsZeroForUnparseablePort(t *testing.T) {
	cfg := config.Default()
	cfg.Port = "not-a-port"
	assert.Zero(t, cfg.GetPortInt())
}
