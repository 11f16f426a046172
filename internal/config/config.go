// Package config loads FlowCore's process-level configuration: a typed
// struct populated once at startup from environment variables, following
// mbflow's EngineConfig/DefaultEngineConfig pattern (internal/application/
// executor/engine.go) rather than a free-form JSON/YAML config surface.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds everything the demo CLI and engine wiring need at startup.
// Values are read once by Load and never polled afterward.
type Config struct {
	Port        string
	LogLevel    string
	DatabaseDSN string

	// PricingUpdateInterval controls how often pricingchain.Chain
	// refreshes live pricing for known (provider, model) pairs.
	PricingUpdateInterval time.Duration
	// PricingCacheDuration is the freshness TTL a cached pricing entry
	// is trusted for before the chain falls through to the embedded
	// fallback table.
	PricingCacheDuration time.Duration
	// PricingFallbackEnabled holds PRICING_FALLBACK_ENABLED.
	// pricingchain.Chain does not read it: the chain always consults its
	// embedded fallback table when Live and the cache cannot answer.
	PricingFallbackEnabled bool

	// TokenDefaultDailyLimitUSD seeds budget.Limits.PerDayCost when no
	// per-session override is configured.
	TokenDefaultDailyLimitUSD string
}

// Default returns FlowCore's baseline configuration, mirroring
// DefaultEngineConfig's role of giving every field a sane value before
// environment overlays are applied.
func Default() Config {
	return Config{
		Port:                      "8080",
		LogLevel:                  "info",
		DatabaseDSN:               "",
		PricingUpdateInterval:     6 * time.Hour,
		PricingCacheDuration:      time.Hour,
		PricingFallbackEnabled:    true,
		TokenDefaultDailyLimitUSD: "50.00",
	}
}

// Load builds a Config from Default() overlaid with environment
// variables, read once at process start.
func Load() Config {
	cfg := Default()

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.DatabaseDSN = getEnv("DATABASE_DSN", cfg.DatabaseDSN)

	if hours, ok := getEnvInt("PRICING_UPDATE_INTERVAL_HOURS"); ok {
		cfg.PricingUpdateInterval = time.Duration(hours) * time.Hour
	}
	if hours, ok := getEnvInt("PRICING_CACHE_DURATION_HOURS"); ok {
		cfg.PricingCacheDuration = time.Duration(hours) * time.Hour
	}
	if enabled, ok := getEnvBool("PRICING_FALLBACK_ENABLED"); ok {
		cfg.PricingFallbackEnabled = enabled
	}
	cfg.TokenDefaultDailyLimitUSD = getEnv("TOKEN_DEFAULT_DAILY_LIMIT_USD", cfg.TokenDefaultDailyLimitUSD)

	return cfg
}

// GetPortInt returns Port parsed as an integer, 0 if it doesn't parse.
func (c Config) GetPortInt() int {
	p, _ := strconv.Atoi(c.Port)
	return p
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string) (int, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return n, true
}

func getEnvBool(key string) (bool, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, false
	}
	return b, true
}
