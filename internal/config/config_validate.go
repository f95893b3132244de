// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package config

import (
	"fmt"
	"strings"

	"github.com/tomtom215/chatrelay/internal/auth"
	"github.com/tomtom215/chatrelay/internal/ratelimit"
	"github.com/tomtom215/chatrelay/internal/storage"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateLogging,
		c.validateConnection,
		c.validateTimings,
		c.validateBreaker,
		c.validateRateLimit,
		c.validateBus,
		c.validateStorage,
		c.validateAuth,
		c.validateMetrics,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got: %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got: %v", c.Server.ShutdownTimeout)
	}
	if c.IsProduction() {
		for _, origin := range c.Server.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("CORS_ORIGINS must not contain * in production")
			}
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal, panic, got: %s", c.Logging.Level)
	}
	format := strings.ToLower(c.Logging.Format)
	if format != "json" && format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got: %s", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateConnection() error {
	if c.Connection.MaxPerUser < 1 {
		return fmt.Errorf("MAX_CONNECTIONS must be at least 1, got: %d", c.Connection.MaxPerUser)
	}
	if c.Connection.TypingRate <= 0 || c.Connection.TypingBurst < 1 {
		return fmt.Errorf("TYPING_RATE and TYPING_BURST must be positive")
	}
	if c.WebSocket.MaxMessageSize < 0 || c.WebSocket.SendBuffer < 0 {
		return fmt.Errorf("websocket message size and send buffer must not be negative")
	}
	return nil
}

// validateTimings checks the router and presence durations and their ordering.
func (c *Config) validateTimings() error {
	if c.Router.AckTimeout <= 0 {
		return fmt.Errorf("ACK_TIMEOUT must be positive, got: %v", c.Router.AckTimeout)
	}
	if c.Router.ReadTrackerSize < 1 || c.Router.ReadTrackerTTL <= 0 {
		return fmt.Errorf("read tracker size and TTL must be positive")
	}

	p := c.Presence
	if p.AwayThreshold <= 0 || p.OfflineThreshold <= 0 {
		return fmt.Errorf("presence thresholds must be positive")
	}
	if p.OfflineThreshold <= p.AwayThreshold {
		return fmt.Errorf("OFFLINE_THRESHOLD (%v) must exceed AWAY_THRESHOLD (%v)", p.OfflineThreshold, p.AwayThreshold)
	}
	if p.MonitorInterval <= 0 || p.BatchInterval <= 0 {
		return fmt.Errorf("presence monitor and batch intervals must be positive")
	}
	if p.MaxBatchSize < 1 || p.CacheSize < 1 || p.MaxAttempts < 1 {
		return fmt.Errorf("presence batch size, cache size and max attempts must be at least 1")
	}
	if p.RetryBase <= 0 || p.RetryMax < p.RetryBase {
		return fmt.Errorf("PRESENCE_RETRY_MAX (%v) must be at least PRESENCE_RETRY_BASE (%v)", p.RetryMax, p.RetryBase)
	}
	return nil
}

func (c *Config) validateBreaker() error {
	if c.Breaker.Threshold == 0 {
		return fmt.Errorf("BREAKER_THRESHOLD must be at least 1")
	}
	if c.Breaker.Timeout <= 0 {
		return fmt.Errorf("BREAKER_TIMEOUT must be positive, got: %v", c.Breaker.Timeout)
	}
	if c.Breaker.ProbeURL != "" {
		if err := validateHTTPURL(c.Breaker.ProbeURL, "BREAKER_PROBE_URL"); err != nil {
			return err
		}
		if c.Breaker.ProbeInterval <= 0 {
			return fmt.Errorf("BREAKER_PROBE_EVERY must be positive when a probe URL is set")
		}
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if err := validateLimiter("RATE_LIMIT_HTTP", c.RateLimit.HTTP, false); err != nil {
		return err
	}
	if err := validateLimiter("RATE_LIMIT_MSG", c.RateLimit.Messages, true); err != nil {
		return err
	}
	if c.RateLimit.SweepInterval <= 0 {
		return fmt.Errorf("RATE_LIMIT_SWEEP_INTERVAL must be positive")
	}
	return nil
}

// validateLimiter checks one limiter section. Message limiting cannot be
// disabled.
func validateLimiter(prefix string, l LimiterConfig, required bool) error {
	if !l.Enabled {
		if required {
			return fmt.Errorf("%s_ENABLED cannot be false", prefix)
		}
		return nil
	}

	alg := ratelimit.Algorithm(l.Algorithm)
	if !alg.Valid() {
		return fmt.Errorf("%s_ALGORITHM must be one of fixed_window, sliding_log, token_bucket, leaky_bucket, got: %s", prefix, l.Algorithm)
	}
	switch alg {
	case ratelimit.FixedWindow, ratelimit.SlidingLog:
		if l.Limit < 1 || l.Window <= 0 {
			return fmt.Errorf("%s_REQUESTS and %s_WINDOW must be positive for %s", prefix, prefix, alg)
		}
		if l.Window < ratelimit.MinWindow {
			return fmt.Errorf("%s_WINDOW must be at least %s, got: %s", prefix, ratelimit.MinWindow, l.Window)
		}
	default:
		if l.Capacity <= 0 || l.Rate <= 0 {
			return fmt.Errorf("%s_CAPACITY and %s_RATE must be positive for %s", prefix, prefix, alg)
		}
		if l.Window != 0 && l.Window < ratelimit.MinWindow {
			return fmt.Errorf("%s_WINDOW must be 0 or at least %s, got: %s", prefix, ratelimit.MinWindow, l.Window)
		}
	}
	return nil
}

func (c *Config) validateBus() error {
	switch c.Bus.Backend {
	case BusMemory:
	case BusNATS:
		if !c.Bus.EmbeddedNATS {
			if err := validateNATSURL(c.Bus.NATSURL); err != nil {
				return fmt.Errorf("NATS_URL is invalid: %w", err)
			}
		}
	case BusRedis:
		if c.Bus.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when BUS_BACKEND=redis")
		}
	default:
		return fmt.Errorf("BUS_BACKEND must be memory, nats or redis, got: %s", c.Bus.Backend)
	}
	if c.Bus.ChannelPrefix == "" || strings.ContainsAny(c.Bus.ChannelPrefix, " *>") {
		return fmt.Errorf("BUS_CHANNEL_PREFIX must be a non-empty token without spaces or wildcards")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Driver {
	case storage.DriverMemory:
		return nil
	case storage.DriverPgx, storage.DriverDuckDB:
		if c.Storage.Driver == storage.DriverPgx && c.Storage.DSN == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER=pgx")
		}
		if c.Storage.MaxOpenConns < 1 {
			return fmt.Errorf("STORAGE_MAX_OPEN_CONNS must be at least 1")
		}
		return nil
	default:
		return fmt.Errorf("STORAGE_DRIVER must be memory, pgx or duckdb, got: %s", c.Storage.Driver)
	}
}

func (c *Config) validateAuth() error {
	if len(c.Auth.JWTSecret) < auth.MinSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", auth.MinSecretLength)
	}
	if c.Auth.Leeway < 0 {
		return fmt.Errorf("JWT_LEEWAY must not be negative")
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("METRICS_PATH must start with /, got: %s", c.Metrics.Path)
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}
