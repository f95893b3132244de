// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package config

import (
	"fmt"
	"net"
	"strconv"

	"github.com/tomtom215/chatrelay/internal/auth"
	"github.com/tomtom215/chatrelay/internal/gateway"
	"github.com/tomtom215/chatrelay/internal/logging"
	"github.com/tomtom215/chatrelay/internal/pubsub"
	"github.com/tomtom215/chatrelay/internal/ratelimit"
	"github.com/tomtom215/chatrelay/internal/resilience"
)

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// LoggingOptions converts the logging section for logging.Init.
func (c *Config) LoggingOptions() logging.Config {
	return logging.Config{
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
		Caller:    c.Logging.Caller,
		Timestamp: true,
	}
}

// Gateway returns the gateway settings.
func (c *Config) Gateway() gateway.Config {
	ws := c.WebSocket
	if len(ws.AllowedOrigins) == 0 {
		ws.AllowedOrigins = c.Server.AllowedOrigins
	}
	return gateway.Config{
		InstanceID:           c.Server.InstanceID,
		ChannelPrefix:        c.Bus.ChannelPrefix,
		AllowedOrigins:       c.Server.AllowedOrigins,
		TypingRate:           c.Connection.TypingRate,
		TypingBurst:          c.Connection.TypingBurst,
		MetricsPath:          c.Metrics.Path,
		DisableMetrics:       !c.Metrics.Enabled,
		LimiterSweepInterval: c.RateLimit.SweepInterval,
		ProbeURL:             c.Breaker.ProbeURL,
		ProbeInterval:        c.Breaker.ProbeInterval,
		Transport:            ws,
		Router:               c.Router,
		Presence:             c.Presence,
	}
}

// BreakerOptions returns the storage circuit breaker settings.
func (c *Config) BreakerOptions() resilience.BreakerConfig {
	return resilience.BreakerConfig{
		Name:      "storage",
		Threshold: c.Breaker.Threshold,
		Timeout:   c.Breaker.Timeout,
	}
}

// AuthOptions returns the JWT verifier settings.
func (c *Config) AuthOptions() auth.Config {
	return auth.Config{
		Secret: c.Auth.JWTSecret,
		Issuer: c.Auth.Issuer,
		Leeway: c.Auth.Leeway,
	}
}

// NewLimiter builds an instrumented limiter from l, or returns nil when the
// section is disabled.
func NewLimiter(name string, l LimiterConfig) (ratelimit.Limiter, error) {
	if !l.Enabled {
		return nil, nil
	}
	lim, err := ratelimit.New(ratelimit.Config{
		Algorithm: ratelimit.Algorithm(l.Algorithm),
		Limit:     l.Limit,
		Window:    l.Window,
		Capacity:  l.Capacity,
		Rate:      l.Rate,
	})
	if err != nil {
		return nil, fmt.Errorf("%s limiter: %w", name, err)
	}
	return ratelimit.Instrument(name, lim), nil
}

// NATSOptions returns the NATS bridge settings for url.
func (c *Config) NATSOptions(url string) pubsub.NATSConfig {
	cfg := pubsub.DefaultNATSConfig(url)
	cfg.MaxReconnects = c.Bus.MaxReconnects
	if c.Bus.ReconnectWait > 0 {
		cfg.ReconnectWait = c.Bus.ReconnectWait
	}
	return cfg
}

// EmbeddedNATSOptions returns the in-process NATS server settings.
func (c *Config) EmbeddedNATSOptions() pubsub.EmbeddedConfig {
	return pubsub.EmbeddedConfig{
		Host:           c.Bus.EmbeddedHost,
		Port:           c.Bus.EmbeddedPort,
		StartupTimeout: c.Bus.StartupTimeout,
	}
}

// RedisOptions returns the Redis bridge settings.
func (c *Config) RedisOptions() pubsub.RedisConfig {
	return pubsub.RedisConfig{
		Addr:     c.Bus.RedisAddr,
		Password: c.Bus.RedisPassword,
		DB:       c.Bus.RedisDB,
	}
}
