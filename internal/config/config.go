// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package config

import (
	"time"

	"github.com/tomtom215/chatrelay/internal/presence"
	"github.com/tomtom215/chatrelay/internal/router"
	"github.com/tomtom215/chatrelay/internal/storage"
	"github.com/tomtom215/chatrelay/internal/websocket"
)

// Config holds all relay configuration.
//
// Loading order (koanf v2):
//  1. Defaults from defaultConfig
//  2. Optional YAML file (CONFIG_PATH, ./config.yaml, /etc/chatrelay/config.yaml)
//  3. Environment variables listed in envMappings
//
// Config is immutable after Load and safe for concurrent reads.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Connection ConnectionConfig `koanf:"connection"`
	WebSocket  websocket.Config `koanf:"websocket"`
	Router     router.Config    `koanf:"router"`
	Presence   presence.Config  `koanf:"presence"`
	Breaker    BreakerConfig    `koanf:"breaker"`
	RateLimit  RateLimitConfig  `koanf:"ratelimit"`
	Bus        BusConfig        `koanf:"bus"`
	Storage    storage.Config   `koanf:"storage"`
	Auth       AuthConfig       `koanf:"auth"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

// ServerConfig holds HTTP listener and instance identity settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// InstanceID identifies this process on the bus. Empty generates one.
	InstanceID     string   `koanf:"instance_id"`
	AllowedOrigins []string `koanf:"allowed_origins"`
	Environment    string   `koanf:"environment"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// ConnectionConfig holds per-user socket and typing limits.
type ConnectionConfig struct {
	MaxPerUser  int     `koanf:"max_per_user"`
	TypingRate  float64 `koanf:"typing_rate"`
	TypingBurst int     `koanf:"typing_burst"`
}

// BreakerConfig holds the storage circuit breaker and its optional probe.
type BreakerConfig struct {
	Threshold     uint32        `koanf:"threshold"`
	Timeout       time.Duration `koanf:"timeout"`
	ProbeURL      string        `koanf:"probe_url"`
	ProbeInterval time.Duration `koanf:"probe_interval"`
}

// LimiterConfig selects and sizes one rate limiter.
type LimiterConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Algorithm string        `koanf:"algorithm"`
	Limit     int           `koanf:"limit"`
	Window    time.Duration `koanf:"window"`
	Capacity  float64       `koanf:"capacity"`
	Rate      float64       `koanf:"rate"`
}

// RateLimitConfig holds the limiter for each surface.
type RateLimitConfig struct {
	HTTP          LimiterConfig `koanf:"http"`
	Messages      LimiterConfig `koanf:"messages"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// Bus backends.
const (
	BusMemory = "memory"
	BusNATS   = "nats"
	BusRedis  = "redis"
)

// BusConfig selects the cross-instance pub/sub backend.
type BusConfig struct {
	Backend       string `koanf:"backend"`
	ChannelPrefix string `koanf:"channel_prefix"`

	NATSURL        string        `koanf:"nats_url"`
	EmbeddedNATS   bool          `koanf:"embedded_nats"`
	EmbeddedHost   string        `koanf:"embedded_host"`
	EmbeddedPort   int           `koanf:"embedded_port"`
	MaxReconnects  int           `koanf:"max_reconnects"`
	ReconnectWait  time.Duration `koanf:"reconnect_wait"`
	StartupTimeout time.Duration `koanf:"startup_timeout"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
}

// AuthConfig holds the JWT verification settings for socket upgrades.
type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	Issuer    string        `koanf:"issuer"`
	Leeway    time.Duration `koanf:"leeway"`
}

// MetricsConfig controls the Prometheus route.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}
