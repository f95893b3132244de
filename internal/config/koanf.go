// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/chatrelay/internal/connection"
	"github.com/tomtom215/chatrelay/internal/gateway"
	"github.com/tomtom215/chatrelay/internal/presence"
	"github.com/tomtom215/chatrelay/internal/pubsub"
	"github.com/tomtom215/chatrelay/internal/ratelimit"
	"github.com/tomtom215/chatrelay/internal/router"
	"github.com/tomtom215/chatrelay/internal/storage"
	"github.com/tomtom215/chatrelay/internal/websocket"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/chatrelay/config.yaml",
	"/etc/chatrelay/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"*"},
			Environment:     "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Connection: ConnectionConfig{
			MaxPerUser:  connection.DefaultMaxConnectionsPerUser,
			TypingRate:  gateway.DefaultTypingRate,
			TypingBurst: gateway.DefaultTypingBurst,
		},
		WebSocket: websocket.DefaultConfig(),
		Router:    router.DefaultConfig(),
		Presence:  presence.DefaultConfig(),
		Breaker: BreakerConfig{
			Threshold:     5,
			Timeout:       30 * time.Second,
			ProbeInterval: 10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			HTTP: LimiterConfig{
				Enabled:   true,
				Algorithm: string(ratelimit.SlidingLog),
				Limit:     60,
				Window:    time.Minute,
			},
			Messages: LimiterConfig{
				Enabled:   true,
				Algorithm: string(ratelimit.TokenBucket),
				Capacity:  30,
				Rate:      1,
			},
			SweepInterval: ratelimit.DefaultSweepInterval,
		},
		Bus: BusConfig{
			Backend:        BusMemory,
			ChannelPrefix:  pubsub.DefaultPrefix,
			NATSURL:        "nats://127.0.0.1:4222",
			EmbeddedHost:   "127.0.0.1",
			EmbeddedPort:   4222,
			MaxReconnects:  -1,
			ReconnectWait:  2 * time.Second,
			StartupTimeout: 10 * time.Second,
			RedisAddr:      "127.0.0.1:6379",
		},
		Storage: storage.Config{
			Driver:       storage.DriverMemory,
			MaxOpenConns: 10,
		},
		Auth: AuthConfig{
			Leeway: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    gateway.DefaultMetricsPath,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths accept comma-separated strings from the environment.
var sliceConfigPaths = []string{
	"server.allowed_origins",
	"websocket.allowed_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"shutdown_timeout":      "server.shutdown_timeout",
	"instance_id":           "server.instance_id",
	"cors_origins":          "server.allowed_origins",
	"environment":           "server.environment",
	"ws_allowed_origins":    "websocket.allowed_origins",
	"ws_write_wait":         "websocket.write_wait",
	"ws_pong_wait":          "websocket.pong_wait",
	"ws_max_message_size":   "websocket.max_message_size",
	"ws_send_buffer":        "websocket.send_buffer",
	"log_level":             "logging.level",
	"log_format":            "logging.format",
	"log_caller":            "logging.caller",
	"max_connections":       "connection.max_per_user",
	"typing_rate":           "connection.typing_rate",
	"typing_burst":          "connection.typing_burst",
	"ack_timeout":           "router.ack_timeout",
	"read_tracker_size":     "router.read_tracker_size",
	"read_tracker_ttl":      "router.read_tracker_ttl",
	"away_threshold":        "presence.away_threshold",
	"offline_threshold":     "presence.offline_threshold",
	"presence_interval":     "presence.monitor_interval",
	"presence_batch":        "presence.batch_interval",
	"presence_batch_size":   "presence.max_batch_size",
	"presence_cache_size":   "presence.cache_size",
	"presence_cache_ttl":    "presence.cache_ttl",
	"presence_retry_base":   "presence.retry_base",
	"presence_retry_max":    "presence.retry_max",
	"presence_max_attempts": "presence.max_attempts",
	"breaker_threshold":     "breaker.threshold",
	"breaker_timeout":       "breaker.timeout",
	"breaker_probe_url":     "breaker.probe_url",
	"breaker_probe_every":   "breaker.probe_interval",

	"rate_limit_http_enabled":   "ratelimit.http.enabled",
	"rate_limit_http_algorithm": "ratelimit.http.algorithm",
	"rate_limit_http_requests":  "ratelimit.http.limit",
	"rate_limit_http_window":    "ratelimit.http.window",
	"rate_limit_http_capacity":  "ratelimit.http.capacity",
	"rate_limit_http_rate":      "ratelimit.http.rate",
	"rate_limit_msg_enabled":    "ratelimit.messages.enabled",
	"rate_limit_msg_algorithm":  "ratelimit.messages.algorithm",
	"rate_limit_msg_requests":   "ratelimit.messages.limit",
	"rate_limit_msg_window":     "ratelimit.messages.window",
	"rate_limit_msg_capacity":   "ratelimit.messages.capacity",
	"rate_limit_msg_rate":       "ratelimit.messages.rate",
	"rate_limit_sweep_interval": "ratelimit.sweep_interval",

	"bus_backend":         "bus.backend",
	"bus_channel_prefix":  "bus.channel_prefix",
	"nats_url":            "bus.nats_url",
	"nats_embedded":       "bus.embedded_nats",
	"nats_embedded_host":  "bus.embedded_host",
	"nats_embedded_port":  "bus.embedded_port",
	"nats_max_reconnects": "bus.max_reconnects",
	"nats_reconnect_wait": "bus.reconnect_wait",
	"redis_addr":          "bus.redis_addr",
	"redis_password":      "bus.redis_password",
	"redis_db":            "bus.redis_db",

	"storage_driver":         "storage.driver",
	"database_url":           "storage.dsn",
	"storage_max_open_conns": "storage.max_open_conns",

	"jwt_secret": "auth.jwt_secret",
	"jwt_issuer": "auth.issuer",
	"jwt_leeway": "auth.leeway",

	"metrics_enabled": "metrics.enabled",
	"metrics_path":    "metrics.path",
}

func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	// Unmapped variables are skipped so the process environment does not
	// leak into the config tree.
	return ""
}
