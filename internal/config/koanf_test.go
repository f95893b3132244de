// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/chatrelay/internal/ratelimit"
)

const testSecret = "config-test-secret-at-least-32-characters"

// TestDefaultConfig verifies that defaultConfig() returns the documented defaults
func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := defaultConfig()

	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"max connections", cfg.Connection.MaxPerUser, 5},
		{"ack timeout", cfg.Router.AckTimeout, 3 * time.Second},
		{"away", cfg.Presence.AwayThreshold, 30 * time.Second},
		{"offline", cfg.Presence.OfflineThreshold, 60 * time.Second},
		{"monitor", cfg.Presence.MonitorInterval, 60 * time.Second},
		{"batch interval", cfg.Presence.BatchInterval, 10 * time.Second},
		{"batch size", cfg.Presence.MaxBatchSize, 1000},
		{"retry base", cfg.Presence.RetryBase, time.Second},
		{"retry max", cfg.Presence.RetryMax, 30 * time.Second},
		{"attempts", cfg.Presence.MaxAttempts, 3},
		{"presence cache", cfg.Presence.CacheSize, 10000},
		{"presence ttl", cfg.Presence.CacheTTL, 7 * 24 * time.Hour},
		{"tracker size", cfg.Router.ReadTrackerSize, 50000},
		{"tracker ttl", cfg.Router.ReadTrackerTTL, 24 * time.Hour},
		{"sweep", cfg.RateLimit.SweepInterval, 5 * time.Minute},
		{"breaker threshold", cfg.Breaker.Threshold, uint32(5)},
		{"breaker timeout", cfg.Breaker.Timeout, 30 * time.Second},
		{"bus", cfg.Bus.Backend, BusMemory},
		{"log level", cfg.Logging.Level, "info"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

// TestEnvTransformFunc verifies environment variable name transformations
func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"HTTP_PORT", "server.port"},
		{"LOG_LEVEL", "logging.level"},
		{"MAX_CONNECTIONS", "connection.max_per_user"},
		{"ACK_TIMEOUT", "router.ack_timeout"},
		{"OFFLINE_THRESHOLD", "presence.offline_threshold"},
		{"RATE_LIMIT_MSG_ALGORITHM", "ratelimit.messages.algorithm"},
		{"NATS_EMBEDDED", "bus.embedded_nats"},
		{"DATABASE_URL", "storage.dsn"},
		{"JWT_SECRET", "auth.jwt_secret"},

		// Unknown (should return empty)
		{"RANDOM_VAR", ""},
		{"PATH", ""},
		{"HOME", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if result := envTransformFunc(tt.input); result != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

// TestLoadEnvVars tests loading configuration from environment variables.
// t.Setenv rules out t.Parallel here.
func TestLoadEnvVars(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("ACK_TIMEOUT", "5s")
	t.Setenv("MAX_CONNECTIONS", "2")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RATE_LIMIT_MSG_ALGORITHM", "leaky_bucket")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Router.AckTimeout != 5*time.Second {
		t.Errorf("Router.AckTimeout = %v, want 5s", cfg.Router.AckTimeout)
	}
	if cfg.Connection.MaxPerUser != 2 {
		t.Errorf("Connection.MaxPerUser = %d, want 2", cfg.Connection.MaxPerUser)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.RateLimit.Messages.Algorithm != string(ratelimit.LeakyBucket) {
		t.Errorf("message algorithm = %q", cfg.RateLimit.Messages.Algorithm)
	}

	// Defaults survive for unset values.
	if cfg.Presence.OfflineThreshold != 60*time.Second {
		t.Errorf("OfflineThreshold = %v, want default 60s", cfg.Presence.OfflineThreshold)
	}
	if cfg.Addr() != "0.0.0.0:9000" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
}

// TestLoadConfigFileAndEnvOverride tests YAML loading with env precedence.
func TestLoadConfigFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	content := `
server:
  port: 7000
logging:
  level: debug
presence:
  away_threshold: 10s
  offline_threshold: 20s
bus:
  backend: redis
  redis_addr: redis:6379
auth:
  jwt_secret: ` + testSecret + `
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "7100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7100 {
		t.Errorf("env should override file: port = %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Presence.AwayThreshold != 10*time.Second || cfg.Presence.OfflineThreshold != 20*time.Second {
		t.Errorf("presence = %+v", cfg.Presence)
	}
	if cfg.Bus.Backend != BusRedis || cfg.RedisOptions().Addr != "redis:6379" {
		t.Errorf("bus = %+v", cfg.Bus)
	}
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	t.Setenv(ConfigPathEnvVar, "")
	if got := findConfigFile(); got != "" {
		t.Errorf("findConfigFile() = %q, want empty", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: {}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := findConfigFile(); got != "config.yaml" {
		t.Errorf("findConfigFile() = %q, want config.yaml", got)
	}

	custom := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(custom, []byte("server: {}"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, custom)
	if got := findConfigFile(); got != custom {
		t.Errorf("findConfigFile() = %q, want %q", got, custom)
	}
}
