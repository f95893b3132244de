// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package config

import (
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/chatrelay/internal/ratelimit"
	"github.com/tomtom215/chatrelay/internal/storage"
)

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Auth.JWTSecret = testSecret
	return cfg
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults with secret", func(*Config) {}, ""},
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, "JWT_SECRET"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "HTTP_PORT"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
		{"zero connections", func(c *Config) { c.Connection.MaxPerUser = 0 }, "MAX_CONNECTIONS"},
		{"zero ack timeout", func(c *Config) { c.Router.AckTimeout = 0 }, "ACK_TIMEOUT"},
		{"offline before away", func(c *Config) { c.Presence.OfflineThreshold = 10 * time.Second }, "OFFLINE_THRESHOLD"},
		{"retry max below base", func(c *Config) { c.Presence.RetryMax = time.Millisecond }, "PRESENCE_RETRY_MAX"},
		{"probe url scheme", func(c *Config) { c.Breaker.ProbeURL = "ftp://db" }, "BREAKER_PROBE_URL"},
		{"probe url ok", func(c *Config) { c.Breaker.ProbeURL = "http://db:8080/health" }, ""},
		{"unknown algorithm", func(c *Config) { c.RateLimit.HTTP.Algorithm = "gcra" }, "RATE_LIMIT_HTTP_ALGORITHM"},
		{"window without limit", func(c *Config) { c.RateLimit.HTTP.Limit = 0 }, "RATE_LIMIT_HTTP_REQUESTS"},
		{"sub-millisecond window", func(c *Config) { c.RateLimit.HTTP.Window = 500 * time.Microsecond }, "RATE_LIMIT_HTTP_WINDOW"},
		{"fixed window sub-millisecond", func(c *Config) {
			c.RateLimit.Messages.Algorithm = string(ratelimit.FixedWindow)
			c.RateLimit.Messages.Limit = 3
			c.RateLimit.Messages.Window = time.Microsecond
		}, "RATE_LIMIT_MSG_WINDOW"},
		{"bucket sub-millisecond window", func(c *Config) { c.RateLimit.Messages.Window = time.Microsecond }, "RATE_LIMIT_MSG_WINDOW"},
		{"bucket without rate", func(c *Config) { c.RateLimit.Messages.Rate = 0 }, "RATE_LIMIT_MSG_CAPACITY"},
		{"http limiting off", func(c *Config) { c.RateLimit.HTTP.Enabled = false }, ""},
		{"message limiting off", func(c *Config) { c.RateLimit.Messages.Enabled = false }, "RATE_LIMIT_MSG_ENABLED"},
		{"unknown bus", func(c *Config) { c.Bus.Backend = "kafka" }, "BUS_BACKEND"},
		{"bad nats url", func(c *Config) { c.Bus.Backend = BusNATS; c.Bus.NATSURL = "http://nats" }, "NATS_URL"},
		{"embedded nats ignores url", func(c *Config) {
			c.Bus.Backend = BusNATS
			c.Bus.EmbeddedNATS = true
			c.Bus.NATSURL = ""
		}, ""},
		{"wildcard prefix", func(c *Config) { c.Bus.ChannelPrefix = "chat.>" }, "BUS_CHANNEL_PREFIX"},
		{"pgx without dsn", func(c *Config) { c.Storage.Driver = storage.DriverPgx }, "DATABASE_URL"},
		{"duckdb in memory", func(c *Config) { c.Storage.Driver = storage.DriverDuckDB }, ""},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, "STORAGE_DRIVER"},
		{"production wildcard cors", func(c *Config) { c.Server.Environment = "production" }, "CORS_ORIGINS"},
		{"metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "METRICS_PATH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			switch {
			case tt.wantErr == "" && err != nil:
				t.Errorf("Validate() = %v, want nil", err)
			case tt.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErr)):
				t.Errorf("Validate() = %v, want error mentioning %s", err, tt.wantErr)
			}
		})
	}
}

func TestGatewayOptions(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Server.AllowedOrigins = []string{"https://chat.example"}
	cfg.Metrics.Enabled = false

	g := cfg.Gateway()
	if g.ChannelPrefix != cfg.Bus.ChannelPrefix || g.Router.AckTimeout != cfg.Router.AckTimeout {
		t.Errorf("gateway config = %+v", g)
	}
	if !g.DisableMetrics {
		t.Error("metrics should be disabled")
	}
	if len(g.Transport.AllowedOrigins) != 1 || g.Transport.AllowedOrigins[0] != "https://chat.example" {
		t.Errorf("transport origins = %v, want server origins", g.Transport.AllowedOrigins)
	}

	if b := cfg.BreakerOptions(); b.Threshold != 5 || b.Timeout != 30*time.Second {
		t.Errorf("breaker = %+v", b)
	}
	if a := cfg.AuthOptions(); a.Secret != testSecret {
		t.Errorf("auth = %+v", a)
	}
}

func TestNewLimiter(t *testing.T) {
	t.Parallel()
	cfg := validConfig()

	msg, err := NewLimiter("messages", cfg.RateLimit.Messages)
	if err != nil || msg == nil {
		t.Fatalf("NewLimiter = %v, %v", msg, err)
	}
	if res := msg.Allow("alice", time.Now()); !res.Allowed || res.Limit != 30 {
		t.Errorf("first message = %+v", res)
	}

	off := cfg.RateLimit.HTTP
	off.Enabled = false
	if l, err := NewLimiter("http", off); l != nil || err != nil {
		t.Errorf("disabled limiter = %v, %v", l, err)
	}

	bad := cfg.RateLimit.HTTP
	bad.Algorithm = "nope"
	if _, err := NewLimiter("http", bad); err == nil {
		t.Error("unknown algorithm should fail")
	}
}
