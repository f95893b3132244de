// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

// Package main is the entry point for the chatrelay server.
//
// Startup order:
//
//  1. Configuration (koanf: defaults, YAML, environment) and logging
//  2. Bus: in-memory, NATS (optionally an embedded server) or Redis
//  3. Storage (memory, pgx or duckdb) behind a circuit breaker
//  4. JWT verifier and rate limiters
//  5. Gateway, then the supervisor tree with the maintenance loops,
//     the gateway and the HTTP server
//
// On SIGINT or SIGTERM the tree is stopped, the gateway is shut down
// (presence flushed, bus closed, sockets closed with 1001) and the store and
// embedded NATS server are closed.
//
// Example:
//
//	export JWT_SECRET=$(openssl rand -base64 48)
//	export BUS_BACKEND=nats NATS_EMBEDDED=true
//	export STORAGE_DRIVER=pgx DATABASE_URL=postgres://relay@db/relay
//	./chatrelay
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/chatrelay/internal/auth"
	"github.com/tomtom215/chatrelay/internal/config"
	"github.com/tomtom215/chatrelay/internal/connection"
	"github.com/tomtom215/chatrelay/internal/gateway"
	"github.com/tomtom215/chatrelay/internal/logging"
	"github.com/tomtom215/chatrelay/internal/resilience"
	"github.com/tomtom215/chatrelay/internal/storage"
	"github.com/tomtom215/chatrelay/internal/supervisor"
	"github.com/tomtom215/chatrelay/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.LoggingOptions())

	logging.Info().
		Str("bus", cfg.Bus.Backend).
		Str("storage", cfg.Storage.Driver).
		Int("max_connections", cfg.Connection.MaxPerUser).
		Msg("Starting chatrelay")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus, embedded, err := openBus(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Str("backend", cfg.Bus.Backend).Msg("Failed to initialize bus")
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		logging.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("Failed to open storage")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing storage")
		}
	}()

	verifier, err := auth.NewJWTVerifier(cfg.AuthOptions())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT verifier")
	}

	messageLimiter, err := config.NewLimiter("messages", cfg.RateLimit.Messages)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create message limiter")
	}
	upgradeLimiter, err := config.NewLimiter("http", cfg.RateLimit.HTTP)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create HTTP limiter")
	}

	srv, err := gateway.New(cfg.Gateway(), gateway.Deps{
		Conns:          connection.NewManager(cfg.Connection.MaxPerUser),
		Bus:            bus,
		Store:          store,
		Breaker:        resilience.NewCircuitBreaker(cfg.BreakerOptions()),
		Verifier:       verifier,
		MessageLimiter: messageLimiter,
		UpgradeLimiter: upgradeLimiter,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create gateway")
	}
	logging.Info().Str("instance", srv.InstanceID()).Msg("Gateway initialized")

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	for _, svc := range srv.Services() {
		tree.AddMaintenanceService(svc)
	}
	tree.AddMessagingService(services.NewGatewayService(srv, cfg.Server.ShutdownTimeout))

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", httpServer.Addr).Msg("Starting supervisor tree")
	for err := range tree.ServeBackground(ctx) {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Gateway shutdown incomplete")
	}
	if embedded != nil {
		natsCtx, natsCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := embedded.Shutdown(natsCtx); err != nil {
			logging.Warn().Err(err).Msg("Embedded NATS server did not stop cleanly")
		}
		natsCancel()
	}

	logging.Info().Msg("Chatrelay stopped")
}
