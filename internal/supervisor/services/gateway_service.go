// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/chatrelay/internal/gateway"
	"github.com/tomtom215/chatrelay/internal/logging"
)

// GatewayRunner matches the gateway.Server lifecycle.
type GatewayRunner interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// GatewayService wraps the gateway as a supervised service.
//
// Serve calls Start, which subscribes to the bus, then waits for the
// supervisor to stop it and runs Shutdown with a fresh timeout context.
// A gateway that has already shut down is not restarted.
type GatewayService struct {
	runner          GatewayRunner
	shutdownTimeout time.Duration
	name            string
}

// NewGatewayService creates a gateway service wrapper.
func NewGatewayService(runner GatewayRunner, shutdownTimeout time.Duration) *GatewayService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	return &GatewayService{
		runner:          runner,
		shutdownTimeout: shutdownTimeout,
		name:            "gateway",
	}
}

// Serve implements suture.Service.
func (s *GatewayService) Serve(ctx context.Context) error {
	if err := s.runner.Start(ctx); err != nil {
		if errors.Is(err, gateway.ErrShuttingDown) {
			return suture.ErrDoNotRestart
		}
		return fmt.Errorf("gateway start failed: %w", err)
	}

	<-ctx.Done()

	// The original context is canceled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.runner.Shutdown(shutdownCtx); err != nil {
		logging.Warn().Err(err).Str("service", s.name).Msg("Gateway shutdown incomplete")
	}
	return ctx.Err()
}

// String implements fmt.Stringer for suture's logs.
func (s *GatewayService) String() string {
	return s.name
}
