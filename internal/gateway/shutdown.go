// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/chatrelay/internal/logging"
	"github.com/tomtom215/chatrelay/internal/websocket"
)

func (s *Server) isStopping() bool {
	s.svcMu.Lock()
	defer s.svcMu.Unlock()
	return s.stopping
}

// Shutdown stops the instance in order:
//
//  1. stop the periodic loops and wait for them to return
//  2. flush every queued presence update through the breaker
//  3. close the bus, ending all subscriptions, and wait for deliveries
//  4. close every socket with a going-away frame
//
// Shutdown is idempotent; later calls return the first call's result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(ctx)
	})
	return s.shutdownErr
}

func (s *Server) shutdown(ctx context.Context) error {
	start := time.Now()
	log := logging.WithComponent("gateway")
	log.Info().Str("instance", s.cfg.InstanceID).Msg("Shutting down")

	s.svcMu.Lock()
	s.stopping = true
	close(s.stopCh)
	s.svcMu.Unlock()

	var errs []error

	loopsDone := make(chan struct{})
	go func() {
		s.svcWG.Wait()
		close(loopsDone)
	}()
	select {
	case <-loopsDone:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for loops: %w", ctx.Err()))
	}

	if err := s.presence.FlushAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("final presence flush: %w", err))
	}

	if err := s.deps.Bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close bus: %w", err))
	}
	s.router.Wait()

	closed := s.hub.CloseAll(websocket.CloseGoingAway, "server shutting down")

	err := errors.Join(errs...)
	ev := log.Info()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Int("sockets_closed", closed).
		Int("presence_pending", s.presence.Pending()).
		Dur("duration", time.Since(start)).
		Msg("Shutdown complete")
	return err
}
