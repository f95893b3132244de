// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package presence

import (
	"context"
	"time"

	"github.com/tomtom215/chatrelay/internal/logging"
)

// Monitor runs the reconciliation sweep every MonitorInterval.
// It implements suture.Service.
type Monitor struct {
	m *Manager
}

// Monitor returns the sweep service for m.
func (m *Manager) Monitor() *Monitor { return &Monitor{m: m} }

// Serve implements suture.Service.
func (s *Monitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.m.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if changes := s.m.Sweep(ctx, s.m.now()); len(changes) > 0 {
				logging.Debug().Str("component", "presence").Int("transitions", len(changes)).Msg("Presence sweep applied transitions")
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (s *Monitor) String() string { return "presence-monitor" }

// Flusher writes queued presence every BatchInterval.
// It implements suture.Service.
type Flusher struct {
	m *Manager
}

// Flusher returns the batch persistence service for m.
func (m *Manager) Flusher() *Flusher { return &Flusher{m: m} }

// Serve implements suture.Service.
func (s *Flusher) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.m.cfg.BatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// Dropped batches are logged inside Flush; the loop keeps going.
			if err := s.m.Flush(ctx); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (s *Flusher) String() string { return "presence-flusher" }
