// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package ratelimit

import (
	"context"
	"time"

	"github.com/tomtom215/chatrelay/internal/logging"
)

// DefaultSweepInterval is how often idle identifiers are collected.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically removes idle identifiers from a set of limiters so
// memory stays bounded under high identifier cardinality.
type Sweeper struct {
	limiters []Limiter
	interval time.Duration
}

// NewSweeper creates a Sweeper over limiters.
func NewSweeper(interval time.Duration, limiters ...Limiter) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{limiters: limiters, interval: interval}
}

// SweepOnce sweeps every limiter at now and returns the total removed.
func (s *Sweeper) SweepOnce(now time.Time) int {
	total := 0
	for _, l := range s.limiters {
		total += l.Sweep(now)
	}
	return total
}

// Serve implements suture.Service.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if removed := s.SweepOnce(now); removed > 0 {
				logging.Debug().Str("component", "ratelimit").Int("removed", removed).Msg("Swept idle rate limit records")
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (s *Sweeper) String() string {
	return "ratelimit-sweeper"
}
