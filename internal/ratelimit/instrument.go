// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package ratelimit

import (
	"time"

	"github.com/tomtom215/chatrelay/internal/metrics"
)

// Named is a Limiter that exports its decisions under a name.
type Named struct {
	Limiter
	name string
}

// Instrument wraps l so every decision and sweep is reported to Prometheus.
func Instrument(name string, l Limiter) *Named {
	return &Named{Limiter: l, name: name}
}

// Name returns the limiter name used in metrics and logs.
func (n *Named) Name() string {
	return n.name
}

// Allow implements Limiter.
func (n *Named) Allow(id string, now time.Time) Result {
	res := n.Limiter.Allow(id, now)
	metrics.RecordRateLimit(n.name, string(n.Algorithm()), res.Allowed)
	return res
}

// Sweep implements Limiter.
func (n *Named) Sweep(now time.Time) int {
	removed := n.Limiter.Sweep(now)
	metrics.RateLimitTrackedKeys.WithLabelValues(n.name).Set(float64(n.Len()))
	return removed
}
