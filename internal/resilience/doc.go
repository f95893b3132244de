// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

// Package resilience protects calls to downstream dependencies.
//
// CircuitBreaker wraps sony/gobreaker with the closed, open and half-open
// rules used across Chatrelay: the circuit opens after Threshold consecutive
// failures, rejects calls with *CircuitOpenError until Timeout has passed
// since the last failure, then lets a single trial call through. A trial
// success closes the circuit; a trial failure reopens it.
//
// State changes are delivered to observers registered with Observe or to
// channels returned by Subscribe, and exported as Prometheus metrics.
//
// HealthProbe and Prober add an optional active check: an HTTP GET whose
// non-200 answers count as breaker failures.
package resilience
