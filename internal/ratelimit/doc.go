// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

// Package ratelimit implements per-identifier admission control.
//
// Four algorithms share the Limiter interface:
//
//   - FixedWindowLimiter: counts per aligned window; bursts at window edges are accepted.
//   - SlidingLogLimiter: exact, keeps each accepted timestamp for one window.
//   - TokenBucketLimiter: lazily refilled bucket, one token per request.
//   - LeakyBucketLimiter: queue depth drained at a constant rate.
//
// Every decision carries limit, remaining, reset and retry-after, which
// Middleware writes as response headers and Metadata converts for sockets.
//
// Records idle for more than twice the window are dropped by Sweep, driven
// periodically by Sweeper. For the bucket algorithms this discards partially
// consumed state: a returning client starts with a fresh bucket.
package ratelimit
