// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package ratelimit

import (
	"time"
)

type fixedRecord struct {
	count       int
	windowStart int64 // epoch ms
}

// FixedWindowLimiter counts requests in windows aligned to multiples of the
// window length. Up to 2 x limit requests can pass around a window edge.
type FixedWindowLimiter struct {
	store[fixedRecord]
	limit int
}

// NewFixedWindow admits limit requests per aligned window.
func NewFixedWindow(limit int, window time.Duration) *FixedWindowLimiter {
	l := &FixedWindowLimiter{limit: limit}
	l.init(window)
	return l
}

// Algorithm implements Limiter.
func (l *FixedWindowLimiter) Algorithm() Algorithm { return FixedWindow }

// Allow implements Limiter.
func (l *FixedWindowLimiter) Allow(id string, now time.Time) Result {
	windowMs := l.window.Milliseconds()
	nowMs := now.UnixMilli()
	boundary := (nowMs / windowMs) * windowMs

	return l.update(id, now, func() fixedRecord {
		return fixedRecord{windowStart: boundary}
	}, func(rec *fixedRecord) Result {
		if rec.windowStart != boundary {
			rec.count = 0
			rec.windowStart = boundary
		}
		rec.count++

		reset := time.UnixMilli(rec.windowStart + windowMs)
		res := Result{
			Allowed:   rec.count <= l.limit,
			Limit:     l.limit,
			Remaining: max(0, l.limit-rec.count),
			ResetAt:   reset,
		}
		if !res.Allowed {
			res.RetryAfter = reset.Sub(now)
		}
		return res
	})
}
