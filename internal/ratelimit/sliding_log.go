// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package ratelimit

import (
	"time"
)

// SlidingLogLimiter keeps every accepted timestamp inside [now-window, now]
// and admits a request only while fewer than limit remain. It is exact at
// the cost of O(limit) memory per identifier.
type SlidingLogLimiter struct {
	store[[]time.Time]
	limit int
}

// NewSlidingLog admits at most limit requests in any window-long interval.
func NewSlidingLog(limit int, window time.Duration) *SlidingLogLimiter {
	l := &SlidingLogLimiter{limit: limit}
	l.init(window)
	return l
}

// Algorithm implements Limiter.
func (l *SlidingLogLimiter) Algorithm() Algorithm { return SlidingLog }

// Allow implements Limiter.
func (l *SlidingLogLimiter) Allow(id string, now time.Time) Result {
	cutoff := now.Add(-l.window)
	return l.update(id, now, func() []time.Time {
		return make([]time.Time, 0, l.limit)
	}, func(log *[]time.Time) Result {
		ts := *log
		drop := 0
		for drop < len(ts) && ts[drop].Before(cutoff) {
			drop++
		}
		if drop > 0 {
			ts = append(ts[:0], ts[drop:]...)
		}

		if len(ts) >= l.limit {
			*log = ts
			// The oldest entry leaves the window one instant after oldest+window.
			freeAt := ts[0].Add(l.window + time.Millisecond)
			return Result{
				Allowed:    false,
				Limit:      l.limit,
				Remaining:  0,
				ResetAt:    freeAt,
				RetryAfter: ceilMs(freeAt.Sub(now)),
			}
		}

		ts = append(ts, now)
		*log = ts
		return Result{
			Allowed:   true,
			Limit:     l.limit,
			Remaining: l.limit - len(ts),
			ResetAt:   ts[0].Add(l.window),
		}
	})
}
