// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package ratelimit

import (
	"math"
	"time"
)

// minRefill is the smallest refill applied; below it the refill timestamp
// is left alone so elapsed time keeps accumulating.
const minRefill = 0.01

type tokenRecord struct {
	tokens     float64
	lastRefill time.Time
}

// TokenBucketLimiter refills capacity tokens at rate per second, lazily on
// each access, and spends one token per admitted request.
type TokenBucketLimiter struct {
	store[tokenRecord]
	capacity float64
	rate     float64
}

// NewTokenBucket creates a bucket of capacity tokens refilled at rate per second.
// A zero window defaults to the time needed to refill an empty bucket.
func NewTokenBucket(capacity, rate float64, window time.Duration) *TokenBucketLimiter {
	l := &TokenBucketLimiter{capacity: capacity, rate: rate}
	l.init(bucketWindow(capacity, rate, window))
	return l
}

// Algorithm implements Limiter.
func (l *TokenBucketLimiter) Algorithm() Algorithm { return TokenBucket }

// Allow implements Limiter.
func (l *TokenBucketLimiter) Allow(id string, now time.Time) Result {
	return l.update(id, now, func() tokenRecord {
		return tokenRecord{tokens: l.capacity, lastRefill: now}
	}, func(rec *tokenRecord) Result {
		elapsed := now.Sub(rec.lastRefill).Seconds()
		if add := elapsed * l.rate; add >= minRefill {
			rec.tokens = math.Min(l.capacity, rec.tokens+add)
			rec.lastRefill = now
		}

		limit := int(l.capacity)
		if rec.tokens < 1 {
			wait := ceilMs(time.Duration((1 - rec.tokens) / l.rate * float64(time.Second)))
			return Result{
				Allowed:    false,
				Limit:      limit,
				Remaining:  0,
				ResetAt:    now.Add(wait),
				RetryAfter: wait,
			}
		}

		rec.tokens--
		full := time.Duration((l.capacity - rec.tokens) / l.rate * float64(time.Second))
		return Result{
			Allowed:   true,
			Limit:     limit,
			Remaining: int(math.Floor(rec.tokens)),
			ResetAt:   now.Add(full),
		}
	})
}
