// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package ratelimit

import (
	"math"
	"time"
)

type leakyRecord struct {
	depth    float64
	lastLeak time.Time
}

// LeakyBucketLimiter queues each admitted request into a bucket that drains
// at rate per second and rejects while the bucket is full.
type LeakyBucketLimiter struct {
	store[leakyRecord]
	capacity float64
	rate     float64
}

// NewLeakyBucket creates a bucket holding capacity requests drained at rate
// per second. A zero window defaults to the time needed to drain a full bucket.
func NewLeakyBucket(capacity, rate float64, window time.Duration) *LeakyBucketLimiter {
	l := &LeakyBucketLimiter{capacity: capacity, rate: rate}
	l.init(bucketWindow(capacity, rate, window))
	return l
}

// Algorithm implements Limiter.
func (l *LeakyBucketLimiter) Algorithm() Algorithm { return LeakyBucket }

// Allow implements Limiter.
func (l *LeakyBucketLimiter) Allow(id string, now time.Time) Result {
	return l.update(id, now, func() leakyRecord {
		return leakyRecord{lastLeak: now}
	}, func(rec *leakyRecord) Result {
		if elapsed := now.Sub(rec.lastLeak).Seconds(); elapsed > 0 {
			rec.depth = math.Max(0, rec.depth-elapsed*l.rate)
			rec.lastLeak = now
		}

		limit := int(l.capacity)
		if rec.depth >= l.capacity {
			// Strictly below capacity one millisecond after the overflow drains.
			wait := time.Duration((rec.depth-l.capacity)/l.rate*float64(time.Second)).Truncate(time.Millisecond) + time.Millisecond
			return Result{
				Allowed:    false,
				Limit:      limit,
				Remaining:  0,
				ResetAt:    now.Add(wait),
				RetryAfter: wait,
			}
		}

		rec.depth++
		drain := time.Duration(rec.depth / l.rate * float64(time.Second))
		return Result{
			Allowed:   true,
			Limit:     limit,
			Remaining: max(0, int(math.Floor(l.capacity-rec.depth))),
			ResetAt:   now.Add(drain),
		}
	})
}

// Depth returns the current queue depth for id without leaking or admitting.
func (l *LeakyBucketLimiter) Depth(id string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.records[id]; ok {
		return e.rec.depth
	}
	return 0
}
