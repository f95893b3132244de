// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package router

import (
	"sync"
	"time"

	"github.com/tomtom215/chatrelay/internal/cache"
	"github.com/tomtom215/chatrelay/internal/metrics"
)

// Read tracker defaults.
const (
	DefaultReadTrackerSize = 50_000
	DefaultReadTrackerTTL  = 24 * time.Hour
)

// ReadTracker aggregates group read receipts per message.
//
// A message is complete when every member other than the sender has read
// it: distinct non-sender readers == memberCount-1, where memberCount
// includes the sender. Completion is reported exactly once. The read-set
// is evicted on completion and the message id is remembered so late or
// duplicate receipts cannot complete it again.
type ReadTracker struct {
	mu        sync.Mutex
	readers   *cache.LRU[string, map[string]struct{}]
	completed *cache.LRU[string, struct{}]
}

// NewReadTracker creates a tracker bounded to size messages, each kept for
// at most ttl.
func NewReadTracker(size int, ttl time.Duration, now func() time.Time) *ReadTracker {
	if size <= 0 {
		size = DefaultReadTrackerSize
	}
	if ttl <= 0 {
		ttl = DefaultReadTrackerTTL
	}
	if now == nil {
		now = time.Now
	}
	return &ReadTracker{
		readers: cache.NewLRU[string, map[string]struct{}](size, ttl,
			cache.WithClock[string, map[string]struct{}](now),
			cache.WithEvictCallback(func(_ string, _ map[string]struct{}, reason cache.EvictReason) {
				metrics.CacheEvictions.WithLabelValues("read_tracker", reason.String()).Inc()
			}),
		),
		completed: cache.NewLRU[string, struct{}](size, ttl, cache.WithClock[string, struct{}](now)),
	}
}

// Record adds readerID to messageID's read-set and reports whether this
// receipt completed the message. Receipts from the sender are ignored.
func (t *ReadTracker) Record(messageID, senderID, readerID string, memberCount int) (complete bool, readCount int) {
	if readerID == senderID || memberCount < 2 {
		return false, 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, done := t.completed.Get(messageID); done {
		return false, memberCount - 1
	}

	set, ok := t.readers.Get(messageID)
	if !ok {
		set = make(map[string]struct{})
		t.readers.Add(messageID, set)
	}
	set[readerID] = struct{}{}

	if len(set) < memberCount-1 {
		return false, len(set)
	}

	t.readers.Remove(messageID)
	t.completed.Add(messageID, struct{}{})
	metrics.ReadAggregatesCompleted.Inc()
	return true, len(set)
}

// Pending returns the number of messages with an incomplete read-set.
func (t *ReadTracker) Pending() int {
	return t.readers.Len()
}

// Cleanup drops expired entries.
func (t *ReadTracker) Cleanup() int {
	return t.readers.CleanupExpired() + t.completed.CleanupExpired()
}
