// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package presence

import (
	"sync"

	"github.com/tomtom215/chatrelay/internal/models"
)

// queue holds pending presence records, coalesced by user. A user keeps
// its original position when a newer record replaces an older one.
type queue struct {
	mu      sync.Mutex
	order   []string
	records map[string]models.PresenceRecord
}

func newQueue() *queue {
	return &queue{records: make(map[string]models.PresenceRecord)}
}

func (q *queue) push(r models.PresenceRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.records[r.UserID]; !ok {
		q.order = append(q.order, r.UserID)
	}
	q.records[r.UserID] = r
}

// take removes and returns up to n records, oldest first.
func (q *queue) take(n int) []models.PresenceRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.order) {
		n = len(q.order)
	}
	batch := make([]models.PresenceRecord, 0, n)
	for _, userID := range q.order[:n] {
		batch = append(batch, q.records[userID])
		delete(q.records, userID)
	}
	q.order = q.order[n:]
	return batch
}

// requeue puts an unwritten batch back at the front. Records superseded
// by a newer push are discarded.
func (q *queue) requeue(batch []models.PresenceRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := make([]string, 0, len(batch))
	for _, r := range batch {
		if _, newer := q.records[r.UserID]; newer {
			continue
		}
		q.records[r.UserID] = r
		front = append(front, r.UserID)
	}
	q.order = append(front, q.order...)
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
