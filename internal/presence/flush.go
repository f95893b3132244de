// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package presence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tomtom215/chatrelay/internal/logging"
	"github.com/tomtom215/chatrelay/internal/metrics"
	"github.com/tomtom215/chatrelay/internal/models"
)

// ErrBatchPersistence marks a presence batch abandoned after exhausting
// its write attempts. The updates in it are lost.
var ErrBatchPersistence = errors.New("presence batch persistence failed")

// BatchError describes an abandoned batch.
type BatchError struct {
	Size     int
	Attempts int
	Err      error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("presence batch of %d dropped after %d attempts: %v", e.Size, e.Attempts, e.Err)
}

// Is matches ErrBatchPersistence.
func (e *BatchError) Is(target error) bool {
	return target == ErrBatchPersistence
}

func (e *BatchError) Unwrap() error { return e.Err }

// Pending returns the number of queued updates.
func (m *Manager) Pending() int {
	return m.queue.len()
}

// Flush writes up to MaxBatchSize queued updates. A failed write is
// retried with exponential backoff; after MaxAttempts the batch is dropped
// and a *BatchError is returned. If ctx ends while waiting to retry, the
// batch is requeued and ctx's error is returned.
func (m *Manager) Flush(ctx context.Context) error {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	batch := m.queue.take(m.cfg.MaxBatchSize)
	metrics.PresenceQueueDepth.Set(float64(m.queue.len()))
	if len(batch) == 0 {
		return nil
	}
	return m.writeBatch(ctx, batch)
}

// FlushAll drains the queue, one batch at a time, until it is empty or ctx
// ends. Used on shutdown.
func (m *Manager) FlushAll(ctx context.Context) error {
	var dropped error
	for m.queue.len() > 0 {
		err := m.Flush(ctx)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrBatchPersistence) {
			dropped = err
			continue
		}
		return err
	}
	return dropped
}

func (m *Manager) writeBatch(ctx context.Context, batch []models.PresenceRecord) error {
	start := time.Now()
	var lastErr error

	for attempt := 0; attempt < m.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := m.sleep(ctx, m.backoff(attempt-1)); err != nil {
				m.queue.requeue(batch)
				metrics.PresenceQueueDepth.Set(float64(m.queue.len()))
				return err
			}
		}

		lastErr = m.deps.Breaker.Execute(ctx, func(ctx context.Context) error {
			return m.deps.Store.UpsertPresence(ctx, batch)
		})
		if lastErr == nil {
			metrics.RecordFlush("success", len(batch), time.Since(start))
			logging.Debug().
				Str("component", "presence").
				Int("batch_size", len(batch)).
				Int("attempt", attempt+1).
				Msg("Flushed presence batch")
			return nil
		}

		metrics.RecordFlush("retry", len(batch), time.Since(start))
		logging.Warn().
			Err(lastErr).
			Str("component", "presence").
			Int("batch_size", len(batch)).
			Int("attempt", attempt+1).
			Msg("Presence batch write failed")
	}

	berr := &BatchError{Size: len(batch), Attempts: m.cfg.MaxAttempts, Err: lastErr}
	metrics.RecordFlush("dropped", len(batch), time.Since(start))
	logging.Error().
		Err(berr).
		Str("component", "presence").
		Msg("Dropping presence batch")
	return berr
}

// backoff returns RetryBase * 2^attempt, capped at RetryMax.
func (m *Manager) backoff(attempt int) time.Duration {
	if attempt > 30 {
		return m.cfg.RetryMax
	}
	d := time.Duration(float64(m.cfg.RetryBase) * math.Pow(2, float64(attempt)))
	if d > m.cfg.RetryMax {
		return m.cfg.RetryMax
	}
	return d
}
