// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrRateLimitExceeded is matched by every ExceededError.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ErrUnknownAlgorithm is returned by New for an unrecognized algorithm name.
var ErrUnknownAlgorithm = errors.New("unknown rate limit algorithm")

// Algorithm names a rate limiting strategy.
type Algorithm string

const (
	FixedWindow   Algorithm = "fixed_window"
	SlidingLog    Algorithm = "sliding_log"
	TokenBucket   Algorithm = "token_bucket"
	LeakyBucket   Algorithm = "leaky_bucket"
	defaultWindow           = time.Minute
)

// Valid reports whether a is a known algorithm.
func (a Algorithm) Valid() bool {
	switch a {
	case FixedWindow, SlidingLog, TokenBucket, LeakyBucket:
		return true
	}
	return false
}

// Result is the outcome of one admission decision. The same fields are
// reported to clients whether or not the request was admitted.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// ResetMs returns ResetAt as epoch milliseconds.
func (r Result) ResetMs() int64 {
	return r.ResetAt.UnixMilli()
}

// RetryAfterMs returns RetryAfter in whole milliseconds.
func (r Result) RetryAfterMs() int64 {
	return r.RetryAfter.Milliseconds()
}

// Err returns nil for an admitted request and an *ExceededError otherwise.
func (r Result) Err() error {
	if r.Allowed {
		return nil
	}
	return &ExceededError{Result: r}
}

// ExceededError reports a rejected request together with its retry timing.
type ExceededError struct {
	Result Result
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%v: retry after %dms", ErrRateLimitExceeded, e.Result.RetryAfterMs())
}

// Is makes errors.Is(err, ErrRateLimitExceeded) succeed.
func (e *ExceededError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// Limiter admits or rejects requests per identifier.
type Limiter interface {
	// Allow records a request for id at now and reports the decision.
	Allow(id string, now time.Time) Result
	// Sweep forgets identifiers idle for longer than twice the window and
	// returns how many were removed.
	Sweep(now time.Time) int
	// Len returns the number of tracked identifiers.
	Len() int
	Algorithm() Algorithm
}

// Config selects and parameterizes an algorithm.
type Config struct {
	Algorithm Algorithm

	// Limit is the number of requests per Window for the window algorithms.
	Limit int

	// Window is the accounting window for the window algorithms and the
	// idle horizon (2 x Window) for every algorithm. The bucket algorithms
	// default it to the time a full bucket takes to refill or drain.
	Window time.Duration

	// Capacity is the bucket size for the bucket algorithms.
	Capacity float64

	// Rate is tokens added (token bucket) or drained (leaky bucket) per second.
	Rate float64
}

// MinWindow is the smallest accepted Window. Records are kept with
// millisecond resolution.
const MinWindow = time.Millisecond

// New builds the limiter described by cfg.
func New(cfg Config) (Limiter, error) {
	switch cfg.Algorithm {
	case FixedWindow:
		if cfg.Limit <= 0 {
			return nil, fmt.Errorf("fixed window: limit must be positive")
		}
		if cfg.Window < MinWindow {
			return nil, fmt.Errorf("fixed window: window must be at least %s", MinWindow)
		}
		return NewFixedWindow(cfg.Limit, cfg.Window), nil
	case SlidingLog:
		if cfg.Limit <= 0 {
			return nil, fmt.Errorf("sliding log: limit must be positive")
		}
		if cfg.Window < MinWindow {
			return nil, fmt.Errorf("sliding log: window must be at least %s", MinWindow)
		}
		return NewSlidingLog(cfg.Limit, cfg.Window), nil
	case TokenBucket:
		if cfg.Capacity < 1 || cfg.Rate <= 0 {
			return nil, fmt.Errorf("token bucket: capacity must be >= 1 and rate positive")
		}
		if cfg.Window != 0 && cfg.Window < MinWindow {
			return nil, fmt.Errorf("token bucket: window must be 0 or at least %s", MinWindow)
		}
		return NewTokenBucket(cfg.Capacity, cfg.Rate, cfg.Window), nil
	case LeakyBucket:
		if cfg.Capacity < 1 || cfg.Rate <= 0 {
			return nil, fmt.Errorf("leaky bucket: capacity must be >= 1 and rate positive")
		}
		if cfg.Window != 0 && cfg.Window < MinWindow {
			return nil, fmt.Errorf("leaky bucket: window must be 0 or at least %s", MinWindow)
		}
		return NewLeakyBucket(cfg.Capacity, cfg.Rate, cfg.Window), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, cfg.Algorithm)
	}
}

// bucketWindow is the time to move capacity units at rate per second.
func bucketWindow(capacity, rate float64, window time.Duration) time.Duration {
	if window > 0 {
		return window
	}
	return time.Duration(math.Ceil(capacity / rate * float64(time.Second)))
}

type entry[T any] struct {
	rec  T
	last time.Time
}

// store is the per-identifier record map shared by every algorithm. The
// mutex makes each read-modify-write of a record atomic.
type store[T any] struct {
	mu      sync.Mutex
	window  time.Duration
	records map[string]*entry[T]
}

func (s *store[T]) init(window time.Duration) {
	if window <= 0 {
		window = defaultWindow
	}
	s.window = window
	s.records = make(map[string]*entry[T])
}

// Window returns the accounting window; identifiers idle for twice this
// long are swept.
func (s *store[T]) Window() time.Duration {
	return s.window
}

// update runs fn on id's record, creating it with newRec if absent. Callers
// must not hold s.mu.
func (s *store[T]) update(id string, now time.Time, newRec func() T, fn func(rec *T) Result) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[id]
	if !ok {
		e = &entry[T]{rec: newRec()}
		s.records[id] = e
	}
	e.last = now
	return fn(&e.rec)
}

// Sweep removes records idle for longer than 2 x window. Partially consumed
// bucket state is discarded with them.
func (s *store[T]) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	horizon := 2 * s.window
	removed := 0
	for id, e := range s.records {
		if now.Sub(e.last) > horizon {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked identifiers.
func (s *store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func ceilMs(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	return ms * time.Millisecond
}
