// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/chatrelay/internal/logging"
	"github.com/tomtom215/chatrelay/internal/metrics"
)

// ErrCircuitOpen is matched by every CircuitOpenError.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitOpenError is returned when a call is rejected without invoking the
// protected operation. Callers should treat the dependency as unavailable.
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit %q open, retry in %s", e.Name, e.RetryAfter.Round(time.Millisecond))
}

// Is makes errors.Is(err, ErrCircuitOpen) succeed.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// State is the breaker state.
type State uint8

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

// Transition describes one state change.
type Transition struct {
	Name string
	From State
	To   State
	At   time.Time
}

// Observer receives state transitions. Observers run synchronously on the
// goroutine that caused the transition and must not call back into the breaker.
type Observer func(Transition)

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	Name string

	// Threshold is the number of consecutive failures that opens the circuit.
	Threshold uint32

	// Timeout is how long the circuit stays open after the last failure
	// before a single trial call is let through.
	Timeout time.Duration
}

// Snapshot is a point-in-time view of the breaker.
type Snapshot struct {
	Name            string
	State           State
	FailureCount    uint32
	LastFailureTime time.Time // zero when cleared
	Threshold       uint32
	Timeout         time.Duration
}

// CircuitBreaker protects one call site. It does not retry or buffer calls;
// retry policy belongs to the caller.
//
// The breaker uses real time via sony/gobreaker for its open timeout, so
// tests exercise it with short timeouts and waits.
type CircuitBreaker struct {
	name      string
	threshold uint32
	timeout   time.Duration
	cb        *gobreaker.CircuitBreaker[any]

	mu          sync.Mutex
	state       State
	failures    uint32
	lastFailure time.Time
	observers   map[uint64]Observer
	nextID      uint64
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.Threshold == 0 {
		cfg.Threshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	b := &CircuitBreaker{
		name:      cfg.Name,
		threshold: cfg.Threshold,
		timeout:   cfg.Timeout,
		state:     StateClosed,
		observers: make(map[uint64]Observer),
	}

	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cfg.Name).Set(0)

	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name: cfg.Name,
		// One trial call in half-open; concurrent calls are rejected.
		MaxRequests: 1,
		// Zero interval: closed-state counts are only cleared by a success.
		Interval: 0,
		Timeout:  cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Threshold
		},
		OnStateChange: b.onStateChange,
	})
	return b
}

// Name returns the breaker name.
func (b *CircuitBreaker) Name() string {
	return b.name
}

func (b *CircuitBreaker) onStateChange(name string, from, to gobreaker.State) {
	t := Transition{Name: name, From: fromGobreaker(from), To: fromGobreaker(to), At: time.Now()}

	ev := logging.Info()
	if t.To == StateOpen {
		ev = logging.Warn()
	}
	ev.Str("breaker", name).Str("from", t.From.String()).Str("to", t.To.String()).Msg("Circuit breaker state transition")

	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(t.To))
	metrics.CircuitBreakerTransitions.WithLabelValues(name, t.From.String(), t.To.String()).Inc()

	b.mu.Lock()
	b.state = t.To
	if t.To == StateClosed {
		b.lastFailure = time.Time{}
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
	}
	observers := make([]Observer, 0, len(b.observers))
	for _, o := range b.observers {
		observers = append(observers, o)
	}
	b.mu.Unlock()

	for _, o := range observers {
		o(t)
	}
}

// Observe registers fn for state transitions and returns a function that
// unregisters it.
func (b *CircuitBreaker) Observe(fn Observer) (cancel func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.observers[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.observers, id)
		b.mu.Unlock()
	}
}

// Subscribe returns a channel of transitions. Transitions are dropped when
// the channel buffer is full. cancel unregisters and closes the channel.
func (b *CircuitBreaker) Subscribe(buffer int) (<-chan Transition, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Transition, buffer)
	var once sync.Once
	var closeMu sync.Mutex
	closed := false

	unregister := b.Observe(func(t Transition) {
		closeMu.Lock()
		defer closeMu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- t:
		default:
		}
	})
	return ch, func() {
		once.Do(func() {
			unregister()
			closeMu.Lock()
			closed = true
			close(ch)
			closeMu.Unlock()
		})
	}
}

// Execute runs fn unless the circuit is open. A rejected call returns a
// *CircuitOpenError and fn is not invoked.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	_, err := Call(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call runs fn through b and returns its typed result.
func Call[T any](ctx context.Context, b *CircuitBreaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	res, err := b.cb.Execute(func() (any, error) {
		v, err := fn(ctx)
		b.mu.Lock()
		if err != nil {
			b.failures++
			b.lastFailure = time.Now()
		} else {
			b.failures = 0
		}
		b.mu.Unlock()
		return v, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
			return zero, &CircuitOpenError{Name: b.name, RetryAfter: b.retryAfter()}
		}
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(float64(b.Snapshot().FailureCount))
		return zero, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(0)
	typed, ok := res.(T)
	if !ok {
		return zero, nil
	}
	return typed, nil
}

func (b *CircuitBreaker) retryAfter() time.Duration {
	b.mu.Lock()
	last := b.lastFailure
	b.mu.Unlock()
	if last.IsZero() {
		return 0
	}
	if d := b.timeout - time.Since(last); d > 0 {
		return d
	}
	return 0
}

// State returns the state as of the last transition. An open circuit
// moves to half-open only when a call arrives after the timeout, so reading
// the state never causes a transition.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns the current state and counters.
func (b *CircuitBreaker) Snapshot() Snapshot {
	b.mu.Lock()
	state, failures, last := b.state, b.failures, b.lastFailure
	b.mu.Unlock()
	return Snapshot{
		Name:            b.name,
		State:           state,
		FailureCount:    failures,
		LastFailureTime: last,
		Threshold:       b.threshold,
		Timeout:         b.timeout,
	}
}

func stateToFloat(s State) float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return 0
	}
}
