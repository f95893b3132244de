// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/tomtom215/chatrelay/internal/logging"
	"github.com/tomtom215/chatrelay/internal/metrics"
	"github.com/tomtom215/chatrelay/internal/models"
)

const memoryQueueSize = 1024

// MemoryBus is an in-process bus. Every bridge connected to the same bus
// behaves like a separate instance attached to a shared broker, which makes
// it suitable for single-node runs and multi-instance tests.
type MemoryBus struct {
	mu      sync.RWMutex
	bridges map[*MemoryBridge]struct{}
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{bridges: make(map[*MemoryBridge]struct{})}
}

// Connect attaches a new bridge to the bus.
func (b *MemoryBus) Connect() *MemoryBridge {
	ctx, cancel := context.WithCancel(context.Background())
	br := &MemoryBridge{
		bus:      b,
		handlers: make(map[string]Handler),
		queue:    make(chan delivery, memoryQueueSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	b.mu.Lock()
	b.bridges[br] = struct{}{}
	b.mu.Unlock()

	go br.dispatch()
	return br
}

func (b *MemoryBus) broadcast(channel string, payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for br := range b.bridges {
		br.enqueue(channel, payload)
	}
}

func (b *MemoryBus) detach(br *MemoryBridge) {
	b.mu.Lock()
	delete(b.bridges, br)
	b.mu.Unlock()
}

type delivery struct {
	channel string
	payload []byte
}

// MemoryBridge is one connection to a MemoryBus.
type MemoryBridge struct {
	bus *MemoryBus

	mu       sync.RWMutex
	handlers map[string]Handler
	closed   bool

	queue  chan delivery
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMemoryBridge returns a bridge on a private bus.
func NewMemoryBridge() *MemoryBridge {
	return NewMemoryBus().Connect()
}

// Backend implements Bridge.
func (m *MemoryBridge) Backend() string { return "memory" }

// Publish implements Bridge.
func (m *MemoryBridge) Publish(_ context.Context, channel string, env *models.Envelope) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	payload, err := Encode(env)
	metrics.RecordPublish(string(env.Type), err)
	if err != nil {
		return err
	}
	m.bus.broadcast(channel, payload)
	return nil
}

// Subscribe implements Bridge.
func (m *MemoryBridge) Subscribe(_ context.Context, pattern string, h Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, exists := m.handlers[pattern]; exists {
		return fmt.Errorf("%s: %w", pattern, ErrAlreadySubscribed)
	}
	m.handlers[pattern] = h
	return nil
}

// Close implements Bridge.
func (m *MemoryBridge) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.bus.detach(m)
	m.cancel()
	<-m.done
	return nil
}

func (m *MemoryBridge) enqueue(channel string, payload []byte) {
	select {
	case m.queue <- delivery{channel: channel, payload: payload}:
	case <-m.ctx.Done():
	default:
		logging.Warn().Str("channel", channel).Msg("Memory bus queue full, dropping envelope")
	}
}

func (m *MemoryBridge) dispatch() {
	defer close(m.done)
	for {
		select {
		case <-m.ctx.Done():
			return
		case d := <-m.queue:
			m.deliver(d)
		}
	}
}

func (m *MemoryBridge) deliver(d delivery) {
	m.mu.RLock()
	var matched []Handler
	for pattern, h := range m.handlers {
		if Match(pattern, d.channel) {
			matched = append(matched, h)
		}
	}
	m.mu.RUnlock()
	if len(matched) == 0 {
		return
	}

	env, err := Decode(d.payload)
	if err != nil {
		logging.Warn().Err(err).Str("channel", d.channel).Msg("Dropping undecodable envelope")
		return
	}
	metrics.BusReceived.WithLabelValues(string(env.Type)).Inc()
	for _, h := range matched {
		h(m.ctx, d.channel, env)
	}
}
