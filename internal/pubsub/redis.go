// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/chatrelay/internal/logging"
	"github.com/tomtom215/chatrelay/internal/metrics"
	"github.com/tomtom215/chatrelay/internal/models"
)

// RedisConfig configures a RedisBridge.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisBridge carries envelopes over Redis PUBLISH and PSUBSCRIBE. All
// patterns share one pub/sub connection.
type RedisBridge struct {
	client *redis.Client

	mu       sync.Mutex
	ps       *redis.PubSub
	handlers map[string]Handler
	confirms map[string]chan struct{}
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisBridge connects to Redis and verifies the connection with PING.
func NewRedisBridge(ctx context.Context, cfg RedisConfig) (*RedisBridge, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}

	bctx, cancel := context.WithCancel(context.Background())
	return &RedisBridge{
		client:   client,
		handlers: make(map[string]Handler),
		confirms: make(map[string]chan struct{}),
		ctx:      bctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

// Backend implements Bridge.
func (r *RedisBridge) Backend() string { return "redis" }

// Publish implements Bridge.
func (r *RedisBridge) Publish(ctx context.Context, channel string, env *models.Envelope) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	payload, err := Encode(env)
	if err != nil {
		metrics.RecordPublish(string(env.Type), err)
		return err
	}
	err = r.client.Publish(ctx, channel, payload).Err()
	metrics.RecordPublish(string(env.Type), err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe implements Bridge.
func (r *RedisBridge) Subscribe(ctx context.Context, pattern string, h Handler) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if _, exists := r.handlers[pattern]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%s: %w", pattern, ErrAlreadySubscribed)
	}

	if r.ps == nil {
		defer r.mu.Unlock()
		ps := r.client.PSubscribe(ctx, pattern)
		// Wait for the subscription confirmation so publishes issued after
		// Subscribe returns are not missed.
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return fmt.Errorf("psubscribe %s: %w", pattern, err)
		}
		r.ps = ps
		r.handlers[pattern] = h
		go r.receive(ps.ChannelWithSubscriptions())
		return nil
	}

	// Later patterns share the connection; the receive loop reports their
	// confirmation.
	ps := r.ps
	confirmed := make(chan struct{})
	r.confirms[pattern] = confirmed
	r.handlers[pattern] = h
	r.mu.Unlock()

	if err := ps.PSubscribe(ctx, pattern); err != nil {
		r.forget(pattern)
		return fmt.Errorf("psubscribe %s: %w", pattern, err)
	}
	select {
	case <-confirmed:
		return nil
	case <-r.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		r.forget(pattern)
		_ = ps.PUnsubscribe(context.WithoutCancel(ctx), pattern)
		return fmt.Errorf("psubscribe %s: %w", pattern, ctx.Err())
	}
}

func (r *RedisBridge) forget(pattern string) {
	r.mu.Lock()
	delete(r.handlers, pattern)
	delete(r.confirms, pattern)
	r.mu.Unlock()
}

func (r *RedisBridge) receive(ch <-chan interface{}) {
	defer close(r.done)
	for v := range ch {
		switch msg := v.(type) {
		case *redis.Subscription:
			if msg.Kind != "psubscribe" {
				continue
			}
			r.mu.Lock()
			if c, ok := r.confirms[msg.Channel]; ok {
				close(c)
				delete(r.confirms, msg.Channel)
			}
			r.mu.Unlock()
		case *redis.Message:
			r.dispatch(msg)
		}
	}
}

func (r *RedisBridge) dispatch(msg *redis.Message) {
	r.mu.Lock()
	h := r.handlers[msg.Pattern]
	r.mu.Unlock()
	if h == nil {
		return
	}

	env, err := Decode([]byte(msg.Payload))
	if err != nil {
		logging.Warn().Err(err).Str("channel", msg.Channel).Msg("Dropping undecodable envelope")
		return
	}
	metrics.BusReceived.WithLabelValues(string(env.Type)).Inc()
	h(r.ctx, msg.Channel, env)
}

// Close implements Bridge.
func (r *RedisBridge) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	ps := r.ps
	r.mu.Unlock()

	r.cancel()
	if ps != nil {
		if err := ps.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close redis pubsub")
		}
		<-r.done
	}
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
