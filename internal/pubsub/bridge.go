// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package pubsub

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/chatrelay/internal/metrics"
	"github.com/tomtom215/chatrelay/internal/models"
)

var (
	// ErrClosed is returned by operations on a closed bridge.
	ErrClosed = errors.New("pubsub bridge closed")

	// ErrAlreadySubscribed is returned when a pattern already has a handler.
	ErrAlreadySubscribed = errors.New("pattern already subscribed")

	// ErrInvalidEnvelope is returned for envelopes without a type.
	ErrInvalidEnvelope = errors.New("invalid envelope")
)

// Handler receives envelopes published on channels matching a subscribed
// pattern. Handlers run on the bridge's delivery goroutine and must return
// quickly; long waits belong in goroutines the handler starts itself.
type Handler func(ctx context.Context, channel string, env *models.Envelope)

// Bridge publishes and subscribes envelopes on named channels shared by
// every instance. Publish is fire-and-forget: no deduplication, ordering
// or retry is provided.
type Bridge interface {
	// Publish sends env to a single concrete channel.
	Publish(ctx context.Context, channel string, env *models.Envelope) error

	// Subscribe registers the one handler for pattern. The subscription
	// lasts until the bridge is closed.
	Subscribe(ctx context.Context, pattern string, h Handler) error

	// Close releases the bus connection and stops delivery.
	Close() error

	// Backend names the underlying bus.
	Backend() string
}

// Encode serializes an envelope for the wire.
func Encode(env *models.Envelope) ([]byte, error) {
	if env == nil || env.Type == "" {
		return nil, ErrInvalidEnvelope
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return b, nil
}

// Decode parses a wire payload into an envelope.
func Decode(payload []byte) (*models.Envelope, error) {
	var env models.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		metrics.BusDecodeErrors.Inc()
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		metrics.BusDecodeErrors.Inc()
		return nil, ErrInvalidEnvelope
	}
	return &env, nil
}
