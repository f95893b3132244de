// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/chatrelay/internal/metrics"
	"github.com/tomtom215/chatrelay/internal/models"
)

// metaChannel carries the concrete subject, which the NATS unmarshaler
// does not expose on the watermill message.
const metaChannel = "channel"

// NATSConfig configures a NATSBridge.
type NATSConfig struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	CloseTimeout  time.Duration
}

// DefaultNATSConfig returns reconnect settings suited to a long-running node.
func DefaultNATSConfig(url string) NATSConfig {
	return NATSConfig{
		URL:           url,
		Name:          "chatrelay",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		CloseTimeout:  5 * time.Second,
	}
}

// NATSBridge carries envelopes over core NATS subjects through watermill.
// JetStream is disabled: delivery is at-most-once and only reaches
// subscribers connected at publish time.
type NATSBridge struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     watermill.LoggerAdapter

	mu       sync.Mutex
	patterns map[string]struct{}
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNATSBridge connects a publisher and a subscriber to cfg.URL.
func NewNATSBridge(cfg NATSConfig) (*NATSBridge, error) {
	logger := newWatermillLogger()

	natsOpts := []natsgo.Option{
		natsgo.Name(cfg.Name),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		SubscribersCount: 1,
		CloseTimeout:     cfg.CloseTimeout,
		AckWaitTimeout:   30 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create nats subscriber: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &NATSBridge{
		publisher:  pub,
		subscriber: sub,
		logger:     logger,
		patterns:   make(map[string]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Backend implements Bridge.
func (n *NATSBridge) Backend() string { return "nats" }

// Publish implements Bridge.
func (n *NATSBridge) Publish(_ context.Context, channel string, env *models.Envelope) error {
	n.mu.Lock()
	closed := n.closed
	n.mu.Unlock()
	if closed {
		return ErrClosed
	}

	payload, err := Encode(env)
	if err != nil {
		metrics.RecordPublish(string(env.Type), err)
		return err
	}
	msg := message.NewMessage(uuid.New().String(), payload)
	msg.Metadata.Set(metaChannel, channel)

	err = n.publisher.Publish(channel, msg)
	metrics.RecordPublish(string(env.Type), err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe implements Bridge.
func (n *NATSBridge) Subscribe(_ context.Context, pattern string, h Handler) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}
	if _, exists := n.patterns[pattern]; exists {
		return fmt.Errorf("%s: %w", pattern, ErrAlreadySubscribed)
	}

	messages, err := n.subscriber.Subscribe(n.ctx, pattern)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", pattern, err)
	}
	n.patterns[pattern] = struct{}{}

	n.wg.Add(1)
	go n.consume(pattern, messages, h)
	return nil
}

func (n *NATSBridge) consume(pattern string, messages <-chan *message.Message, h Handler) {
	defer n.wg.Done()
	for msg := range messages {
		env, err := Decode(msg.Payload)
		// Redelivery is meaningless on core NATS, so every message is acked.
		msg.Ack()
		if err != nil {
			n.logger.Error("Dropping undecodable envelope", err, watermill.LogFields{"pattern": pattern})
			continue
		}
		metrics.BusReceived.WithLabelValues(string(env.Type)).Inc()
		h(n.ctx, msg.Metadata.Get(metaChannel), env)
	}
}

// Close implements Bridge.
func (n *NATSBridge) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	n.cancel()
	subErr := n.subscriber.Close()
	pubErr := n.publisher.Close()
	n.wg.Wait()

	if subErr != nil {
		return fmt.Errorf("close nats subscriber: %w", subErr)
	}
	if pubErr != nil {
		return fmt.Errorf("close nats publisher: %w", pubErr)
	}
	return nil
}
