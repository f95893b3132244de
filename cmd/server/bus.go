// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package main

import (
	"context"
	"fmt"

	"github.com/tomtom215/chatrelay/internal/config"
	"github.com/tomtom215/chatrelay/internal/logging"
	"github.com/tomtom215/chatrelay/internal/pubsub"
)

// openBus builds the configured bridge. For NATS with EmbeddedNATS set it
// also starts an in-process server, returned so main can stop it last.
func openBus(ctx context.Context, cfg *config.Config) (pubsub.Bridge, *pubsub.EmbeddedServer, error) {
	switch cfg.Bus.Backend {
	case config.BusNATS:
		url := cfg.Bus.NATSURL
		var embedded *pubsub.EmbeddedServer
		if cfg.Bus.EmbeddedNATS {
			var err error
			embedded, err = pubsub.NewEmbeddedServer(cfg.EmbeddedNATSOptions())
			if err != nil {
				return nil, nil, fmt.Errorf("start embedded nats: %w", err)
			}
			url = embedded.ClientURL()
			logging.Info().Str("url", url).Msg("Embedded NATS server started")
		}

		bridge, err := pubsub.NewNATSBridge(cfg.NATSOptions(url))
		if err != nil {
			if embedded != nil {
				_ = embedded.Shutdown(ctx)
			}
			return nil, nil, err
		}
		return bridge, embedded, nil

	case config.BusRedis:
		bridge, err := pubsub.NewRedisBridge(ctx, cfg.RedisOptions())
		if err != nil {
			return nil, nil, err
		}
		return bridge, nil, nil

	default:
		return pubsub.NewMemoryBridge(), nil, nil
	}
}
