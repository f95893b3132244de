// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

/*
Package supervisor runs the relay's long-lived services under suture v4.

	RootSupervisor ("chatrelay")
	├── "maintenance-layer"
	│   ├── presence-monitor
	│   ├── presence-flusher
	│   ├── ratelimit-sweeper
	│   └── breaker-probe (when a probe URL is configured)
	├── "messaging-layer"
	│   └── gateway
	└── "api-layer"
	    └── http-server

Crashed services are restarted with suture's backoff; failures are counted
per layer. Events are logged through sutureslog on top of the zerolog
slog adapter.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("supervisor")
	}
	for _, svc := range srv.Services() {
		tree.AddMaintenanceService(svc)
	}
	tree.AddMessagingService(services.NewGatewayService(srv, 30*time.Second))
	tree.AddAPIService(services.NewHTTPServerService(httpServer, 10*time.Second))
	err = tree.Serve(ctx)

The tree stops when ctx is canceled. The gateway's own Shutdown is still
called by main afterwards so that pending presence is flushed and sockets
are closed even if the service was not running.
*/
package supervisor
