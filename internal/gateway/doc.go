// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

/*
Package gateway is the socket-facing edge of a relay instance.

A Server authenticates WebSocket upgrades, enforces the per-user
connection limit, joins each socket to its group rooms and dispatches
inbound events (send_message, message_status, user_typing, join_group,
leave_group, heartbeat) to the router and presence manager. Every event
that carries an ack id is answered, and failures are also emitted to the
originating socket as an error event.

Lifecycle:

	srv, err := gateway.New(cfg, deps)
	if err != nil { ... }
	if err := srv.Start(ctx); err != nil { ... }
	for _, svc := range srv.Services() {
		tree.Add(svc)
	}
	http.ListenAndServe(addr, srv.Handler())
	...
	srv.Shutdown(ctx)

Shutdown stops the periodic services, flushes queued presence updates,
closes the bus, waits for in-flight deliveries and finally closes every
socket with a going-away frame. It is safe to call more than once.
*/
package gateway
