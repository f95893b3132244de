// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

/*
Package websocket is the socket transport for chat clients.

It uses gorilla/websocket with a hub-client architecture. The Hub upgrades
HTTP requests, keeps the live clients by socket id and emits to them; the
gateway plugs in as the Handler that receives inbound events.

Each client has two goroutines:
  - readPump: reads frames, resolves acks, dispatches events in order
  - writePump: the only writer; sends queued frames and keepalive pings

Frames:

Both directions use one JSON shape:

	{"event": "send_message", "data": {...}, "ack": 7}

An inbound frame with "ack" gets a reply frame carrying the handler's
result:

	{"event": "ack", "ack": 7, "data": {"ok": true, ...}}

Outbound frames sent with EmitWithAck carry an ack id and the client is
expected to answer with {"event": "ack", "ack": <id>}. EmitWithAck blocks
until that answer, the context deadline, or the client closing.

A pending EmitWithAck returns ErrClientClosed as soon as its socket closes
instead of waiting out the context deadline. No frame can arrive on a
closed socket, so the outcome is the same as a timeout; callers log both
and nothing else is cancelled.

Keepalive and limits (defaults):

  - pong wait 60s, ping period 54s, write wait 10s
  - inbound frames larger than 64 KiB close the connection
  - 256 queued outbound frames; a client that falls further behind is
    closed with a policy-violation code

Shutdown:

CloseAll closes every client with the given code (going-away during
server shutdown) after flushing frames already queued, and rejects new
upgrades with 503.
*/
package websocket
