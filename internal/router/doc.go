// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

// Package router moves chat traffic between sockets and the bus.
//
// Outbound, Send, Typing and MarkStatus publish envelopes to the
// recipient's user channel, the group channel or the sender's ack channel.
// Inbound, the router subscribes once per channel pattern and delivers
// what arrives to sockets connected to this instance:
//
//	chat.user.*   receive_message (ack-tracked) and user_typing
//	chat.group.*  receive_message to room members except the sender
//	chat.ack.*    message_status to the sender, group read aggregation
//	chat.presence presence_updates to local contacts
//
// Each socket gets receive_message with its own acknowledgment timeout.
// The first acknowledgment publishes a single DELIVERED status; a
// delivery nobody acknowledges is dropped.
//
// Group READ receipts are aggregated by ReadTracker on the instance that
// holds the sender's sockets. One aggregate READ status is emitted when
// every member except the sender has read the message.
package router
