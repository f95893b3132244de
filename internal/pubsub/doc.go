// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

// Package pubsub connects chat instances through a shared message bus.
//
// A Bridge publishes envelopes to concrete channels and delivers envelopes
// from channels matching subscribed patterns. Three backends exist:
//
//	MemoryBridge  in-process bus, one MemoryBus shared by simulated instances
//	NATSBridge    core NATS subjects through watermill-nats
//	RedisBridge   Redis PUBLISH/PSUBSCRIBE through go-redis
//
// Channel names are built by Channels:
//
//	chat.user.<userID>   direct messages and typing hints for a user
//	chat.group.<groupID> group messages and typing hints
//	chat.ack.<userID>    delivery/read status and read receipts for a sender
//	chat.presence        presence transitions
//
// Delivery is at-most-once. Nothing is persisted, deduplicated or
// redelivered, and an envelope published while no instance is subscribed is
// lost. EmbeddedServer runs an in-process NATS server for single-node
// deployments and tests.
package pubsub
