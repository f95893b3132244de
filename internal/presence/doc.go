// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

// Package presence tracks online, away and offline status for users
// connected to this instance.
//
// State machine, evaluated by Sweep every MonitorInterval:
//
//	any heartbeat or new socket          -> online
//	online, >=1 socket, idle > 30s       -> away
//	online|away, 0 sockets, idle > 60s   -> offline (evicted from cache)
//
// Each transition is cached in a bounded LRU, queued for persistence and
// published on the bus presence channel. The queue is coalesced per user
// and flushed every BatchInterval, at most MaxBatchSize records per write,
// through a circuit breaker. Failed writes back off 1s, 2s, 4s... capped at
// RetryMax; after MaxAttempts the batch is dropped and ErrBatchPersistence
// is logged. Losing presence updates this way is accepted: the next sweep
// or heartbeat produces fresh state.
package presence
