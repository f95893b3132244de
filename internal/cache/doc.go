// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

// Package cache provides the bounded, TTL-aware LRU used wherever key
// cardinality is unbounded: the presence cache and the group read tracker.
package cache
