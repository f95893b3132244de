// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

// Package storage persists presence and answers directory lookups.
//
// The relay needs two things from storage: an upsert of (userId, status,
// lastSeen) keyed by user id, and the membership facts the chat domain owns
// (group member counts, contacts, a user's groups). Store combines both.
//
// Implementations:
//
//	MemoryStore  in-process maps, the default driver
//	SQLStore     database/sql with driver "pgx" (PostgreSQL) or "duckdb"
//
// SQLStore applies versioned migrations on open. Presence upserts run in one
// transaction per batch and never move lastSeen backwards.
package storage
