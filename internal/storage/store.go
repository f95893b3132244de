// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package storage

import (
	"context"
	"errors"

	"github.com/tomtom215/chatrelay/internal/models"
)

var (
	// ErrUnknownDriver is returned by Open for unsupported drivers.
	ErrUnknownDriver = errors.New("unknown storage driver")

	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("store closed")
)

// PresenceStore persists presence records keyed by user id. The newest
// lastSeen wins when records for the same user arrive out of order.
type PresenceStore interface {
	UpsertPresence(ctx context.Context, records []models.PresenceRecord) error
}

// Directory answers membership questions owned by the chat domain.
type Directory interface {
	// GroupMemberCount counts members of groupID, including any sender.
	GroupMemberCount(ctx context.Context, groupID string) (int, error)

	// Contacts lists users who should see userID's presence.
	Contacts(ctx context.Context, userID string) ([]string, error)

	// UserGroups lists the groups userID belongs to.
	UserGroups(ctx context.Context, userID string) ([]string, error)
}

// Store is the full storage surface used by the relay.
type Store interface {
	PresenceStore
	Directory

	// LoadPresence returns the persisted record for userID.
	LoadPresence(ctx context.Context, userID string) (models.PresenceRecord, bool, error)

	// AddGroupMember records that userID belongs to groupID.
	AddGroupMember(ctx context.Context, groupID, userID string) error

	// AddContact records a mutual contact between two users.
	AddContact(ctx context.Context, userID, contactID string) error

	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a Store.
type Config struct {
	Driver       string `koanf:"driver" validate:"oneof=memory pgx duckdb"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
}

// Open returns the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverPgx, DriverDuckDB:
		return OpenSQL(ctx, cfg)
	default:
		return nil, ErrUnknownDriver
	}
}
