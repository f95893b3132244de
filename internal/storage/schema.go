// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/chatrelay/internal/logging"
)

// Migration represents a versioned schema change.
type Migration struct {
	Version   int
	Name      string
	SQL       string
	AppliedAt time.Time
}

// dialect holds the per-driver differences in DDL.
type dialect struct {
	timestamp string
}

var dialects = map[string]dialect{
	DriverPgx:    {timestamp: "TIMESTAMPTZ"},
	DriverDuckDB: {timestamp: "TIMESTAMP"},
}

const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at %s NOT NULL
);
`

// migrations returns all versioned migrations in order. Migrations are
// append-only once released.
func (d dialect) migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_user_presence", SQL: fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS user_presence (
	user_id TEXT PRIMARY KEY,
	status SMALLINT NOT NULL,
	last_seen %s NOT NULL
);`, d.timestamp)},
		{Version: 2, Name: "create_group_members", SQL: `
CREATE TABLE IF NOT EXISTS group_members (
	group_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	PRIMARY KEY (group_id, user_id)
);`},
		{Version: 3, Name: "create_contacts", SQL: `
CREATE TABLE IF NOT EXISTS contacts (
	user_id TEXT NOT NULL,
	contact_id TEXT NOT NULL,
	PRIMARY KEY (user_id, contact_id)
);`},
	}
}

// Migrate applies migrations that have not run yet.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(schemaMigrationsTable, s.dialect.timestamp)); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return err
	}

	newMigrations := 0
	for _, m := range s.dialect.migrations() {
		if applied[m.Version] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("failed to execute migration v%d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, $3)`,
			m.Version, m.Name, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to record migration v%d: %w", m.Version, err)
		}
		newMigrations++
	}

	if newMigrations > 0 {
		logging.Info().Int("count", newMigrations).Str("driver", s.driver).Msg("Applied database migrations")
	}
	return nil
}

func (s *SQLStore) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// MigrationHistory returns all applied migrations in order.
func (s *SQLStore) MigrationHistory(ctx context.Context) ([]Migration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version, name, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query migration history: %w", err)
	}
	defer rows.Close()

	var history []Migration
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Version, &m.Name, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		history = append(history, m)
	}
	return history, rows.Err()
}
