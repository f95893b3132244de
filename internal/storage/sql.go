// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tomtom215/chatrelay/internal/logging"
	"github.com/tomtom215/chatrelay/internal/models"
)

// Driver names accepted in Config.Driver.
const (
	DriverMemory = "memory"
	DriverPgx    = "pgx"
	DriverDuckDB = "duckdb"
)

const upsertPresenceSQL = `
INSERT INTO user_presence (user_id, status, last_seen) VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET status = excluded.status, last_seen = excluded.last_seen
WHERE user_presence.last_seen <= excluded.last_seen`

// SQLStore implements Store over database/sql with the pgx or duckdb driver.
type SQLStore struct {
	db      *sql.DB
	driver  string
	dialect dialect
	closed  atomic.Bool
}

// OpenSQL opens the database, verifies connectivity and applies migrations.
// An empty DSN with the duckdb driver opens an in-memory database.
func OpenSQL(ctx context.Context, cfg Config) (*SQLStore, error) {
	d, ok := dialects[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStore{db: db, driver: cfg.Driver, dialect: d}
	if err := s.Migrate(ctx); err != nil {
		closeQuietly(db)
		return nil, err
	}
	return s, nil
}

// UpsertPresence writes records in a single transaction.
func (s *SQLStore) UpsertPresence(ctx context.Context, records []models.PresenceRecord) (err error) {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin presence upsert: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logging.Warn().Err(rbErr).Msg("Failed to roll back presence upsert")
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertPresenceSQL)
	if err != nil {
		return fmt.Errorf("prepare presence upsert: %w", err)
	}
	defer closeQuietly(stmt)

	for _, r := range records {
		if _, err = stmt.ExecContext(ctx, r.UserID, int16(r.Status), r.LastSeen.UTC()); err != nil {
			return fmt.Errorf("upsert presence %s: %w", r.UserID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit presence upsert: %w", err)
	}
	return nil
}

// LoadPresence implements Store.
func (s *SQLStore) LoadPresence(ctx context.Context, userID string) (models.PresenceRecord, bool, error) {
	rec := models.PresenceRecord{UserID: userID}
	var status int16
	err := s.db.QueryRowContext(ctx,
		`SELECT status, last_seen FROM user_presence WHERE user_id = $1`, userID).
		Scan(&status, &rec.LastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("load presence %s: %w", userID, err)
	}
	rec.Status = models.PresenceStatus(status)
	rec.LastSeen = rec.LastSeen.UTC()
	return rec, true, nil
}

// GroupMemberCount implements Directory.
func (s *SQLStore) GroupMemberCount(ctx context.Context, groupID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM group_members WHERE group_id = $1`, groupID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count members of %s: %w", groupID, err)
	}
	return n, nil
}

// Contacts implements Directory.
func (s *SQLStore) Contacts(ctx context.Context, userID string) ([]string, error) {
	return s.queryStrings(ctx,
		`SELECT contact_id FROM contacts WHERE user_id = $1 ORDER BY contact_id`, userID)
}

// UserGroups implements Directory.
func (s *SQLStore) UserGroups(ctx context.Context, userID string) ([]string, error) {
	return s.queryStrings(ctx,
		`SELECT group_id FROM group_members WHERE user_id = $1 ORDER BY group_id`, userID)
}

// AddGroupMember implements Store.
func (s *SQLStore) AddGroupMember(ctx context.Context, groupID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		groupID, userID)
	if err != nil {
		return fmt.Errorf("add %s to %s: %w", userID, groupID, err)
	}
	return nil
}

// AddContact implements Store. Both directions are stored.
func (s *SQLStore) AddContact(ctx context.Context, userID, contactID string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add contact: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, pair := range [][2]string{{userID, contactID}, {contactID, userID}} {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO contacts (user_id, contact_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			pair[0], pair[1]); err != nil {
			return fmt.Errorf("add contact %s->%s: %w", pair[0], pair[1], err)
		}
	}
	return tx.Commit()
}

// Ping implements Store.
func (s *SQLStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return s.db.PingContext(ctx)
}

// Close implements Store.
func (s *SQLStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// Driver returns the database/sql driver name.
func (s *SQLStore) Driver() string { return s.driver }

func (s *SQLStore) queryStrings(ctx context.Context, query string, arg string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query directory: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan directory row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// closeQuietly closes a resource and explicitly ignores any error.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
