// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/chatrelay/internal/models"
)

// MemoryStore implements Store in process memory. It is the default for
// single-node runs and the fixture most tests use.
type MemoryStore struct {
	mu       sync.RWMutex
	presence map[string]models.PresenceRecord
	groups   map[string]map[string]struct{} // group -> members
	contacts map[string]map[string]struct{} // user -> contacts
	closed   bool

	// failNext makes the next n upserts fail; used to exercise retry paths.
	failNext int
	failErr  error
	upserts  int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		presence: make(map[string]models.PresenceRecord),
		groups:   make(map[string]map[string]struct{}),
		contacts: make(map[string]map[string]struct{}),
	}
}

// FailNextUpserts makes the next n UpsertPresence calls return err.
func (m *MemoryStore) FailNextUpserts(n int, err error) {
	m.mu.Lock()
	m.failNext = n
	m.failErr = err
	m.mu.Unlock()
}

// UpsertCalls returns how many UpsertPresence calls were made.
func (m *MemoryStore) UpsertCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.upserts
}

// UpsertPresence implements PresenceStore.
func (m *MemoryStore) UpsertPresence(ctx context.Context, records []models.PresenceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.closed {
		return ErrStoreClosed
	}
	if m.failNext > 0 {
		m.failNext--
		return m.failErr
	}
	for _, r := range records {
		if cur, ok := m.presence[r.UserID]; ok && cur.LastSeen.After(r.LastSeen) {
			continue
		}
		m.presence[r.UserID] = r
	}
	return nil
}

// LoadPresence implements Store.
func (m *MemoryStore) LoadPresence(_ context.Context, userID string) (models.PresenceRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.presence[userID]
	return r, ok, nil
}

// GroupMemberCount implements Directory.
func (m *MemoryStore) GroupMemberCount(_ context.Context, groupID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.groups[groupID]), nil
}

// Contacts implements Directory.
func (m *MemoryStore) Contacts(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.contacts[userID]), nil
}

// UserGroups implements Directory.
func (m *MemoryStore) UserGroups(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for g, members := range m.groups {
		if _, ok := members[userID]; ok {
			out = append(out, g)
		}
	}
	sort.Strings(out)
	return out, nil
}

// AddGroupMember implements Store.
func (m *MemoryStore) AddGroupMember(_ context.Context, groupID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	addTo(m.groups, groupID, userID)
	return nil
}

// AddContact implements Store.
func (m *MemoryStore) AddContact(_ context.Context, userID, contactID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	addTo(m.contacts, userID, contactID)
	addTo(m.contacts, contactID, userID)
	return nil
}

// Ping implements Store.
func (m *MemoryStore) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func addTo(set map[string]map[string]struct{}, key, member string) {
	s, ok := set[key]
	if !ok {
		s = make(map[string]struct{})
		set[key] = s
	}
	s[member] = struct{}{}
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
