// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

// Package connection tracks which sockets belong to which users on this
// instance and which local rooms each socket has joined.
package connection

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DefaultMaxConnectionsPerUser is the per-user socket cap when none is configured.
const DefaultMaxConnectionsPerUser = 5

// ErrConnectionLimitExceeded is returned by Register when the user already
// holds the maximum number of sockets.
var ErrConnectionLimitExceeded = errors.New("connection limit exceeded")

// ErrDuplicateSocket is returned by Register for a socket id that is already registered.
var ErrDuplicateSocket = errors.New("socket already registered")

// LimitError carries the details of a rejected registration.
// It matches ErrConnectionLimitExceeded with errors.Is.
type LimitError struct {
	UserID string
	Limit  int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("user %s already holds %d connections: %v", e.UserID, e.Limit, ErrConnectionLimitExceeded)
}

// Is reports whether target is ErrConnectionLimitExceeded.
func (e *LimitError) Is(target error) bool {
	return target == ErrConnectionLimitExceeded
}

// Manager maps users to sockets in both directions. Every socket belongs to
// exactly one user; a user entry exists only while it owns at least one socket.
// All methods are safe for concurrent use.
type Manager struct {
	mu sync.RWMutex

	maxPerUser int
	byUser     map[string]map[string]struct{}
	bySocket   map[string]string

	rooms       map[string]map[string]struct{}
	socketRooms map[string]map[string]struct{}
}

// NewManager creates a Manager allowing maxPerUser sockets per user.
func NewManager(maxPerUser int) *Manager {
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxConnectionsPerUser
	}
	return &Manager{
		maxPerUser:  maxPerUser,
		byUser:      make(map[string]map[string]struct{}),
		bySocket:    make(map[string]string),
		rooms:       make(map[string]map[string]struct{}),
		socketRooms: make(map[string]map[string]struct{}),
	}
}

// MaxPerUser returns the configured per-user cap.
func (m *Manager) MaxPerUser() int {
	return m.maxPerUser
}

// Register records socketID as owned by userID.
func (m *Manager) Register(socketID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bySocket[socketID]; exists {
		return fmt.Errorf("register %s: %w", socketID, ErrDuplicateSocket)
	}
	sockets := m.byUser[userID]
	if len(sockets) >= m.maxPerUser {
		return &LimitError{UserID: userID, Limit: m.maxPerUser}
	}
	if sockets == nil {
		sockets = make(map[string]struct{}, 1)
		m.byUser[userID] = sockets
	}
	sockets[socketID] = struct{}{}
	m.bySocket[socketID] = userID
	return nil
}

// Sockets returns the user's socket ids in sorted order, or nil.
func (m *Manager) Sockets(userID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.byUser[userID])
}

// SocketCount returns how many sockets the user holds on this instance.
func (m *Manager) SocketCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser[userID])
}

// Owner returns the user owning socketID.
func (m *Manager) Owner(socketID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	userID, ok := m.bySocket[socketID]
	return userID, ok
}

// Release forgets socketID, drops it from every room and removes the user
// entry once its last socket is gone. It returns the former owner and the
// number of sockets the owner still holds.
func (m *Manager) Release(socketID string) (userID string, remaining int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	userID, ok = m.bySocket[socketID]
	if !ok {
		return "", 0, false
	}
	delete(m.bySocket, socketID)

	sockets := m.byUser[userID]
	delete(sockets, socketID)
	remaining = len(sockets)
	if remaining == 0 {
		delete(m.byUser, userID)
	}

	for room := range m.socketRooms[socketID] {
		m.leaveLocked(socketID, room)
	}
	delete(m.socketRooms, socketID)
	return userID, remaining, true
}

// ConnectedUserCount returns the number of users with at least one socket.
func (m *Manager) ConnectedUserCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser)
}

// SocketTotal returns the number of registered sockets.
func (m *Manager) SocketTotal() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bySocket)
}

// Users returns every connected user id in sorted order.
func (m *Manager) Users() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byUser))
	for u := range m.byUser {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
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
