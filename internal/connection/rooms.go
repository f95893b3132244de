// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package connection

import (
	"errors"
	"fmt"
)

// ErrUnknownSocket is returned when a room operation names an unregistered socket.
var ErrUnknownSocket = errors.New("unknown socket")

// GroupRoom returns the room name for a group chat.
func GroupRoom(groupID string) string {
	return "group:" + groupID
}

// Join adds a registered socket to room. Joining twice is a no-op.
func (m *Manager) Join(socketID, room string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bySocket[socketID]; !ok {
		return fmt.Errorf("join %s: %w", room, ErrUnknownSocket)
	}
	members := m.rooms[room]
	if members == nil {
		members = make(map[string]struct{})
		m.rooms[room] = members
	}
	members[socketID] = struct{}{}

	joined := m.socketRooms[socketID]
	if joined == nil {
		joined = make(map[string]struct{})
		m.socketRooms[socketID] = joined
	}
	joined[room] = struct{}{}
	return nil
}

// Leave removes socketID from room. It reports whether the socket was a member.
func (m *Manager) Leave(socketID, room string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(socketID, room)
}

func (m *Manager) leaveLocked(socketID, room string) bool {
	members, ok := m.rooms[room]
	if !ok {
		return false
	}
	if _, ok := members[socketID]; !ok {
		return false
	}
	delete(members, socketID)
	if len(members) == 0 {
		delete(m.rooms, room)
	}
	if joined := m.socketRooms[socketID]; joined != nil {
		delete(joined, room)
	}
	return true
}

// RoomSockets returns the sockets in room, sorted.
func (m *Manager) RoomSockets(room string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.rooms[room])
}

// RoomSocketsExcept returns the sockets in room not owned by userID.
func (m *Manager) RoomSocketsExcept(room, userID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.rooms[room]))
	for _, s := range sortedKeys(m.rooms[room]) {
		if m.bySocket[s] != userID {
			out = append(out, s)
		}
	}
	return out
}

// SocketRooms returns the rooms socketID has joined.
func (m *Manager) SocketRooms(socketID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.socketRooms[socketID])
}
