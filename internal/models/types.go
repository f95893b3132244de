// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package models

import (
	"fmt"
)

// ConversationType distinguishes one-to-one chats from group chats.
// The zero value is invalid and never appears on the wire.
type ConversationType uint8

const (
	ConversationDirect ConversationType = iota + 1
	ConversationGroup
)

var conversationNames = map[ConversationType]string{
	ConversationDirect: "direct",
	ConversationGroup:  "group",
}

func (c ConversationType) String() string {
	if s, ok := conversationNames[c]; ok {
		return s
	}
	return fmt.Sprintf("ConversationType(%d)", uint8(c))
}

// Valid reports whether c is one of the defined conversation types.
func (c ConversationType) Valid() bool {
	_, ok := conversationNames[c]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (c ConversationType) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid conversation type %d", uint8(c))
	}
	return []byte(conversationNames[c]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ConversationType) UnmarshalText(b []byte) error {
	for k, v := range conversationNames {
		if v == string(b) {
			*c = k
			return nil
		}
	}
	return fmt.Errorf("unknown conversation type %q", string(b))
}

// MessageStatus is the delivery state of a message. Statuses only move
// forward: SENT, then DELIVERED, then READ.
type MessageStatus uint8

const (
	StatusSent MessageStatus = iota + 1
	StatusDelivered
	StatusRead
)

var statusNames = map[MessageStatus]string{
	StatusSent:      "SENT",
	StatusDelivered: "DELIVERED",
	StatusRead:      "READ",
}

func (s MessageStatus) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("MessageStatus(%d)", uint8(s))
}

// Valid reports whether s is one of the defined statuses.
func (s MessageStatus) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Advances reports whether moving from s to next is a forward transition.
func (s MessageStatus) Advances(next MessageStatus) bool {
	return next.Valid() && next > s
}

// MarshalText implements encoding.TextMarshaler.
func (s MessageStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid message status %d", uint8(s))
	}
	return []byte(statusNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *MessageStatus) UnmarshalText(b []byte) error {
	for k, v := range statusNames {
		if v == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown message status %q", string(b))
}

// PresenceStatus is a user's availability. The zero value is offline.
type PresenceStatus uint8

const (
	PresenceOffline PresenceStatus = iota
	PresenceOnline
	PresenceAway
)

var presenceNames = map[PresenceStatus]string{
	PresenceOffline: "offline",
	PresenceOnline:  "online",
	PresenceAway:    "away",
}

func (p PresenceStatus) String() string {
	if n, ok := presenceNames[p]; ok {
		return n
	}
	return fmt.Sprintf("PresenceStatus(%d)", uint8(p))
}

// Valid reports whether p is one of the defined presence states.
func (p PresenceStatus) Valid() bool {
	_, ok := presenceNames[p]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (p PresenceStatus) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid presence status %d", uint8(p))
	}
	return []byte(presenceNames[p]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PresenceStatus) UnmarshalText(b []byte) error {
	for k, v := range presenceNames {
		if v == string(b) {
			*p = k
			return nil
		}
	}
	return fmt.Errorf("unknown presence status %q", string(b))
}

// ParsePresenceStatus converts a stored status string back into a PresenceStatus.
func ParsePresenceStatus(s string) (PresenceStatus, error) {
	var p PresenceStatus
	err := p.UnmarshalText([]byte(s))
	return p, err
}
