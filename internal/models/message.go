// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package models

import (
	"time"
)

// Message is a chat message as carried on the bus and delivered to clients.
// A published message is never mutated; status changes travel as Acks.
type Message struct {
	ID         string        `json:"id"`
	SenderID   string        `json:"senderId"`
	ReceiverID string        `json:"receiverId,omitempty"`
	Content    string        `json:"content"`
	Status     MessageStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// EnvelopeType identifies the payload carried by an Envelope.
type EnvelopeType string

const (
	EnvelopeMessage     EnvelopeType = "message"
	EnvelopeAck         EnvelopeType = "ack"
	EnvelopeTyping      EnvelopeType = "typing"
	EnvelopePresence    EnvelopeType = "presence"
	EnvelopeReadReceipt EnvelopeType = "read_receipt"
)

// Envelope is the unit published on the bus. Exactly one of the payload
// pointers is set, matching Type.
type Envelope struct {
	Type             EnvelopeType     `json:"type"`
	Origin           string           `json:"origin,omitempty"`
	ChatID           string           `json:"chatId,omitempty"`
	ConversationType ConversationType `json:"conversationType,omitempty"`
	Message          *Message         `json:"message,omitempty"`
	Ack              *Ack             `json:"ack,omitempty"`
	Typing           *Typing          `json:"typing,omitempty"`
	Presence         *PresenceUpdate  `json:"presence,omitempty"`
	Receipt          *ReadReceipt     `json:"receipt,omitempty"`
}

// Ack advances the status of a message for its sender. UserID is the
// recipient that acknowledged; it is empty for aggregate group acks.
type Ack struct {
	MessageID        string           `json:"messageId"`
	ChatID           string           `json:"chatId"`
	ConversationType ConversationType `json:"conversationType"`
	Status           MessageStatus    `json:"status"`
	UserID           string           `json:"userId,omitempty"`
	Aggregate        bool             `json:"aggregate,omitempty"`
	At               time.Time        `json:"at"`
}

// ReadReceipt records that ReaderID has read a group message sent by SenderID.
type ReadReceipt struct {
	MessageID string    `json:"messageId"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	ReaderID  string    `json:"readerId"`
	At        time.Time `json:"at"`
}

// Typing is a best-effort typing indicator.
type Typing struct {
	ChatID           string           `json:"chatId"`
	ConversationType ConversationType `json:"conversationType"`
	UserID           string           `json:"userId"`
	IsTyping         bool             `json:"isTyping"`
}

// SocketDisconnected is the best-effort hint sent to a user's remaining
// local sockets when one of them closes.
type SocketDisconnected struct {
	UserID           string    `json:"userId"`
	SocketID         string    `json:"socketId"`
	RemainingSockets int       `json:"remainingSockets"`
	At               time.Time `json:"at"`
}

// PresenceUpdate announces a status transition for UserID.
type PresenceUpdate struct {
	UserID   string         `json:"userId"`
	Status   PresenceStatus `json:"status"`
	LastSeen time.Time      `json:"lastSeen"`
}

// PresenceRecord is the persisted presence row, upserted by user id.
type PresenceRecord struct {
	UserID   string
	Status   PresenceStatus
	LastSeen time.Time
}
