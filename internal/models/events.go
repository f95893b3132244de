// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package models

// Socket event names.
const (
	// Inbound
	EventSendMessage   = "send_message"
	EventMessageStatus = "message_status"
	EventUserTyping    = "user_typing"
	EventJoinGroup     = "join_group"
	EventLeaveGroup    = "leave_group"

	// Outbound
	EventReceiveMessage  = "receive_message"
	EventPresenceUpdates = "presence_updates"
	EventError           = "error"

	// EventSocketDisconnected tells a user's other sockets that one of
	// their devices went away.
	EventSocketDisconnected = "socket_disconnected"

	// EventAck answers a frame that carried an ack id.
	EventAck = "ack"
)

// Error codes sent to clients in error events and negative acks.
const (
	ErrCodeRateLimited     = "RATE_LIMIT_EXCEEDED"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeUnavailable     = "SERVICE_UNAVAILABLE"
	ErrCodeConnectionLimit = "CONNECTION_LIMIT_EXCEEDED"
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeUnknownEvent    = "UNKNOWN_EVENT"
)

// ErrorPayload is the body of an error event or a failed ack.
type ErrorPayload struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SendMessageRequest is the payload of send_message.
type SendMessageRequest struct {
	ChatID           string           `json:"chatId" validate:"required,chatid"`
	ConversationType ConversationType `json:"conversationType" validate:"required,convtype"`
	ReceiverID       string           `json:"receiverId,omitempty" validate:"required_if=ConversationType 1,chatid"`
	Content          string           `json:"content" validate:"required,max=4096"`
	ClientID         string           `json:"clientId,omitempty" validate:"omitempty,max=64"`
}

// SendMessageResponse is the ack payload for an accepted send_message.
type SendMessageResponse struct {
	OK        bool               `json:"ok"`
	Message   *Message           `json:"message,omitempty"`
	ClientID  string             `json:"clientId,omitempty"`
	Error     *ErrorPayload      `json:"error,omitempty"`
	RateLimit *RateLimitMetadata `json:"rateLimit,omitempty"`
}

// RateLimitMetadata mirrors the rate-limit headers for socket transports.
type RateLimitMetadata struct {
	Limit      int   `json:"limit"`
	Remaining  int   `json:"remaining"`
	Reset      int64 `json:"reset"`
	RetryAfter int64 `json:"retry-after"`
}

// MessageStatusRequest is the payload of an inbound message_status event.
type MessageStatusRequest struct {
	MessageID        string           `json:"messageId" validate:"required,max=64"`
	ChatID           string           `json:"chatId" validate:"required,chatid"`
	ConversationType ConversationType `json:"conversationType" validate:"required,convtype"`
	SenderID         string           `json:"senderId" validate:"required,chatid"`
	Status           MessageStatus    `json:"status" validate:"required,msgstatus"`
}

// TypingRequest is the payload of an inbound user_typing event.
type TypingRequest struct {
	ChatID           string           `json:"chatId" validate:"required,chatid"`
	ConversationType ConversationType `json:"conversationType" validate:"required,convtype"`
	ReceiverID       string           `json:"receiverId,omitempty" validate:"required_if=ConversationType 1,chatid"`
	IsTyping         bool             `json:"isTyping"`
}

// GroupRequest is the payload of join_group and leave_group.
type GroupRequest struct {
	GroupID string `json:"groupId" validate:"required,chatid"`
}
