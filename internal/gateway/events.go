// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package gateway

import (
	"context"
	"slices"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/chatrelay/internal/connection"
	"github.com/tomtom215/chatrelay/internal/logging"
	"github.com/tomtom215/chatrelay/internal/models"
	"github.com/tomtom215/chatrelay/internal/ratelimit"
	"github.com/tomtom215/chatrelay/internal/validation"
	"github.com/tomtom215/chatrelay/internal/websocket"
)

// EventHeartbeat keeps a user online between messages.
const EventHeartbeat = "heartbeat"

// HandleEvent dispatches one inbound socket event. Failures are reported
// to the originating socket as an error event and in the ack reply; the
// connection stays open.
func (s *Server) HandleEvent(ctx context.Context, c *websocket.Client, event string, data json.RawMessage) any {
	switch event {
	case models.EventSendMessage:
		return s.onSendMessage(ctx, c, data)
	case models.EventMessageStatus:
		return s.onMessageStatus(ctx, c, data)
	case models.EventUserTyping:
		return s.onTyping(ctx, c, data)
	case models.EventJoinGroup, models.EventLeaveGroup:
		return s.onGroup(ctx, c, event, data)
	case EventHeartbeat:
		s.presence.Heartbeat(ctx, c.UserID())
		return nil
	default:
		return s.fail(c, &models.ErrorPayload{
			Code:    models.ErrCodeUnknownEvent,
			Message: "Unknown event: " + event,
		})
	}
}

// errorReply is the ack payload for a failed event.
type errorReply struct {
	OK    bool                 `json:"ok"`
	Error *models.ErrorPayload `json:"error"`
}

func (s *Server) fail(c *websocket.Client, payload *models.ErrorPayload) *errorReply {
	_ = c.Emit(models.EventError, payload)
	return &errorReply{OK: false, Error: payload}
}

// decode unmarshals and validates an event payload.
func decode(data json.RawMessage, dst interface{}) *models.ErrorPayload {
	if len(data) == 0 {
		return &models.ErrorPayload{Code: models.ErrCodeValidation, Message: "Missing event data"}
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return &models.ErrorPayload{Code: models.ErrCodeValidation, Message: "Malformed event data"}
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		return verr.ToPayload()
	}
	return nil
}

func (s *Server) onSendMessage(ctx context.Context, c *websocket.Client, data json.RawMessage) any {
	res := s.deps.MessageLimiter.Allow(c.UserID(), time.Now())
	meta := ratelimit.Metadata(res)
	if !res.Allowed {
		payload := &models.ErrorPayload{
			Code:    models.ErrCodeRateLimited,
			Message: "Too many messages",
			Details: map[string]interface{}{"retry-after": res.RetryAfterMs()},
		}
		_ = c.Emit(models.EventError, payload)
		return &models.SendMessageResponse{OK: false, Error: payload, RateLimit: meta}
	}

	var req models.SendMessageRequest
	if payload := decode(data, &req); payload != nil {
		_ = c.Emit(models.EventError, payload)
		return &models.SendMessageResponse{OK: false, Error: payload, RateLimit: meta}
	}

	if req.ConversationType == models.ConversationGroup {
		if payload := s.checkMember(ctx, c.UserID(), req.ChatID); payload != nil {
			_ = c.Emit(models.EventError, payload)
			return &models.SendMessageResponse{OK: false, Error: payload, ClientID: req.ClientID, RateLimit: meta}
		}
	}

	msg, err := s.router.Send(ctx, c.UserID(), &req)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("chat_id", req.ChatID).Msg("Publish failed")
		payload := &models.ErrorPayload{Code: models.ErrCodeUnavailable, Message: "Message could not be sent"}
		_ = c.Emit(models.EventError, payload)
		return &models.SendMessageResponse{OK: false, Error: payload, ClientID: req.ClientID, RateLimit: meta}
	}

	s.presence.Heartbeat(ctx, c.UserID())
	return &models.SendMessageResponse{OK: true, Message: msg, ClientID: req.ClientID, RateLimit: meta}
}

func (s *Server) onMessageStatus(ctx context.Context, c *websocket.Client, data json.RawMessage) any {
	var req models.MessageStatusRequest
	if payload := decode(data, &req); payload != nil {
		return s.fail(c, payload)
	}
	if err := s.router.MarkStatus(ctx, c.UserID(), &req); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("message_id", req.MessageID).Msg("Status publish failed")
		return s.fail(c, &models.ErrorPayload{Code: models.ErrCodeUnavailable, Message: "Status could not be sent"})
	}
	return nil
}

// onTyping is best effort: throttled events are dropped without an error.
func (s *Server) onTyping(ctx context.Context, c *websocket.Client, data json.RawMessage) any {
	if !s.allowTyping(c.ID()) {
		return nil
	}
	var req models.TypingRequest
	if payload := decode(data, &req); payload != nil {
		return s.fail(c, payload)
	}
	if req.ConversationType == models.ConversationGroup {
		if payload := s.checkMember(ctx, c.UserID(), req.ChatID); payload != nil {
			return s.fail(c, payload)
		}
	}
	if err := s.router.Typing(ctx, c.UserID(), &req); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("Typing publish failed")
	}
	return nil
}

func (s *Server) onGroup(ctx context.Context, c *websocket.Client, event string, data json.RawMessage) any {
	var req models.GroupRequest
	if payload := decode(data, &req); payload != nil {
		return s.fail(c, payload)
	}
	room := connection.GroupRoom(req.GroupID)

	if event == models.EventLeaveGroup {
		s.deps.Conns.Leave(c.ID(), room)
		return nil
	}

	if payload := s.checkMember(ctx, c.UserID(), req.GroupID); payload != nil {
		return s.fail(c, payload)
	}
	if err := s.deps.Conns.Join(c.ID(), room); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("group_id", req.GroupID).Msg("Join room failed")
		return s.fail(c, &models.ErrorPayload{Code: models.ErrCodeInternal, Message: "Could not join group"})
	}
	return nil
}

// checkMember returns a failure payload unless userID belongs to groupID.
func (s *Server) checkMember(ctx context.Context, userID, groupID string) *models.ErrorPayload {
	groups, err := s.deps.Store.UserGroups(ctx, userID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Group lookup failed")
		return &models.ErrorPayload{Code: models.ErrCodeUnavailable, Message: "Group membership could not be checked"}
	}
	if !slices.Contains(groups, groupID) {
		return &models.ErrorPayload{
			Code:    models.ErrCodeValidation,
			Message: "Not a member of this group",
			Details: map[string]interface{}{"groupId": groupID},
		}
	}
	return nil
}
