// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package router

import (
	"context"

	"github.com/tomtom215/chatrelay/internal/connection"
	"github.com/tomtom215/chatrelay/internal/logging"
	"github.com/tomtom215/chatrelay/internal/models"
)

// handleUser receives envelopes from chat.user.<id>.
func (r *Router) handleUser(ctx context.Context, channel string, env *models.Envelope) {
	_, userID, ok := r.deps.Channels.Parse(channel)
	if !ok {
		return
	}
	switch env.Type {
	case models.EnvelopeMessage:
		if env.Message == nil {
			return
		}
		r.DeliverDirect(ctx, env)
	case models.EnvelopeTyping:
		if env.Typing == nil {
			return
		}
		r.BroadcastToUser(userID, models.EventUserTyping, env.Typing)
	default:
		logging.Debug().Str("channel", channel).Str("type", string(env.Type)).Msg("Ignoring envelope on user channel")
	}
}

// handleGroup receives envelopes from chat.group.<id>.
func (r *Router) handleGroup(ctx context.Context, channel string, env *models.Envelope) {
	_, groupID, ok := r.deps.Channels.Parse(channel)
	if !ok {
		return
	}
	switch env.Type {
	case models.EnvelopeMessage:
		if env.Message == nil {
			return
		}
		env.ChatID = groupID
		r.DeliverGroup(ctx, env)
	case models.EnvelopeTyping:
		if env.Typing == nil {
			return
		}
		sockets := r.deps.Conns.RoomSocketsExcept(connection.GroupRoom(groupID), env.Typing.UserID)
		r.broadcast(sockets, models.EventUserTyping, env.Typing)
	default:
		logging.Debug().Str("channel", channel).Str("type", string(env.Type)).Msg("Ignoring envelope on group channel")
	}
}

// handleAck receives status updates addressed to the sender in
// chat.ack.<senderID> and emits message_status to the sender's sockets.
func (r *Router) handleAck(ctx context.Context, channel string, env *models.Envelope) {
	_, senderID, ok := r.deps.Channels.Parse(channel)
	if !ok {
		return
	}
	// Only the instances holding the sender's sockets act on acks.
	if r.deps.Conns.SocketCount(senderID) == 0 {
		return
	}

	switch env.Type {
	case models.EnvelopeAck:
		if env.Ack == nil {
			return
		}
		r.BroadcastToUser(senderID, models.EventMessageStatus, env.Ack)
	case models.EnvelopeReadReceipt:
		if env.Receipt == nil {
			return
		}
		r.inflight.Add(1)
		go func() {
			defer r.inflight.Done()
			r.aggregateRead(ctx, senderID, env.Receipt)
		}()
	}
}

// aggregateRead records a group read receipt and emits one aggregate READ
// status to the sender once every other member has read the message.
func (r *Router) aggregateRead(ctx context.Context, senderID string, rc *models.ReadReceipt) {
	members, err := r.deps.Directory.GroupMemberCount(ctx, rc.ChatID)
	if err != nil {
		logging.Warn().Err(err).Str("group_id", rc.ChatID).Msg("Group member lookup failed")
		return
	}

	complete, readers := r.reads.Record(rc.MessageID, senderID, rc.ReaderID, members)
	if !complete {
		logging.Trace().
			Str("message_id", rc.MessageID).
			Int("readers", readers).
			Int("members", members).
			Msg("Recorded group read")
		return
	}

	r.BroadcastToUser(senderID, models.EventMessageStatus, &models.Ack{
		MessageID:        rc.MessageID,
		ChatID:           rc.ChatID,
		ConversationType: models.ConversationGroup,
		Status:           models.StatusRead,
		Aggregate:        true,
		At:               r.now().UTC(),
	})
}

// handlePresence relays presence transitions to local sockets of the
// user's contacts.
func (r *Router) handlePresence(ctx context.Context, _ string, env *models.Envelope) {
	if env.Type != models.EnvelopePresence || env.Presence == nil {
		return
	}
	if r.deps.OnPresence != nil {
		r.deps.OnPresence(ctx, env.Origin, env.Presence)
	}
	if r.deps.Conns.ConnectedUserCount() == 0 {
		return
	}

	update := env.Presence
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		contacts, err := r.deps.Directory.Contacts(ctx, update.UserID)
		if err != nil {
			logging.Warn().Err(err).Str("user_id", update.UserID).Msg("Contact lookup failed")
			return
		}
		for _, contact := range contacts {
			r.BroadcastToUser(contact, models.EventPresenceUpdates, update)
		}
	}()
}
