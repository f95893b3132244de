// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package gateway

import (
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/chatrelay/internal/auth"
	"github.com/tomtom215/chatrelay/internal/connection"
	"github.com/tomtom215/chatrelay/internal/logging"
	"github.com/tomtom215/chatrelay/internal/metrics"
	"github.com/tomtom215/chatrelay/internal/models"
	"github.com/tomtom215/chatrelay/internal/websocket"
)

// handleWS authenticates the upgrade request, upgrades it and runs the
// connect sequence.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID, err := s.deps.Verifier.Verify(r.Context(), auth.TokenFromRequest(r))
	if err != nil {
		metrics.ConnectionRejections.WithLabelValues("auth").Inc()
		logging.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Rejected websocket upgrade")
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	c, err := s.hub.Upgrade(w, r, userID)
	if err != nil {
		logging.Debug().Err(err).Str("user_id", userID).Msg("Websocket upgrade failed")
		return
	}

	// Pumps start even on rejection so the error frame and close frame
	// reach the client.
	_ = s.HandleConnect(c)
	c.Start()
}

// HandleConnect registers a new socket: connection limit check, group
// rooms, typing throttle and presence. On a connection limit the client
// receives an error event and is closed.
func (s *Server) HandleConnect(c *websocket.Client) error {
	ctx := c.Context()
	userID := c.UserID()

	if err := s.deps.Conns.Register(c.ID(), userID); err != nil {
		var le *connection.LimitError
		details := map[string]interface{}{}
		if errors.As(err, &le) {
			metrics.ConnectionRejections.WithLabelValues("limit").Inc()
			details["limit"] = le.Limit
		}
		logging.Ctx(ctx).Info().Err(err).Msg("Rejected connection")
		_ = c.Emit(models.EventError, &models.ErrorPayload{
			Code:    models.ErrCodeConnectionLimit,
			Message: "Too many connections",
			Details: details,
		})
		c.Close(websocket.ClosePolicyViolation, "connection limit exceeded")
		return err
	}

	s.typingMu.Lock()
	s.typing[c.ID()] = rate.NewLimiter(rate.Limit(s.cfg.TypingRate), s.cfg.TypingBurst)
	s.typingMu.Unlock()

	groups, err := s.deps.Store.UserGroups(ctx, userID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Group lookup failed; socket joins no rooms")
	}
	for _, g := range groups {
		if err := s.deps.Conns.Join(c.ID(), connection.GroupRoom(g)); err != nil {
			logging.Ctx(ctx).Debug().Err(err).Str("group_id", g).Msg("Join room failed")
		}
	}

	s.presence.Connected(ctx, userID)
	logging.Ctx(ctx).Debug().Int("rooms", len(groups)).Msg("Socket connected")
	return nil
}

// HandleDisconnect releases a socket and tells the user's remaining local
// sockets. Presence only records the time; the sweep decides when the user
// goes offline.
func (s *Server) HandleDisconnect(c *websocket.Client) {
	s.typingMu.Lock()
	delete(s.typing, c.ID())
	s.typingMu.Unlock()

	userID, remaining, ok := s.deps.Conns.Release(c.ID())
	if !ok {
		return
	}
	s.presence.Disconnected(c.Context(), userID)
	if remaining > 0 {
		s.router.BroadcastToUser(userID, models.EventSocketDisconnected, &models.SocketDisconnected{
			UserID:           userID,
			SocketID:         c.ID(),
			RemainingSockets: remaining,
			At:               time.Now().UTC(),
		})
	}
	logging.Ctx(c.Context()).Debug().Int("remaining_sockets", remaining).Msg("Socket disconnected")
}

func (s *Server) allowTyping(socketID string) bool {
	s.typingMu.Lock()
	l, ok := s.typing[socketID]
	s.typingMu.Unlock()
	return ok && l.Allow()
}
