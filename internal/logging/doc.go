// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

// Package logging provides the process-wide zerolog logger for Chatrelay.
//
// Initialize once at startup and log through the package-level helpers:
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("component", "gateway").Msg("Listening")
//
// Per-socket code logs through Ctx so the socket id, user id and
// correlation id stored in the context are attached to every line:
//
//	ctx = logging.ContextWithSocket(ctx, socketID, userID)
//	logging.Ctx(ctx).Warn().Err(err).Msg("Rejected event")
//
// NewSlogLogger adapts the logger to log/slog for sutureslog.
//
// Always terminate log chains with Msg or Send; an unterminated event is
// never written.
package logging
