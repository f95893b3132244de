// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

// Package services adapts blocking or Start/Shutdown components to
// suture.Service so they can run in the supervisor tree.
package services
