// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

// Package validation validates inbound socket payloads using
// go-playground/validator v10.
//
// A singleton validator caches struct metadata and registers the custom
// tags used by the models package:
//
//	chatid     1-128 characters from [A-Za-z0-9_-]; empty passes
//	convtype   a defined models.ConversationType
//	msgstatus  a defined models.MessageStatus
//
// Field names in errors are the JSON names clients send. ToPayload
// converts failures into a VALIDATION_ERROR models.ErrorPayload.
package validation
