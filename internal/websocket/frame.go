// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package websocket

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Frame is one socket message in either direction.
//
// An inbound frame carrying Ack expects an "ack" frame back with the same
// id. Outbound frames carrying Ack are answered by the client the same way.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   *uint64         `json:"ack,omitempty"`
}

// outFrame is Frame with an unencoded payload.
type outFrame struct {
	Event string  `json:"event"`
	Data  any     `json:"data,omitempty"`
	Ack   *uint64 `json:"ack,omitempty"`
}

// AckReply is the default answer to an inbound frame that requested an ack.
type AckReply struct {
	OK bool `json:"ok"`
}

func encodeFrame(event string, payload any, ack *uint64) ([]byte, error) {
	b, err := json.Marshal(outFrame{Event: event, Data: payload, Ack: ack})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", event, err)
	}
	return b, nil
}

func decodeFrame(b []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if f.Event == "" {
		return nil, fmt.Errorf("decode frame: missing event")
	}
	return &f, nil
}
