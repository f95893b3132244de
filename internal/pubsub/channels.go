// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package pubsub

import (
	"regexp"
	"strings"
)

// DefaultPrefix is the first segment of every channel name.
const DefaultPrefix = "chat"

// Channel kinds.
const (
	KindUser     = "user"
	KindGroup    = "group"
	KindAck      = "ack"
	KindPresence = "presence"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidID reports whether id can be used as a channel segment.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Channels builds dot-separated channel names and the single-segment
// wildcard patterns that match them, for example chat.user.alice and
// chat.user.*. The same syntax is native to NATS subjects and Redis
// PSUBSCRIBE globs.
type Channels struct {
	prefix string
}

// NewChannels creates a namer. An empty prefix uses DefaultPrefix.
func NewChannels(prefix string) Channels {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Channels{prefix: prefix}
}

// User is the channel carrying messages and typing hints for userID.
func (c Channels) User(userID string) string { return c.prefix + "." + KindUser + "." + userID }

// Group is the channel carrying messages and typing hints for groupID.
func (c Channels) Group(groupID string) string { return c.prefix + "." + KindGroup + "." + groupID }

// Ack is the channel carrying status acknowledgments for the sender userID.
func (c Channels) Ack(userID string) string { return c.prefix + "." + KindAck + "." + userID }

// Presence is the single global presence channel.
func (c Channels) Presence() string { return c.prefix + "." + KindPresence }

// UserPattern matches every user channel.
func (c Channels) UserPattern() string { return c.User("*") }

// GroupPattern matches every group channel.
func (c Channels) GroupPattern() string { return c.Group("*") }

// AckPattern matches every ack channel.
func (c Channels) AckPattern() string { return c.Ack("*") }

// Parse splits a concrete channel into its kind and id. The presence
// channel has an empty id.
func (c Channels) Parse(channel string) (kind, id string, ok bool) {
	rest, found := strings.CutPrefix(channel, c.prefix+".")
	if !found {
		return "", "", false
	}
	if rest == KindPresence {
		return KindPresence, "", true
	}
	kind, id, found = strings.Cut(rest, ".")
	if !found || !ValidID(id) {
		return "", "", false
	}
	switch kind {
	case KindUser, KindGroup, KindAck:
		return kind, id, true
	}
	return "", "", false
}

// Match reports whether channel matches pattern, where a "*" segment
// matches exactly one segment.
func Match(pattern, channel string) bool {
	ps := strings.Split(pattern, ".")
	cs := strings.Split(channel, ".")
	if len(ps) != len(cs) {
		return false
	}
	for i := range ps {
		if ps[i] != "*" && ps[i] != cs[i] {
			return false
		}
	}
	return true
}
