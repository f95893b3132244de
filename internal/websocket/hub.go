// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/chatrelay/internal/logging"
)

// Transport defaults.
const (
	DefaultWriteWait      = 10 * time.Second
	DefaultPongWait       = 60 * time.Second
	DefaultMaxMessageSize = 64 * 1024
	DefaultSendBuffer     = 256
)

// Close codes used by the relay.
const (
	CloseNormal          = websocket.CloseNormalClosure
	CloseGoingAway       = websocket.CloseGoingAway
	ClosePolicyViolation = websocket.ClosePolicyViolation
)

var (
	// ErrUnknownSocket is returned when emitting to a socket this hub does
	// not hold.
	ErrUnknownSocket = errors.New("unknown socket")

	// ErrHubClosed is returned by Upgrade after CloseAll.
	ErrHubClosed = errors.New("websocket hub closed")
)

// Config holds transport tuning.
type Config struct {
	WriteWait      time.Duration `koanf:"write_wait"`
	PongWait       time.Duration `koanf:"pong_wait"`
	PingPeriod     time.Duration `koanf:"ping_period"`
	MaxMessageSize int64         `koanf:"max_message_size"`
	SendBuffer     int           `koanf:"send_buffer"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
}

// DefaultConfig returns the production defaults. PingPeriod is nine
// tenths of PongWait.
func DefaultConfig() Config {
	return Config{
		WriteWait:      DefaultWriteWait,
		PongWait:       DefaultPongWait,
		PingPeriod:     (DefaultPongWait * 9) / 10,
		MaxMessageSize: DefaultMaxMessageSize,
		SendBuffer:     DefaultSendBuffer,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = (c.PongWait * 9) / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	return c
}

// Handler receives inbound traffic from every client of a hub.
type Handler interface {
	// HandleEvent processes one inbound event. The returned value is sent
	// back as the ack payload when the frame requested one; nil means
	// {"ok":true}.
	HandleEvent(ctx context.Context, c *Client, event string, data json.RawMessage) any

	// HandleDisconnect is called once after the client's connection ends.
	HandleDisconnect(c *Client)
}

// Hub owns the upgrader and the set of live clients on this instance. It
// implements the router's Emitter by socket id.
type Hub struct {
	cfg      Config
	handler  Handler
	upgrader websocket.Upgrader

	seq     atomic.Uint64
	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
}

// NewHub creates a hub dispatching to handler.
func NewHub(cfg Config, handler Handler) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		cfg:     cfg,
		handler: handler,
		clients: make(map[string]*Client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Upgrade upgrades the request and registers a client for userID. The
// client's pumps are not running until Start is called, so the caller can
// finish its own bookkeeping first.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, userID string) (*Client, error) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return nil, ErrHubClosed
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}

	c := newClient(h, conn, userID, h.seq.Add(1), logging.CorrelationIDFromContext(r.Context()))

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(h.cfg.WriteWait))
		_ = conn.Close()
		return nil, ErrHubClosed
	}
	h.clients[c.id] = c
	h.mu.Unlock()

	logging.Ctx(c.ctx).Debug().Int("total_clients", h.Count()).Msg("websocket client connected")
	return c, nil
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	total := len(h.clients)
	h.mu.Unlock()
	logging.Ctx(c.ctx).Debug().Int("total_clients", total).Msg("websocket client disconnected")
}

// Client returns the live client with the given socket id.
func (h *Hub) Client(socketID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[socketID]
	return c, ok
}

// Count returns the number of live clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Emit queues event on the given socket.
func (h *Hub) Emit(socketID, event string, payload any) error {
	c, ok := h.Client(socketID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSocket, socketID)
	}
	return c.Emit(event, payload)
}

// EmitWithAck sends event on the given socket and waits for the client's
// ack.
func (h *Hub) EmitWithAck(ctx context.Context, socketID, event string, payload any) error {
	c, ok := h.Client(socketID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSocket, socketID)
	}
	return c.EmitWithAck(ctx, event, payload)
}

// CloseAll closes every client with code and refuses further upgrades.
// Clients are closed in connection order. It returns the number closed.
func (h *Hub) CloseAll(code int, text string) int {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].seq < clients[j].seq
	})
	for _, c := range clients {
		c.Close(code, text)
	}

	logging.Info().
		Str("component", "websocket-hub").
		Int("clients_closed", len(clients)).
		Msg("closed all websocket clients")
	return len(clients)
}
