// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package websocket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/chatrelay/internal/logging"
	"github.com/tomtom215/chatrelay/internal/metrics"
	"github.com/tomtom215/chatrelay/internal/models"
)

var (
	// ErrClientClosed is returned when emitting to a closed client.
	ErrClientClosed = errors.New("websocket client closed")

	// ErrSendBufferFull is returned when a client cannot keep up. The client
	// is closed.
	ErrSendBufferFull = errors.New("websocket send buffer full")
)

// Client is one websocket connection owned by a user.
//
// Outbound frames are pre-encoded and queued on send; writePump is the only
// writer to the connection. send is never closed, so Emit is safe from any
// goroutine at any time. quit signals shutdown.
type Client struct {
	id     string
	seq    uint64
	userID string
	hub    *Hub
	conn   *websocket.Conn
	cfg    Config

	ctx    context.Context
	cancel context.CancelFunc

	send chan []byte
	quit chan struct{}

	closeOnce sync.Once
	closeCode int
	closeText string

	nextAck atomic.Uint64
	mu      sync.Mutex
	pending map[uint64]chan struct{}
}

// newClient builds a client whose context carries correlationID, or a fresh
// one when it is empty.
func newClient(hub *Hub, conn *websocket.Conn, userID string, seq uint64, correlationID string) *Client {
	id := uuid.New().String()
	ctx := logging.ContextWithNewCorrelationID(context.Background())
	if correlationID != "" {
		ctx = logging.ContextWithCorrelationID(context.Background(), correlationID)
	}
	ctx = logging.ContextWithSocket(ctx, id, userID)
	ctx, cancel := context.WithCancel(ctx)
	return &Client{
		id:      id,
		seq:     seq,
		userID:  userID,
		hub:     hub,
		conn:    conn,
		cfg:     hub.cfg,
		ctx:     ctx,
		cancel:  cancel,
		send:    make(chan []byte, hub.cfg.SendBuffer),
		quit:    make(chan struct{}),
		pending: make(map[uint64]chan struct{}),
	}
}

// ID returns the socket id.
func (c *Client) ID() string { return c.id }

// UserID returns the authenticated owner of the socket.
func (c *Client) UserID() string { return c.userID }

// Context is cancelled when the client closes. It carries the socket's
// correlation id for logging.
func (c *Client) Context() context.Context { return c.ctx }

// Done is closed when the client starts closing.
func (c *Client) Done() <-chan struct{} { return c.quit }

// Emit queues event for the client without waiting for an answer.
func (c *Client) Emit(event string, payload any) error {
	return c.enqueue(event, payload, nil)
}

// EmitWithAck sends event and waits until the client answers with an ack
// frame, ctx ends or the client closes. A close returns ErrClientClosed
// immediately rather than at the deadline.
func (c *Client) EmitWithAck(ctx context.Context, event string, payload any) error {
	id := c.nextAck.Add(1)
	answered := make(chan struct{})

	c.mu.Lock()
	c.pending[id] = answered
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.enqueue(event, payload, &id); err != nil {
		return err
	}

	select {
	case <-answered:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.quit:
		return ErrClientClosed
	}
}

func (c *Client) resolve(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.pending[id]; ok {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) enqueue(event string, payload any, ack *uint64) error {
	select {
	case <-c.quit:
		return ErrClientClosed
	default:
	}

	frame, err := encodeFrame(event, payload, ack)
	if err != nil {
		return err
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.quit:
		return ErrClientClosed
	default:
		metrics.WSErrors.WithLabelValues("send_buffer_full").Inc()
		logging.Ctx(c.ctx).Warn().Str("event", event).Msg("Send buffer full, dropping slow client")
		c.Close(websocket.ClosePolicyViolation, "slow consumer")
		return ErrSendBufferFull
	}
}

// Close starts closing the client with the given close code. The close
// frame is written after frames already queued. Close is idempotent; the
// first code wins.
func (c *Client) Close(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.quit)
		c.cancel()
	})
}

// Start runs the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump reads frames until the connection fails, dispatching events to
// the hub's handler in arrival order.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.Close(websocket.CloseNormalClosure, "")
		c.hub.handler.HandleDisconnect(c)
		_ = c.conn.Close() // Best-effort; writePump may have closed it already
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		logging.Ctx(c.ctx).Error().Err(err).Msg("Failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				metrics.WSErrors.WithLabelValues("unexpected_close").Inc()
				logging.Ctx(c.ctx).Warn().Err(err).Msg("Unexpected websocket close")
			}
			return
		}
		metrics.WSMessagesReceived.Inc()

		frame, err := decodeFrame(data)
		if err != nil {
			metrics.WSErrors.WithLabelValues("malformed_frame").Inc()
			_ = c.Emit(models.EventError, &models.ErrorPayload{
				Code:    models.ErrCodeValidation,
				Message: "malformed frame",
			})
			continue
		}

		if frame.Event == models.EventAck {
			if frame.Ack != nil {
				c.resolve(*frame.Ack)
			}
			continue
		}
		c.dispatch(frame)
	}
}

// dispatch runs the handler for one inbound frame. A panicking handler is
// reported to this socket only.
func (c *Client) dispatch(f *Frame) {
	defer func() {
		if r := recover(); r != nil {
			metrics.WSErrors.WithLabelValues("handler_panic").Inc()
			logging.Ctx(c.ctx).Error().Interface("panic", r).Str("event", f.Event).Msg("Event handler panicked")
			_ = c.Emit(models.EventError, &models.ErrorPayload{
				Code:    models.ErrCodeInternal,
				Message: "internal error",
			})
		}
	}()

	reply := c.hub.handler.HandleEvent(c.ctx, c, f.Event, f.Data)
	if f.Ack == nil {
		return
	}
	if reply == nil {
		reply = AckReply{OK: true}
	}
	if err := c.enqueue(models.EventAck, reply, f.Ack); err != nil {
		logging.Ctx(c.ctx).Debug().Err(err).Str("event", f.Event).Msg("Failed to queue ack")
	}
}

// writePump is the connection's only writer.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Best-effort; unblocks readPump
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				logging.Ctx(c.ctx).Debug().Err(err).Msg("Websocket write failed")
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-c.quit:
			c.drain()
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeText)
			if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteWait)); err != nil {
				logging.Ctx(c.ctx).Debug().Err(err).Msg("Failed to write close frame")
			}
			return
		}
	}
}

// drain writes frames queued before the client started closing.
func (c *Client) drain() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		return err
	}
	if messageType == websocket.TextMessage {
		metrics.WSMessagesSent.Inc()
	}
	return nil
}
