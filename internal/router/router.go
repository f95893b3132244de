// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/chatrelay/internal/connection"
	"github.com/tomtom215/chatrelay/internal/logging"
	"github.com/tomtom215/chatrelay/internal/metrics"
	"github.com/tomtom215/chatrelay/internal/models"
	"github.com/tomtom215/chatrelay/internal/pubsub"
	"github.com/tomtom215/chatrelay/internal/storage"
)

// DefaultAckTimeout bounds each per-socket delivery wait.
const DefaultAckTimeout = 3 * time.Second

// Delivery results recorded in metrics.
const (
	resultDelivered      = "delivered"
	resultNoLocalSockets = "no_local_sockets"
	resultUnacknowledged = "unacknowledged"
)

var (
	// ErrInvalidConversation is returned for conversation types the router
	// cannot address.
	ErrInvalidConversation = errors.New("invalid conversation type")

	// ErrAckTimeout marks a socket that did not acknowledge a delivery in time.
	ErrAckTimeout = errors.New("acknowledgment timeout")
)

// Emitter writes events to sockets connected to this instance.
type Emitter interface {
	// Emit queues an event without waiting for the client.
	Emit(socketID, event string, payload any) error

	// EmitWithAck sends an event and blocks until the client acknowledges
	// it or ctx ends.
	EmitWithAck(ctx context.Context, socketID, event string, payload any) error
}

// Config holds router tuning.
type Config struct {
	AckTimeout      time.Duration `koanf:"ack_timeout"`
	ReadTrackerSize int           `koanf:"read_tracker_size"`
	ReadTrackerTTL  time.Duration `koanf:"read_tracker_ttl"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		AckTimeout:      DefaultAckTimeout,
		ReadTrackerSize: DefaultReadTrackerSize,
		ReadTrackerTTL:  DefaultReadTrackerTTL,
	}
}

// Deps are the collaborators a Router needs.
type Deps struct {
	Conns     *connection.Manager
	Emitter   Emitter
	Bus       pubsub.Bridge
	Channels  pubsub.Channels
	Directory storage.Directory
	Origin    string

	// OnPresence, if set, sees every presence update from the bus before
	// it is relayed to contacts.
	OnPresence func(ctx context.Context, origin string, update *models.PresenceUpdate)
}

// Router publishes chat traffic on the bus and delivers what the bus hands
// back to sockets on this instance.
//
// Delivery is local only: every instance subscribed to the same channel
// receives the envelope and delivers to its own sockets. An instance with
// no sockets for the recipient drops the envelope.
type Router struct {
	cfg   Config
	deps  Deps
	now   func() time.Time
	reads *ReadTracker

	// inflight tracks delivery goroutines so tests and shutdown can wait.
	inflight sync.WaitGroup
}

// Option configures a Router.
type Option func(*Router)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// New creates a Router.
func New(cfg Config, deps Deps, opts ...Option) *Router {
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = DefaultAckTimeout
	}
	r := &Router{cfg: cfg, deps: deps, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	r.reads = NewReadTracker(cfg.ReadTrackerSize, cfg.ReadTrackerTTL, r.now)
	return r
}

// Reads exposes the group read tracker.
func (r *Router) Reads() *ReadTracker { return r.reads }

// Wait blocks until in-flight deliveries finish.
func (r *Router) Wait() { r.inflight.Wait() }

// Subscribe registers the router's handlers on the bus.
func (r *Router) Subscribe(ctx context.Context) error {
	ch := r.deps.Channels
	subs := []struct {
		pattern string
		h       pubsub.Handler
	}{
		{ch.UserPattern(), r.handleUser},
		{ch.GroupPattern(), r.handleGroup},
		{ch.AckPattern(), r.handleAck},
		{ch.Presence(), r.handlePresence},
	}
	for _, s := range subs {
		if err := r.deps.Bus.Subscribe(ctx, s.pattern, s.h); err != nil {
			return fmt.Errorf("subscribe %s: %w", s.pattern, err)
		}
	}
	return nil
}

// Send creates a message from senderID and publishes it to the recipient
// user's channel or the group's channel. The returned message carries the
// server-assigned id and SENT status.
func (r *Router) Send(ctx context.Context, senderID string, req *models.SendMessageRequest) (*models.Message, error) {
	msg := &models.Message{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		Status:     models.StatusSent,
		CreatedAt:  r.now().UTC(),
	}

	channel, err := r.conversationChannel(req.ConversationType, req.ChatID, req.ReceiverID)
	if err != nil {
		return nil, err
	}

	env := &models.Envelope{
		Type:             models.EnvelopeMessage,
		Origin:           r.deps.Origin,
		ChatID:           req.ChatID,
		ConversationType: req.ConversationType,
		Message:          msg,
	}
	if err := r.deps.Bus.Publish(ctx, channel, env); err != nil {
		return nil, err
	}
	return msg, nil
}

// Typing publishes a typing hint from userID.
func (r *Router) Typing(ctx context.Context, userID string, req *models.TypingRequest) error {
	channel, err := r.conversationChannel(req.ConversationType, req.ChatID, req.ReceiverID)
	if err != nil {
		return err
	}
	return r.deps.Bus.Publish(ctx, channel, &models.Envelope{
		Type:             models.EnvelopeTyping,
		Origin:           r.deps.Origin,
		ChatID:           req.ChatID,
		ConversationType: req.ConversationType,
		Typing: &models.Typing{
			ChatID:           req.ChatID,
			ConversationType: req.ConversationType,
			UserID:           userID,
			IsTyping:         req.IsTyping,
		},
	})
}

// MarkStatus handles a status update sent by readerID about a message
// from req.SenderID. Direct updates go straight to the sender's ack
// channel. Group READs travel as read receipts and are aggregated where
// the sender is connected. Updates about one's own messages are ignored.
func (r *Router) MarkStatus(ctx context.Context, readerID string, req *models.MessageStatusRequest) error {
	if readerID == req.SenderID {
		return nil
	}
	ackChannel := r.deps.Channels.Ack(req.SenderID)
	at := r.now().UTC()

	if req.ConversationType == models.ConversationGroup && req.Status == models.StatusRead {
		return r.deps.Bus.Publish(ctx, ackChannel, &models.Envelope{
			Type:             models.EnvelopeReadReceipt,
			Origin:           r.deps.Origin,
			ChatID:           req.ChatID,
			ConversationType: req.ConversationType,
			Receipt: &models.ReadReceipt{
				MessageID: req.MessageID,
				ChatID:    req.ChatID,
				SenderID:  req.SenderID,
				ReaderID:  readerID,
				At:        at,
			},
		})
	}

	return r.publishAck(ctx, req.SenderID, &models.Ack{
		MessageID:        req.MessageID,
		ChatID:           req.ChatID,
		ConversationType: req.ConversationType,
		Status:           req.Status,
		UserID:           readerID,
		At:               at,
	})
}

func (r *Router) conversationChannel(t models.ConversationType, chatID, receiverID string) (string, error) {
	switch t {
	case models.ConversationDirect:
		return r.deps.Channels.User(receiverID), nil
	case models.ConversationGroup:
		return r.deps.Channels.Group(chatID), nil
	default:
		return "", fmt.Errorf("%w: %d", ErrInvalidConversation, t)
	}
}

func (r *Router) publishAck(ctx context.Context, senderID string, ack *models.Ack) error {
	return r.deps.Bus.Publish(ctx, r.deps.Channels.Ack(senderID), &models.Envelope{
		Type:             models.EnvelopeAck,
		Origin:           r.deps.Origin,
		ChatID:           ack.ChatID,
		ConversationType: ack.ConversationType,
		Ack:              ack,
	})
}

// BroadcastToUser sends event to every local socket of userID without
// waiting for acknowledgment. It returns the number of sockets written.
func (r *Router) BroadcastToUser(userID, event string, payload any) int {
	return r.broadcast(r.deps.Conns.Sockets(userID), event, payload)
}

func (r *Router) broadcast(sockets []string, event string, payload any) int {
	sent := 0
	for _, sid := range sockets {
		if err := r.deps.Emitter.Emit(sid, event, payload); err != nil {
			logging.Debug().Err(err).Str("socket_id", sid).Str("event", event).Msg("Broadcast emit failed")
			continue
		}
		sent++
	}
	return sent
}

// DeliverDirect delivers a direct message to the recipient's local sockets.
func (r *Router) DeliverDirect(ctx context.Context, env *models.Envelope) {
	r.deliver(ctx, env, r.deps.Conns.Sockets(env.Message.ReceiverID))
}

// DeliverGroup delivers a group message to local members of the group's
// room, excluding the sender's own sockets.
func (r *Router) DeliverGroup(ctx context.Context, env *models.Envelope) {
	room := connection.GroupRoom(env.ChatID)
	r.deliver(ctx, env, r.deps.Conns.RoomSocketsExcept(room, env.Message.SenderID))
}

// deliver emits receive_message to every socket concurrently. The first
// socket to acknowledge publishes one DELIVERED ack to the sender; later
// acks and failures are only logged. deliver returns immediately.
func (r *Router) deliver(ctx context.Context, env *models.Envelope, sockets []string) {
	convType := env.ConversationType.String()
	if len(sockets) == 0 {
		metrics.RecordDelivery(convType, resultNoLocalSockets, 0)
		return
	}

	msg := env.Message
	start := r.now()
	var (
		first   sync.Once
		pending sync.WaitGroup
		acked   atomic.Bool
	)

	for _, sid := range sockets {
		pending.Add(1)
		r.inflight.Add(1)
		go func(socketID string) {
			defer r.inflight.Done()
			defer pending.Done()

			actx, cancel := context.WithTimeout(ctx, r.cfg.AckTimeout)
			defer cancel()

			err := r.deps.Emitter.EmitWithAck(actx, socketID, models.EventReceiveMessage, env.Message)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					metrics.RouterAckTimeouts.Inc()
					err = fmt.Errorf("%w after %s: %w", ErrAckTimeout, r.cfg.AckTimeout, err)
				}
				logging.Debug().
					Err(err).
					Str("socket_id", socketID).
					Str("message_id", msg.ID).
					Msg("Delivery not acknowledged")
				return
			}

			first.Do(func() {
				acked.Store(true)
				metrics.RecordDelivery(convType, resultDelivered, r.now().Sub(start))

				// The caller's context may already be gone; the ack must still go out.
				pctx, pcancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.AckTimeout)
				defer pcancel()
				err := r.publishAck(pctx, msg.SenderID, &models.Ack{
					MessageID:        msg.ID,
					ChatID:           env.ChatID,
					ConversationType: env.ConversationType,
					Status:           models.StatusDelivered,
					UserID:           msg.ReceiverID,
					At:               r.now().UTC(),
				})
				if err != nil {
					logging.Warn().Err(err).Str("message_id", msg.ID).Msg("Failed to publish delivery ack")
				}
			})
		}(sid)
	}

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		pending.Wait()
		if !acked.Load() {
			metrics.RecordDelivery(convType, resultUnacknowledged, 0)
		}
	}()
}
