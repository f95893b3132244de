// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tomtom215/chatrelay/internal/auth"
	"github.com/tomtom215/chatrelay/internal/connection"
	"github.com/tomtom215/chatrelay/internal/models"
	"github.com/tomtom215/chatrelay/internal/presence"
	"github.com/tomtom215/chatrelay/internal/pubsub"
	"github.com/tomtom215/chatrelay/internal/ratelimit"
	"github.com/tomtom215/chatrelay/internal/resilience"
	"github.com/tomtom215/chatrelay/internal/router"
	"github.com/tomtom215/chatrelay/internal/storage"
	"github.com/tomtom215/chatrelay/internal/websocket"
)

// Typing throttle defaults.
const (
	DefaultTypingRate  = 5.0
	DefaultTypingBurst = 5
)

// DefaultMetricsPath is the Prometheus scrape route.
const DefaultMetricsPath = "/metrics"

// ErrShuttingDown is returned by Start after Shutdown.
var ErrShuttingDown = errors.New("gateway shutting down")

// Config holds the gateway's own settings and those of the components it
// builds.
type Config struct {
	InstanceID     string
	ChannelPrefix  string
	AllowedOrigins []string

	TypingRate  float64
	TypingBurst int

	// MetricsPath is where Prometheus metrics are served; DisableMetrics
	// removes the route.
	MetricsPath    string
	DisableMetrics bool

	LimiterSweepInterval time.Duration
	ProbeURL             string
	ProbeInterval        time.Duration

	Transport websocket.Config
	Router    router.Config
	Presence  presence.Config
}

// Deps are the infrastructure pieces built by the caller. UpgradeLimiter
// may be nil to disable HTTP rate limiting on /ws.
type Deps struct {
	Conns          *connection.Manager
	Bus            pubsub.Bridge
	Store          storage.Store
	Breaker        *resilience.CircuitBreaker
	Verifier       auth.Verifier
	MessageLimiter ratelimit.Limiter
	UpgradeLimiter ratelimit.Limiter
}

// Server is the per-process context of the relay. It owns every component
// and is the only place they are wired together; nothing is reached
// through globals.
type Server struct {
	cfg  Config
	deps Deps

	channels pubsub.Channels
	hub      *websocket.Hub
	router   *router.Router
	presence *presence.Manager
	sweeper  *ratelimit.Sweeper
	prober   *resilience.Prober

	typingMu sync.Mutex
	typing   map[string]*rate.Limiter

	svcMu    sync.Mutex
	svcWG    sync.WaitGroup
	stopping bool
	stopCh   chan struct{}

	started      bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// New builds a Server and its components from cfg and deps.
func New(cfg Config, deps Deps) (*Server, error) {
	switch {
	case deps.Conns == nil:
		return nil, fmt.Errorf("gateway: connection manager is required")
	case deps.Bus == nil:
		return nil, fmt.Errorf("gateway: bus is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("gateway: store is required")
	case deps.Breaker == nil:
		return nil, fmt.Errorf("gateway: breaker is required")
	case deps.Verifier == nil:
		return nil, fmt.Errorf("gateway: verifier is required")
	case deps.MessageLimiter == nil:
		return nil, fmt.Errorf("gateway: message limiter is required")
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.New().String()
	}
	if cfg.TypingRate <= 0 {
		cfg.TypingRate = DefaultTypingRate
	}
	if cfg.TypingBurst <= 0 {
		cfg.TypingBurst = DefaultTypingBurst
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = DefaultMetricsPath
	}
	if cfg.LimiterSweepInterval <= 0 {
		cfg.LimiterSweepInterval = ratelimit.DefaultSweepInterval
	}

	s := &Server{
		cfg:      cfg,
		deps:     deps,
		channels: pubsub.NewChannels(cfg.ChannelPrefix),
		typing:   make(map[string]*rate.Limiter),
		stopCh:   make(chan struct{}),
	}

	s.hub = websocket.NewHub(cfg.Transport, s)
	s.router = router.New(cfg.Router, router.Deps{
		Conns:     deps.Conns,
		Emitter:   s.hub,
		Bus:       deps.Bus,
		Channels:  s.channels,
		Directory: deps.Store,
		Origin:    cfg.InstanceID,
		OnPresence: func(ctx context.Context, origin string, u *models.PresenceUpdate) {
			s.presence.Remote(ctx, origin, u)
		},
	})
	s.presence = presence.NewManager(cfg.Presence, presence.Deps{
		Sockets:  deps.Conns,
		Store:    deps.Store,
		Breaker:  deps.Breaker,
		Bus:      deps.Bus,
		Channels: s.channels,
		Origin:   cfg.InstanceID,
	})

	limiters := []ratelimit.Limiter{deps.MessageLimiter}
	if deps.UpgradeLimiter != nil {
		limiters = append(limiters, deps.UpgradeLimiter)
	}
	s.sweeper = ratelimit.NewSweeper(cfg.LimiterSweepInterval, limiters...)

	if cfg.ProbeURL != "" {
		s.prober = resilience.NewProber(deps.Breaker, resilience.NewHealthProbe(cfg.ProbeURL, nil), cfg.ProbeInterval)
	}
	return s, nil
}

// InstanceID identifies this process on the bus.
func (s *Server) InstanceID() string { return s.cfg.InstanceID }

// Hub returns the socket transport.
func (s *Server) Hub() *websocket.Hub { return s.hub }

// Router returns the message router.
func (s *Server) Router() *router.Router { return s.router }

// Presence returns the presence manager.
func (s *Server) Presence() *presence.Manager { return s.presence }

// Start subscribes the router to the bus. It must be called once before
// serving connections.
func (s *Server) Start(ctx context.Context) error {
	s.svcMu.Lock()
	defer s.svcMu.Unlock()
	if s.stopping {
		return ErrShuttingDown
	}
	if s.started {
		return nil
	}
	if err := s.router.Subscribe(ctx); err != nil {
		return fmt.Errorf("gateway start: %w", err)
	}
	s.started = true
	return nil
}
