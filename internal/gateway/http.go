// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/chatrelay/internal/middleware"
	"github.com/tomtom215/chatrelay/internal/ratelimit"
)

// Handler returns the HTTP surface: /ws, /healthz and the metrics route.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{
			middleware.RequestIDHeader,
			ratelimit.HeaderLimit,
			ratelimit.HeaderRemaining,
			ratelimit.HeaderReset,
			ratelimit.HeaderRetryAfter,
		},
		MaxAge: 86400,
	}))

	r.Get("/healthz", s.handleHealth)
	if !s.cfg.DisableMetrics {
		r.Handle(s.cfg.MetricsPath, promhttp.Handler())
	}

	ws := r.With()
	if s.deps.UpgradeLimiter != nil {
		ws = r.With(ratelimit.Middleware(s.deps.UpgradeLimiter, httprate.KeyByIP))
	}
	ws.Get("/ws", s.handleWS)

	return r
}

// Health is the /healthz body.
type Health struct {
	Status           string `json:"status"`
	Instance         string `json:"instance"`
	Bus              string `json:"bus"`
	Breaker          string `json:"breaker"`
	Storage          string `json:"storage"`
	Sockets          int    `json:"sockets"`
	Users            int    `json:"users"`
	PendingPresence  int    `json:"pendingPresence"`
	PendingReadSets  int    `json:"pendingReadSets"`
	ConnectedClients int    `json:"connectedClients"`
}

// Health reports the current state of the instance.
func (s *Server) Health(ctx context.Context) Health {
	h := Health{
		Status:           "ok",
		Instance:         s.cfg.InstanceID,
		Bus:              s.deps.Bus.Backend(),
		Breaker:          s.deps.Breaker.State().String(),
		Storage:          "ok",
		Sockets:          s.deps.Conns.SocketTotal(),
		Users:            s.deps.Conns.ConnectedUserCount(),
		PendingPresence:  s.presence.Pending(),
		PendingReadSets:  s.router.Reads().Pending(),
		ConnectedClients: s.hub.Count(),
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.deps.Store.Ping(pingCtx); err != nil {
		h.Storage = "unavailable"
		h.Status = "degraded"
	}
	if h.Breaker != "closed" {
		h.Status = "degraded"
	}
	if s.isStopping() {
		h.Status = "shutting_down"
	}
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.Health(r.Context())
	status := http.StatusOK
	if h.Status == "shutting_down" {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(h)
}
