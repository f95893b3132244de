// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package gateway

import (
	"context"

	"github.com/thejerf/suture/v4"
)

// Service is a long-running loop owned by the gateway.
type Service interface {
	Serve(ctx context.Context) error
	String() string
}

// Services returns the gateway's periodic loops (presence sweep and flush,
// rate limit sweep, breaker probe) for the caller's supervisor. Each loop
// also stops when Shutdown is called and is then not restarted.
func (s *Server) Services() []suture.Service {
	inner := []Service{
		s.presence.Monitor(),
		s.presence.Flusher(),
		s.sweeper,
	}
	if s.prober != nil {
		inner = append(inner, s.prober)
	}

	out := make([]suture.Service, 0, len(inner))
	for _, svc := range inner {
		out = append(out, &stoppable{inner: svc, s: s})
	}
	return out
}

// stoppable ties a service's lifetime to both its supervisor and the
// gateway's Shutdown.
type stoppable struct {
	inner Service
	s     *Server
}

func (st *stoppable) Serve(ctx context.Context) error {
	st.s.svcMu.Lock()
	if st.s.stopping {
		st.s.svcMu.Unlock()
		return suture.ErrDoNotRestart
	}
	st.s.svcWG.Add(1)
	st.s.svcMu.Unlock()
	defer st.s.svcWG.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-st.s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := st.inner.Serve(ctx)
	select {
	case <-st.s.stopCh:
		return suture.ErrDoNotRestart
	default:
		return err
	}
}

func (st *stoppable) String() string { return st.inner.String() }
