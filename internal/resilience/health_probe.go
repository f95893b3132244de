// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tomtom215/chatrelay/internal/logging"
)

// ErrUnhealthy is matched by every UnhealthyError.
var ErrUnhealthy = errors.New("dependency unhealthy")

// UnhealthyError reports a health check that answered with a non-200 status.
type UnhealthyError struct {
	URL        string
	StatusCode int
}

func (e *UnhealthyError) Error() string {
	return fmt.Sprintf("health check %s returned %d", e.URL, e.StatusCode)
}

// Is makes errors.Is(err, ErrUnhealthy) succeed.
func (e *UnhealthyError) Is(target error) bool {
	return target == ErrUnhealthy
}

// HealthProbe checks a dependency with an HTTP GET. Only status 200 is healthy.
type HealthProbe struct {
	url    string
	client *http.Client
}

// NewHealthProbe creates a probe for url. A nil client gets a 5s timeout.
func NewHealthProbe(url string, client *http.Client) *HealthProbe {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HealthProbe{url: url, client: client}
}

// Check performs one GET. Network errors and any status other than 200 fail.
func (p *HealthProbe) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, http.NoBody)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check %s: %w", p.url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return &UnhealthyError{URL: p.url, StatusCode: resp.StatusCode}
	}
	return nil
}

// Prober runs a HealthProbe through a CircuitBreaker on a fixed interval so
// that an unhealthy dependency trips the breaker before real traffic does.
// Once the circuit is open the probe is skipped until the open timeout
// elapses; the next probe is then the half-open trial.
type Prober struct {
	breaker  *CircuitBreaker
	probe    *HealthProbe
	interval time.Duration
}

// NewProber creates a Prober. interval defaults to 15s.
func NewProber(breaker *CircuitBreaker, probe *HealthProbe, interval time.Duration) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Prober{breaker: breaker, probe: probe, interval: interval}
}

// ProbeOnce runs a single probe through the breaker.
func (p *Prober) ProbeOnce(ctx context.Context) error {
	return p.breaker.Execute(ctx, p.probe.Check)
}

// Serve implements suture.Service.
func (p *Prober) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.ProbeOnce(ctx); err != nil && !errors.Is(err, ErrCircuitOpen) && ctx.Err() == nil {
				logging.Warn().Err(err).Str("breaker", p.breaker.Name()).Msg("Health probe failed")
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (p *Prober) String() string {
	return "health-prober-" + p.breaker.Name()
}
