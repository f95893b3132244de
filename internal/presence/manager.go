// Chatrelay - Real-time Chat Delivery Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/chatrelay

package presence

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/chatrelay/internal/cache"
	"github.com/tomtom215/chatrelay/internal/logging"
	"github.com/tomtom215/chatrelay/internal/metrics"
	"github.com/tomtom215/chatrelay/internal/models"
	"github.com/tomtom215/chatrelay/internal/pubsub"
	"github.com/tomtom215/chatrelay/internal/resilience"
	"github.com/tomtom215/chatrelay/internal/storage"
)

// Config holds presence timing and sizing.
type Config struct {
	AwayThreshold    time.Duration `koanf:"away_threshold"`
	OfflineThreshold time.Duration `koanf:"offline_threshold"`
	MonitorInterval  time.Duration `koanf:"monitor_interval"`
	BatchInterval    time.Duration `koanf:"batch_interval"`
	MaxBatchSize     int           `koanf:"max_batch_size"`
	CacheSize        int           `koanf:"cache_size"`
	CacheTTL         time.Duration `koanf:"cache_ttl"`
	RetryBase        time.Duration `koanf:"retry_base"`
	RetryMax         time.Duration `koanf:"retry_max"`
	MaxAttempts      int           `koanf:"max_attempts"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		AwayThreshold:    30 * time.Second,
		OfflineThreshold: 60 * time.Second,
		MonitorInterval:  60 * time.Second,
		BatchInterval:    10 * time.Second,
		MaxBatchSize:     1000,
		CacheSize:        10_000,
		CacheTTL:         7 * 24 * time.Hour,
		RetryBase:        time.Second,
		RetryMax:         30 * time.Second,
		MaxAttempts:      3,
	}
}

// SocketCounter reports how many local sockets a user holds.
type SocketCounter interface {
	SocketCount(userID string) int
}

// Entry is the cached presence of a locally connected user. Announced is
// when Status was last published.
type Entry struct {
	Status    models.PresenceStatus
	LastSeen  time.Time
	Announced time.Time
}

// Deps are the collaborators a Manager needs. Bus may be nil, in which
// case transitions are cached and persisted but not published.
type Deps struct {
	Sockets  SocketCounter
	Store    storage.PresenceStore
	Breaker  *resilience.CircuitBreaker
	Bus      pubsub.Bridge
	Channels pubsub.Channels
	Origin   string
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager tracks presence for users connected to this instance.
//
// Only local users are cached and swept; presence of users on other
// instances arrives over the bus and is relayed without being cached. A
// user that left this instance stays cached until the sweep marks it
// offline, unless another instance announces it first (see Remote).
// Connected users are re-announced on heartbeat once per
// OfflineThreshold so a stale offline from another instance heals.
type Manager struct {
	cfg  Config
	deps Deps
	now  func() time.Time

	// sleep waits between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	// mu serializes read-modify-write on cache entries.
	mu    sync.Mutex
	cache *cache.LRU[string, Entry]

	queue *queue

	// flushMu keeps at most one batch write in flight.
	flushMu sync.Mutex
}

// NewManager creates a Manager. Zero config fields take their defaults.
func NewManager(cfg Config, deps Deps, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.AwayThreshold <= 0 {
		cfg.AwayThreshold = def.AwayThreshold
	}
	if cfg.OfflineThreshold <= 0 {
		cfg.OfflineThreshold = def.OfflineThreshold
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = def.MonitorInterval
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = def.BatchInterval
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = def.RetryBase
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = def.RetryMax
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}

	m := &Manager{
		cfg:   cfg,
		deps:  deps,
		now:   time.Now,
		sleep: sleepContext,
		queue: newQueue(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.cache = cache.NewLRU[string, Entry](cfg.CacheSize, cfg.CacheTTL,
		cache.WithClock[string, Entry](m.now),
		cache.WithEvictCallback(func(_ string, _ Entry, reason cache.EvictReason) {
			metrics.CacheEvictions.WithLabelValues("presence", reason.String()).Inc()
		}),
	)
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Heartbeat records activity for userID and moves it to online. An online
// user whose last announcement is older than OfflineThreshold is announced
// again.
func (m *Manager) Heartbeat(ctx context.Context, userID string) {
	now := m.now()

	m.mu.Lock()
	prev, _ := m.cache.Get(userID)
	announce := prev.Status != models.PresenceOnline || now.Sub(prev.Announced) >= m.cfg.OfflineThreshold
	next := Entry{Status: models.PresenceOnline, LastSeen: now, Announced: prev.Announced}
	if announce {
		next.Announced = now
	}
	m.cache.Add(userID, next)
	m.mu.Unlock()

	if announce {
		m.emit(ctx, userID, models.PresenceOnline, now)
	}
}

// Remote applies a presence update published by another instance. A user
// announced online or away elsewhere with no sockets here is dropped from
// the cache, so this instance does not later mark it offline.
func (m *Manager) Remote(_ context.Context, origin string, u *models.PresenceUpdate) {
	if u == nil || origin == m.deps.Origin || u.Status == models.PresenceOffline {
		return
	}
	if m.deps.Sockets.SocketCount(u.UserID) > 0 {
		return
	}
	m.mu.Lock()
	removed := m.cache.Remove(u.UserID)
	m.mu.Unlock()
	if removed {
		logging.Debug().Str("component", "presence").Str("user_id", u.UserID).Str("origin", origin).
			Msg("User moved to another instance")
	}
}

// Connected is called after a socket for userID registers.
func (m *Manager) Connected(ctx context.Context, userID string) {
	m.Heartbeat(ctx, userID)
}

// Disconnected is called after a socket for userID is released. It only
// records the time; the sweep decides when the user goes offline. A user
// evicted from the cache is re-added so the sweep still sees it.
func (m *Manager) Disconnected(_ context.Context, userID string) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.cache.Peek(userID)
	if !ok {
		e.Status = models.PresenceOnline
	}
	e.LastSeen = now
	m.cache.Add(userID, e)
}

// Status returns the cached presence of a local user.
func (m *Manager) Status(userID string) (Entry, bool) {
	return m.cache.Peek(userID)
}

// CachedUsers returns the number of users in the presence cache.
func (m *Manager) CachedUsers() int {
	return m.cache.Len()
}

// Sweep recomputes every cached user's status at now and applies the
// transitions it finds. Users that go offline are evicted from the cache.
func (m *Manager) Sweep(ctx context.Context, now time.Time) []models.PresenceUpdate {
	var changes []models.PresenceUpdate

	m.mu.Lock()
	for _, e := range m.cache.Entries() {
		userID, cur := e.Key, e.Value
		next, ok := m.evaluate(userID, cur, now)
		if !ok {
			continue
		}
		if next == models.PresenceOffline {
			m.cache.Remove(userID)
		} else {
			m.cache.Add(userID, Entry{Status: next, LastSeen: cur.LastSeen, Announced: now})
		}
		changes = append(changes, models.PresenceUpdate{UserID: userID, Status: next, LastSeen: cur.LastSeen})
	}
	m.mu.Unlock()

	for _, c := range changes {
		m.emit(ctx, c.UserID, c.Status, c.LastSeen)
	}
	if expired := m.cache.CleanupExpired(); expired > 0 {
		logging.Debug().Str("component", "presence").Int("expired", expired).Msg("Removed expired presence entries")
	}
	return changes
}

// evaluate returns the status cur should move to, if any.
func (m *Manager) evaluate(userID string, cur Entry, now time.Time) (models.PresenceStatus, bool) {
	elapsed := now.Sub(cur.LastSeen)
	sockets := m.deps.Sockets.SocketCount(userID)

	switch {
	case sockets == 0 && elapsed > m.cfg.OfflineThreshold:
		return models.PresenceOffline, true
	case sockets > 0 && elapsed > m.cfg.AwayThreshold && cur.Status == models.PresenceOnline:
		return models.PresenceAway, true
	}
	return cur.Status, false
}

// emit queues a transition for persistence and publishes it on the bus.
func (m *Manager) emit(ctx context.Context, userID string, status models.PresenceStatus, lastSeen time.Time) {
	metrics.PresenceTransitions.WithLabelValues(status.String()).Inc()
	m.queue.push(models.PresenceRecord{UserID: userID, Status: status, LastSeen: lastSeen})
	metrics.PresenceQueueDepth.Set(float64(m.queue.len()))

	logging.Debug().
		Str("component", "presence").
		Str("user_id", userID).
		Stringer("status", status).
		Msg("Presence transition")

	if m.deps.Bus == nil {
		return
	}
	env := &models.Envelope{
		Type:     models.EnvelopePresence,
		Origin:   m.deps.Origin,
		Presence: &models.PresenceUpdate{UserID: userID, Status: status, LastSeen: lastSeen},
	}
	if err := m.deps.Bus.Publish(ctx, m.deps.Channels.Presence(), env); err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("Failed to publish presence update")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
